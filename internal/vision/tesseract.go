package vision

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/retracehq/retrace/internal/errors"
)

// TesseractEngine runs the tesseract binary with TSV output and parses the
// per-word records into tokens.
type TesseractEngine struct {
	Path     string // tesseract binary, defaults to "tesseract" on PATH
	Language string
}

// NewTesseractEngine creates a local OCR engine.
func NewTesseractEngine(path, language string) *TesseractEngine {
	if path == "" {
		path = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{Path: path, Language: language}
}

// Tag implements Engine.
func (e *TesseractEngine) Tag() string { return "Tesseract" }

// Process implements Engine.
func (e *TesseractEngine) Process(ctx context.Context, img image.Image) (Result, error) {
	tmp, err := os.CreateTemp("", "retrace-ocr-*.png")
	if err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryFileIO).
			Context("operation", "create_ocr_temp_file").
			Build()
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "encode_frame_png").
			Build()
	}
	if err := tmp.Close(); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryFileIO).
			Context("operation", "close_ocr_temp_file").
			Build()
	}

	// "stdout" makes tesseract write the TSV to standard output instead of
	// an output file pair.
	cmd := exec.CommandContext(ctx, e.Path, tmpPath, "stdout", "-l", e.Language, "tsv")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryOCR).
			Context("operation", "run_tesseract").
			Context("stderr", strings.TrimSpace(stderr.String())).
			Build()
	}

	raw := stdout.String()
	tokens := parseTesseractTSV(raw)
	return Result{
		Text:   joinTokens(tokens),
		Tokens: tokens,
		Raw:    raw,
	}, nil
}

// parseTesseractTSV extracts word-level records (level 5) from tesseract
// TSV output. Malformed lines are skipped.
func parseTesseractTSV(raw string) []Token {
	var tokens []Token
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if i == 0 || line == "" { // header row
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		level, err := strconv.Atoi(fields[0])
		if err != nil || level != 5 {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}
		left, _ := strconv.Atoi(fields[6])
		top, _ := strconv.Atoi(fields[7])
		width, _ := strconv.Atoi(fields[8])
		height, _ := strconv.Atoi(fields[9])
		conf, _ := strconv.ParseFloat(fields[10], 64)
		tokens = append(tokens, Token{
			Text:       text,
			Left:       left,
			Top:        top,
			Width:      width,
			Height:     height,
			Confidence: conf,
		})
	}
	return tokens
}

func joinTokens(tokens []Token) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, tok.Text)
	}
	return strings.Join(parts, " ")
}

// writeTextFile writes extracted text next to the chunk files for
// debugging when SaveTextFiles is enabled.
func writeTextFile(outputDir, baseName, text string) error {
	path := filepath.Join(outputDir, baseName+".txt")
	return os.WriteFile(path, []byte(text), 0o644)
}
