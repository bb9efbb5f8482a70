package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/retracehq/retrace/internal/errors"
)

// UnstructuredEngine performs cloud OCR by posting the PNG-encoded frame to
// an Unstructured-compatible partition endpoint and joining the element
// texts of the response.
type UnstructuredEngine struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewUnstructuredEngine creates a cloud OCR engine.
func NewUnstructuredEngine(url, apiKey string) *UnstructuredEngine {
	return &UnstructuredEngine{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Tag implements Engine.
func (e *UnstructuredEngine) Tag() string { return "Unstructured" }

// Process implements Engine.
func (e *UnstructuredEngine) Process(ctx context.Context, img image.Image) (Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "encode_frame_png").
			Build()
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", "image.png")
	if err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "build_multipart").
			Build()
	}
	if _, err := part.Write(buf.Bytes()); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "build_multipart").
			Build()
	}
	_ = writer.WriteField("strategy", "auto")
	_ = writer.WriteField("coordinates", "true")
	if err := writer.Close(); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "build_multipart").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, &body)
	if err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "build_request").
			Build()
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("unstructured-api-key", e.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.Client.Do(req)
	if err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "cloud_ocr_request").
			Build()
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("operation", "read_cloud_ocr_response").
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.Newf("cloud OCR returned status %d", resp.StatusCode).
			Component("vision").
			Category(errors.CategoryOCR).
			Context("operation", "cloud_ocr_request").
			Context("status", fmt.Sprintf("%d", resp.StatusCode)).
			Build()
	}

	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &elements); err != nil {
		return Result{}, errors.New(err).
			Component("vision").
			Category(errors.CategoryOCR).
			Context("operation", "parse_cloud_ocr_response").
			Build()
	}

	var parts []string
	var tokens []Token
	for _, element := range elements {
		rawText, ok := element["text"]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(rawText, &text); err != nil || text == "" {
			continue
		}
		parts = append(parts, text)
		for _, word := range strings.Fields(text) {
			tokens = append(tokens, Token{Text: word})
		}
	}

	return Result{
		Text:   strings.Join(parts, " "),
		Tokens: tokens,
		Raw:    string(payload),
	}, nil
}
