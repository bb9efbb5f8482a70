package transcribe

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/retracehq/retrace/internal/errors"
)

// WhisperEngine runs a local whisper CLI on the chunk file and captures its
// stdout as the transcript.
type WhisperEngine struct {
	Command   string // whisper binary, defaults to "whisper-cli"
	ModelPath string // optional model file passed with -m
}

// NewWhisperEngine creates the default local transcription engine.
func NewWhisperEngine(command, modelPath string) *WhisperEngine {
	if command == "" {
		command = "whisper-cli"
	}
	return &WhisperEngine{Command: command, ModelPath: modelPath}
}

// Tag implements Engine.
func (e *WhisperEngine) Tag() string { return "Whisper" }

// Transcribe implements Engine.
func (e *WhisperEngine) Transcribe(ctx context.Context, path string) (string, error) {
	args := []string{"--no-timestamps", "--no-prints"}
	if e.ModelPath != "" {
		args = append(args, "-m", e.ModelPath)
	}
	args = append(args, "-f", path)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryTranscription).
			Context("operation", "run_whisper").
			Context("path", path).
			Context("stderr", strings.TrimSpace(stderr.String())).
			Build()
	}

	return strings.TrimSpace(stdout.String()), nil
}
