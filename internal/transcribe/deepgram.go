package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/retracehq/retrace/internal/errors"
)

// DeepgramEngine posts the chunk file to a Deepgram-compatible
// pre-recorded transcription endpoint.
type DeepgramEngine struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewDeepgramEngine creates the cloud transcription engine.
func NewDeepgramEngine(url, apiKey string) *DeepgramEngine {
	return &DeepgramEngine{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Tag implements Engine.
func (e *DeepgramEngine) Tag() string { return "Deepgram" }

// deepgramResponse mirrors the fields of the response we consume.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements Engine.
func (e *DeepgramEngine) Transcribe(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio_chunk").
			Context("path", path).
			Build()
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, file)
	if err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryNetwork).
			Context("operation", "build_request").
			Build()
	}
	req.Header.Set("Authorization", "Token "+e.APIKey)
	req.Header.Set("Content-Type", contentTypeFor(path))

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryNetwork).
			Context("operation", "cloud_transcription_request").
			Build()
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryNetwork).
			Context("operation", "read_cloud_transcription_response").
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("cloud transcription returned status %d", resp.StatusCode).
			Component("transcribe").
			Category(errors.CategoryTranscription).
			Context("operation", "cloud_transcription_request").
			Context("status", fmt.Sprintf("%d", resp.StatusCode)).
			Build()
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", errors.New(err).
			Component("transcribe").
			Category(errors.CategoryTranscription).
			Context("operation", "parse_cloud_transcription_response").
			Build()
	}

	var parts []string
	for _, channel := range parsed.Results.Channels {
		for _, alt := range channel.Alternatives {
			if alt.Transcript != "" {
				parts = append(parts, alt.Transcript)
			}
			break // first alternative per channel
		}
	}
	return strings.Join(parts, " "), nil
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(path, ".mp4"), strings.HasSuffix(path, ".m4a"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
