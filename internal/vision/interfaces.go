// Package vision captures screen frames, extracts text from them and emits
// change-filtered OCR records for the recording pipeline.
package vision

import (
	"context"
	"image"
)

// Token is one positioned word of OCR output.
type Token struct {
	Text       string  `json:"text"`
	Left       int     `json:"left"`
	Top        int     `json:"top"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"conf"`
}

// Result is the full extraction result for a single frame.
type Result struct {
	Text   string  // concatenated plain text
	Tokens []Token // structured per-token data
	Raw    string  // engine-native output, stored verbatim
}

// Engine extracts text from a captured frame. Implementations wrap a
// concrete OCR backend and are trusted to return in bounded time.
type Engine interface {
	Process(ctx context.Context, img image.Image) (Result, error)
	Tag() string
}

// Capturer grabs the active monitor. The foreground application name may be
// empty when the platform cannot provide it.
type Capturer interface {
	Capture(ctx context.Context) (img image.Image, appName string, err error)
	MonitorID() string
}

// ChunkWriter appends captured frames to video chunk files on disk.
// StartChunk closes the previous chunk, if any.
type ChunkWriter interface {
	StartChunk(path string) error
	WriteFrame(img image.Image) error
	Close() error
}

// OCRFrame is the unit the producer hands to the orchestrator.
type OCRFrame struct {
	Text        string
	TextJSON    string
	NewTextJSON string
	RawOutput   string
	AppName     string
}
