package vision

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"sync"

	"github.com/retracehq/retrace/internal/errors"
)

// FFmpegChunkWriter muxes captured frames into H.264 chunk files by piping
// PNG frames into a long-lived ffmpeg process per chunk.
type FFmpegChunkWriter struct {
	FFmpegPath string
	FPS        float64

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFmpegChunkWriter creates a chunk writer.
func NewFFmpegChunkWriter(ffmpegPath string, fps float64) *FFmpegChunkWriter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegChunkWriter{FFmpegPath: ffmpegPath, FPS: fps}
}

// StartChunk finishes the current chunk, if any, and starts encoding into
// path.
func (w *FFmpegChunkWriter) StartChunk(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.closeLocked(); err != nil {
		return err
	}

	cmd := exec.Command(w.FFmpegPath,
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%g", w.FPS),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-y", path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "open_encoder_stdin").
			Build()
	}
	if err := cmd.Start(); err != nil {
		return errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "start_encoder").
			Context("path", path).
			Build()
	}

	w.cmd = cmd
	w.stdin = stdin
	return nil
}

// WriteFrame appends one frame to the current chunk.
func (w *FFmpegChunkWriter) WriteFrame(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stdin == nil {
		return errors.Newf("no chunk started").
			Component("vision").
			Category(errors.CategoryState).
			Context("operation", "write_frame").
			Build()
	}
	if err := png.Encode(w.stdin, img); err != nil {
		return errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "write_frame").
			Build()
	}
	return nil
}

// Close finishes the current chunk and waits for the encoder to exit.
func (w *FFmpegChunkWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *FFmpegChunkWriter) closeLocked() error {
	if w.cmd == nil {
		return nil
	}
	_ = w.stdin.Close()
	err := w.cmd.Wait()
	w.cmd = nil
	w.stdin = nil
	if err != nil {
		return errors.New(err).
			Component("vision").
			Category(errors.CategoryEncoding).
			Context("operation", "finish_chunk").
			Build()
	}
	return nil
}
