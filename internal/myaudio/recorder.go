package myaudio

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/retracehq/retrace/internal/errors"
	"github.com/retracehq/retrace/internal/transcribe"
)

// RecordOptions configures chunk recording.
type RecordOptions struct {
	SampleRate int
	SaveWav    bool   // write a debug WAV copy next to the chunk
	FFmpegPath string // encoder binary, defaults to "ffmpeg"
}

// RecordAndTranscribe captures one chunk from the device, encodes it to
// filePath and queues it for transcription. When ctx ends mid-chunk the
// partial capture is discarded, not flushed.
func RecordAndTranscribe(ctx context.Context, source CaptureSource, device AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input, opts RecordOptions) error {
	pcm, err := source.Record(ctx, device, duration)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Cancelled at the chunk boundary; discard the in-flight chunk.
		return ctx.Err()
	}

	if err := encodePCMToFile(pcm, filePath, opts); err != nil {
		return err
	}

	if opts.SaveWav {
		wavPath := strings.TrimSuffix(filePath, ".mp4") + ".wav"
		if err := writeWavDebugCopy(pcm, wavPath, opts.SampleRate); err != nil {
			// Debug copy only; the chunk itself is intact.
			getLogger().Warn("Failed to write debug WAV copy", "path", wavPath, "error", err)
		}
	}

	select {
	case out <- transcribe.Input{Path: filePath, Device: device.String()}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// encodePCMToFile encodes s16le mono PCM into an AAC/MP4 chunk file via
// ffmpeg reading from stdin.
func encodePCMToFile(pcm []byte, filePath string, opts RecordOptions) error {
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	cmd := exec.Command(ffmpeg,
		"-f", "s16le",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", "1",
		"-i", "-",
		"-c:a", "aac",
		"-y", filePath)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryEncoding).
			Context("operation", "encode_audio_chunk").
			Context("path", filePath).
			Context("stderr", lastStderrLine(stderr.String())).
			Build()
	}
	return nil
}

// writeWavDebugCopy writes the raw capture as a 16-bit mono WAV file.
func writeWavDebugCopy(pcm []byte, path string, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}
	buf := &audio.IntBuffer{
		Data:   samples,
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func lastStderrLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
