// Package transcribe converts recorded audio chunks into text through a
// configurable speech-recognition engine.
package transcribe

import (
	"context"
	"log/slog"

	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/observability"
)

// Input identifies one recorded chunk awaiting transcription.
type Input struct {
	Path   string // chunk file on disk
	Device string // capturing device ID
}

// Result carries the transcription outcome; errors travel as data so a bad
// chunk never stops the worker.
type Result struct {
	Input         Input
	Transcription *string
	Err           error
}

// Engine transcribes a single audio file. Implementations wrap a concrete
// speech-recognition backend and may return an empty string for silence.
type Engine interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Tag() string
}

// queueSize bounds the backlog of chunks awaiting transcription.
const queueSize = 512

// NewChannel starts the background transcription worker and returns its
// input and result channels. The worker drains inputs until the input
// channel is closed or ctx ends, then closes the result channel.
func NewChannel(ctx context.Context, engine Engine, metrics *observability.Metrics) (chan<- Input, <-chan Result) {
	inputs := make(chan Input, queueSize)
	return inputs, Start(ctx, engine, inputs, metrics)
}

// Start runs the background worker over a caller-owned input channel and
// returns the result channel.
func Start(ctx context.Context, engine Engine, inputs chan Input, metrics *observability.Metrics) <-chan Result {
	results := make(chan Result, queueSize)

	log := logging.ForService("transcribe")
	if log == nil {
		log = slog.Default().With("service", "transcribe")
	}

	go worker(ctx, engine, inputs, results, metrics, log)
	return results
}

// QueueSize is the default capacity for caller-owned input channels.
const QueueSize = queueSize

func worker(ctx context.Context, engine Engine, inputs <-chan Input, results chan<- Result, metrics *observability.Metrics, log *slog.Logger) {
	defer close(results)

	log.Info("Transcription worker started", "engine", engine.Tag())

	for {
		select {
		case <-ctx.Done():
			log.Info("Transcription worker stopped")
			return
		case input, ok := <-inputs:
			if !ok {
				log.Info("Transcription input channel closed")
				return
			}

			text, err := engine.Transcribe(ctx, input.Path)
			result := Result{Input: input}
			if err != nil {
				log.Error("Transcription failed",
					"path", input.Path,
					"device", input.Device,
					"error", err)
				result.Err = err
				if metrics != nil {
					metrics.TranscriptionErrors.Inc()
				}
			} else {
				result.Transcription = &text
				if metrics != nil {
					metrics.Transcriptions.WithLabelValues(engine.Tag()).Inc()
				}
			}

			select {
			case results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}
