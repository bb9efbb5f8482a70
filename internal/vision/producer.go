package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/observability"
)

const captureRetryDelay = 100 * time.Millisecond

// ProducerConfig holds the vision producer settings.
type ProducerConfig struct {
	OutputDir      string
	FPS            float64
	FramesPerChunk int
	QueueSize      int
	SaveTextFiles  bool
}

// Producer periodically captures the active monitor, runs OCR, filters the
// result against the previous frame and emits OCRFrames on a bounded queue.
type Producer struct {
	cfg      ProducerConfig
	capturer Capturer
	engine   Engine
	writer   ChunkWriter
	enabled  *atomic.Bool
	newChunk func(fileName string) error
	metrics  *observability.Metrics
	log      *slog.Logger

	queue chan OCRFrame
	delta *deltaTracker

	framesInChunk int
	chunkOpen     bool
	chunkBase     string
}

// NewProducer creates a vision producer. newChunk is invoked synchronously
// whenever a new chunk file is started, before any frame from that chunk is
// enqueued.
func NewProducer(cfg ProducerConfig, capturer Capturer, engine Engine, writer ChunkWriter, enabled *atomic.Bool, newChunk func(fileName string) error, metrics *observability.Metrics) *Producer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.FramesPerChunk <= 0 {
		cfg.FramesPerChunk = 300
	}
	log := logging.ForService("vision")
	if log == nil {
		log = slog.Default().With("service", "vision")
	}
	return &Producer{
		cfg:      cfg,
		capturer: capturer,
		engine:   engine,
		writer:   writer,
		enabled:  enabled,
		newChunk: newChunk,
		metrics:  metrics,
		log:      log,
		queue:    make(chan OCRFrame, cfg.QueueSize),
		delta:    newDeltaTracker(),
	}
}

// Frames returns the queue of change-filtered OCR records.
func (p *Producer) Frames() <-chan OCRFrame {
	return p.queue
}

// Run captures frames until ctx is done. While the recording flag is false
// the loop idles; flipping it back on resumes capture within one interval.
func (p *Producer) Run(ctx context.Context) {
	// The loop sleeps a full 1/fps after each iteration regardless of how
	// long capture+OCR took, so the realized frame rate is strictly below
	// the configured fps.
	interval := time.Duration(float64(time.Second) / p.cfg.FPS)

	p.log.Info("Vision producer started",
		"fps", p.cfg.FPS,
		"frames_per_chunk", p.cfg.FramesPerChunk,
		"engine", p.engine.Tag())

	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Error("Failed to finish last video chunk", "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			p.log.Info("Vision producer stopped")
			return
		}
		if !p.enabled.Load() {
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		}

		p.captureOnce(ctx)

		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

func (p *Producer) captureOnce(ctx context.Context) {
	img, appName, err := p.capturer.Capture(ctx)
	if err != nil {
		p.log.Warn("Screen capture failed, retrying", "error", err)
		sleepCtx(ctx, captureRetryDelay)
		return
	}

	if !p.ensureChunk() {
		return
	}
	if err := p.writer.WriteFrame(img); err != nil {
		p.log.Error("Failed to append frame to chunk", "error", err)
	} else {
		p.framesInChunk++
	}

	result, err := p.engine.Process(ctx, img)
	if err != nil {
		p.log.Error("OCR failed, skipping frame", "error", err)
		if p.metrics != nil {
			p.metrics.OCRFailures.Inc()
		}
		return
	}

	fresh := p.delta.diff(p.capturer.MonitorID(), result.Tokens)
	if len(fresh) == 0 && len(result.Tokens) > 0 && p.metrics != nil {
		p.metrics.FramesDeduplicated.Inc()
	}

	frame := OCRFrame{
		Text:        result.Text,
		TextJSON:    marshalTokens(result.Tokens),
		NewTextJSON: marshalTokens(fresh),
		RawOutput:   result.Raw,
		AppName:     appName,
	}

	if p.cfg.SaveTextFiles && result.Text != "" {
		name := fmt.Sprintf("%s_frame%d", strings.TrimSuffix(p.chunkBase, filepath.Ext(p.chunkBase)), p.framesInChunk)
		if err := writeTextFile(p.cfg.OutputDir, name, result.Text); err != nil {
			p.log.Warn("Failed to save text file", "error", err)
		}
	}

	select {
	case p.queue <- frame:
		if p.metrics != nil {
			p.metrics.FramesCaptured.Inc()
		}
	default:
		p.log.Warn("OCR frame queue full, dropping frame")
	}
}

// ensureChunk rotates chunk files and reports the chunk-start callback
// outcome. Frames are never enqueued for a chunk the store has not seen.
func (p *Producer) ensureChunk() bool {
	if p.chunkOpen && p.framesInChunk < p.cfg.FramesPerChunk {
		return true
	}

	fileName := fmt.Sprintf("monitor%s_%s.mp4",
		sanitizeMonitorID(p.capturer.MonitorID()),
		time.Now().UTC().Format("2006-01-02_15-04-05"))
	absPath := filepath.Join(p.cfg.OutputDir, fileName)

	if err := p.writer.StartChunk(absPath); err != nil {
		p.log.Error("Failed to start video chunk", "path", absPath, "error", err)
		return false
	}
	if err := p.newChunk(fileName); err != nil {
		p.log.Error("Failed to register video chunk", "file", fileName, "error", err)
		p.chunkOpen = false
		return false
	}

	p.chunkOpen = true
	p.chunkBase = fileName
	p.framesInChunk = 0
	p.log.Info("Started new video chunk", "file", fileName)
	return true
}

func sanitizeMonitorID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, id)
}

func marshalTokens(tokens []Token) string {
	if tokens == nil {
		tokens = []Token{}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// sleepCtx sleeps for d unless ctx ends first; reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
