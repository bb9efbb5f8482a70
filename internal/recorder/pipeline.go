// Package recorder owns the continuous recording pipeline: it wires the
// vision and audio producers to the store and drains their output.
package recorder

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/datastore"
	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/myaudio"
	"github.com/retracehq/retrace/internal/observability"
	"github.com/retracehq/retrace/internal/transcribe"
	"github.com/retracehq/retrace/internal/vision"
)

const drainInterval = 100 * time.Millisecond

// Deps are the pipeline leaves. Tests substitute fakes; production wiring
// comes from DefaultDeps.
type Deps struct {
	Capturer    vision.Capturer
	OCREngine   vision.Engine
	ChunkWriter vision.ChunkWriter
	Transcriber transcribe.Engine
	Record      myaudio.RecordFunc
	Enumerator  myaudio.Enumerator
}

// DefaultDeps builds the production leaves from settings.
func DefaultDeps(settings *conf.Settings) Deps {
	var ocrEngine vision.Engine
	if settings.Vision.Engine == "unstructured" {
		ocrEngine = vision.NewUnstructuredEngine(settings.Vision.Unstructured.URL, settings.Vision.Unstructured.APIKey)
	} else {
		ocrEngine = vision.NewTesseractEngine(settings.Vision.Tesseract.Path, settings.Vision.Tesseract.Language)
	}

	var transcriber transcribe.Engine
	if settings.Audio.Transcription.Engine == "deepgram" {
		transcriber = transcribe.NewDeepgramEngine(settings.Audio.Transcription.Deepgram.URL, settings.Audio.Transcription.Deepgram.APIKey)
	} else {
		transcriber = transcribe.NewWhisperEngine(settings.Audio.Transcription.Whisper.Command, settings.Audio.Transcription.Whisper.ModelPath)
	}

	source := &myaudio.MalgoSource{SampleRate: settings.Audio.SampleRate}
	opts := myaudio.RecordOptions{
		SampleRate: settings.Audio.SampleRate,
		SaveWav:    settings.Audio.SaveWav,
	}
	record := func(ctx context.Context, device myaudio.AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		return myaudio.RecordAndTranscribe(ctx, source, device, duration, filePath, out, opts)
	}

	return Deps{
		Capturer:    vision.NewFFmpegCapturer("", ""),
		OCREngine:   ocrEngine,
		ChunkWriter: vision.NewFFmpegChunkWriter("", settings.Vision.FPS),
		Transcriber: transcriber,
		Record:      record,
		Enumerator:  myaudio.MalgoEnumerator{},
	}
}

// Pipeline is the running recording engine.
type Pipeline struct {
	settings   *conf.Settings
	store      datastore.Interface
	visionCtrl *atomic.Bool
	metrics    *observability.Metrics
	deps       Deps
	log        *slog.Logger

	producer     *vision.Producer
	supervisor   *myaudio.Supervisor
	transcribeIn chan transcribe.Input
}

// New assembles the pipeline without starting it.
func New(settings *conf.Settings, store datastore.Interface, visionControl *atomic.Bool, metrics *observability.Metrics, deps Deps) *Pipeline {
	log := logging.ForService("recorder")
	if log == nil {
		log = slog.Default().With("service", "recorder")
	}

	p := &Pipeline{
		settings:   settings,
		store:      store,
		visionCtrl: visionControl,
		metrics:    metrics,
		deps:       deps,
		log:        log,
	}

	p.producer = vision.NewProducer(vision.ProducerConfig{
		OutputDir:      settings.Output.Path,
		FPS:            settings.Vision.FPS,
		FramesPerChunk: settings.Vision.FramesPerChunk,
		SaveTextFiles:  settings.Vision.SaveTextFiles,
	}, deps.Capturer, deps.OCREngine, deps.ChunkWriter, visionControl, p.registerVideoChunk, metrics)

	p.transcribeIn = make(chan transcribe.Input, transcribe.QueueSize)

	var known []myaudio.AudioDevice
	if deps.Enumerator != nil {
		devices, err := deps.Enumerator.Devices()
		if err != nil {
			log.Warn("Audio device enumeration failed", "error", err)
		} else {
			known = devices
		}
	}

	p.supervisor = myaudio.NewSupervisor(myaudio.SupervisorConfig{
		OutputDir:     settings.Output.Path,
		ChunkDuration: time.Duration(settings.Audio.ChunkDuration) * time.Second,
	}, p.transcribeIn, deps.Record, known, metrics)

	return p
}

// Supervisor exposes the audio device supervisor for the control surface.
func (p *Pipeline) Supervisor() *myaudio.Supervisor {
	return p.supervisor
}

// registerVideoChunk records a started chunk file before any of its frames
// are enqueued.
func (p *Pipeline) registerVideoChunk(fileName string) error {
	_, err := p.store.InsertVideoChunk(fileName)
	return err
}

// Run starts producers and drain loops and blocks until ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("Recording now")

	transcribeOut := transcribe.Start(ctx, p.deps.Transcriber, p.transcribeIn, p.metrics)

	// Devices configured to capture from startup.
	for _, id := range p.settings.Audio.Devices {
		device, err := myaudio.ParseDevice(id)
		if err != nil {
			p.log.Error("Ignoring misconfigured audio device", "device_id", id, "error", err)
			continue
		}
		p.supervisor.Push(device, myaudio.DeviceControl{IsRunning: true})
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.producer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.supervisor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.drainVision(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.drainTranscriptions(ctx, transcribeOut)
	}()

	<-ctx.Done()
	wg.Wait()
	p.log.Info("Stopped recording")
	return nil
}

// drainVision moves OCR frames into the store: insert the frame row, then
// its OCR row. A failed frame insert is retried on the next tick; a failed
// OCR insert drops only the OCR row.
func (p *Pipeline) drainVision(ctx context.Context) {
	frames := p.producer.Frames()
	engineTag := p.deps.OCREngine.Tag()

	var pending *vision.OCRFrame
	for {
		if pending == nil {
			select {
			case <-ctx.Done():
				return
			case frame := <-frames:
				pending = &frame
			}
		}

		frameID, err := p.store.InsertFrame(pending.AppName)
		if err != nil {
			p.log.Warn("Failed to insert frame, will retry", "error", err)
			if !sleepCtx(ctx, drainInterval) {
				return
			}
			continue
		}

		if err := p.insertOCR(frameID, pending, engineTag); err != nil {
			// The frame row exists without an OCR row; permitted.
			p.log.Error("Failed to insert OCR text, skipping frame",
				"frame_id", frameID,
				"error", err)
		}
		pending = nil
	}
}

func (p *Pipeline) insertOCR(frameID uint, frame *vision.OCRFrame, engineTag string) error {
	start := time.Now()
	err := p.store.InsertOCRText(frameID,
		frame.Text,
		frame.TextJSON,
		frame.NewTextJSON,
		frame.RawOutput,
		frame.AppName,
		engineTag)
	if p.metrics != nil {
		p.metrics.StoreInsertDuration.WithLabelValues("insert_ocr_text").Observe(time.Since(start).Seconds())
	}
	return err
}

// drainTranscriptions moves transcription results into the store. Errored
// results are logged and dropped; empty transcriptions record the chunk but
// no transcription row.
func (p *Pipeline) drainTranscriptions(ctx context.Context, results <-chan transcribe.Result) {
	engineTag := p.deps.Transcriber.Tag()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			p.processAudioResult(result, engineTag)
		}
	}
}

func (p *Pipeline) processAudioResult(result transcribe.Result, engineTag string) {
	if result.Err != nil || result.Transcription == nil {
		p.log.Error("Dropping failed transcription",
			"path", result.Input.Path,
			"device", result.Input.Device,
			"error", result.Err)
		return
	}

	// Rows store paths relative to the output directory.
	relPath := result.Input.Path
	if rel, err := filepath.Rel(p.settings.Output.Path, result.Input.Path); err == nil {
		relPath = rel
	}

	chunkID, err := p.store.InsertAudioChunk(relPath, result.Input.Device)
	if err != nil {
		p.log.Error("Failed to insert audio chunk",
			"path", relPath,
			"device", result.Input.Device,
			"error", err)
		return
	}

	if *result.Transcription == "" {
		return
	}

	if err := p.store.InsertAudioTranscription(chunkID, *result.Transcription, 0, engineTag); err != nil {
		p.log.Error("Failed to insert audio transcription",
			"chunk_id", chunkID,
			"device", result.Input.Device,
			"error", err)
		return
	}
	p.log.Debug("Inserted audio transcription",
		"chunk_id", chunkID,
		"device", result.Input.Device,
		"engine", engineTag)
}

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
