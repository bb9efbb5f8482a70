package recorder

import (
	"context"
	"image"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/datastore"
	"github.com/retracehq/retrace/internal/myaudio"
	"github.com/retracehq/retrace/internal/transcribe"
	"github.com/retracehq/retrace/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCapturer struct{ app string }

func (s *stubCapturer) Capture(ctx context.Context) (image.Image, string, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), s.app, nil
}

func (s *stubCapturer) MonitorID() string { return "stub" }

type stubOCR struct{ text string }

func (s *stubOCR) Process(ctx context.Context, img image.Image) (vision.Result, error) {
	return vision.Result{
		Text:   s.text,
		Tokens: []vision.Token{{Text: s.text}},
		Raw:    "raw",
	}, nil
}

func (s *stubOCR) Tag() string { return "StubOCR" }

type stubWriter struct{}

func (stubWriter) StartChunk(path string) error        { return nil }
func (stubWriter) WriteFrame(img image.Image) error    { return nil }
func (stubWriter) Close() error                        { return nil }

type stubTranscriber struct {
	text string
	fail atomic.Bool
}

func (s *stubTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if s.fail.Load() {
		return "", assert.AnError
	}
	return s.text, nil
}

func (s *stubTranscriber) Tag() string { return "StubSpeech" }

type stubEnumerator struct{ devices []myaudio.AudioDevice }

func (s stubEnumerator) Devices() ([]myaudio.AudioDevice, error) { return s.devices, nil }

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Main.Name = "test"
	settings.Vision.FPS = 100
	settings.Vision.FramesPerChunk = 1000
	settings.Audio.ChunkDuration = 1
	settings.Audio.SampleRate = 48000
	settings.Output.Path = t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"
	return settings
}

func openStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func startPipeline(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	})
}

func TestPipelineVisionFlow(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)

	visionControl := &atomic.Bool{}
	visionControl.Store(true)

	deps := Deps{
		Capturer:    &stubCapturer{app: "editor"},
		OCREngine:   &stubOCR{text: "pipeline says hi"},
		ChunkWriter: stubWriter{},
		Transcriber: &stubTranscriber{},
		Record: func(ctx context.Context, device myaudio.AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Enumerator: stubEnumerator{},
	}

	p := New(settings, store, visionControl, nil, deps)
	startPipeline(t, p)

	require.Eventually(t, func() bool {
		results, err := store.Search("pipeline", datastore.ContentTypeOCR, 10, 0, nil, nil, "")
		return err == nil && len(results) > 0
	}, 5*time.Second, 20*time.Millisecond, "OCR text never reached the store")

	results, err := store.Search("pipeline", datastore.ContentTypeOCR, 10, 0, nil, nil, "")
	require.NoError(t, err)
	ocr := results[0].(datastore.OCRResult)
	assert.Equal(t, "pipeline says hi", ocr.Text)
	assert.Equal(t, "editor", ocr.AppName)
	assert.Contains(t, ocr.FilePath, "monitorstub_")
	assert.NotContains(t, ocr.FilePath, settings.Output.Path, "stored chunk path is relative")
}

func TestPipelineAudioFlow(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)

	visionControl := &atomic.Bool{} // vision off

	record := func(ctx context.Context, device myaudio.AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		if err := os.WriteFile(filePath, []byte("chunk"), 0o644); err != nil {
			return err
		}
		select {
		case out <- transcribe.Input{Path: filePath, Device: device.String()}:
		case <-ctx.Done():
			return ctx.Err()
		}
		// Hold until cancelled so only one chunk is produced.
		<-ctx.Done()
		return ctx.Err()
	}

	deps := Deps{
		Capturer:    &stubCapturer{},
		OCREngine:   &stubOCR{text: "unused"},
		ChunkWriter: stubWriter{},
		Transcriber: &stubTranscriber{text: "hello from audio"},
		Record:      record,
		Enumerator:  stubEnumerator{},
	}

	p := New(settings, store, visionControl, nil, deps)
	startPipeline(t, p)

	mic := myaudio.AudioDevice{Name: "mic", Type: myaudio.DeviceTypeInput}
	p.Supervisor().Push(mic, myaudio.DeviceControl{IsRunning: true})

	require.Eventually(t, func() bool {
		results, err := store.Search("audio", datastore.ContentTypeAudio, 10, 0, nil, nil, "")
		return err == nil && len(results) == 1
	}, 5*time.Second, 20*time.Millisecond, "transcription never reached the store")

	results, err := store.Search("audio", datastore.ContentTypeAudio, 10, 0, nil, nil, "")
	require.NoError(t, err)
	audio := results[0].(datastore.AudioResult)
	assert.Equal(t, "hello from audio", audio.Transcription)
	assert.NotContains(t, audio.FilePath, settings.Output.Path, "stored chunk path is relative")
	assert.Contains(t, audio.FilePath, "mic (input)_")
}

func TestPipelineDropsFailedTranscriptions(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)

	transcriber := &stubTranscriber{text: "never stored"}
	transcriber.fail.Store(true)

	var recorded atomic.Int32
	record := func(ctx context.Context, device myaudio.AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		recorded.Add(1)
		select {
		case out <- transcribe.Input{Path: filePath, Device: device.String()}:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-ctx.Done()
		return ctx.Err()
	}

	deps := Deps{
		Capturer:    &stubCapturer{},
		OCREngine:   &stubOCR{text: "unused"},
		ChunkWriter: stubWriter{},
		Transcriber: transcriber,
		Record:      record,
		Enumerator:  stubEnumerator{},
	}

	p := New(settings, store, &atomic.Bool{}, nil, deps)
	startPipeline(t, p)

	mic := myaudio.AudioDevice{Name: "mic", Type: myaudio.DeviceTypeInput}
	p.Supervisor().Push(mic, myaudio.DeviceControl{IsRunning: true})

	require.Eventually(t, func() bool { return recorded.Load() > 0 },
		5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	count, err := store.CountSearchResults("", datastore.ContentTypeAudio, nil, nil, "")
	require.NoError(t, err)
	assert.Zero(t, count, "failed transcriptions must not create rows")
}

func TestPipelineStartupDevicesFromSettings(t *testing.T) {
	settings := testSettings(t)
	settings.Audio.Devices = []string{"mic (input)", "garbage-without-suffix"}
	store := openStore(t, settings)

	var started atomic.Int32
	record := func(ctx context.Context, device myaudio.AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		started.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}

	deps := Deps{
		Capturer:    &stubCapturer{},
		OCREngine:   &stubOCR{text: "unused"},
		ChunkWriter: stubWriter{},
		Transcriber: &stubTranscriber{},
		Record:      record,
		Enumerator:  stubEnumerator{},
	}

	p := New(settings, store, &atomic.Bool{}, nil, deps)
	startPipeline(t, p)

	require.Eventually(t, func() bool { return started.Load() == 1 },
		5*time.Second, 20*time.Millisecond, "configured device never started")

	control, ok := p.Supervisor().DeviceStatus("mic (input)")
	require.True(t, ok)
	assert.True(t, control.IsRunning)

	_, ok = p.Supervisor().DeviceStatus("garbage-without-suffix")
	assert.False(t, ok, "malformed device IDs are ignored")
}
