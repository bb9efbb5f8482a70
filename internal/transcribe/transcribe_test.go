package transcribe

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/retracehq/retrace/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEngine struct {
	byPath map[string]string
	errOn  string
}

func (e *scriptedEngine) Transcribe(ctx context.Context, path string) (string, error) {
	if path == e.errOn {
		return "", assert.AnError
	}
	return e.byPath[path], nil
}

func (e *scriptedEngine) Tag() string { return "Scripted" }

func recvResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no transcription result")
		return Result{}
	}
}

func TestWorkerTranscribesInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &scriptedEngine{byPath: map[string]string{
		"a.mp4": "first words",
		"b.mp4": "second words",
	}}
	inputs, results := NewChannel(ctx, engine, nil)

	inputs <- Input{Path: "a.mp4", Device: "mic"}
	inputs <- Input{Path: "b.mp4", Device: "mic"}

	first := recvResult(t, results)
	require.Nil(t, first.Err)
	require.NotNil(t, first.Transcription)
	assert.Equal(t, "first words", *first.Transcription)
	assert.Equal(t, "a.mp4", first.Input.Path)

	second := recvResult(t, results)
	require.NotNil(t, second.Transcription)
	assert.Equal(t, "second words", *second.Transcription)
}

func TestWorkerCarriesErrorsAsData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &scriptedEngine{
		byPath: map[string]string{"good.mp4": "fine"},
		errOn:  "bad.mp4",
	}
	inputs, results := NewChannel(ctx, engine, nil)

	inputs <- Input{Path: "bad.mp4", Device: "mic"}
	inputs <- Input{Path: "good.mp4", Device: "mic"}

	bad := recvResult(t, results)
	assert.Error(t, bad.Err)
	assert.Nil(t, bad.Transcription)

	// The worker survived the bad input.
	good := recvResult(t, results)
	require.Nil(t, good.Err)
	assert.Equal(t, "fine", *good.Transcription)
}

func TestWorkerClosesResultsWhenInputsClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &scriptedEngine{byPath: map[string]string{}}
	inputs, results := NewChannel(ctx, engine, nil)
	close(inputs)

	select {
	case _, ok := <-results:
		assert.False(t, ok, "results channel closed after inputs drained")
	case <-time.After(2 * time.Second):
		t.Fatal("results channel never closed")
	}
}

func TestDeepgramEngineExtractsTranscript(t *testing.T) {
	engine := NewDeepgramEngine("https://dg.example/v1/listen", "secret")
	httpmock.ActivateNonDefault(engine.Client)
	defer httpmock.DeactivateAndReset()

	chunk := filepath.Join(t.TempDir(), "chunk.wav")
	require.NoError(t, os.WriteFile(chunk, []byte("RIFFfake"), 0o644))

	httpmock.RegisterResponder(http.MethodPost, "https://dg.example/v1/listen",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Token secret", req.Header.Get("Authorization"))
			assert.True(t, strings.HasPrefix(req.Header.Get("Content-Type"), "audio/wav"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"results":{"channels":[{"alternatives":[{"transcript":"hello from audio"},{"transcript":"ignored"}]}]}}`), nil
		})

	text, err := engine.Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, "hello from audio", text)
}

func TestDeepgramEngineErrorStatus(t *testing.T) {
	engine := NewDeepgramEngine("https://dg.example/v1/listen", "secret")
	httpmock.ActivateNonDefault(engine.Client)
	defer httpmock.DeactivateAndReset()

	chunk := filepath.Join(t.TempDir(), "chunk.mp4")
	require.NoError(t, os.WriteFile(chunk, []byte("mp4"), 0o644))

	httpmock.RegisterResponder(http.MethodPost, "https://dg.example/v1/listen",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"err":"bad key"}`))

	_, err := engine.Transcribe(context.Background(), chunk)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTranscription))
}

func TestDeepgramEngineMissingFile(t *testing.T) {
	engine := NewDeepgramEngine("https://dg.example/v1/listen", "secret")

	_, err := engine.Transcribe(context.Background(), "does-not-exist.wav")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileIO))
}
