package vision

import (
	"context"
	"image"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/retracehq/retrace/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestUnstructuredEngineJoinsElementTexts(t *testing.T) {
	engine := NewUnstructuredEngine("https://ocr.example/general", "test-key")
	httpmock.ActivateNonDefault(engine.Client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://ocr.example/general",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-key", req.Header.Get("unstructured-api-key"))
			return httpmock.NewStringResponse(http.StatusOK,
				`[{"type":"Title","text":"Hello world"},{"type":"NarrativeText","text":"second line"},{"type":"Image"}]`), nil
		})

	result, err := engine.Process(context.Background(), testImage())
	require.NoError(t, err)

	assert.Equal(t, "Hello world second line", result.Text)
	assert.Equal(t, []string{"Hello", "world", "second", "line"}, texts(result.Tokens))
	assert.Contains(t, result.Raw, "NarrativeText")
}

func TestUnstructuredEngineErrorStatus(t *testing.T) {
	engine := NewUnstructuredEngine("https://ocr.example/general", "test-key")
	httpmock.ActivateNonDefault(engine.Client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://ocr.example/general",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream sad"))

	_, err := engine.Process(context.Background(), testImage())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryOCR))
}

func TestUnstructuredEngineBadPayload(t *testing.T) {
	engine := NewUnstructuredEngine("https://ocr.example/general", "test-key")
	httpmock.ActivateNonDefault(engine.Client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://ocr.example/general",
		httpmock.NewStringResponder(http.StatusOK, "not json"))

	_, err := engine.Process(context.Background(), testImage())
	assert.Error(t, err)
}
