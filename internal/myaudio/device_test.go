package myaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceRoundTrip(t *testing.T) {
	t.Parallel()

	mic := AudioDevice{Name: "Built-in Microphone", Type: DeviceTypeInput}
	parsed, err := ParseDevice(mic.String())
	require.NoError(t, err)
	assert.Equal(t, mic, parsed)

	speakers := AudioDevice{Name: "Speakers", Type: DeviceTypeOutput}
	parsed, err = ParseDevice(speakers.String())
	require.NoError(t, err)
	assert.Equal(t, speakers, parsed)
}

func TestParseDeviceKeepsParenthesesInName(t *testing.T) {
	t.Parallel()

	parsed, err := ParseDevice("USB Audio (2- High Definition) (input)")
	require.NoError(t, err)
	assert.Equal(t, "USB Audio (2- High Definition)", parsed.Name)
	assert.Equal(t, DeviceTypeInput, parsed.Type)
}

func TestParseDeviceRejectsMalformedIDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "mic", "mic (speaker)", "(input)mic"} {
		_, err := ParseDevice(id)
		assert.Error(t, err, "id %q", id)
	}
}
