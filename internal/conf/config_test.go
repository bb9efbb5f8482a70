package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	setDefaultConfig()
	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestDefaultsAreValid(t *testing.T) {
	settings := defaultSettings(t)
	require.NoError(t, validateSettings(settings))

	assert.Equal(t, 5.0, settings.Vision.FPS)
	assert.Equal(t, "tesseract", settings.Vision.Engine)
	assert.Equal(t, 30, settings.Audio.ChunkDuration)
	assert.Equal(t, "whisper", settings.Audio.Transcription.Engine)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.Equal(t, "3030", settings.WebServer.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown log level", func(s *Settings) { s.Main.Log.Level = "loud" }},
		{"unknown log rotation", func(s *Settings) { s.Main.Log.Rotation = "hourly" }},
		{"zero log maxsize", func(s *Settings) { s.Main.Log.MaxSize = 0 }},
		{"zero fps", func(s *Settings) { s.Vision.FPS = 0 }},
		{"unknown ocr engine", func(s *Settings) { s.Vision.Engine = "sorcery" }},
		{"zero chunk duration", func(s *Settings) { s.Audio.ChunkDuration = 0 }},
		{"unknown transcription engine", func(s *Settings) { s.Audio.Transcription.Engine = "parrot" }},
		{"empty output path", func(s *Settings) { s.Output.Path = "" }},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := defaultSettings(t)
			tc.mutate(settings)
			assert.Error(t, validateSettings(settings))
		})
	}
}

func TestDatabasePathResolution(t *testing.T) {
	settings := defaultSettings(t)
	settings.Output.Path = "/var/lib/retrace"
	settings.Output.SQLite.Path = "retrace.db"
	assert.Equal(t, "/var/lib/retrace/retrace.db", settings.DatabasePath())

	settings.Output.SQLite.Path = "/tmp/other.db"
	assert.Equal(t, "/tmp/other.db", settings.DatabasePath())
}
