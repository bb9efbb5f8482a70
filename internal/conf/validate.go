// conf/validate.go settings validation
package conf

import (
	"fmt"
	"strconv"
)

// validateSettings checks settings for values the pipeline cannot run with.
func validateSettings(settings *Settings) error {
	switch settings.Main.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("main.log.level must be debug, info, warn or error, got %q", settings.Main.Log.Level)
	}
	switch settings.Main.Log.Rotation {
	case "daily", "weekly", "size":
	default:
		return fmt.Errorf("main.log.rotation must be daily, weekly or size, got %q", settings.Main.Log.Rotation)
	}
	if settings.Main.Log.MaxSize <= 0 {
		return fmt.Errorf("main.log.maxsize must be positive, got %d", settings.Main.Log.MaxSize)
	}

	if settings.Vision.FPS <= 0 {
		return fmt.Errorf("vision.fps must be positive, got %v", settings.Vision.FPS)
	}
	if settings.Vision.FramesPerChunk <= 0 {
		return fmt.Errorf("vision.framesperchunk must be positive, got %d", settings.Vision.FramesPerChunk)
	}
	switch settings.Vision.Engine {
	case "tesseract", "unstructured":
	default:
		return fmt.Errorf("vision.engine must be \"tesseract\" or \"unstructured\", got %q", settings.Vision.Engine)
	}

	if settings.Audio.ChunkDuration <= 0 {
		return fmt.Errorf("audio.chunkduration must be positive, got %d", settings.Audio.ChunkDuration)
	}
	if settings.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.samplerate must be positive, got %d", settings.Audio.SampleRate)
	}
	switch settings.Audio.Transcription.Engine {
	case "whisper", "deepgram":
	default:
		return fmt.Errorf("audio.transcription.engine must be \"whisper\" or \"deepgram\", got %q", settings.Audio.Transcription.Engine)
	}

	if settings.Output.Path == "" {
		return fmt.Errorf("output.path must not be empty")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty when sqlite output is enabled")
	}

	if settings.WebServer.Enabled {
		port, err := strconv.Atoi(settings.WebServer.Port)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("webserver.port must be a valid port number, got %q", settings.WebServer.Port)
		}
	}

	return nil
}
