// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "retrace")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.rotation", "size")
	viper.SetDefault("main.log.maxsize", 100)

	// Vision configuration
	viper.SetDefault("vision.enabled", true)
	viper.SetDefault("vision.fps", 5.0)
	viper.SetDefault("vision.engine", "tesseract")
	viper.SetDefault("vision.savetextfiles", false)
	viper.SetDefault("vision.framesperchunk", 300)
	viper.SetDefault("vision.tesseract.path", "tesseract")
	viper.SetDefault("vision.tesseract.language", "eng")
	viper.SetDefault("vision.unstructured.url", "https://api.unstructuredapp.io/general/v0/general")
	viper.SetDefault("vision.unstructured.apikey", "")

	// Audio configuration
	viper.SetDefault("audio.devices", []string{})
	viper.SetDefault("audio.chunkduration", 30)
	viper.SetDefault("audio.samplerate", 48000)
	viper.SetDefault("audio.savewav", false)
	viper.SetDefault("audio.transcription.engine", "whisper")
	viper.SetDefault("audio.transcription.whisper.command", "whisper-cli")
	viper.SetDefault("audio.transcription.whisper.modelpath", "")
	viper.SetDefault("audio.transcription.deepgram.url", "https://api.deepgram.com/v1/listen")
	viper.SetDefault("audio.transcription.deepgram.apikey", "")

	// Output configuration
	viper.SetDefault("output.path", "data")
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "retrace.db")

	// Web server configuration
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "3030")
}
