// conf/config.go
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of this retrace node, used to identify the source of captures

		Log struct {
			Level    string // debug, info, warn or error
			Rotation string // daily, weekly or size
			MaxSize  int    // megabytes per log file before it is rotated, in every rotation mode
		}
	}

	Vision struct {
		Enabled        bool    // capture screen frames on startup
		FPS            float64 // target frames per second for screen capture
		Engine         string  // OCR engine, "tesseract" or "unstructured"
		SaveTextFiles  bool    // write extracted text next to video chunks for debugging
		FramesPerChunk int     // frames per video chunk file before rotation

		Tesseract struct {
			Path     string // path to the tesseract binary
			Language string // OCR language code
		}

		Unstructured struct {
			URL    string // cloud OCR endpoint
			APIKey string // cloud OCR API key
		}
	}

	Audio struct {
		Devices       []string // audio devices to start capturing on startup
		ChunkDuration int      // duration of each recorded audio chunk in seconds
		SampleRate    int      // capture sample rate
		SaveWav       bool     // write a debug WAV copy next to each chunk

		Transcription struct {
			Engine string // "whisper" (local) or "deepgram" (cloud)

			Whisper struct {
				Command   string // whisper CLI binary
				ModelPath string // path to the speech model
			}

			Deepgram struct {
				URL    string // transcription endpoint
				APIKey string // transcription API key
			}
		}
	}

	Output struct {
		Path string // directory for video/audio chunk files and the database

		SQLite struct {
			Enabled bool   // true to enable sqlite output
			Path    string // path to sqlite database, relative paths resolve under Output.Path
		}
	}

	WebServer struct {
		Enabled bool   // true to enable the HTTP control surface
		Port    string // port for the HTTP control surface
	}
}

// DatabasePath returns the resolved path of the SQLite database file.
func (s *Settings) DatabasePath() string {
	p := s.Output.SQLite.Path
	if p == ":memory:" || strings.HasPrefix(p, "file:") {
		return p
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Output.Path, p)
	}
	return p
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and returns the populated settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// default config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the directories searched for config.yaml:
// the user config dir followed by the working directory.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "retrace"))
	}
	paths = append(paths, ".")
	if len(paths) == 0 {
		return nil, fmt.Errorf("no config paths available")
	}
	return paths, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
