// root.go viper root command code
package cmd

import (
	"fmt"
	"log"

	"github.com/retracehq/retrace/cmd/devices"
	"github.com/retracehq/retrace/cmd/record"
	"github.com/retracehq/retrace/internal/conf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "retrace",
		Short: "retrace CLI",
		Long:  "Local personal-telemetry engine: records what was on screen and what was said, searchable.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	recordCmd := record.Command(settings)
	devicesCmd := devices.Command()

	rootCmd.AddCommand(recordCmd, devicesCmd)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64Var(&settings.Vision.FPS, "fps", viper.GetFloat64("vision.fps"), "Screen capture frame rate")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.ChunkDuration, "audio-chunk-duration", viper.GetInt("audio.chunkduration"), "Audio chunk duration in seconds")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.Path, "output", "o", viper.GetString("output.path"), "Output directory for captures and the database")
	rootCmd.PersistentFlags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "HTTP control surface port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
