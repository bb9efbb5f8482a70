// Package devices implements the "devices" subcommand listing capturable
// audio devices.
package devices

import (
	"fmt"

	"github.com/retracehq/retrace/internal/myaudio"
	"github.com/spf13/cobra"
)

// Command creates the devices command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capturable audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			enumerator := myaudio.MalgoEnumerator{}
			devices, err := enumerator.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No audio devices found")
				return nil
			}
			for _, device := range devices {
				fmt.Println(device.String())
			}
			return nil
		},
	}
}
