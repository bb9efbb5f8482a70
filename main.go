package main

import (
	"fmt"
	"os"

	"github.com/retracehq/retrace/cmd"
	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(settings)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
