package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Every call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dpfwatch",
		Short: "DPF regeneration monitor for OBD diagnostic adapters",
		Long: `dpfwatch keeps a background monitoring session bound to an OBD
diagnostic adapter and raises a high-priority indicator while the
particulate filter regenerates.

- Classify adapter names against the diagnostic vocabulary
- Resume monitoring the last adapter at boot when auto-start is on
- Start monitoring when an adapter connects
- Relay commands and lifecycle events over MQTT
- Record lifecycle history in InfluxDB`,
		Version:       formatVersion(version),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate(fmt.Sprintf("dpfwatch {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().StringP("config", "c", "", "Config file (.yaml, .yml or .toml)")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newAutoStartCmd())
	root.AddCommand(newStatusCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
