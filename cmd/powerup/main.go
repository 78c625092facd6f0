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

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "powerup",
		Short: "Control a TailorToys PowerUp over Bluetooth Low Energy",
		Long: `Command-line controller for TailorToys PowerUp boats and planes:

- Scan for nearby controllers
- Set motor speed and rudder angle
- Read battery level and charging state, or watch battery notifications
- Dump every readable characteristic for diagnostics
- Drive interactively from the keyboard

Settings are read from ~/.config/powerup/config.yaml when present and can be
overridden with flags.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true, // main() prints clean errors
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default ~/.config/powerup/config.yaml)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("verbose", false, "Enable debug logging")
	pf.StringP("name", "n", "", "Advertised device name to connect to")
	pf.String("transport", "", "BLE stack: go-ble or tinygo")
	pf.String("adapter", "", "Bluetooth adapter, e.g. hci1")
	pf.Duration("scan-timeout", 0, "How long to search for the device")

	root.AddCommand(
		newScanCmd(),
		newStatusCmd(),
		newMotorCmd(),
		newRudderCmd(),
		newBatteryCmd(),
		newDiagCmd(),
		newDriveCmd(),
	)
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
