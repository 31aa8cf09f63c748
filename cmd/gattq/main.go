package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gattq",
		Short: "Ordered GATT client for Bluetooth Low Energy peripherals",
		Long: `Bluetooth Low Energy (BLE) GATT client that runs every operation through
one ordered command queue per device:

- List the services and characteristics a device exposes
- Read and write characteristics; long writes are fragmented to the MTU
- Stream notifications or indications, optionally batched
- Read RSSI and negotiate the ATT MTU`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("verbose", false, "Verbose output (same as --log-level debug)")
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	root.PersistentFlags().Bool("json", false, "Output as JSON")
	root.PersistentFlags().Duration("timeout", 0, "Per-operation timeout; default from configuration (10s)")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(newServicesCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newWriteCmd())
	root.AddCommand(newSubscribeCmd())
	root.AddCommand(newRSSICmd())
	root.AddCommand(newMTUCmd())
	return root
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("ERROR:"), FormatUserError(err))
		os.Exit(1)
	}
}

// jsonOutput reports whether --json was given or the configuration asks for JSON
func jsonOutput(cmd *cobra.Command, s *session) bool {
	if on, _ := cmd.Flags().GetBool("json"); on {
		return true
	}
	return s != nil && s.cfg.OutputFormat == "json"
}
