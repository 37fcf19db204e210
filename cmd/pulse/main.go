package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Bluetooth heart rate monitor client",
	Long: `Connects to a Bluetooth Low Energy heart rate monitor and records a session:

- Finds a chest strap or watch exposing the Heart Rate service
- Streams beats per minute as they arrive
- Prints a session summary (average, max, duration) on exit
- Decodes captured Heart Rate Measurement frames offline

Works with any device implementing the standard Heart Rate profile.`,
	Version: formatVersion(version),
}

// exitStatus reports err to the user and returns the process exit status.
// An interrupted run is a normal exit.
func exitStatus(w io.Writer, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	fmt.Fprintf(w, "ERROR: %s\n", FormatUserError(err))
	return 1
}

func main() {
	os.Exit(exitStatus(os.Stderr, rootCmd.Execute()))
}

func init() {
	// main prints errors itself, without cobra's "Error:" prefix
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("pulse %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(monitorCmd, decodeCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
