// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bagrecorder",
	Short: "Record and inspect pub/sub message traffic as bag files",
	Long: `bagrecorder captures high-rate, multi-topic pub/sub message traffic to disk
without loss under bursts, with per-topic rate limiting, compression, file
rotation and disk-space management, and exposes a unified chronological view
across one or more recorded files for downstream replay.

Features:
  - Ingest→Queue→Writer pipeline with byte-bounded queue and overflow accounting
  - Bag file rotation on size threshold with static-transform replay
  - Directory-size-enforcing disk reaper
  - JSON-RPC-over-Unix-socket control surface (start/stop/status)`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/bagrecorder/config.yml",
		"config file path (daemon mode)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/bagrecorder.sock",
		"control socket path")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
