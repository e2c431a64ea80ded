// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icc-tech/bagrecorder/internal/daemon"
)

// daemonCmd runs the recorder as a config-driven foreground daemon,
// with logging, metrics, and the control surface all wired from
// --config.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run bagrecorder as a foreground daemon",
	Long: `Run the bagrecorder daemon process in foreground.

The daemon loads its configuration from --config, initializes logging
and metrics, starts the recording session (unless writer.paused is
set), and serves the start/stop/status control surface over the
configured control socket until a shutdown signal arrives. The stop
command ends recording but leaves the daemon running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Fprintf(os.Stdout, "bagrecorder daemon started (config=%s)\n", configFile)
	return d.Run()
}
