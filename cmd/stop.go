// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop recording on the running daemon",
	Long:  "Send a stop command to the bagrecorder daemon over its control socket.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), GetClient(), cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	result, err := client.Stop(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, result)
	return nil
}
