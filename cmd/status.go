// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's recording status",
	Long:  "Query the bagrecorder daemon over its control socket for its current recording snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), GetClient(), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer) error {
	result, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	fmt.Fprintln(out, result)
	return nil
}
