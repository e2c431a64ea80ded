package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start recording on the running daemon",
	Long:  "Send a start command to the bagrecorder daemon over its control socket.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context(), GetClient(), cmd.OutOrStdout())
	},
}

func runStart(ctx context.Context, client ClientInterface, out io.Writer) error {
	result, err := client.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	fmt.Fprintln(out, result)
	return nil
}
