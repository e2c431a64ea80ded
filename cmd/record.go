// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/bagwriter"
	"github.com/icc-tech/bagrecorder/internal/command"
	"github.com/icc-tech/bagrecorder/internal/config"
	"github.com/icc-tech/bagrecorder/internal/middleware"
	"github.com/icc-tech/bagrecorder/internal/recorder"
)

var recordCmd = &cobra.Command{
	Use:   "record <topics...>",
	Short: "Record messages on one or more topics to a bag file",
	Long: `Record subscribes to each given topic (each "name" or "name=rate_hz")
and writes incoming messages to a bag file, rotating on --split-bag-size
and enforcing --delete-old-at against the output directory.

The control surface (start/stop/status over --socket) is available for
the lifetime of the process.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(args)
	},
}

var (
	recordPrefix         string
	recordOutput         string
	recordQueueSize      string
	recordSplitBagSize   string
	recordDeleteOldAt    string
	recordPaused         bool
	recordNoUI           bool
	recordUDP            bool
	recordBZ2            bool
	recordLZ4            bool
	recordCallerID       string
)

func init() {
	recordCmd.Flags().StringVar(&recordPrefix, "prefix", "bag", "prefix for AppendTimestamp mode")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Verbatim output path (overrides --prefix)")
	recordCmd.Flags().StringVar(&recordQueueSize, "queue-size", "500MB", "byte capacity of queue")
	recordCmd.Flags().StringVar(&recordSplitBagSize, "split-bag-size", "", "rotate after this many bytes")
	recordCmd.Flags().StringVar(&recordDeleteOldAt, "delete-old-at", "", "directory budget for reaper")
	recordCmd.Flags().BoolVar(&recordPaused, "paused", false, "do not auto-start recording")
	recordCmd.Flags().BoolVar(&recordNoUI, "no-ui", false, "disable terminal UI")
	recordCmd.Flags().BoolVar(&recordUDP, "udp", false, "request UDP transport hint")
	recordCmd.Flags().BoolVar(&recordBZ2, "bz2", false, "bz2 compression")
	recordCmd.Flags().BoolVar(&recordLZ4, "lz4", false, "lz4 compression")
	recordCmd.Flags().StringVar(&recordCallerID, "caller-id", "/bagrecorder", "connection header caller_id")
}

func runRecord(topicArgs []string) error {
	if recordBZ2 && recordLZ4 {
		return fmt.Errorf("--bz2 and --lz4 are mutually exclusive")
	}

	topics := make([]recorder.TopicSpec, 0, len(topicArgs))
	for _, a := range topicArgs {
		ts, err := config.ParseTopicSpec(a)
		if err != nil {
			return err
		}
		topics = append(topics, recorder.TopicSpec{Name: ts.Name, RateLimit: ts.RateLimit})
	}

	queueBytes, err := config.ParseSize(recordQueueSize)
	if err != nil {
		return fmt.Errorf("--queue-size: %w", err)
	}

	cfg := recorder.Config{
		Topics:             topics,
		QueueCapacityBytes: queueBytes,
		CallerID:           recordCallerID,
		Paused:             recordPaused,
	}

	if recordOutput != "" {
		cfg.Naming = bagwriter.Verbatim
		cfg.Path = recordOutput
	} else {
		cfg.Naming = bagwriter.AppendTimestamp
		cfg.Prefix = recordPrefix
	}

	if recordSplitBagSize != "" {
		splitBytes, err := config.ParseSize(recordSplitBagSize)
		if err != nil {
			return fmt.Errorf("--split-bag-size: %w", err)
		}
		cfg.SplitSize = splitBytes
	}

	switch {
	case recordBZ2:
		cfg.Compression = bagio.CompressionBZ2
	case recordLZ4:
		cfg.Compression = bagio.CompressionLZ4
	default:
		cfg.Compression = bagio.CompressionNone
	}

	if recordDeleteOldAt != "" {
		deleteAt, err := config.ParseSize(recordDeleteOldAt)
		if err != nil {
			return fmt.Errorf("--delete-old-at: %w", err)
		}
		cfg.DeleteOldAtBytes = deleteAt
	}

	bus := middleware.NewInMemoryBus(len(topics), 256)
	rec := recorder.New(cfg, bus, nil)

	if !cfg.Paused {
		if err := rec.Start(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Println("recording started")
	} else {
		fmt.Println("recording created, paused (use the control socket's start command to begin)")
	}

	handler := command.NewCommandHandler(rec)
	server := command.NewUDSServer(socketPath, handler, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "control server error: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	fmt.Println("shutting down...")
	cancel()
	if rec.State() == recorder.StateRunning {
		if err := rec.Stop(); err != nil {
			return fmt.Errorf("error stopping recorder: %w", err)
		}
	}
	return nil
}
