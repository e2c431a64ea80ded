// Package daemon implements the recorder process lifecycle: config
// load, logging/metrics bring-up, the control surface, and the
// recording session itself.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/bagwriter"
	"github.com/icc-tech/bagrecorder/internal/command"
	"github.com/icc-tech/bagrecorder/internal/config"
	logpkg "github.com/icc-tech/bagrecorder/internal/log"
	"github.com/icc-tech/bagrecorder/internal/metrics"
	"github.com/icc-tech/bagrecorder/internal/middleware"
	"github.com/icc-tech/bagrecorder/internal/recorder"
	"github.com/icc-tech/bagrecorder/internal/status"
)

// Daemon manages the bagrecorder process lifecycle: one recording
// session plus the ambient control/metrics/logging surface around it.
type Daemon struct {
	cfg        *config.RecorderConfig
	configPath string

	bus           middleware.Bus
	rec           *recorder.Recorder
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads configuration from configPath and returns a Daemon ready
// to Start.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		cfg:          cfg,
		configPath:   configPath,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Bus returns the in-memory pub/sub bus the recording session
// subscribes against, so an embedding process can publish messages
// onto recorded topics.
func (d *Daemon) Bus() middleware.Bus { return d.bus }

// Start initializes logging, metrics, the recording session and the
// control surface, in dependency order.
func (d *Daemon) Start() error {
	// 1. Logging
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting bagrecorder daemon", "version", "0.1.0", "config", d.configPath, "socket", d.cfg.Control.Socket)

	// 2. PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Recording session
	recCfg, err := d.buildRecorderConfig()
	if err != nil {
		return fmt.Errorf("invalid recorder configuration: %w", err)
	}
	d.bus = middleware.NewInMemoryBus(len(recCfg.Topics), 256)
	d.rec = recorder.New(recCfg, d.bus, slog.Default())
	if !d.cfg.Writer.Paused {
		if err := d.rec.Start(); err != nil {
			return fmt.Errorf("failed to start recording session: %w", err)
		}
	}

	// 5. Control surface
	d.cmdHandler = command.NewCommandHandler(d.rec)
	d.udsServer = command.NewUDSServer(d.cfg.Control.Socket, d.cmdHandler, slog.Default())
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components, in
// reverse dependency order.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	slog.Info("stopping uds server")
	if d.udsServer != nil {
		d.udsServer.Stop()
	}

	if d.rec != nil && d.rec.State() == recorder.StateRunning {
		slog.Info("stopping recording session")
		if err := d.rec.Stop(); err != nil {
			slog.Error("error stopping recording session", "error", err)
		}
	}

	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	logpkg.Flush()

	slog.Info("daemon stopped gracefully")
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT,
// TriggerShutdown, or cancellation of the daemon's context. SIGHUP
// reloads the configuration and Run keeps going.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil
			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				} else {
					slog.Info("configuration reloaded successfully")
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads logging configuration from disk. Hot-reloadable:
// log level/format. Cold (requires restart): control socket, topics,
// writer/queue/reaper settings.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	oldLevel, oldFormat := d.cfg.Log.Level, d.cfg.Log.Format
	d.cfg.Log = newCfg.Log
	if err := d.initLogging(); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
	} else if newCfg.Log.Level != oldLevel || newCfg.Log.Format != oldFormat {
		slog.Info("log configuration hot-reloaded")
	}

	var requiresRestart []string
	if newCfg.Control.Socket != d.cfg.Control.Socket {
		requiresRestart = append(requiresRestart, "control.socket")
	}
	if strings.Join(newCfg.Topics, ",") != strings.Join(d.cfg.Topics, ",") {
		requiresRestart = append(requiresRestart, "topics")
	}
	if len(requiresRestart) > 0 {
		slog.Info("configuration changes require restart", "fields", requiresRestart)
	}

	return nil
}

// TriggerShutdown requests the Run loop exit; Run then stops the
// daemon.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.cfg.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized", "level", d.cfg.Log.Level, "format", d.cfg.Log.Format)
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.cfg.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.cfg.Metrics.Listen, d.cfg.Metrics.Path, slog.Default())
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	slog.Info("metrics server started", "addr", d.cfg.Metrics.Listen, "path", d.cfg.Metrics.Path)
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.cfg.Control.PIDFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.cfg.Control.PIDFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.cfg.Control.PIDFile, err)
	}
	slog.Debug("PID file written", "path", d.cfg.Control.PIDFile, "pid", pid)
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.cfg.Control.PIDFile == "" {
		return nil
	}
	if err := os.Remove(d.cfg.Control.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.cfg.Control.PIDFile, err)
	}
	slog.Debug("PID file removed", "path", d.cfg.Control.PIDFile)
	return nil
}

// buildRecorderConfig translates the typed, string-friendly
// config.RecorderConfig into recorder.Config, parsing byte sizes,
// topic specs and the compression/naming-mode selectors.
func (d *Daemon) buildRecorderConfig() (recorder.Config, error) {
	var out recorder.Config

	topics := make([]recorder.TopicSpec, 0, len(d.cfg.Topics))
	for _, spec := range d.cfg.Topics {
		ts, err := config.ParseTopicSpec(spec)
		if err != nil {
			return out, fmt.Errorf("topic %q: %w", spec, err)
		}
		topics = append(topics, recorder.TopicSpec{Name: ts.Name, RateLimit: ts.RateLimit})
	}
	out.Topics = topics

	queueBytes, err := config.ParseSize(d.cfg.Queue.SizeBytes)
	if err != nil {
		return out, fmt.Errorf("queue.size: %w", err)
	}
	out.QueueCapacityBytes = queueBytes

	if d.cfg.Writer.Output != "" {
		out.Naming = bagwriter.Verbatim
		out.Path = d.cfg.Writer.Output
	} else {
		out.Naming = bagwriter.AppendTimestamp
		out.Prefix = d.cfg.Writer.Prefix
	}

	if d.cfg.Writer.SplitSizeBytes != "" {
		splitBytes, err := config.ParseSize(d.cfg.Writer.SplitSizeBytes)
		if err != nil {
			return out, fmt.Errorf("writer.split_size: %w", err)
		}
		out.SplitSize = splitBytes
	}

	switch strings.ToLower(d.cfg.Writer.Compression) {
	case "", "none":
		out.Compression = bagio.CompressionNone
	case "bz2":
		out.Compression = bagio.CompressionBZ2
	case "lz4":
		out.Compression = bagio.CompressionLZ4
	default:
		return out, fmt.Errorf("writer.compression: unsupported value %q", d.cfg.Writer.Compression)
	}

	out.CallerID = d.cfg.Writer.CallerID
	out.Paused = d.cfg.Writer.Paused

	if d.cfg.Reaper.DeleteOldAtBytes != "" {
		deleteAt, err := config.ParseSize(d.cfg.Reaper.DeleteOldAtBytes)
		if err != nil {
			return out, fmt.Errorf("reaper.delete_old_at: %w", err)
		}
		out.DeleteOldAtBytes = deleteAt
	}

	return out, nil
}

// StatusReporter exposes the recording session's status reporter, if
// the session has been started.
func (d *Daemon) StatusReporter() *status.Reporter {
	if d.rec == nil {
		return nil
	}
	return d.rec.StatusReporter()
}
