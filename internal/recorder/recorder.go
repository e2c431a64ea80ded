// Package recorder wires the topic registry, message queue, per-topic
// subscribers, bag writer, disk reaper, and status reporter together
// into one recording session.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/bagwriter"
	"github.com/icc-tech/bagrecorder/internal/middleware"
	"github.com/icc-tech/bagrecorder/internal/queue"
	"github.com/icc-tech/bagrecorder/internal/reaper"
	"github.com/icc-tech/bagrecorder/internal/statictf"
	"github.com/icc-tech/bagrecorder/internal/status"
	"github.com/icc-tech/bagrecorder/internal/subscriber"
	"github.com/icc-tech/bagrecorder/internal/topic"
)

// statsWindow is the cadence at which per-topic rate/bandwidth
// estimators are refreshed.
const statsWindow = 1 * time.Second

// TopicSpec names one topic to record, with an optional rate limit.
type TopicSpec struct {
	Name      string
	RateLimit time.Duration
}

// Config is a recording session's static configuration.
type Config struct {
	Topics             []TopicSpec
	QueueCapacityBytes int64

	Naming      bagwriter.NamingMode
	Prefix      string
	Path        string
	SplitSize   int64
	Compression bagio.Compression
	CallerID    string

	DeleteOldAtBytes int64

	Paused bool
}

// State mirrors the coarse lifecycle states this codebase already uses
// for long-running components.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Recorder is one recording session: everything needed to go from a
// set of topic subscriptions to bag files on disk, plus cleanup and
// status publication.
type Recorder struct {
	cfg    Config
	bus    middleware.Bus
	logger *slog.Logger

	topics  *topic.Registry
	queue   *queue.MessageQueue
	tfCache *statictf.Cache

	subscribers []*subscriber.Subscriber
	writer      *bagwriter.Writer
	reaper      *reaper.Reaper
	statusRep   *status.Reporter

	cleanupMu sync.Mutex

	statsStopCh chan struct{}
	statsDoneCh chan struct{}

	mu    sync.Mutex
	state State
}

// New constructs a Recorder in the Created state. It does not subscribe
// to anything or open any files; call Start for that.
func New(cfg Config, bus middleware.Bus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		topics:  topic.NewRegistry(),
		tfCache: statictf.New(),
		state:   StateCreated,
	}
}

// State returns the recorder's current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Topics returns the underlying topic registry, for status reporting or
// runtime inspection.
func (r *Recorder) Topics() *topic.Registry { return r.topics }

// StatusReporter returns the session's status reporter, so callers can
// register sinks. It is nil until Start has created the reporter.
func (r *Recorder) StatusReporter() *status.Reporter { return r.statusRep }

// Start brings up every component in dependency order: topics, queue,
// bag writer (+ free-space poll), subscribers, disk reaper, status
// timer. On failure the recorder stays in the Created state and the
// components that did come up are not torn down; Stop only runs from
// the Running state, so it does not unwind them either.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return fmt.Errorf("recorder: cannot start from state %s", r.state)
	}

	for _, spec := range r.cfg.Topics {
		if _, err := r.topics.Add(spec.Name, spec.RateLimit); err != nil {
			return fmt.Errorf("recorder: %w", err)
		}
	}

	r.queue = queue.New(int(r.cfg.QueueCapacityBytes))

	r.writer = bagwriter.New(bagwriter.Config{
		Naming:      r.cfg.Naming,
		Prefix:      r.cfg.Prefix,
		Path:        r.cfg.Path,
		SplitSize:   r.cfg.SplitSize,
		Compression: r.cfg.Compression,
		CallerID:    r.cfg.CallerID,
	}, r.topics, r.queue, r.tfCache, &r.cleanupMu, r.logger)

	if err := r.writer.Start(); err != nil {
		return fmt.Errorf("recorder: writer start: %w", err)
	}
	go r.writer.Run()
	r.writer.StartFreeSpacePoll(r.writer.SegmentDir())

	for _, t := range r.topics.Topics() {
		sub := subscriber.New(t, r.queue, r.bus)
		if err := sub.Start(); err != nil {
			return fmt.Errorf("recorder: subscriber %s: %w", t.Name, err)
		}
		r.subscribers = append(r.subscribers, sub)
	}

	if r.cfg.DeleteOldAtBytes > 0 {
		r.reaper = reaper.New(r.writer.SegmentDir(), r.cfg.DeleteOldAtBytes, r.writer.CurrentPath, &r.cleanupMu, r.logger)
		go r.reaper.Run()
	}

	r.statusRep = status.New(status.Sources{
		Topics:            r.topics,
		BagfileName:       r.writer.CurrentPath,
		TotalBytesWritten: r.writer.BytesWritten,
		FreeBytes:         r.writer.FreeBytes,
	})
	go r.statusRep.Run()

	r.statsStopCh = make(chan struct{})
	r.statsDoneCh = make(chan struct{})
	go r.runStatsTimer()

	r.state = StateRunning
	return nil
}

func (r *Recorder) runStatsTimer() {
	defer close(r.statsDoneCh)
	ticker := time.NewTicker(statsWindow)
	defer ticker.Stop()
	for {
		select {
		case <-r.statsStopCh:
			return
		case <-ticker.C:
			r.topics.UpdateStats(time.Now())
		}
	}
}

// Stop tears down every component in reverse dependency order, waiting
// for the writer to drain the queue before returning.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return fmt.Errorf("recorder: cannot stop from state %s", r.state)
	}
	r.mu.Unlock()

	for _, sub := range r.subscribers {
		sub.Stop()
	}
	if r.bus != nil {
		_ = r.bus.Close()
	}

	close(r.statsStopCh)
	<-r.statsDoneCh

	if r.statusRep != nil {
		r.statusRep.Stop()
	}

	r.queue.Shutdown()
	<-r.writer.Done()
	if err := r.writer.Shutdown(); err != nil {
		r.logger.Error("recorder: writer shutdown error", "err", err)
	}

	if r.reaper != nil {
		r.reaper.Stop()
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	return nil
}
