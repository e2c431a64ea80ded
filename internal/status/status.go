// Package status implements the StatusReporter: a periodic snapshot of
// recording state published to any number of sinks.
package status

import (
	"sync"
	"time"

	"github.com/icc-tech/bagrecorder/internal/topic"
)

// Interval is the snapshot cadence.
const Interval = 100 * time.Millisecond

// RecordingStatus is the coarse run state carried in every snapshot.
type RecordingStatus string

const (
	Running RecordingStatus = "RUNNING"
	Paused  RecordingStatus = "PAUSED"
)

// TopicSnapshot is one topic's row in a Snapshot's per_topic list.
type TopicSnapshot struct {
	Name                 string  `json:"name"`
	Publishers           int64   `json:"publishers"`
	Bandwidth            float64 `json:"bandwidth"`
	TotalBytes           int64   `json:"total_bytes"`
	TotalMessages        int64   `json:"total_messages"`
	MessagesInCurrentBag int64   `json:"messages_in_current_bag"`
	Rate                 float64 `json:"rate"`
}

// Snapshot is the full status publication.
type Snapshot struct {
	Status            RecordingStatus `json:"status"`
	BagfileName       string          `json:"bagfile_name"`
	TotalBytesWritten int64           `json:"total_bytes_written"`
	FreeBytes         int64           `json:"free_bytes"`
	AggregateBandwidth float64        `json:"aggregate_bandwidth"`
	PerTopic          []TopicSnapshot `json:"per_topic"`
}

// Sink receives every snapshot produced by a Reporter. Implementations
// must not block the reporter's timer goroutine for long.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Snapshot)

func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Sources supplies a Reporter with the live state it snapshots each
// tick; the reporter owns no state of its own beyond the run flag.
type Sources struct {
	Topics            *topic.Registry
	BagfileName       func() string
	TotalBytesWritten func() int64
	FreeBytes         func() int64
}

// Reporter runs a timer loop, producing a Snapshot from Sources every
// Interval and pushing it to every registered Sink.
type Reporter struct {
	sources Sources

	mu      sync.Mutex
	sinks   []Sink
	paused  bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Reporter that does nothing until Run is called.
func New(sources Sources) *Reporter {
	return &Reporter{
		sources: sources,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// AddSink registers a sink to receive every future snapshot. It may be
// called while Run is active; the sink list is copied under the lock on
// each tick, so a new sink receives snapshots from the next tick on.
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// SetPaused toggles the coarse run state reflected in every snapshot's
// Status field.
func (r *Reporter) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// Run blocks, publishing a snapshot every Interval until Stop is
// called.
func (r *Reporter) Run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// Stop requests the reporter's goroutine exit and waits for it to do
// so.
func (r *Reporter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) tick() {
	snap := r.Snapshot()
	r.mu.Lock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.Unlock()
	for _, s := range sinks {
		s.Publish(snap)
	}
}

// Snapshot builds the current status snapshot on demand, without
// waiting for the next timer tick.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	paused := r.paused
	r.mu.Unlock()

	st := Running
	if paused {
		st = Paused
	}

	snap := Snapshot{
		Status:      st,
		BagfileName: r.sources.BagfileName(),
	}
	if r.sources.TotalBytesWritten != nil {
		snap.TotalBytesWritten = r.sources.TotalBytesWritten()
	}
	if r.sources.FreeBytes != nil {
		snap.FreeBytes = r.sources.FreeBytes()
	}

	if r.sources.Topics != nil {
		var aggregate float64
		for _, t := range r.sources.Topics.Topics() {
			ts := t.Snapshot()
			aggregate += ts.Bandwidth
			snap.PerTopic = append(snap.PerTopic, TopicSnapshot{
				Name:                 ts.Name,
				Publishers:           ts.NumPublishers,
				Bandwidth:            ts.Bandwidth,
				TotalBytes:           ts.TotalBytes,
				TotalMessages:        ts.TotalMessages,
				MessagesInCurrentBag: ts.MessagesInCurrentBag,
				Rate:                 ts.Rate,
			})
		}
		snap.AggregateBandwidth = aggregate
	}

	return snap
}
