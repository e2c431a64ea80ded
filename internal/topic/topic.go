// Package topic holds the ordered registry of recorded topics and their
// live status counters.
package topic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/icc-tech/bagrecorder/internal/ratetracker"
)

// Topic is one recorded stream: a stable name, an optional rate limit,
// and the counters/estimators that describe its traffic.
type Topic struct {
	Name      string
	ID        int
	RateLimit time.Duration // zero = unlimited

	totalMessages  atomic.Int64
	totalBytes     atomic.Int64
	dropCounter    atomic.Int64
	numPublishers  atomic.Int64
	msgsInPeriod   atomic.Int64
	bytesInPeriod  atomic.Int64
	messageRate    atomic.Value // float64
	bandwidth      atomic.Value // float64
	msgsInCurBag   atomic.Int64
	lastMessageAt  atomic.Value // time.Time
	countTracker   *ratetracker.Tracker
	bandwidth2     *ratetracker.Tracker
}

func newTopic(name string, id int, rateLimit time.Duration) *Topic {
	t := &Topic{
		Name:         name,
		ID:           id,
		RateLimit:    rateLimit,
		countTracker: ratetracker.New(),
		bandwidth2:   ratetracker.New(),
	}
	t.messageRate.Store(0.0)
	t.bandwidth.Store(0.0)
	t.lastMessageAt.Store(time.Time{})
	return t
}

// LastMessageAt returns the wall-clock time of the most recently
// accepted message, or the zero time if none has arrived yet.
func (t *Topic) LastMessageAt() time.Time {
	return t.lastMessageAt.Load().(time.Time)
}

// NotifyMessage records that a message of the given size was accepted
// (pushed to the queue, not necessarily yet written). Called from the
// subscriber goroutine under no external lock; all mutated state here
// is lock-free.
func (t *Topic) NotifyMessage(now time.Time, size int) {
	t.totalMessages.Add(1)
	t.totalBytes.Add(int64(size))
	t.msgsInPeriod.Add(1)
	t.bytesInPeriod.Add(int64(size))
	t.lastMessageAt.Store(now)
	t.countTracker.NotifyEvent(now, 1)
	t.bandwidth2.NotifyEvent(now, float64(size))
}

// NotifyWritten records that a message was successfully written into
// the current bag segment (used for the messages-in-current-bag stat,
// reset on rotation).
func (t *Topic) NotifyWritten() {
	t.msgsInCurBag.Add(1)
}

// ResetSegmentCounters is called by the writer when a new segment opens.
func (t *Topic) ResetSegmentCounters() {
	t.msgsInCurBag.Store(0)
}

// IncrementDrop attributes a queue overflow drop to this topic.
func (t *Topic) IncrementDrop() {
	t.dropCounter.Add(1)
}

// SetNumPublishers updates the polled publisher count.
func (t *Topic) SetNumPublishers(n int) {
	t.numPublishers.Store(int64(n))
}

// UpdateStats snapshots the smooth rate estimators into the exposed
// messageRate/bandwidth fields and resets the period accumulators.
// Invoked by the registry's periodic stats timer.
func (t *Topic) UpdateStats(now time.Time) {
	t.messageRate.Store(t.countTracker.QueryRate(now))
	t.bandwidth.Store(t.bandwidth2.QueryRate(now))
	t.msgsInPeriod.Store(0)
	t.bytesInPeriod.Store(0)
}

// Snapshot is a point-in-time, read-only view of a topic's counters.
type Snapshot struct {
	Name                 string
	NumPublishers        int64
	Bandwidth            float64
	TotalBytes           int64
	TotalMessages        int64
	MessagesInCurrentBag int64
	Rate                 float64
	DropCounter          int64
}

// Snapshot returns the current counter values for this topic.
func (t *Topic) Snapshot() Snapshot {
	return Snapshot{
		Name:                 t.Name,
		NumPublishers:        t.numPublishers.Load(),
		Bandwidth:            t.bandwidth.Load().(float64),
		TotalBytes:           t.totalBytes.Load(),
		TotalMessages:        t.totalMessages.Load(),
		MessagesInCurrentBag: t.msgsInCurBag.Load(),
		Rate:                 t.messageRate.Load().(float64),
		DropCounter:          t.dropCounter.Load(),
	}
}

// DuplicateTopicError is returned by Registry.Add when the topic name
// already exists.
type DuplicateTopicError struct{ Name string }

func (e *DuplicateTopicError) Error() string {
	return fmt.Sprintf("topic already registered: %s", e.Name)
}

// Registry is an ordered, append-only collection of topics, indexable by
// dense integer id in registration order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Topic
	list   []*Topic
}

// NewRegistry returns an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Topic)}
}

// Add registers a new topic, returning its dense id. Returns
// *DuplicateTopicError if the name is already registered.
func (r *Registry) Add(name string, rateLimit time.Duration) (*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, &DuplicateTopicError{Name: name}
	}

	id := len(r.list)
	t := newTopic(name, id, rateLimit)
	r.list = append(r.list, t)
	r.byName[name] = t
	return t, nil
}

// Get looks up a topic by name, or (nil,false) if it is not registered.
func (r *Registry) Get(name string) (*Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Topics returns a snapshot slice of all registered topics, in
// registration (and id) order. The slice itself is a copy; the
// *Topic values are shared and safe for concurrent counter access.
func (r *Registry) Topics() []*Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Topic, len(r.list))
	copy(out, r.list)
	return out
}

// UpdateStats refreshes the smooth rate/bandwidth estimate of every
// registered topic. Intended to be called from a periodic timer.
func (r *Registry) UpdateStats(now time.Time) {
	for _, t := range r.Topics() {
		t.UpdateStats(now)
	}
}
