// Package subscriber implements per-topic ingest from the middleware
// into the message queue, with rate limiting and overflow accounting.
package subscriber

import (
	"time"

	"github.com/icc-tech/bagrecorder/internal/message"
	"github.com/icc-tech/bagrecorder/internal/metrics"
	"github.com/icc-tech/bagrecorder/internal/middleware"
	"github.com/icc-tech/bagrecorder/internal/queue"
	"github.com/icc-tech/bagrecorder/internal/topic"
)

// publisherPollInterval is the cadence at which a subscriber refreshes
// its topic's numPublishers counter from the middleware.
const publisherPollInterval = 2 * time.Second

// Subscriber drains one topic's traffic from a middleware.Bus into the
// shared queue, applying the topic's rate limit and attributing
// overflow drops.
type Subscriber struct {
	topic *topic.Topic
	queue *queue.MessageQueue
	bus   middleware.Bus

	now func() time.Time

	stopPoll chan struct{}
}

// New returns a Subscriber for t, draining into q via bus.
func New(t *topic.Topic, q *queue.MessageQueue, bus middleware.Bus) *Subscriber {
	return &Subscriber{
		topic: t,
		queue: q,
		bus:   bus,
		now:   time.Now,
	}
}

// Start subscribes to the topic on the bus and begins polling the
// publisher count. Returns an error only if the bus subscription
// itself fails (e.g. the bus has already been closed).
func (s *Subscriber) Start() error {
	if err := s.bus.Subscribe(s.topic.Name, s.handle); err != nil {
		return err
	}
	s.stopPoll = make(chan struct{})
	go s.pollPublishers()
	return nil
}

// Stop halts the publisher-count poller. The bus subscription itself
// is torn down when the bus is closed.
func (s *Subscriber) Stop() {
	if s.stopPoll != nil {
		close(s.stopPoll)
	}
}

// handle is the middleware.Handler invoked for every inbound envelope
// on this subscriber's topic.
func (s *Subscriber) handle(env middleware.Envelope) {
	now := s.now()

	if s.topic.RateLimit > 0 {
		last := s.topic.LastMessageAt()
		if !last.IsZero() && now.Sub(last) < s.topic.RateLimit {
			metrics.RateLimitDropsTotal.WithLabelValues(s.topic.Name).Inc()
			return // rate-limit drop: silent in logs, not an overflow
		}
	}

	msg := message.Message{
		TopicName: s.topic.Name,
		TopicID:   s.topic.ID,
		WireBytes: env.WireBytes,
		Received:  now,
	}

	s.topic.NotifyMessage(now, msg.PayloadSize())

	if !s.queue.Push(msg) {
		s.topic.IncrementDrop()
		metrics.QueueDropsTotal.WithLabelValues(s.topic.Name).Inc()
	}
}

func (s *Subscriber) pollPublishers() {
	ticker := time.NewTicker(publisherPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.topic.SetNumPublishers(s.bus.PublisherCount(s.topic.Name))
		}
	}
}
