// Package middleware models the pub/sub transport as an external
// collaborator: the recorder only needs to subscribe to named topics
// and receive raw wire bytes plus a publisher identity. Subscription,
// transport negotiation and message serialization live outside this
// module's scope; this package provides the interface the rest of the
// recorder programs against, plus an in-memory implementation used by
// tests and by single-process deployments.
package middleware

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Envelope is one inbound message as delivered by the transport: a
// topic name, the raw wire bytes (serialized payload plus any
// connection-header information the transport attaches), and the
// identity of the publisher that sent it.
type Envelope struct {
	Topic     string
	WireBytes []byte
	Publisher string
}

// Handler processes one inbound envelope. Handlers run on a bus-owned
// goroutine and must not block indefinitely.
type Handler func(Envelope)

// Bus is the external pub/sub collaborator. Subscribe registers a
// handler for a topic name; PublisherCount reports how many distinct
// publishers have been observed on a topic (used by the subscriber to
// track topic.numPublishers); Publish is used by test harnesses and by
// in-process publishers (e.g. the writer's synthetic /tf_static replay
// does not use this path — only real traffic flows through Publish).
type Bus interface {
	Subscribe(topic string, handler Handler) error
	Publish(env Envelope) error
	PublisherCount(topic string) int
	Close() error
}

// partition is one shard of the in-memory bus: an independent goroutine
// draining a buffered channel, so that a slow handler in one partition
// cannot stall delivery in the others.
type partition struct {
	queue chan Envelope
	done  chan struct{}
}

// InMemoryBus is a partitioned, in-process implementation of Bus. It is
// the default transport for tests and for single-process deployments
// where the publisher and the recorder share an address space.
type InMemoryBus struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	publishers  map[string]map[string]struct{}
	partitions  []*partition
	closed      atomic.Bool
	publishedN  atomic.Int64
	deliveredN  atomic.Int64
}

// NewInMemoryBus returns a bus with the given number of delivery
// partitions, each with the given per-partition queue depth.
func NewInMemoryBus(partitionCount, queueDepth int) *InMemoryBus {
	if partitionCount < 1 {
		partitionCount = 1
	}
	b := &InMemoryBus{
		handlers:   make(map[string]Handler),
		publishers: make(map[string]map[string]struct{}),
		partitions: make([]*partition, partitionCount),
	}
	for i := range b.partitions {
		p := &partition{
			queue: make(chan Envelope, queueDepth),
			done:  make(chan struct{}),
		}
		b.partitions[i] = p
		go b.runPartition(p)
	}
	return b
}

// Subscribe registers handler for topic, replacing any prior handler.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) error {
	if b.closed.Load() {
		return fmt.Errorf("middleware: bus is closed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

// Publish delivers env to whatever handler is registered for its topic,
// via the partition selected by a hash of the publisher identity (so a
// single publisher's messages are always handled in order).
func (b *InMemoryBus) Publish(env Envelope) error {
	if b.closed.Load() {
		return fmt.Errorf("middleware: bus is closed")
	}

	b.mu.Lock()
	pubs, ok := b.publishers[env.Topic]
	if !ok {
		pubs = make(map[string]struct{})
		b.publishers[env.Topic] = pubs
	}
	pubs[env.Publisher] = struct{}{}
	b.mu.Unlock()

	b.publishedN.Add(1)
	part := b.partitions[b.partitionFor(env.Publisher)]
	select {
	case part.queue <- env:
		return nil
	default:
		return fmt.Errorf("middleware: partition queue full for topic %q", env.Topic)
	}
}

// PublisherCount returns the number of distinct publisher identities
// observed on topic so far.
func (b *InMemoryBus) PublisherCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.publishers[topic])
}

// Close shuts down every partition goroutine. Idempotent.
func (b *InMemoryBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, p := range b.partitions {
		close(p.queue)
		<-p.done
	}
	return nil
}

func (b *InMemoryBus) partitionFor(publisher string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(publisher))
	return int(h.Sum32()) % len(b.partitions)
}

func (b *InMemoryBus) runPartition(p *partition) {
	defer close(p.done)
	for env := range p.queue {
		b.mu.RLock()
		handler, ok := b.handlers[env.Topic]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		handler(env)
		b.deliveredN.Add(1)
	}
}
