// Package queue implements the byte-bounded FIFO that sits between
// subscriber callbacks and the bag writer.
package queue

import (
	"container/list"
	"sync"

	"github.com/icc-tech/bagrecorder/internal/message"
)

// MessageQueue is a thread-safe, bounded-by-total-bytes FIFO. Push never
// blocks the producer: a full queue causes the new message to be
// dropped (tail-drop). Pop blocks until a message is available or the
// queue is shut down and drained.
type MessageQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *list.List
	capacity int
	occupied int
	dropped  int64
	shutdown bool
}

// New returns an empty queue with the given byte capacity.
func New(capacityBytes int) *MessageQueue {
	q := &MessageQueue{
		items:    list.New(),
		capacity: capacityBytes,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push attempts to enqueue msg. Returns true if accepted, false if
// dropped (queue full or already shut down). Never blocks.
func (q *MessageQueue) Push(msg message.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		q.dropped++
		return false
	}

	size := msg.Size()
	if q.occupied+size > q.capacity {
		q.dropped++
		return false
	}

	q.items.PushBack(msg)
	q.occupied += size
	q.cond.Signal()
	return true
}

// Pop blocks until a message is available or the queue has been shut
// down and drained. Returns (msg, true) on success, (zero, false) once
// shutdown and empty — matching the "drain on shutdown" choice recorded
// for this implementation.
func (q *MessageQueue) Pop() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 {
		if q.shutdown {
			return message.Message{}, false
		}
		q.cond.Wait()
	}

	front := q.items.Front()
	q.items.Remove(front)
	msg := front.Value.(message.Message)
	q.occupied -= msg.Size()
	return msg, true
}

// Shutdown idempotently marks the queue closed and wakes all waiters.
// Already-enqueued messages remain poppable until the queue drains.
func (q *MessageQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	q.shutdown = true
	q.cond.Broadcast()
}

// ByteOccupancy returns the current total size of enqueued messages.
func (q *MessageQueue) ByteOccupancy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.occupied
}

// Capacity returns the configured byte capacity.
func (q *MessageQueue) Capacity() int {
	return q.capacity
}

// DropCount returns the number of pushes that were dropped.
func (q *MessageQueue) DropCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
