package subscriber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icc-tech/bagrecorder/internal/middleware"
	"github.com/icc-tech/bagrecorder/internal/queue"
	"github.com/icc-tech/bagrecorder/internal/topic"
)

func TestSubscriber_DeliversIntoQueue(t *testing.T) {
	bus := middleware.NewInMemoryBus(1, 16)
	defer bus.Close()

	reg := topic.NewRegistry()
	topicA, err := reg.Add("/a", 0)
	require.NoError(t, err)

	q := queue.New(1 << 20)
	sub := New(topicA, q, bus)
	require.NoError(t, sub.Start())
	defer sub.Stop()

	require.NoError(t, bus.Publish(middleware.Envelope{Topic: "/a", WireBytes: []byte("hello"), Publisher: "p1"}))

	assert.Eventually(t, func() bool {
		return q.ByteOccupancy() > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), topicA.Snapshot().TotalMessages)
}

func TestSubscriber_RateLimitDropsSilently(t *testing.T) {
	bus := middleware.NewInMemoryBus(1, 64)
	defer bus.Close()

	reg := topic.NewRegistry()
	topicX, err := reg.Add("/x", 100*time.Millisecond) // 10 Hz
	require.NoError(t, err)

	q := queue.New(1 << 20)
	sub := New(topicX, q, bus)
	require.NoError(t, sub.Start())
	defer sub.Stop()

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(middleware.Envelope{Topic: "/x", WireBytes: []byte("x"), Publisher: "p1"}))
	}

	time.Sleep(50 * time.Millisecond)

	snap := topicX.Snapshot()
	assert.LessOrEqual(t, snap.TotalMessages, int64(2))
	assert.Equal(t, int64(0), snap.DropCounter, "rate-limited drops must not count as overflow")
}

func TestSubscriber_OverflowIncrementsDropCounter(t *testing.T) {
	bus := middleware.NewInMemoryBus(1, 256)
	defer bus.Close()

	reg := topic.NewRegistry()
	topicA, err := reg.Add("/a", 0)
	require.NoError(t, err)

	q := queue.New(64) // tiny capacity forces drops
	sub := New(topicA, q, bus)
	require.NoError(t, sub.Start())
	defer sub.Stop()

	payload := make([]byte, 100)
	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(middleware.Envelope{Topic: "/a", WireBytes: payload, Publisher: "p1"}))
	}

	assert.Eventually(t, func() bool {
		return topicA.Snapshot().DropCounter > 0
	}, time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, q.ByteOccupancy(), q.Capacity())
}
