package topic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAssignsDenseIDs(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add("/a", 0)
	require.NoError(t, err)
	b, err := r.Add("/b", 0)
	require.NoError(t, err)

	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, b.ID)
}

func TestRegistry_DuplicateTopicRejected(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add("/a", 0)
	require.NoError(t, err)

	_, err = r.Add("/a", 0)
	require.Error(t, err)
	var dup *DuplicateTopicError
	assert.ErrorAs(t, err, &dup)
}

func TestTopic_NotifyMessageUpdatesTotals(t *testing.T) {
	r := NewRegistry()
	topicA, err := r.Add("/a", 0)
	require.NoError(t, err)

	now := time.Now()
	topicA.NotifyMessage(now, 100)
	topicA.NotifyMessage(now.Add(time.Millisecond), 200)

	snap := topicA.Snapshot()
	assert.Equal(t, int64(2), snap.TotalMessages)
	assert.Equal(t, int64(300), snap.TotalBytes)
}

func TestTopic_DropCounterAndSegmentReset(t *testing.T) {
	r := NewRegistry()
	topicA, err := r.Add("/a", 0)
	require.NoError(t, err)

	topicA.IncrementDrop()
	topicA.IncrementDrop()
	assert.Equal(t, int64(2), topicA.Snapshot().DropCounter)

	topicA.NotifyWritten()
	topicA.NotifyWritten()
	assert.Equal(t, int64(2), topicA.Snapshot().MessagesInCurrentBag)

	topicA.ResetSegmentCounters()
	assert.Equal(t, int64(0), topicA.Snapshot().MessagesInCurrentBag)
}

func TestRegistry_TopicsPreservesOrder(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Add("/a", 0)
	_, _ = r.Add("/b", 0)
	_, _ = r.Add("/c", 0)

	names := make([]string, 0, 3)
	for _, topic := range r.Topics() {
		names = append(names, topic.Name)
	}
	assert.Equal(t, []string{"/a", "/b", "/c"}, names)
}
