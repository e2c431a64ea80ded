package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/bagwriter"
	"github.com/icc-tech/bagrecorder/internal/middleware"
)

func TestRecorder_RecordsPublishedMessagesAndStops(t *testing.T) {
	dir := t.TempDir()
	bus := middleware.NewInMemoryBus(2, 16)

	cfg := Config{
		Topics: []TopicSpec{
			{Name: "/a"},
			{Name: "/b"},
		},
		QueueCapacityBytes: 1 << 20,
		Naming:             bagwriter.Verbatim,
		Path:               filepath.Join(dir, "out.bag"),
		Compression:        bagio.CompressionNone,
		CallerID:           "/recorder",
	}

	rec := New(cfg, bus, nil)
	require.NoError(t, rec.Start())

	require.NoError(t, bus.Publish(middleware.Envelope{Topic: "/a", WireBytes: []byte("hello"), Publisher: "/pub1"}))
	require.NoError(t, bus.Publish(middleware.Envelope{Topic: "/b", WireBytes: []byte("world"), Publisher: "/pub1"}))

	assert.Eventually(t, func() bool {
		snap := rec.StatusReporter().Snapshot()
		return snap.TotalBytesWritten > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, rec.Stop())

	r, err := bagio.Open(cfg.Path)
	require.NoError(t, err)
	var topics []string
	it := r.Begin()
	for it.Valid() {
		topics = append(topics, it.Record().Connection.TopicInBag)
		it.Advance()
	}
	assert.ElementsMatch(t, []string{"/a", "/b"}, topics)
}

func TestRecorder_DuplicateTopicFailsStart(t *testing.T) {
	dir := t.TempDir()
	bus := middleware.NewInMemoryBus(1, 4)

	cfg := Config{
		Topics: []TopicSpec{
			{Name: "/a"},
			{Name: "/a"},
		},
		QueueCapacityBytes: 1 << 10,
		Naming:             bagwriter.Verbatim,
		Path:               filepath.Join(dir, "out.bag"),
	}

	rec := New(cfg, bus, nil)
	assert.Error(t, rec.Start())
}
