package bagwriter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/message"
	"github.com/icc-tech/bagrecorder/internal/queue"
	"github.com/icc-tech/bagrecorder/internal/statictf"
	"github.com/icc-tech/bagrecorder/internal/topic"
)

func newTestWriter(t *testing.T, cfg Config) (*Writer, *queue.MessageQueue, *topic.Registry) {
	t.Helper()
	q := queue.New(1 << 20)
	reg := topic.NewRegistry()
	tf := statictf.New()
	var cleanupMu sync.Mutex
	w := New(cfg, reg, q, tf, &cleanupMu, nil)
	return w, q, reg
}

func TestBagWriter_VerbatimRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bag")
	w, q, reg := newTestWriter(t, Config{Naming: Verbatim, Path: path})

	_, _ = reg.Add("/a", 0)
	_, _ = reg.Add("/b", 0)
	_, _ = reg.Add("/c", 0)

	require.NoError(t, w.Start())
	go w.Run()

	base := time.Unix(1000, 0)
	q.Push(message.Message{TopicName: "/a", WireBytes: []byte("frame_id=a"), Received: base})
	q.Push(message.Message{TopicName: "/b", WireBytes: []byte("frame_id=b"), Received: base.Add(time.Second)})
	q.Push(message.Message{TopicName: "/c", WireBytes: []byte{123}, Received: base.Add(2 * time.Second)})

	assert.Eventually(t, func() bool { return w.BytesWritten() > 0 }, time.Second, 5*time.Millisecond)

	q.Shutdown()
	<-w.Done()
	require.NoError(t, w.Shutdown())

	r, err := bagio.Open(path)
	require.NoError(t, err)

	var topics []string
	it := r.Begin()
	for it.Valid() {
		topics = append(topics, it.Record().Connection.TopicInBag)
		it.Advance()
	}
	assert.Equal(t, []string{"/a", "/b", "/c"}, topics)
}

func TestBagWriter_CollisionAvoidance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bag")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	w, q, _ := newTestWriter(t, Config{Naming: Verbatim, Path: path})
	require.NoError(t, w.Start())
	go w.Run()
	q.Shutdown()
	<-w.Done()
	require.NoError(t, w.Shutdown())

	assert.Equal(t, path+".2", w.CurrentPath())
}

func TestBagWriter_RotationOnSplitSize(t *testing.T) {
	dir := t.TempDir()
	w, q, reg := newTestWriter(t, Config{
		Naming:    AppendTimestamp,
		Prefix:    filepath.Join(dir, "bag"),
		SplitSize: 1, // force a rotation on every message
	})
	_, _ = reg.Add("/data", 0)

	require.NoError(t, w.Start())
	go w.Run()

	for i := 0; i < 5; i++ {
		q.Push(message.Message{TopicName: "/data", WireBytes: []byte("x"), Received: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}

	q.Shutdown()
	<-w.Done()
	require.NoError(t, w.Shutdown())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "expected multiple rotated segments")
}

func TestBagWriter_StaticTFReplayedIntoNewSegment(t *testing.T) {
	dir := t.TempDir()
	w, q, reg := newTestWriter(t, Config{
		Naming:    AppendTimestamp,
		Prefix:    filepath.Join(dir, "bag"),
		SplitSize: 50,
	})
	_, _ = reg.Add(StaticTransformTopic, 0)
	_, _ = reg.Add("/data", 0)

	require.NoError(t, w.Start())
	go w.Run()

	tfBytes, err := statictf.EncodeTransforms([]statictf.Transform{{Parent: "map", Child: "odom", Data: []byte("x")}})
	require.NoError(t, err)
	q.Push(message.Message{TopicName: StaticTransformTopic, WireBytes: tfBytes, Received: time.Now()})

	payload := make([]byte, 20)
	for i := 0; i < 10; i++ {
		q.Push(message.Message{TopicName: "/data", WireBytes: payload, Received: time.Now()})
	}

	time.Sleep(100 * time.Millisecond)
	q.Shutdown()
	<-w.Done()
	require.NoError(t, w.Shutdown())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	for _, e := range entries {
		r, err := bagio.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		it := r.Begin()
		require.True(t, it.Valid(), "segment %s has no messages", e.Name())
		assert.Equal(t, StaticTransformTopic, it.Record().Connection.TopicInBag, "segment %s must start with /tf_static", e.Name())
	}
}
