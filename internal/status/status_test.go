package status

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icc-tech/bagrecorder/internal/topic"
)

func TestReporter_SnapshotReflectsTopicsAndSources(t *testing.T) {
	reg := topic.NewRegistry()
	tp, err := reg.Add("/a", 0)
	require.NoError(t, err)
	tp.NotifyMessage(time.Now(), 100)
	tp.NotifyWritten()

	r := New(Sources{
		Topics:            reg,
		BagfileName:       func() string { return "out.bag" },
		TotalBytesWritten: func() int64 { return 4096 },
		FreeBytes:         func() int64 { return 1 << 30 },
	})

	snap := r.Snapshot()
	assert.Equal(t, Running, snap.Status)
	assert.Equal(t, "out.bag", snap.BagfileName)
	assert.Equal(t, int64(4096), snap.TotalBytesWritten)
	require.Len(t, snap.PerTopic, 1)
	assert.Equal(t, "/a", snap.PerTopic[0].Name)
	assert.Equal(t, int64(1), snap.PerTopic[0].TotalMessages)
	assert.Equal(t, int64(1), snap.PerTopic[0].MessagesInCurrentBag)
}

func TestReporter_SetPausedChangesStatus(t *testing.T) {
	r := New(Sources{BagfileName: func() string { return "" }})
	r.SetPaused(true)
	assert.Equal(t, Paused, r.Snapshot().Status)
}

func TestReporter_RunPublishesToSinks(t *testing.T) {
	r := New(Sources{BagfileName: func() string { return "x.bag" }})

	var mu sync.Mutex
	var count int
	r.AddSink(SinkFunc(func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	go r.Run()
	time.Sleep(250 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 1)
}

func TestPrometheusSink_PublishesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Publish(Snapshot{
		Status:             Running,
		TotalBytesWritten:  10,
		FreeBytes:          20,
		AggregateBandwidth: 30,
		PerTopic: []TopicSnapshot{
			{Name: "/a", Bandwidth: 1, Rate: 2, TotalMessages: 3, MessagesInCurrentBag: 4, Publishers: 1},
		},
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
