package reaper

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBag(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestReaper_DeletesOldestFirstUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeBag(t, dir, "a.bag", 1024, now.Add(-3*time.Hour))
	writeBag(t, dir, "b.bag", 1024, now.Add(-2*time.Hour))
	writeBag(t, dir, "c.bag", 1024, now.Add(-1*time.Hour))

	var mu sync.Mutex
	r := New(dir, 2048, func() string { return "" }, &mu, nil)
	r.runOnce()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"b.bag", "c.bag"}, names)
}

func TestReaper_NeverDeletesCurrentSegment(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	oldest := writeBag(t, dir, "old.bag", 1024, now.Add(-3*time.Hour))
	writeBag(t, dir, "new.bag", 1024, now.Add(-1*time.Hour))

	var mu sync.Mutex
	r := New(dir, 512, func() string { return oldest }, &mu, nil)
	r.runOnce()

	_, err := os.Stat(oldest)
	assert.NoError(t, err, "current segment must survive even though it is oldest")
}

func TestReaper_NoOpWhenUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	writeBag(t, dir, "a.bag", 100, time.Now())

	var mu sync.Mutex
	r := New(dir, 1<<20, func() string { return "" }, &mu, nil)
	r.runOnce()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReaper_IgnoresNonBagFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), make([]byte, 4096), 0o644))
	writeBag(t, dir, "a.bag", 100, time.Now())

	var mu sync.Mutex
	r := New(dir, 10, func() string { return "" }, &mu, nil)
	r.runOnce()

	_, err := os.Stat(filepath.Join(dir, "readme.txt"))
	assert.NoError(t, err)
}

func TestReaper_DisabledWhenThresholdZero(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	r := New(dir, 0, func() string { return "" }, &mu, nil)
	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return immediately when threshold <= 0")
	}
}
