// Package reaper implements the DiskReaper: a secondary goroutine that
// enforces a directory byte budget by deleting the oldest *.bag files,
// skipping whichever segment is currently open.
package reaper

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/icc-tech/bagrecorder/internal/metrics"
)

// pollInterval is the reaper's sweep cadence.
const pollInterval = 5 * time.Second

// CurrentPathFunc returns the path of the writer's currently open
// segment (or "" if none), so the reaper never deletes it.
type CurrentPathFunc func() string

// Reaper enforces ThresholdBytes against the total size of every
// *.bag file in Dir, deleting oldest-first.
type Reaper struct {
	dir            string
	thresholdBytes int64
	currentPath    CurrentPathFunc
	cleanupMu      *sync.Mutex
	logger         *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	lastDirectorySize int64
}

// New returns a Reaper that does nothing until Run is called. Run is a
// no-op if thresholdBytes <= 0, per spec ("runs iff delete_old_at_bytes
// > 0").
func New(dir string, thresholdBytes int64, currentPath CurrentPathFunc, cleanupMu *sync.Mutex, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		dir:            dir,
		thresholdBytes: thresholdBytes,
		currentPath:    currentPath,
		cleanupMu:      cleanupMu,
		logger:         logger,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// DirectorySize returns the most recently measured total size of every
// *.bag file in the reaper's directory.
func (r *Reaper) DirectorySize() int64 {
	return r.lastDirectorySize
}

// Run blocks, performing a pass every pollInterval until Stop is
// called. If thresholdBytes <= 0 it returns immediately.
func (r *Reaper) Run() {
	defer close(r.doneCh)
	if r.thresholdBytes <= 0 {
		return
	}

	r.pass()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.pass()
		}
	}
}

// Stop requests the reaper's goroutine exit and waits for it to do so.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// runOnce performs a single reaper pass synchronously; exported within
// the package for tests that don't want to wait on the poll ticker.
func (r *Reaper) runOnce() {
	r.pass()
}

type bagFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (r *Reaper) pass() {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Warn("reaper: failed to list directory", "dir", r.dir, "err", err)
		return
	}

	var files []bagFile
	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".bag" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(r.dir, e.Name())
		files = append(files, bagFile{path: full, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
	}
	r.lastDirectorySize = total

	if total <= r.thresholdBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	current := ""
	if r.currentPath != nil {
		current = r.currentPath()
	}

	for _, f := range files {
		if total <= r.thresholdBytes {
			break
		}
		if current != "" && pathsEquivalent(f.path, current) {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			r.logger.Warn("reaper: failed to delete", "path", f.path, "err", err)
			continue
		}
		metrics.ReaperDeletionsTotal.Inc()
		total -= f.size
	}

	if total > r.thresholdBytes {
		r.logger.Warn("reaper: could not meet directory budget", "dir", r.dir, "total_bytes", total, "threshold_bytes", r.thresholdBytes)
		metrics.ReaperShortfallsTotal.Inc()
	}
	r.lastDirectorySize = total
}

// pathsEquivalent compares two paths by resolved absolute form rather
// than raw string equality, so the currently-open segment is recognized
// even via a relative path, ".", or symlink.
func pathsEquivalent(a, b string) bool {
	ra, errA := filepath.Abs(a)
	rb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	if resolvedA, err := filepath.EvalSymlinks(ra); err == nil {
		ra = resolvedA
	}
	if resolvedB, err := filepath.EvalSymlinks(rb); err == nil {
		rb = resolvedB
	}
	return ra == rb
}
