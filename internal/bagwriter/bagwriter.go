// Package bagwriter implements the central recording engine: a single
// goroutine draining the message queue into the currently open
// bag segment, with size-triggered rotation, two file-naming modes,
// collision-avoidance on open, static-transform replay into every new
// segment, and runtime-mutable compression.
package bagwriter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/icc-tech/bagrecorder/internal/bagio"
	"github.com/icc-tech/bagrecorder/internal/message"
	"github.com/icc-tech/bagrecorder/internal/metrics"
	"github.com/icc-tech/bagrecorder/internal/queue"
	"github.com/icc-tech/bagrecorder/internal/statictf"
	"github.com/icc-tech/bagrecorder/internal/topic"
)

// StaticTransformTopic is the reserved, latched topic the writer sniffs
// to build its replay cache.
const StaticTransformTopic = "/tf_static"

// freeSpacePollInterval is the cadence of the free-space advisory
// poll.
const freeSpacePollInterval = 5 * time.Second

// NamingMode selects how segment filenames are derived and how stop()
// treats the open file.
type NamingMode int

const (
	// AppendTimestamp derives {prefix}_{timestamp}.bag on every start()
	// and closes the file on stop().
	AppendTimestamp NamingMode = iota
	// Verbatim uses a single given path; stop() leaves the file open so
	// a later start() resumes the same segment.
	Verbatim
)

// Config is the writer's static configuration, set once at construction.
type Config struct {
	Naming      NamingMode
	Prefix      string // AppendTimestamp mode
	Path        string // Verbatim mode
	SplitSize   int64  // bytes; 0 = never rotate
	Compression bagio.Compression
	CallerID    string
}

// Writer is the stateful BagWriter engine: it owns the currently open
// segment and drains the message queue into it.
type Writer struct {
	cfg       Config
	topics    *topic.Registry
	queue     *queue.MessageQueue
	tfCache   *statictf.Cache
	cleanupMu *sync.Mutex
	logger    *slog.Logger

	mu           sync.Mutex // writer_mutex
	bag          *bagio.Writer
	currentPath  string
	isOpen       bool
	isRunning    bool
	isReopening  bool
	bytesWritten int64
	compression  bagio.Compression

	freeBytes    int64 // guarded by freeBytesMu; written by the free-space poll goroutine
	freeBytesMu  sync.RWMutex
	stopFreePoll chan struct{}

	done chan struct{}
}

// New constructs a Writer. cleanupMu is shared with the DiskReaper so
// "open a new segment" and "enumerate for deletion" never interleave.
func New(cfg Config, topics *topic.Registry, q *queue.MessageQueue, tfCache *statictf.Cache, cleanupMu *sync.Mutex, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:         cfg,
		topics:      topics,
		queue:       q,
		tfCache:     tfCache,
		cleanupMu:   cleanupMu,
		logger:      logger,
		compression: cfg.Compression,
		done:        make(chan struct{}),
	}
}

// IsOpen reports whether a segment file is currently mapped open.
func (w *Writer) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isOpen
}

// IsRunning reports whether writes are currently being accepted.
func (w *Writer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

// CurrentPath returns the path of the currently open segment, or "" if
// none is open.
func (w *Writer) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentPath
}

// BytesWritten returns the byte size of the currently open segment.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesWritten
}

// SetCompression changes the compression mode applied to segments
// opened from this point forward. The currently-open segment, if any,
// keeps the codec it was opened with: the codec of a segment is fixed
// when bagio.Open creates it.
func (w *Writer) SetCompression(c bagio.Compression) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.compression = c
}

// FreeBytes returns the most recent free-space poll result for the
// segment directory.
func (w *Writer) FreeBytes() int64 {
	w.freeBytesMu.RLock()
	defer w.freeBytesMu.RUnlock()
	return w.freeBytes
}

// candidatePath computes the filename start() would try first.
func (w *Writer) candidatePath() string {
	if w.cfg.Naming == Verbatim {
		return w.cfg.Path
	}
	return fmt.Sprintf("%s_%s.bag", w.cfg.Prefix, time.Now().Format("2006-01-02-15-04-05"))
}

// findAvailablePath tries candidate, then candidate+".2" .. ".9",
// returning the first path that does not already exist.
func findAvailablePath(candidate string) (string, bool) {
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, true
	}
	for i := 2; i <= 9; i++ {
		p := fmt.Sprintf("%s.%d", candidate, i)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p, true
		}
	}
	return "", false
}

// Start opens a new segment (or, in Verbatim mode when a file is
// already open, simply resumes writes to it) and, when the static-TF
// cache is non-empty, replays it as the segment's first message. On
// OpenError it logs and
// returns the writer to a non-exceptional CLOSED state — it never
// terminates the process.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range w.topics.Topics() {
		t.ResetSegmentCounters()
	}

	if w.cfg.Naming == Verbatim && w.isOpen {
		w.isRunning = true
		return nil
	}

	candidate := w.candidatePath()
	path, ok := findAvailablePath(candidate)
	if !ok {
		err := fmt.Errorf("bagwriter: exhausted collision suffixes for %q", candidate)
		w.logger.Error("failed to open bag segment", "candidate", candidate, "err", err)
		return err
	}

	w.cleanupMu.Lock()
	bag, err := bagio.Open(path, w.compression)
	w.cleanupMu.Unlock()
	if err != nil {
		w.logger.Error("failed to open bag segment", "path", path, "err", err)
		return fmt.Errorf("bagwriter: open %q: %w", path, err)
	}

	w.bag = bag
	w.currentPath = path
	w.isOpen = true
	w.isRunning = true
	w.bytesWritten = 0

	if err := w.replayStaticTFLocked(); err != nil {
		w.logger.Error("failed to replay static transforms", "path", path, "err", err)
	}
	return nil
}

// replayStaticTFLocked writes the full static-TF cache as one message
// on StaticTransformTopic, pinned to the writer's caller id with a
// latched connection header. An empty cache writes nothing. Caller
// must hold w.mu.
func (w *Writer) replayStaticTFLocked() error {
	transforms := w.tfCache.All()
	if len(transforms) == 0 {
		return nil
	}
	data, err := statictf.EncodeTransforms(transforms)
	if err != nil {
		return err
	}
	header := bagio.ConnectionHeader{
		Type:     "tf2_msgs/TFMessage",
		CallerID: w.cfg.CallerID,
		Latching: true,
	}
	if err := w.bag.Write(StaticTransformTopic, header, time.Now(), data); err != nil {
		return err
	}
	w.bytesWritten = w.bag.GetSize()
	return nil
}

// Stop stops accepting writes. In AppendTimestamp mode the file is
// closed immediately; in Verbatim mode the file stays open so a
// subsequent Start resumes it.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopLocked()
}

func (w *Writer) stopLocked() error {
	w.isRunning = false
	if w.cfg.Naming == AppendTimestamp && w.bag != nil {
		err := w.bag.Close()
		w.bag = nil
		w.isOpen = false
		if err != nil {
			return fmt.Errorf("bagwriter: close %q: %w", w.currentPath, err)
		}
	}
	return nil
}

// Run is the single writer goroutine's main loop. It returns once the
// queue is shut down and drained.
func (w *Writer) Run() {
	defer close(w.done)
	for {
		m, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.processMessage(m)
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) processMessage(m message.Message) {
	var bytesAfterWrite int64
	var wrote bool

	w.mu.Lock()
	if w.isRunning && w.bag != nil {
		header := bagio.ConnectionHeader{CallerID: w.cfg.CallerID}
		if err := w.bag.Write(m.TopicName, header, m.Received, m.WireBytes); err != nil {
			w.logger.Error("bag write failed", "topic", m.TopicName, "err", err)
		} else {
			wrote = true
			bytesAfterWrite = w.bag.GetSize()
			w.bytesWritten = bytesAfterWrite
			if t, ok := w.topics.Get(m.TopicName); ok {
				t.NotifyWritten()
			}
		}
	}
	w.mu.Unlock()

	if m.TopicName == StaticTransformTopic {
		w.foldStaticTF(m)
	}

	if wrote && w.cfg.SplitSize > 0 && bytesAfterWrite >= w.cfg.SplitSize {
		w.rotate()
	}
}

func (w *Writer) foldStaticTF(m message.Message) {
	transforms, err := statictf.DecodeTransforms(m.WireBytes)
	if err != nil {
		w.logger.Error("failed to decode /tf_static message", "err", err)
		return
	}
	for _, tr := range transforms {
		w.tfCache.Set(tr)
	}
}

func (w *Writer) rotate() {
	metrics.BagRotationsTotal.Inc()

	w.mu.Lock()
	w.isReopening = true
	w.mu.Unlock()

	if err := w.Stop(); err != nil {
		w.logger.Error("rotation: stop failed", "err", err)
	}
	if err := w.Start(); err != nil {
		w.logger.Error("rotation: start failed", "err", err)
	}

	w.mu.Lock()
	w.isReopening = false
	w.mu.Unlock()
}

// IsReopening reports whether a rotation is currently in flight.
func (w *Writer) IsReopening() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isReopening
}

// StartFreeSpacePoll launches the 5 s advisory free-space poller for
// dir. Call once; Shutdown stops it.
func (w *Writer) StartFreeSpacePoll(dir string) {
	w.stopFreePoll = make(chan struct{})
	go func() {
		ticker := time.NewTicker(freeSpacePollInterval)
		defer ticker.Stop()
		w.pollFreeSpace(dir)
		for {
			select {
			case <-w.stopFreePoll:
				return
			case <-ticker.C:
				w.pollFreeSpace(dir)
			}
		}
	}()
}

func (w *Writer) pollFreeSpace(dir string) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		w.logger.Warn("free-space poll failed", "dir", dir, "err", err)
		return
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	w.freeBytesMu.Lock()
	w.freeBytes = free
	w.freeBytesMu.Unlock()
}

// Shutdown waits for Run to finish draining the queue, stops the
// free-space poller, and unconditionally closes the segment (Verbatim
// segments are otherwise only closed on shutdown).
func (w *Writer) Shutdown() error {
	<-w.done
	if w.stopFreePoll != nil {
		close(w.stopFreePoll)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bag != nil {
		err := w.bag.Close()
		w.bag = nil
		w.isOpen = false
		w.isRunning = false
		if err != nil {
			return fmt.Errorf("bagwriter: final close %q: %w", w.currentPath, err)
		}
	}
	return nil
}

// SegmentDir returns the parent directory of the writer's configured
// output location, used by the reaper and the free-space poller.
func (w *Writer) SegmentDir() string {
	if w.cfg.Naming == Verbatim {
		return filepath.Dir(w.cfg.Path)
	}
	if w.cfg.Prefix == "" {
		return "."
	}
	dir := filepath.Dir(w.cfg.Prefix)
	if dir == "" {
		return "."
	}
	return dir
}
