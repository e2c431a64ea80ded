package bagio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// magic identifies the container format; version allows the reader to
// reject files from an incompatible future revision.
var magic = [4]byte{'B', 'A', 'G', 'R'}

const formatVersion = 1

const (
	recordTypeConnection byte = 1
	recordTypeMessage    byte = 2
)

// Writer appends records to one open bag segment. A Writer instance is
// owned by exactly one BagWriter segment at a time; it is not safe to
// share across segments.
type Writer struct {
	mu sync.Mutex

	file        *os.File
	counting    *countingWriter
	enc         io.Writer
	encCloser   io.Closer
	compression Compression

	byTopic map[string]*Connection
	nextID  uint32
}

// Open creates a brand-new bag file at path with the given compression
// mode. It fails (via the underlying os.O_EXCL semantics) if path
// already exists — collision-avoidance naming is the caller's
// (BagWriter's) responsibility.
func Open(path string, compression Compression) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: f}
	if _, err := cw.Write(magic[:]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("bagio: write header: %w", err)
	}
	if _, err := cw.Write([]byte{formatVersion, byte(compression)}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("bagio: write header: %w", err)
	}

	enc, closer, err := newCompressWriter(cw, compression)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Writer{
		file:        f,
		counting:    cw,
		enc:         enc,
		encCloser:   closer,
		compression: compression,
		byTopic:     make(map[string]*Connection),
	}, nil
}

// Write appends one message on topic, carrying stamp and data. header
// is consulted only the first time topic is seen in this segment (it
// establishes the connection's metadata); subsequent writes on the same
// topic reuse the existing connection.
func (w *Writer) Write(topic string, header ConnectionHeader, stamp time.Time, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	conn, ok := w.byTopic[topic]
	if !ok {
		conn = &Connection{
			ID:         w.nextID,
			TopicInBag: topic,
			Type:       header.Type,
			MD5Sum:     header.MD5Sum,
			Definition: header.Definition,
			CallerID:   header.CallerID,
			Latching:   header.Latching,
		}
		w.nextID++
		w.byTopic[topic] = conn
		if err := w.writeConnectionRecord(conn); err != nil {
			return err
		}
	}

	return w.writeMessageRecord(conn.ID, stamp, data)
}

func (w *Writer) writeConnectionRecord(c *Connection) error {
	buf := make([]byte, 0, 64+len(c.TopicInBag)+len(c.Type)+len(c.MD5Sum)+len(c.Definition)+len(c.CallerID))
	buf = append(buf, recordTypeConnection)
	buf = appendUint32(buf, c.ID)
	buf = appendString(buf, c.TopicInBag)
	buf = appendString(buf, c.Type)
	buf = appendString(buf, c.MD5Sum)
	buf = appendString(buf, c.Definition)
	buf = appendString(buf, c.CallerID)
	if c.Latching {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	_, err := w.enc.Write(buf)
	return err
}

func (w *Writer) writeMessageRecord(connID uint32, stamp time.Time, data []byte) error {
	buf := make([]byte, 0, 1+4+8+4+len(data))
	buf = append(buf, recordTypeMessage)
	buf = appendUint32(buf, connID)
	buf = appendInt64(buf, stamp.UnixNano())
	buf = appendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	_, err := w.enc.Write(buf)
	return err
}

// GetSize returns the number of bytes written to the underlying file so
// far. For compressed segments this reflects the compressor's buffering
// behavior and may lag the true post-compression size until the next
// internal flush; rotation thresholds are advisory against this value.
// Callers only read this from the writer goroutine, so no
// synchronization is needed here.
func (w *Writer) GetSize() int64 {
	return w.counting.Count()
}

// Close flushes any buffered compressor state and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.encCloser != nil {
		if cerr := w.encCloser.Close(); cerr != nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// countingWriter tracks the number of bytes actually written to the
// underlying file, independent of however much internal buffering the
// compressor layered on top performs.
type countingWriter struct {
	w     io.Writer
	count int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

func (c *countingWriter) Count() int64 { return c.count }
