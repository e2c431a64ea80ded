// Package bagio implements the on-disk bag container collaborator: a
// length-prefixed binary format with an in-memory index built
// on open, optional streaming compression, and an iterator supporting
// predicate-based connection filtering and seek-by-time.
package bagio

import "time"

// Compression selects the codec applied to a segment's byte stream.
// Chosen once when a segment is opened (see Open in writer.go) and applies to
// every record written into that segment.
type Compression byte

const (
	CompressionNone Compression = iota
	CompressionBZ2
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionBZ2:
		return "bz2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ConnectionHeader carries the metadata attached to a connection's
// first message. latching/callerID mirror the fields a synthetic
// /tf_static replay message must be able to set.
type ConnectionHeader struct {
	Type       string
	MD5Sum     string
	Definition string
	CallerID   string
	Latching   bool
}

// Connection identifies one logical publisher's contribution to a bag:
// a (topic-in-bag, type, md5, definition) tuple, plus the caller id and
// latching flag captured from its first message's header.
type Connection struct {
	ID         uint32
	TopicInBag string
	Type       string
	MD5Sum     string
	Definition string
	CallerID   string
	Latching   bool
}

// Record is one stored message as read back from a bag: its owning
// connection, timestamp, and raw payload bytes.
type Record struct {
	Connection *Connection
	Stamp      time.Time
	RawBytes   []byte
}
