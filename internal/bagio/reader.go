package bagio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// Reader holds the fully-parsed contents of one bag file: its
// connection table and its messages in on-disk (== write, == arrival)
// order. Parsing the whole file up front keeps the iterator simple and
// is proportionate to the sizes this recorder produces (segments
// rotate well before becoming too large to hold in memory as an index).
type Reader struct {
	path        string
	compression Compression
	conns       map[uint32]*Connection
	records     []Record
}

// Open parses path and returns a Reader over its connections and
// messages.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hdr [6]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, fmt.Errorf("bagio: read header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return nil, fmt.Errorf("bagio: %s: not a bag file", path)
	}
	if hdr[4] != formatVersion {
		return nil, fmt.Errorf("bagio: %s: unsupported format version %d", path, hdr[4])
	}
	compression := Compression(hdr[5])

	dec, err := newDecompressReader(f, compression)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		path:        path,
		compression: compression,
		conns:       make(map[uint32]*Connection),
	}

	if err := r.parse(dec); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parse(dec io.Reader) error {
	for {
		var typeByte [1]byte
		if _, err := io.ReadFull(dec, typeByte[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("bagio: read record type: %w", err)
		}

		switch typeByte[0] {
		case recordTypeConnection:
			conn, err := readConnection(dec)
			if err != nil {
				return err
			}
			r.conns[conn.ID] = conn
		case recordTypeMessage:
			rec, err := readMessage(dec, r.conns)
			if err != nil {
				return err
			}
			r.records = append(r.records, rec)
		default:
			return fmt.Errorf("bagio: %s: corrupt record type %d", r.path, typeByte[0])
		}
	}
}

func readConnection(dec io.Reader) (*Connection, error) {
	var idBuf [4]byte
	if _, err := io.ReadFull(dec, idBuf[:]); err != nil {
		return nil, err
	}
	c := &Connection{ID: binary.LittleEndian.Uint32(idBuf[:])}

	var err error
	if c.TopicInBag, err = readString(dec); err != nil {
		return nil, err
	}
	if c.Type, err = readString(dec); err != nil {
		return nil, err
	}
	if c.MD5Sum, err = readString(dec); err != nil {
		return nil, err
	}
	if c.Definition, err = readString(dec); err != nil {
		return nil, err
	}
	if c.CallerID, err = readString(dec); err != nil {
		return nil, err
	}
	var latching [1]byte
	if _, err := io.ReadFull(dec, latching[:]); err != nil {
		return nil, err
	}
	c.Latching = latching[0] != 0
	return c, nil
}

func readMessage(dec io.Reader, conns map[uint32]*Connection) (Record, error) {
	var idBuf [4]byte
	if _, err := io.ReadFull(dec, idBuf[:]); err != nil {
		return Record{}, err
	}
	connID := binary.LittleEndian.Uint32(idBuf[:])

	var stampBuf [8]byte
	if _, err := io.ReadFull(dec, stampBuf[:]); err != nil {
		return Record{}, err
	}
	stamp := time.Unix(0, int64(binary.LittleEndian.Uint64(stampBuf[:])))

	var lenBuf [4]byte
	if _, err := io.ReadFull(dec, lenBuf[:]); err != nil {
		return Record{}, err
	}
	dataLen := binary.LittleEndian.Uint32(lenBuf[:])

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(dec, data); err != nil {
		return Record{}, err
	}

	conn, ok := conns[connID]
	if !ok {
		return Record{}, fmt.Errorf("bagio: message references unknown connection %d", connID)
	}

	return Record{Connection: conn, Stamp: stamp, RawBytes: data}, nil
}

func readString(dec io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(dec, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(dec, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Connections returns every connection parsed from this bag, keyed by
// id.
func (r *Reader) Connections() map[uint32]*Connection {
	return r.conns
}

// StartTime returns the stamp of the earliest message, or the zero time
// if the bag has no messages.
func (r *Reader) StartTime() time.Time {
	if len(r.records) == 0 {
		return time.Time{}
	}
	min := r.records[0].Stamp
	for _, rec := range r.records[1:] {
		if rec.Stamp.Before(min) {
			min = rec.Stamp
		}
	}
	return min
}

// EndTime returns the stamp of the latest message, or the zero time if
// the bag has no messages.
func (r *Reader) EndTime() time.Time {
	if len(r.records) == 0 {
		return time.Time{}
	}
	max := r.records[0].Stamp
	for _, rec := range r.records[1:] {
		if rec.Stamp.After(max) {
			max = rec.Stamp
		}
	}
	return max
}

// Begin returns an iterator positioned at the first message, or an
// exhausted iterator if the bag has no messages.
func (r *Reader) Begin() *Iterator {
	return &Iterator{reader: r, idx: 0}
}

// FindTime returns an iterator positioned at the first message whose
// stamp is >= t.
func (r *Reader) FindTime(t time.Time) *Iterator {
	idx := len(r.records)
	for i, rec := range r.records {
		if !rec.Stamp.Before(t) {
			idx = i
			break
		}
	}
	return &Iterator{reader: r, idx: idx}
}

// Iterator is a single-bag cursor over a Reader's records in on-disk
// order. A zero-value Iterator is not valid; obtain one via Begin or
// FindTime.
type Iterator struct {
	reader *Reader
	idx    int // index into reader.records; == len(records) when exhausted
}

// Valid reports whether the cursor currently references a message.
func (it *Iterator) Valid() bool {
	return it.idx < len(it.reader.records)
}

// Record returns the message the cursor currently references. Only
// valid to call when Valid() is true.
func (it *Iterator) Record() *Record {
	return &it.reader.records[it.idx]
}

// Advance moves the cursor to the next message, unconditionally.
func (it *Iterator) Advance() {
	if it.idx < len(it.reader.records) {
		it.idx++
	}
}

// AdvanceWithPredicate moves the cursor forward at least one position,
// then continues skipping messages whose connection does not satisfy
// pred, until one does (or the bag is exhausted).
func (it *Iterator) AdvanceWithPredicate(pred func(*Connection) bool) {
	it.Advance()
	it.FindNextWithPredicate(pred)
}

// FindNextWithPredicate advances the cursor, without first stepping
// past the current position, until it references a message whose
// connection satisfies pred (or the bag is exhausted). Used to seed an
// iterator (begin/findTime) that must skip an initially-filtered
// message without discarding it via an unconditional Advance first.
func (it *Iterator) FindNextWithPredicate(pred func(*Connection) bool) {
	for it.idx < len(it.reader.records) && !pred(it.reader.records[it.idx].Connection) {
		it.idx++
	}
}
