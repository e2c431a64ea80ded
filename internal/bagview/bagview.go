// Package bagview implements a chronological k-way merge over one or
// more bag readers, with per-bag connection-level filtering and
// seek-by-time.
package bagview

import (
	"time"

	"github.com/icc-tech/bagrecorder/internal/bagio"
)

// ConnectionPredicate decides whether every message from a given
// connection should be included in a view (always included or always
// excluded — filtering is at connection granularity, not per-message).
type ConnectionPredicate func(*bagio.Connection) bool

// bagEntry is one reader added to a View, with its dense
// connection-id → passes-filter bitmap precomputed at add time.
type bagEntry struct {
	reader   *bagio.Reader
	filtered bool
	passes   []bool
}

func newBagEntry(reader *bagio.Reader, pred ConnectionPredicate) *bagEntry {
	e := &bagEntry{reader: reader}
	if pred == nil {
		return e
	}
	e.filtered = true

	var maxID uint32
	for id := range reader.Connections() {
		if id > maxID {
			maxID = id
		}
	}
	e.passes = make([]bool, maxID+1)
	for id, conn := range reader.Connections() {
		e.passes[id] = pred(conn)
	}
	return e
}

func (e *bagEntry) predicate() func(*bagio.Connection) bool {
	if !e.filtered {
		return func(*bagio.Connection) bool { return true }
	}
	return func(c *bagio.Connection) bool {
		if int(c.ID) >= len(e.passes) {
			return false
		}
		return e.passes[c.ID]
	}
}

// View composes zero or more bag readers into one chronological stream.
type View struct {
	bags []*bagEntry
}

// New returns an empty view.
func New() *View {
	return &View{}
}

// AddBag adds reader to the view with no filtering: every message from
// every connection in reader is included.
func (v *View) AddBag(reader *bagio.Reader) {
	v.bags = append(v.bags, newBagEntry(reader, nil))
}

// AddBagFiltered adds reader to the view, including only messages whose
// connection satisfies pred.
func (v *View) AddBagFiltered(reader *bagio.Reader, pred ConnectionPredicate) {
	v.bags = append(v.bags, newBagEntry(reader, pred))
}

// StartTime returns the minimum StartTime over every added reader, or
// the zero time if the view has no bags.
func (v *View) StartTime() time.Time {
	var min time.Time
	first := true
	for _, e := range v.bags {
		st := e.reader.StartTime()
		if first || st.Before(min) {
			min = st
			first = false
		}
	}
	return min
}

// EndTime returns the maximum EndTime over every added reader, or the
// zero time if the view has no bags.
func (v *View) EndTime() time.Time {
	var max time.Time
	first := true
	for _, e := range v.bags {
		et := e.reader.EndTime()
		if first || et.After(max) {
			max = et
			first = false
		}
	}
	return max
}

// MultiBagMessage is one message yielded by an Iterator, carrying which
// input bag it came from.
type MultiBagMessage struct {
	Record   *bagio.Record
	BagIndex int
}

// Iterator performs the k-way chronological merge over a View's bags.
type Iterator struct {
	view    *View
	cursors []*bagio.Iterator

	currentBag int // -1 when exhausted
	current    *MultiBagMessage
}

// Begin returns an iterator seeded at the globally-earliest
// (filter-passing) message across every bag in the view.
func (v *View) Begin() *Iterator {
	it := &Iterator{view: v, cursors: make([]*bagio.Iterator, len(v.bags)), currentBag: -1}
	for i, e := range v.bags {
		cur := e.reader.Begin()
		cur.FindNextWithPredicate(e.predicate())
		it.cursors[i] = cur
	}
	it.selectMin()
	return it
}

// FindTime returns an iterator seeded at the earliest (filter-passing)
// message at or after t, across every bag in the view.
func (v *View) FindTime(t time.Time) *Iterator {
	it := &Iterator{view: v, cursors: make([]*bagio.Iterator, len(v.bags)), currentBag: -1}
	for i, e := range v.bags {
		cur := e.reader.FindTime(t)
		cur.FindNextWithPredicate(e.predicate())
		it.cursors[i] = cur
	}
	it.selectMin()
	return it
}

// Valid reports whether the iterator currently references a message.
// An iterator compares as exhausted ("== end()") once Valid is false.
func (it *Iterator) Valid() bool {
	return it.currentBag >= 0
}

// Message returns the currently-referenced message, or nil if the
// iterator is exhausted.
func (it *Iterator) Message() *MultiBagMessage {
	return it.current
}

// Next advances the cursor that produced the previously-yielded message
// and re-selects the new global minimum.
func (it *Iterator) Next() {
	if it.currentBag < 0 {
		return
	}
	e := it.view.bags[it.currentBag]
	it.cursors[it.currentBag].AdvanceWithPredicate(e.predicate())
	it.selectMin()
}

// selectMin scans every non-exhausted cursor and picks the smallest
// current timestamp; ties are broken by the lower bag index, since the
// scan only replaces the incumbent on a strict improvement.
func (it *Iterator) selectMin() {
	minIdx := -1
	var minStamp time.Time
	for i, cur := range it.cursors {
		if !cur.Valid() {
			continue
		}
		st := cur.Record().Stamp
		if minIdx == -1 || st.Before(minStamp) {
			minIdx = i
			minStamp = st
		}
	}
	if minIdx == -1 {
		it.currentBag = -1
		it.current = nil
		return
	}
	it.currentBag = minIdx
	it.current = &MultiBagMessage{Record: it.cursors[minIdx].Record(), BagIndex: minIdx}
}
