// Package statictf maintains the accumulated static-transform cache the
// writer sniffs off the reserved /tf_static topic and replays into
// every newly opened bag segment.
package statictf

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Transform is an opaque coordinate-frame relationship; this recorder
// never interprets its contents (serialization is an external
// collaborator's concern), only stores and replays it.
type Transform struct {
	Parent string
	Child  string
	Data   []byte
}

// Cache maps child frame name to its most recently published
// transform. Mirrors the sync.Map + atomic counter pattern already used
// elsewhere in this codebase for dense keyed registries.
type Cache struct {
	transforms sync.Map // child frame -> Transform
	count      atomic.Int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Set records (or replaces) the transform for the given child frame.
func (c *Cache) Set(t Transform) {
	_, loaded := c.transforms.LoadOrStore(t.Child, t)
	if loaded {
		c.transforms.Store(t.Child, t)
		return
	}
	c.count.Add(1)
}

// Get returns the transform for child, if known.
func (c *Cache) Get(child string) (Transform, bool) {
	v, ok := c.transforms.Load(child)
	if !ok {
		return Transform{}, false
	}
	return v.(Transform), true
}

// Count returns the number of distinct child frames cached.
func (c *Cache) Count() int64 {
	return c.count.Load()
}

// EncodeTransforms serializes a set of transforms into the wire bytes
// the writer stores as the synthetic /tf_static replay message. The
// format is this recorder's own (serialization of real message types
// is an external collaborator's concern); it only needs to round-trip
// through DecodeTransforms.
func EncodeTransforms(transforms []Transform) ([]byte, error) {
	return json.Marshal(transforms)
}

// DecodeTransforms is the inverse of EncodeTransforms, used by the
// writer to fold an incoming /tf_static message into its cache.
func DecodeTransforms(data []byte) ([]Transform, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var transforms []Transform
	if err := json.Unmarshal(data, &transforms); err != nil {
		return nil, err
	}
	return transforms, nil
}

// All returns a snapshot slice of every cached transform, in no
// particular order (the writer's replay message is order-independent:
// it contains the full set, not a sequence that matters).
func (c *Cache) All() []Transform {
	out := make([]Transform, 0, c.count.Load())
	c.transforms.Range(func(_, v any) bool {
		out = append(out, v.(Transform))
		return true
	})
	return out
}
