// Package ratetracker implements a smooth, exponentially time-decayed
// rate estimator with bias correction against warm-up.
package ratetracker

import (
	"math"
	"sync"
	"time"
)

// HalfLife is the compile-time half-life of the decay window.
const HalfLife = 1.0 // seconds

// decay is ln(2)/HalfLife.
var decay = -math.Log(0.5) / HalfLife

// Tracker holds the decayed-count state for a single counted quantity
// (messages, or bytes). It is safe for concurrent NotifyEvent callers;
// QueryRate may be called concurrently with NotifyEvent.
type Tracker struct {
	mu sync.Mutex

	t0        time.Time
	started   bool
	lambda    float64
	lambdaS   float64
	lastEvent time.Time
}

// New returns a Tracker with no events recorded yet.
func New() *Tracker {
	return &Tracker{}
}

// NotifyEvent records one event (weight 1 for a message-rate tracker, or
// the payload size for a bandwidth tracker) at time now.
func (t *Tracker) NotifyEvent(now time.Time, weight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.t0 = now
		t.lastEvent = now
		t.started = true
	}

	delta := now.Sub(t.lastEvent).Seconds()
	e := math.Exp(-decay * delta)
	t.lambdaS = decay*delta*e*t.lambda + e*t.lambdaS
	t.lambda = weight*decay + e*t.lambda
	t.lastEvent = now
}

// QueryRate returns the estimated per-second rate at time t.
func (t *Tracker) QueryRate(at time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return 0
	}

	delta := at.Sub(t.lastEvent).Seconds()
	e := math.Exp(-decay * delta)

	delta0 := at.Sub(t.t0).Seconds()
	s := (1 + decay*delta0) * math.Exp(-decay*delta0)

	denom := 1 - s
	if denom <= 0 {
		return 0
	}

	rate := (decay*delta*e*t.lambda + e*t.lambdaS) / denom
	if rate < 0 {
		return 0
	}
	return rate
}
