// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gate implements the shared capture clock: one boolean per render tick
// telling every stream whether to sample this logical instant.
package gate

import (
	"math"
	"sync"
	"time"

	"github.com/ManuGH/xrcap/internal/metrics"
)

// Gate is polled once per render tick. It never queues missed ticks.
//
// The "last signaled" timestamp is only written by Evaluate, which runs on the
// tick goroutine. The mutex exists because StartCapture/StopCapture/SetRate are
// called from the session controller.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration // 0 means unlimited
	armed    bool
	primed   bool // next Evaluate signals unconditionally
	last     time.Time
	signal   bool
}

// New returns a disarmed gate running at rateHz (0 = unlimited).
func New(rateHz float64) *Gate {
	g := &Gate{}
	g.interval = intervalFor(rateHz)
	return g
}

// intervalFor converts a rate into the minimum spacing between gated ticks.
func intervalFor(rateHz float64) time.Duration {
	if rateHz <= 0 || math.IsInf(rateHz, 1) || math.IsNaN(rateHz) {
		return 0
	}
	return time.Duration(float64(time.Second) / rateHz)
}

// SetRate changes the capture rate. It applies from the next evaluation and
// keeps the current phase.
func (g *Gate) SetRate(rateHz float64) {
	g.mu.Lock()
	g.interval = intervalFor(rateHz)
	g.mu.Unlock()
}

// Interval reports the configured spacing (0 = unlimited).
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// StartCapture arms the gate and resets its phase so the very next
// evaluation yields true.
func (g *Gate) StartCapture() {
	g.mu.Lock()
	g.armed = true
	g.primed = true
	g.signal = false
	g.mu.Unlock()
}

// StopCapture disarms the gate and clears the pending signal.
func (g *Gate) StopCapture() {
	g.mu.Lock()
	g.armed = false
	g.primed = false
	g.signal = false
	g.mu.Unlock()
}

// Armed reports whether the gate is armed.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Evaluate computes this tick's signal. On a true signal the last-signaled
// time moves to now, not to the ideal schedule: drift is absorbed, so the
// effective rate never exceeds the target.
func (g *Gate) Evaluate(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case !g.armed:
		g.signal = false
	case g.interval == 0:
		g.signal = true
		g.last = now
	case g.primed:
		g.signal = true
		g.primed = false
		g.last = now
	case now.Sub(g.last) >= g.interval:
		g.signal = true
		g.last = now
	default:
		g.signal = false
	}

	if g.armed {
		metrics.IncGateTick(g.signal)
	}
	return g.signal
}

// Signal returns the value computed by the most recent Evaluate.
func (g *Gate) Signal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signal
}
