// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package clock abstracts the wall clock so capture timing can be driven
// deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real is the system wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock. Safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// Set pins the clock at t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Latched holds the instant last stored with Set. A tick loop latches its
// frame time so every reader sampled during that tick sees the same value.
type Latched struct {
	mu  sync.RWMutex
	now time.Time
}

// NewLatched returns a clock latched at t.
func NewLatched(t time.Time) *Latched {
	return &Latched{now: t}
}

func (l *Latched) Now() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.now
}

// Set latches t.
func (l *Latched) Set(t time.Time) {
	l.mu.Lock()
	l.now = t
	l.mu.Unlock()
}
