// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package timeline maps per-subsystem monotonic device clocks onto the shared
// wall-clock timeline of a recording session.
package timeline

import (
	"strconv"
	"sync/atomic"
	"time"
)

// DeviceClock is a monotonic nanosecond source with an arbitrary epoch
// (GPU/depth driver, native camera layer, pose tracker).
type DeviceClock interface {
	DeviceNow() int64
}

// Base anchors one stream's device clock to the wall clock. The zero value is
// not a valid anchor; use NewBase.
//
// Translation is integer nanosecond arithmetic. Float seconds lose sub-ms
// precision after a few hours of uptime and must not be used here.
type Base struct {
	deviceAtStart int64
	wallAtStartNs int64
	valid         bool
}

// NewBase captures the anchor pair (deviceNow, wallNow).
func NewBase(deviceNow int64, wallNow time.Time) Base {
	return Base{
		deviceAtStart: deviceNow,
		wallAtStartNs: wallNow.UnixNano(),
		valid:         true,
	}
}

// Capture reads clk and pairs it with wallNow.
func Capture(clk DeviceClock, wallNow time.Time) Base {
	return NewBase(clk.DeviceNow(), wallNow)
}

// Valid reports whether b was built by NewBase.
func (b Base) Valid() bool { return b.valid }

// DeviceAtStart returns the device-clock anchor.
func (b Base) DeviceAtStart() int64 { return b.deviceAtStart }

// WallAtStart returns the wall-clock anchor.
func (b Base) WallAtStart() time.Time { return time.Unix(0, b.wallAtStartNs) }

// TranslateNanos returns the wall-clock equivalent of device as Unix nanoseconds.
func (b Base) TranslateNanos(device int64) int64 {
	return b.wallAtStartNs + (device - b.deviceAtStart)
}

// Translate returns the wall-clock equivalent of a device timestamp.
func (b Base) Translate(device int64) time.Time {
	return time.Unix(0, b.TranslateNanos(device))
}

// TranslateMillis returns the translated timestamp as Unix milliseconds,
// the unit used for frame file names and *_ms columns.
func (b Base) TranslateMillis(device int64) int64 {
	return floorDiv(b.TranslateNanos(device), int64(time.Millisecond))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Translator holds the current Base of one stream. Reset is called once per
// stream start; Translate reports false until then.
type Translator struct {
	base atomic.Pointer[Base]
}

// Reset installs a new anchor.
func (t *Translator) Reset(deviceNow int64, wallNow time.Time) Base {
	b := NewBase(deviceNow, wallNow)
	t.base.Store(&b)
	return b
}

// Base returns the current anchor, if any.
func (t *Translator) Base() (Base, bool) {
	b := t.base.Load()
	if b == nil {
		return Base{}, false
	}
	return *b, true
}

// Translate maps a device timestamp using the current anchor.
func (t *Translator) Translate(device int64) (time.Time, bool) {
	b := t.base.Load()
	if b == nil {
		return time.Time{}, false
	}
	return b.Translate(device), true
}

// Clear drops the anchor; Translate reports false afterwards.
func (t *Translator) Clear() {
	t.base.Store(nil)
}

// FormatDeviceSeconds renders a nanosecond device timestamp as decimal
// seconds ("12.000345678") without going through float64.
func FormatDeviceSeconds(ns int64) string {
	// The magnitude is taken in uint64 so math.MinInt64 does not overflow.
	mag := uint64(ns)
	if ns < 0 {
		mag = -mag
	}
	sec := mag / uint64(time.Second)
	frac := mag % uint64(time.Second)

	buf := make([]byte, 0, 24)
	if ns < 0 {
		buf = append(buf, '-')
	}
	buf = strconv.AppendUint(buf, sec, 10)
	buf = append(buf, '.')
	fs := strconv.FormatUint(frac, 10)
	for i := len(fs); i < 9; i++ {
		buf = append(buf, '0')
	}
	buf = append(buf, fs...)
	return string(buf)
}
