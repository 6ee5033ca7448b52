// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capture holds the contract shared by the recording controller and
// the individual capture streams (depth, camera, pose).
package capture

import (
	"context"
	"time"

	"github.com/ManuGH/xrcap/internal/bufferpool"
)

// Eye selects one side of a stereo sensor.
type Eye string

const (
	Left  Eye = "left"
	Right Eye = "right"
)

// Eyes lists both eyes in descriptor order.
var Eyes = []Eye{Left, Right}

// Session is the per-recording state handed to every stream. It is created
// by the controller on Start and dropped on Stop.
type Session struct {
	ID        string
	Name      string
	Dir       string
	StartedAt time.Time
	Pool      *bufferpool.Pool
}

// Stream is one capture source driven by the controller.
//
// Bind, Start and ResetTimeline run once per session in that order, before
// the gate is armed. Tick is called on the tick goroutine for every render
// tick while recording. Stop flushes and closes everything the stream opened.
type Stream interface {
	Name() string
	Bind(sess *Session) error
	Start(ctx context.Context) error
	ResetTimeline(wall time.Time)
	Tick(now time.Time, gated bool)
	Stop(ctx context.Context) error
}

// PathUpdater is implemented by streams whose native side must learn the
// session directories before any stream starts.
type PathUpdater interface {
	UpdatePaths() error
}

// Counter is implemented by streams that report per-file item counts for
// the session manifest.
type Counter interface {
	Counts() map[string]uint64
}
