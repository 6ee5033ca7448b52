// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim provides synthetic stand-ins for the on-device collaborators
// (GPU, depth driver, native cameras, pose tracker, permission service) so
// the daemon runs end to end on any host.
package sim

import (
	"time"

	"github.com/ManuGH/xrcap/internal/clock"
)

// DeviceClock is a monotonic nanosecond clock with its own epoch, driven by
// a wall clock. Every simulated subsystem gets a different epoch so that
// mixing up timelines shows in the output.
type DeviceClock struct {
	wall   clock.Clock
	origin time.Time
	epoch  int64
}

// NewDeviceClock starts a device clock reading epoch at the current wall time.
func NewDeviceClock(wall clock.Clock, epoch int64) *DeviceClock {
	if wall == nil {
		wall = clock.Real{}
	}
	return &DeviceClock{wall: wall, origin: wall.Now(), epoch: epoch}
}

// DeviceNow implements timeline.DeviceClock.
func (c *DeviceClock) DeviceNow() int64 {
	return c.epoch + int64(c.wall.Now().Sub(c.origin))
}

// Default epochs, chosen far apart.
const (
	DepthEpoch  = int64(1_000 * time.Second)
	CameraEpoch = int64(250_000 * time.Second)
	PoseEpoch   = int64(37 * time.Second)
)
