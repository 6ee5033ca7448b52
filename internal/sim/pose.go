// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"math"

	"github.com/ManuGH/xrcap/internal/pose"
)

// Tracker reports synthetic head and controller poses.
type Tracker struct {
	clock *DeviceClock
}

// NewTracker returns a tracker on clk.
func NewTracker(clk *DeviceClock) *Tracker { return &Tracker{clock: clk} }

// DeviceNow implements pose.Tracker.
func (t *Tracker) DeviceNow() int64 { return t.clock.DeviceNow() }

// GetPose implements pose.Tracker. Samples are stamped with the current
// device time, so two reads at the same instant carry the same timestamp.
func (t *Tracker) GetPose(node pose.Node, _ pose.Mode) (pose.Sample, error) {
	ts := t.clock.DeviceNow()
	secs := float64(ts) / 1e9
	p, r := headPose(secs)

	switch node {
	case pose.Head:
	case pose.LeftController, pose.RightController:
		side := float32(-1)
		if node == pose.RightController {
			side = 1
		}
		p[0] += side * 0.25
		p[1] -= 0.45
		p[2] += float32(0.05 * math.Sin(secs*3))
	default:
		return pose.Sample{}, pose.ErrNotTracking
	}
	return pose.Sample{DeviceTime: ts, Position: p, Rotation: r}, nil
}
