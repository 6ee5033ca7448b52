// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package depth

import (
	"strconv"

	"github.com/ManuGH/xrcap/internal/capture/timeline"
)

// Header is the column layout of <eye>_depth_descriptors.csv.
var Header = []string{
	"timestamp_ms",
	"ovr_timestamp",
	"create_pose_location_x",
	"create_pose_location_y",
	"create_pose_location_z",
	"create_pose_rotation_x",
	"create_pose_rotation_y",
	"create_pose_rotation_z",
	"create_pose_rotation_w",
	"fov_left_angle_tangent",
	"fov_right_angle_tangent",
	"fov_top_angle_tangent",
	"fov_down_angle_tangent",
	"near_z",
	"far_z",
	"width",
	"height",
}

// FrameDescriptor is the per-eye metadata of one depth frame.
type FrameDescriptor struct {
	// DeviceTime is the depth driver clock in nanoseconds.
	DeviceTime int64
	Position   [3]float32
	// Rotation is a unit quaternion (x, y, z, w).
	Rotation [4]float32

	FovLeft  float32
	FovRight float32
	FovTop   float32
	FovDown  float32

	Near float32
	Far  float32

	Width  int
	Height int
}

// Intrinsics are pinhole camera parameters in pixels.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Intrinsics derives pinhole parameters from the FoV tangents.
func (d FrameDescriptor) Intrinsics() Intrinsics {
	l, r := float64(d.FovLeft), float64(d.FovRight)
	t, b := float64(d.FovTop), float64(d.FovDown)
	w, h := float64(d.Width), float64(d.Height)

	var in Intrinsics
	if l+r != 0 {
		in.Fx = w / (l + r)
		in.Cx = w * r / (l + r)
	}
	if t+b != 0 {
		in.Fy = h / (t + b)
		in.Cy = h * t / (t + b)
	}
	return in
}

// Row renders the descriptor as a CSV row with the translated timestamp.
func (d FrameDescriptor) Row(unixMs int64) []string {
	row := make([]string, 0, len(Header))
	row = append(row,
		strconv.FormatInt(unixMs, 10),
		timeline.FormatDeviceSeconds(d.DeviceTime),
	)
	for _, v := range d.Position {
		row = append(row, formatFloat(v))
	}
	for _, v := range d.Rotation {
		row = append(row, formatFloat(v))
	}
	row = append(row,
		formatFloat(d.FovLeft),
		formatFloat(d.FovRight),
		formatFloat(d.FovTop),
		formatFloat(d.FovDown),
		formatFloat(d.Near),
		formatFloat(d.Far),
		strconv.Itoa(d.Width),
		strconv.Itoa(d.Height),
	)
	return row
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
