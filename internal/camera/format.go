// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"encoding/json"
	"fmt"
	"os"
)

// Plane describes one image plane as reported by the camera HAL.
type Plane struct {
	BufferSize  int `json:"bufferSize"`
	RowStride   int `json:"rowStride"`
	PixelStride int `json:"pixelStride"`
}

// ImageFormat is the content of <eye>_camera_image_format.json.
type ImageFormat struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Format string  `json:"format"`
	Planes []Plane `json:"planes"`
}

// YUV420 returns the tightly packed YUV_420_888 layout for w×h.
func YUV420(w, h int) ImageFormat {
	return ImageFormat{
		Width:  w,
		Height: h,
		Format: "YUV_420_888",
		Planes: []Plane{
			{BufferSize: w * h, RowStride: w, PixelStride: 1},
			{BufferSize: w * h / 4, RowStride: w / 2, PixelStride: 1},
			{BufferSize: w * h / 4, RowStride: w / 2, PixelStride: 1},
		},
	}
}

// FrameSize is the byte length of one frame file.
func (f ImageFormat) FrameSize() int {
	n := 0
	for _, p := range f.Planes {
		n += p.BufferSize
	}
	return n
}

// Characteristics is the content of <eye>_camera_characteristics.json.
type Characteristics struct {
	CameraID string `json:"camera_id"`
	Eye      string `json:"eye"`
	// Intrinsics are fx, fy, cx, cy, skew in pixels.
	Intrinsics [5]float64 `json:"lens_intrinsic_calibration"`
	// PoseTranslation is relative to the head origin, in meters.
	PoseTranslation [3]float64 `json:"lens_pose_translation"`
	PoseRotation    [4]float64 `json:"lens_pose_rotation"`
	ActiveArray     [4]int     `json:"sensor_active_array"`
}

// ReadImageFormat decodes an image format file.
func ReadImageFormat(path string) (ImageFormat, error) {
	var f ImageFormat
	// #nosec G304 -- path is inside a session directory
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("camera: decode %s: %w", path, err)
	}
	return f, nil
}
