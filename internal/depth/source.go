// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package depth

import (
	"errors"

	"github.com/ManuGH/xrcap/internal/gpu"
)

var (
	// ErrFrameNotReady is returned by a Source whose texture is not yet available.
	ErrFrameNotReady = errors.New("depth: frame not ready")
	// ErrInvalidFrame marks frames with a wrong descriptor count or empty size.
	ErrInvalidFrame = errors.New("depth: invalid frame")
	// ErrAlreadyActive is returned by Start while a session is running.
	ErrAlreadyActive = errors.New("depth: pipeline already active")
	// ErrNotActive is returned by Stop when no session is running.
	ErrNotActive = errors.New("depth: pipeline not active")
	// ErrNotBound is returned by Start when Bind was not called.
	ErrNotBound = errors.New("depth: no session bound")
)

// Frame is one acquired environment depth frame: a two-layer texture array
// and one descriptor per eye.
type Frame struct {
	Texture     gpu.Texture
	Descriptors []FrameDescriptor
	Width       int
	Height      int
}

// Source is the platform environment-depth provider.
type Source interface {
	Enabled() bool
	SetEnabled(enabled bool) error
	AcquireFrame() (Frame, error)
	// DeviceNow reads the depth driver clock in nanoseconds.
	DeviceNow() int64
}

// Permission reports whether scene data may be read.
type Permission interface {
	Granted() bool
}

func validate(f Frame) error {
	if len(f.Descriptors) != 2 {
		return ErrInvalidFrame
	}
	if f.Width <= 0 || f.Height <= 0 {
		return ErrInvalidFrame
	}
	return nil
}
