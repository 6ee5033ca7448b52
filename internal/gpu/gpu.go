// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gpu defines the compute-device contract consumed by the depth
// pipeline and the buffer pool.
package gpu

import "errors"

// ErrDeviceLost is returned by devices whose context is gone.
var ErrDeviceLost = errors.New("gpu: device lost")

// Buffer is a device-resident float32 buffer of fixed element capacity.
type Buffer interface {
	Elements() int
}

// Texture is an opaque handle to a device texture array (one layer per eye).
type Texture interface{}

// Allocator creates and destroys buffers.
type Allocator interface {
	NewBuffer(elements int) (Buffer, error)
	Destroy(Buffer)
}

// ReadbackFunc receives the buffer contents. It may run on any goroutine.
// The slice is only valid for the duration of the call.
type ReadbackFunc func(data []float32, err error)

// Device is the full compute contract: allocation, the split dispatch that
// copies both texture layers into linear buffers, and async readback.
type Device interface {
	Allocator
	DispatchSplit(tex Texture, left, right Buffer, width, height int) error
	ReadbackAsync(buf Buffer, done ReadbackFunc)
}
