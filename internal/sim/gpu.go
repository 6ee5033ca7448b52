// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/xrcap/internal/gpu"
)

// Texture is a simulated two-layer depth texture.
type Texture struct {
	Width, Height int
	Layers        [2][]float32
}

type buffer struct {
	mu   sync.Mutex
	data []float32
}

func (b *buffer) Elements() int { return len(b.data) }

// GPU is an in-memory gpu.Device. Readbacks complete on their own goroutine.
type GPU struct {
	// MaxBuffers caps live allocations; 0 means unlimited.
	MaxBuffers int

	live      atomic.Int64
	allocated atomic.Int64
	wg        sync.WaitGroup
}

// NewGPU returns a device without an allocation cap.
func NewGPU() *GPU { return &GPU{} }

// NewBuffer implements gpu.Allocator.
func (g *GPU) NewBuffer(n int) (gpu.Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sim: buffer size %d", n)
	}
	if g.MaxBuffers > 0 && g.live.Load() >= int64(g.MaxBuffers) {
		return nil, gpu.ErrDeviceLost
	}
	g.live.Add(1)
	g.allocated.Add(1)
	return &buffer{data: make([]float32, n)}, nil
}

// Destroy implements gpu.Allocator.
func (g *GPU) Destroy(b gpu.Buffer) {
	if _, ok := b.(*buffer); ok {
		g.live.Add(-1)
	}
}

// DispatchSplit copies each texture layer into its buffer.
func (g *GPU) DispatchSplit(tex gpu.Texture, left, right gpu.Buffer, width, height int) error {
	t, ok := tex.(*Texture)
	if !ok {
		return errors.New("sim: foreign texture")
	}
	if t.Width != width || t.Height != height {
		return fmt.Errorf("sim: texture is %dx%d, dispatch asked for %dx%d", t.Width, t.Height, width, height)
	}
	for i, b := range []gpu.Buffer{left, right} {
		buf, ok := b.(*buffer)
		if !ok || len(buf.data) < width*height {
			return errors.New("sim: buffer too small")
		}
		buf.mu.Lock()
		copy(buf.data, t.Layers[i])
		buf.mu.Unlock()
	}
	return nil
}

// ReadbackAsync hands a copy of the buffer to done on a new goroutine.
func (g *GPU) ReadbackAsync(b gpu.Buffer, done gpu.ReadbackFunc) {
	buf, ok := b.(*buffer)
	if !ok {
		go done(nil, errors.New("sim: foreign buffer"))
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		buf.mu.Lock()
		out := append([]float32(nil), buf.data...)
		buf.mu.Unlock()
		done(out, nil)
	}()
}

// Wait blocks until every readback callback has returned.
func (g *GPU) Wait() { g.wg.Wait() }

// Live returns the number of allocated, not yet destroyed buffers.
func (g *GPU) Live() int64 { return g.live.Load() }

// Allocated returns the total number of allocations.
func (g *GPU) Allocated() int64 { return g.allocated.Load() }
