// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"math"
	"sync"

	"github.com/ManuGH/xrcap/internal/depth"
)

// DepthSource synthesizes environment depth: a tilted plane whose distance
// oscillates slowly, seen from a head moving on a circle.
type DepthSource struct {
	Width, Height int
	Near, Far     float32
	// NotReadyEvery makes every n-th acquire fail with ErrFrameNotReady (0 = never).
	NotReadyEvery int

	clock *DeviceClock

	mu      sync.Mutex
	enabled bool
	calls   int
}

// NewDepthSource returns a disabled source of w×h frames.
func NewDepthSource(clk *DeviceClock, w, h int) *DepthSource {
	return &DepthSource{Width: w, Height: h, Near: 0.1, Far: 0, clock: clk}
}

// Enabled implements depth.Source.
func (s *DepthSource) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled implements depth.Source.
func (s *DepthSource) SetEnabled(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
	return nil
}

// DeviceNow implements depth.Source.
func (s *DepthSource) DeviceNow() int64 { return s.clock.DeviceNow() }

// AcquireFrame implements depth.Source.
func (s *DepthSource) AcquireFrame() (depth.Frame, error) {
	s.mu.Lock()
	enabled := s.enabled
	s.calls++
	calls := s.calls
	s.mu.Unlock()

	if !enabled {
		return depth.Frame{}, depth.ErrFrameNotReady
	}
	if s.NotReadyEvery > 0 && calls%s.NotReadyEvery == 0 {
		return depth.Frame{}, depth.ErrFrameNotReady
	}

	ts := s.clock.DeviceNow()
	secs := float64(ts) / 1e9
	dist := 1.5 + 0.5*math.Sin(secs*0.5)

	tex := &Texture{Width: s.Width, Height: s.Height}
	for layer := range tex.Layers {
		data := make([]float32, s.Width*s.Height)
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				tilt := float64(y) / float64(s.Height) * 0.3
				data[y*s.Width+x] = float32(dist + tilt + float64(layer)*0.01)
			}
		}
		tex.Layers[layer] = data
	}

	pos, rot := headPose(secs)
	descs := make([]depth.FrameDescriptor, 2)
	for i := range descs {
		p := pos
		p[0] += float32(i)*0.064 - 0.032
		descs[i] = depth.FrameDescriptor{
			DeviceTime: ts,
			Position:   p,
			Rotation:   rot,
			FovLeft:    1,
			FovRight:   1,
			FovTop:     1,
			FovDown:    1,
			Near:       s.Near,
			Far:        s.Far,
			Width:      s.Width,
			Height:     s.Height,
		}
	}
	return depth.Frame{Texture: tex, Descriptors: descs, Width: s.Width, Height: s.Height}, nil
}

// headPose moves on a 0.5 m circle at 1.6 m height, yawing to face the center.
func headPose(secs float64) ([3]float32, [4]float32) {
	a := secs * 0.2
	pos := [3]float32{float32(0.5 * math.Cos(a)), 1.6, float32(0.5 * math.Sin(a))}
	half := -a / 2
	rot := [4]float32{0, float32(math.Sin(half)), 0, float32(math.Cos(half))}
	return pos, rot
}
