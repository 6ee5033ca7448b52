// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
)

// Camera is a simulated native passthrough camera for one eye. Frames are
// written asynchronously as <unixMs>.yuv using the base time handed over by
// the bridge.
type Camera struct {
	eye    capture.Eye
	format camera.ImageFormat
	clock  *DeviceClock

	mu       sync.Mutex
	imageDir string
	base     timeline.Base
	seq      byte
	err      error

	wg sync.WaitGroup
}

// NewCamera returns a w×h YUV_420_888 camera.
func NewCamera(eye capture.Eye, clk *DeviceClock, w, h int) *Camera {
	return &Camera{eye: eye, format: camera.YUV420(w, h), clock: clk}
}

// DeviceNow implements camera.Native.
func (c *Camera) DeviceNow() int64 { return c.clock.DeviceNow() }

// UpdateDirectoryPaths implements camera.Native. It writes the format and
// characteristics files next to the image directory.
func (c *Camera) UpdateDirectoryPaths(imageDir, formatInfoPath string) error {
	if err := writeJSON(formatInfoPath, c.format); err != nil {
		return err
	}
	sessionDir := filepath.Dir(formatInfoPath)
	w, h := float64(c.format.Width), float64(c.format.Height)
	side := -0.032
	if c.eye == capture.Right {
		side = 0.032
	}
	chars := camera.Characteristics{
		CameraID:        fmt.Sprintf("sim-%s", c.eye),
		Eye:             string(c.eye),
		Intrinsics:      [5]float64{w / 2, w / 2, w / 2, h / 2, 0},
		PoseTranslation: [3]float64{side, 0, -0.05},
		PoseRotation:    [4]float64{0, 0, 0, 1},
		ActiveArray:     [4]int{0, 0, c.format.Width, c.format.Height},
	}
	if err := writeJSON(camera.CharacteristicsPath(sessionDir, c.eye), chars); err != nil {
		return err
	}

	c.mu.Lock()
	c.imageDir = imageDir
	c.mu.Unlock()
	return nil
}

// ResetBaseTime implements camera.Native.
func (c *Camera) ResetBaseTime(b timeline.Base) {
	c.mu.Lock()
	c.base = b
	c.mu.Unlock()
}

// CaptureNextFrame implements camera.Native.
func (c *Camera) CaptureNextFrame() {
	ts := c.clock.DeviceNow()

	c.mu.Lock()
	dir, base := c.imageDir, c.base
	c.seq++
	fill := c.seq
	c.mu.Unlock()

	if dir == "" || !base.Valid() {
		c.setErr(errors.New("sim: capture before paths and base time"))
		return
	}

	name := strconv.FormatInt(base.TranslateMillis(ts), 10) + ".yuv"
	size := c.format.FrameSize()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		frame := make([]byte, size)
		for i := range frame {
			frame[i] = fill + byte(i)
		}
		if err := renameio.WriteFile(filepath.Join(dir, name), frame, 0o640); err != nil {
			c.setErr(err)
		}
	}()
}

// Drain implements camera.Drainer.
func (c *Camera) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.err
	c.err = nil
	return err
}

func (c *Camera) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("sim: write %s: %w", path, err)
	}
	return nil
}
