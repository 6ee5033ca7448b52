// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package camera forwards capture ticks to the native passthrough camera
// layer. Frame bytes never cross into Go: the native side writes
// <eye>_camera_raw/<unixMs>.yuv itself using the base time handed over at
// session start.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
)

var (
	ErrAlreadyActive = errors.New("camera: bridge already active")
	ErrNotActive     = errors.New("camera: bridge not active")
	ErrNotBound      = errors.New("camera: no session bound")
)

// Native is the per-eye native camera driver.
type Native interface {
	// UpdateDirectoryPaths tells the driver where to write frames and the
	// image format description.
	UpdateDirectoryPaths(imageDir, formatInfoPath string) error
	// ResetBaseTime hands over the timeline anchor used to name frames.
	ResetBaseTime(base timeline.Base)
	// CaptureNextFrame requests one frame. It must not block.
	CaptureNextFrame()
	DeviceNow() int64
}

// Drainer is implemented by drivers that buffer frames asynchronously.
type Drainer interface {
	Drain(ctx context.Context) error
}

// ImageDir returns the frame directory of eye inside a session.
func ImageDir(sessionDir string, eye capture.Eye) string {
	return filepath.Join(sessionDir, string(eye)+"_camera_raw")
}

// FormatInfoPath returns the image format file of eye inside a session.
func FormatInfoPath(sessionDir string, eye capture.Eye) string {
	return filepath.Join(sessionDir, string(eye)+"_camera_image_format.json")
}

// CharacteristicsPath returns the camera characteristics file of eye.
func CharacteristicsPath(sessionDir string, eye capture.Eye) string {
	return filepath.Join(sessionDir, string(eye)+"_camera_characteristics.json")
}

// Bridge is one eye's camera stream. It implements capture.Stream and
// capture.PathUpdater.
type Bridge struct {
	eye    capture.Eye
	native Native
	logger zerolog.Logger

	mu     sync.Mutex
	bound  *capture.Session
	active bool

	captures atomic.Uint64
}

// New returns an idle bridge for eye.
func New(eye capture.Eye, native Native) *Bridge {
	return &Bridge{
		eye:    eye,
		native: native,
		logger: log.WithComponent("camera").With().Str(log.FieldEye, string(eye)).Logger(),
	}
}

// Name implements capture.Stream.
func (b *Bridge) Name() string { return string(b.eye) + "_camera" }

// Bind records the session directory.
func (b *Bridge) Bind(sess *capture.Session) error {
	if sess == nil {
		return ErrNotBound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound = sess
	return nil
}

// UpdatePaths creates the frame directory and passes the session paths to
// the native driver.
func (b *Bridge) UpdatePaths() error {
	b.mu.Lock()
	sess := b.bound
	b.mu.Unlock()
	if sess == nil {
		return ErrNotBound
	}

	imageDir := ImageDir(sess.Dir, b.eye)
	if err := os.MkdirAll(imageDir, 0o750); err != nil {
		return fmt.Errorf("camera: create %s: %w", imageDir, err)
	}
	if err := b.native.UpdateDirectoryPaths(imageDir, FormatInfoPath(sess.Dir, b.eye)); err != nil {
		return fmt.Errorf("camera: update %s paths: %w", b.eye, err)
	}
	b.logger.Debug().
		Str("event", "camera.paths_updated").
		Str(log.FieldPath, imageDir).
		Msg("native camera paths updated")
	return nil
}

// Start marks the bridge active.
func (b *Bridge) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		b.logger.Warn().Str("event", "camera.start_rejected").Msg("start while active ignored")
		return ErrAlreadyActive
	}
	if b.bound == nil {
		return ErrNotBound
	}
	b.active = true
	b.captures.Store(0)
	return nil
}

// ResetTimeline anchors the native camera clock to wall and hands the
// anchor to the driver.
func (b *Bridge) ResetTimeline(wall time.Time) {
	base := timeline.Capture(b.native, wall)
	b.native.ResetBaseTime(base)
	b.logger.Debug().
		Str("event", "camera.timeline_reset").
		Int64(log.FieldDeviceNs, base.DeviceAtStart()).
		Int64(log.FieldUnixMs, wall.UnixMilli()).
		Msg("camera timeline anchored")
}

// Tick requests one frame per gated tick.
func (b *Bridge) Tick(_ time.Time, gated bool) {
	if !gated {
		return
	}
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if !active {
		return
	}
	b.native.CaptureNextFrame()
	b.captures.Add(1)
	metrics.CameraCapturesTotal.WithLabelValues(string(b.eye)).Inc()
}

// Stop deactivates the bridge and waits for the driver to flush.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		b.logger.Warn().Str("event", "camera.stop_rejected").Msg("stop while idle ignored")
		return ErrNotActive
	}
	b.active = false
	b.bound = nil
	b.mu.Unlock()

	if d, ok := b.native.(Drainer); ok {
		if err := d.Drain(ctx); err != nil {
			return fmt.Errorf("camera: drain %s: %w", b.eye, err)
		}
	}
	b.logger.Info().
		Str("event", "camera.stopped").
		Uint64("captures", b.captures.Load()).
		Msg("camera capture stopped")
	return nil
}

// Counts reports capture requests issued in the current or last session.
func (b *Bridge) Counts() map[string]uint64 {
	return map[string]uint64{b.Name(): b.captures.Load()}
}
