// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/gpu"
	"github.com/ManuGH/xrcap/internal/permission"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestDeviceClock_FollowsWallWithEpoch(t *testing.T) {
	fake := clock.NewFake(t0)
	c := NewDeviceClock(fake, DepthEpoch)

	start := c.DeviceNow()
	assert.Equal(t, DepthEpoch, start)
	fake.Advance(1500 * time.Millisecond)
	assert.Equal(t, start+int64(1500*time.Millisecond), c.DeviceNow())
}

func TestGPU_SplitAndReadback(t *testing.T) {
	g := NewGPU()
	left, err := g.NewBuffer(4)
	require.NoError(t, err)
	right, err := g.NewBuffer(4)
	require.NoError(t, err)

	tex := &Texture{Width: 2, Height: 2, Layers: [2][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}}
	require.NoError(t, g.DispatchSplit(tex, left, right, 2, 2))
	require.Error(t, g.DispatchSplit(tex, left, right, 4, 4))

	got := make(chan []float32, 1)
	g.ReadbackAsync(right, func(data []float32, err error) {
		assert.NoError(t, err)
		got <- append([]float32(nil), data...)
	})
	g.Wait()
	assert.Equal(t, []float32{5, 6, 7, 8}, <-got)

	assert.Equal(t, int64(2), g.Live())
	g.Destroy(left)
	g.Destroy(right)
	assert.Zero(t, g.Live())
	assert.Equal(t, int64(2), g.Allocated())
}

func TestGPU_MaxBuffers(t *testing.T) {
	g := &GPU{MaxBuffers: 1}
	_, err := g.NewBuffer(1)
	require.NoError(t, err)
	_, err = g.NewBuffer(1)
	require.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = NewGPU().NewBuffer(0)
	require.Error(t, err)
}

func TestPermissions_RequestGrants(t *testing.T) {
	p := NewPermissions(permission.Camera)
	assert.True(t, p.HasPermission(permission.Camera))
	assert.False(t, p.HasPermission(permission.SceneData))

	require.NoError(t, p.RequestPermission(permission.SceneData))
	assert.True(t, p.HasPermission(permission.SceneData))
}

func TestCamera_WritesFramesNamedByTranslatedTime(t *testing.T) {
	fake := clock.NewFake(t0)
	cam := NewCamera(capture.Left, NewDeviceClock(fake, CameraEpoch), 4, 4)
	sessionDir := t.TempDir()
	imageDir := camera.ImageDir(sessionDir, capture.Left)
	require.NoError(t, os.MkdirAll(imageDir, 0o750))

	cam.CaptureNextFrame()
	require.Error(t, cam.Drain(context.Background()), "capture before paths is reported")

	require.NoError(t, cam.UpdateDirectoryPaths(imageDir, camera.FormatInfoPath(sessionDir, capture.Left)))
	cam.ResetBaseTime(timeline.NewBase(cam.DeviceNow(), fake.Now()))

	fake.Advance(25 * time.Millisecond)
	cam.CaptureNextFrame()
	require.NoError(t, cam.Drain(context.Background()))

	want := filepath.Join(imageDir, "1740823200025.yuv")
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.Equal(t, int64(camera.YUV420(4, 4).FrameSize()), info.Size())

	_, err = os.Stat(camera.CharacteristicsPath(sessionDir, capture.Left))
	assert.NoError(t, err)
}
