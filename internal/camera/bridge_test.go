// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
)

type fakeNative struct {
	imageDir   string
	formatPath string
	base       timeline.Base
	captures   int
	drained    bool
	drainErr   error
	device     int64
}

func (f *fakeNative) UpdateDirectoryPaths(imageDir, formatPath string) error {
	f.imageDir, f.formatPath = imageDir, formatPath
	return nil
}
func (f *fakeNative) ResetBaseTime(b timeline.Base) { f.base = b }
func (f *fakeNative) CaptureNextFrame() { f.captures++ }
func (f *fakeNative) DeviceNow() int64 { return f.device }
func (f *fakeNative) Drain(context.Context) error {
	f.drained = true
	return f.drainErr
}

func TestBridge_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	native := &fakeNative{device: 42_000}
	b := New(capture.Left, native)
	assert.Equal(t, "left_camera", b.Name())

	require.NoError(t, b.Bind(&capture.Session{Dir: dir}))
	require.NoError(t, b.UpdatePaths())
	assert.Equal(t, ImageDir(dir, capture.Left), native.imageDir)
	assert.Equal(t, FormatInfoPath(dir, capture.Left), native.formatPath)
	info, err := os.Stat(native.imageDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, b.Start(context.Background()))
	wall := time.Unix(1_700_000_000, 0)
	b.ResetTimeline(wall)
	require.True(t, native.base.Valid())
	assert.Equal(t, int64(42_000), native.base.DeviceAtStart())
	assert.Equal(t, wall.UnixMilli(), native.base.TranslateMillis(42_000))

	b.Tick(wall, false)
	b.Tick(wall, true)
	b.Tick(wall, true)
	assert.Equal(t, 2, native.captures)

	require.NoError(t, b.Stop(context.Background()))
	assert.True(t, native.drained)
	assert.Equal(t, map[string]uint64{"left_camera": 2}, b.Counts())

	b.Tick(wall, true)
	assert.Equal(t, 2, native.captures, "no captures after stop")
}

func TestBridge_Reentrancy(t *testing.T) {
	b := New(capture.Right, &fakeNative{})
	assert.ErrorIs(t, b.Start(context.Background()), ErrNotBound)
	assert.ErrorIs(t, b.UpdatePaths(), ErrNotBound)
	assert.ErrorIs(t, b.Stop(context.Background()), ErrNotActive)

	require.NoError(t, b.Bind(&capture.Session{Dir: t.TempDir()}))
	require.NoError(t, b.Start(context.Background()))
	assert.ErrorIs(t, b.Start(context.Background()), ErrAlreadyActive)
}

func TestBridge_DrainErrorSurfaces(t *testing.T) {
	native := &fakeNative{drainErr: errors.New("encoder stuck")}
	b := New(capture.Left, native)
	require.NoError(t, b.Bind(&capture.Session{Dir: t.TempDir()}))
	require.NoError(t, b.Start(context.Background()))

	err := b.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, native.drainErr)
}
