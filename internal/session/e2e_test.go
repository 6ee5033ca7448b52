// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/gate"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/depth"
	"github.com/ManuGH/xrcap/internal/pose"
	"github.com/ManuGH/xrcap/internal/sim"
)

func countRows(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return len(rows) - 1
}

func countFiles(t *testing.T, dir, ext string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	require.NoError(t, err)
	return len(matches)
}

// TestRecording_ThreeHertzForTwoSeconds drives the real streams with
// simulated devices at 100 Hz ticks for two seconds of fake time.
func TestRecording_ThreeHertzForTwoSeconds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := clock.NewFake(t0)
	g := sim.NewGPU()

	depthSrc := sim.NewDepthSource(sim.NewDeviceClock(fake, sim.DepthEpoch), 16, 12)
	camClock := sim.NewDeviceClock(fake, sim.CameraEpoch)
	tracker := sim.NewTracker(sim.NewDeviceClock(fake, sim.PoseEpoch))

	streams := []capture.Stream{
		depth.New(depthSrc, g, nil, depth.Config{DrainTimeout: 5 * time.Second}),
		camera.New(capture.Left, sim.NewCamera(capture.Left, camClock, 32, 24)),
		camera.New(capture.Right, sim.NewCamera(capture.Right, camClock, 32, 24)),
		pose.New(pose.Config{Node: pose.Head, Gated: true}, tracker),
		pose.New(pose.Config{Node: pose.LeftController}, tracker),
	}

	c, err := New(Config{RecordingsDir: t.TempDir(), Device: "sim", PoolMaxSize: 4}, Deps{
		Gate:      gate.New(3),
		Allocator: g,
		Streams:   streams,
		Clock:     fake,
	})
	require.NoError(t, err)

	type observed struct {
		state      State
		depthRows  map[capture.Eye]int
		depthRaw   map[capture.Eye]int
		cameraYUV  map[capture.Eye]int
		headRows   int
		controller int
	}
	var seen *observed
	c.OnStopped(func(_ context.Context, s Summary) {
		o := &observed{
			state:     c.State(),
			depthRows: map[capture.Eye]int{},
			depthRaw:  map[capture.Eye]int{},
			cameraYUV: map[capture.Eye]int{},
		}
		for _, eye := range capture.Eyes {
			o.depthRows[eye] = countRows(t, filepath.Join(s.Dir, string(eye)+"_depth_descriptors.csv"))
			o.depthRaw[eye] = countFiles(t, filepath.Join(s.Dir, string(eye)+"_depth"), ".raw")
			o.cameraYUV[eye] = countFiles(t, camera.ImageDir(s.Dir, eye), ".yuv")
		}
		o.headRows = countRows(t, filepath.Join(s.Dir, "head_poses.csv"))
		o.controller = countRows(t, filepath.Join(s.Dir, "left_controller_poses.csv"))
		seen = o
	})

	_, err = c.Start(context.Background(), "")
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		c.Tick(fake.Now())
		fake.Advance(10 * time.Millisecond)
	}

	summary, err := c.Stop(context.Background())
	require.NoError(t, err)
	g.Wait()

	require.NotNil(t, seen, "listener ran")
	assert.Equal(t, StateIdle, seen.state)
	for _, eye := range capture.Eyes {
		assert.Equal(t, 6, seen.depthRows[eye], "%s depth rows", eye)
		assert.Equal(t, 6, seen.depthRaw[eye], "%s depth files", eye)
		assert.Equal(t, 6, seen.cameraYUV[eye], "%s camera frames", eye)
	}
	assert.Equal(t, 6, seen.headRows)
	assert.Equal(t, 200, seen.controller, "ungated node samples every tick")

	assert.Equal(t, uint64(6), summary.Counts["left_depth"])
	assert.Equal(t, uint64(6), summary.Counts["right_camera"])
	assert.Equal(t, uint64(6), summary.Counts["head_poses"])

	for _, eye := range capture.Eyes {
		_, err := os.Stat(camera.CharacteristicsPath(summary.Dir, eye))
		assert.NoError(t, err)
		format, err := camera.ReadImageFormat(camera.FormatInfoPath(summary.Dir, eye))
		require.NoError(t, err)
		assert.Equal(t, 32*24*3/2, format.FrameSize())
	}

	assert.Zero(t, g.Live(), "pool disposed and all loans returned")
}
