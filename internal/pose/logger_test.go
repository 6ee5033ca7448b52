// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pose

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/rowlog"
)

type scriptedTracker struct {
	device  int64
	samples []Sample
	errs    []error
	calls   int
}

func (s *scriptedTracker) DeviceNow() int64 { return s.device }

func (s *scriptedTracker) GetPose(Node, Mode) (Sample, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Sample{}, s.errs[i]
	}
	if i >= len(s.samples) {
		return s.samples[len(s.samples)-1], nil
	}
	return s.samples[i], nil
}

func identitySample(ts int64, x float32) Sample {
	return Sample{DeviceTime: ts, Position: [3]float32{x, 0, 0}, Rotation: [4]float32{0, 0, 0, 1}}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func runLogger(t *testing.T, l *Logger, wall time.Time, gates []bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, l.Bind(&capture.Session{Dir: dir}))
	require.NoError(t, l.Start(context.Background()))
	l.ResetTimeline(wall)
	for _, g := range gates {
		l.Tick(wall, g)
	}
	require.NoError(t, l.Stop(context.Background()))
	return filepath.Join(dir, l.Name()+".csv")
}

func TestLogger_DropsNonIncreasingTimestamps(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := &scriptedTracker{
		device: 5_000_000_000,
		samples: []Sample{
			identitySample(5_100_000_000, 1),
			identitySample(5_100_000_000, 2),
			identitySample(5_050_000_000, 3),
			identitySample(5_200_000_000, 4),
		},
	}
	l := New(Config{Node: Head}, tr)
	wall := time.Unix(1_700_000_000, 0)

	path := runLogger(t, l, wall, []bool{true, true, true, true})
	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"1700000000100", "5.100000000", "1", "0", "0", "0", "0", "0", "1"}, rows[1])
	assert.Equal(t, "1700000000200", rows[2][0])
	assert.Equal(t, "4", rows[2][2])
	assert.Equal(t, map[string]uint64{"head_poses": 2}, l.Counts())
}

func TestLogger_GatedNodeIgnoresUngatedTicks(t *testing.T) {
	tr := &scriptedTracker{samples: []Sample{
		identitySample(1, 0), identitySample(2, 0), identitySample(3, 0),
	}}
	l := New(Config{Node: LeftController, Gated: true}, tr)
	path := runLogger(t, l, time.Unix(0, 0), []bool{false, true, false, true})

	assert.Len(t, readRows(t, path), 3)
	assert.Equal(t, 2, tr.calls)
}

func TestLogger_UngatedNodeSamplesEveryTick(t *testing.T) {
	tr := &scriptedTracker{samples: []Sample{
		identitySample(1, 0), identitySample(2, 0), identitySample(3, 0),
	}}
	l := New(Config{Node: RightController}, tr)
	path := runLogger(t, l, time.Unix(0, 0), []bool{false, false, true})

	assert.Len(t, readRows(t, path), 4)
}

func TestLogger_TrackerErrorsSkipSample(t *testing.T) {
	tr := &scriptedTracker{
		samples: []Sample{identitySample(1, 0), identitySample(2, 0)},
		errs:    []error{ErrNotTracking},
	}
	l := New(Config{Node: Head}, tr)
	path := runLogger(t, l, time.Unix(0, 0), []bool{true, true})
	assert.Len(t, readRows(t, path), 2)
}

func TestLogger_RejectedRowKeepsWatermark(t *testing.T) {
	tr := &scriptedTracker{samples: []Sample{
		identitySample(1, 0), identitySample(2, 0), identitySample(2, 0),
	}}
	l := New(Config{Node: Head}, tr)
	dir := t.TempDir()
	require.NoError(t, l.Bind(&capture.Session{Dir: dir}))
	require.NoError(t, l.Start(context.Background()))
	l.ResetTimeline(time.Unix(0, 0))

	l.Tick(time.Unix(0, 0), true)
	require.NoError(t, l.rows.Close())

	// Enqueue fails on the closed file, so the sample at 2 is not consumed.
	l.Tick(time.Unix(0, 0), true)
	assert.Equal(t, int64(1), l.lastTs)

	retry := filepath.Join(dir, "retry.csv")
	rows, err := rowlog.Open(retry, Header)
	require.NoError(t, err)
	l.rows = rows
	l.Tick(time.Unix(0, 0), true)
	require.NoError(t, l.Stop(context.Background()))

	assert.Len(t, readRows(t, retry), 2)
	assert.Equal(t, uint64(2), l.written.Load())
}

func TestLogger_Reentrancy(t *testing.T) {
	l := New(Config{Node: Head}, &scriptedTracker{})
	assert.ErrorIs(t, l.Start(context.Background()), ErrNotBound)
	assert.ErrorIs(t, l.Stop(context.Background()), ErrNotActive)

	require.NoError(t, l.Bind(&capture.Session{Dir: t.TempDir()}))
	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyActive)
	require.NoError(t, l.Stop(context.Background()))
}

func TestTransform_RotatesThenTranslates(t *testing.T) {
	half := math.Sqrt(0.5)
	tf, err := NewTransform([3]float64{0, 0, 1}, [4]float64{0, 0, half, half})
	require.NoError(t, err)

	out := tf.Apply(Sample{Position: [3]float32{1, 0, 0}, Rotation: [4]float32{0, 0, 0, 1}})
	assert.InDelta(t, 0, out.Position[0], 1e-6)
	assert.InDelta(t, 1, out.Position[1], 1e-6)
	assert.InDelta(t, 1, out.Position[2], 1e-6)

	assert.InDelta(t, 0, out.Rotation[0], 1e-6)
	assert.InDelta(t, 0, out.Rotation[1], 1e-6)
	assert.InDelta(t, half, out.Rotation[2], 1e-6)
	assert.InDelta(t, half, out.Rotation[3], 1e-6)
}

func TestTransform_NormalizesAndRejectsZero(t *testing.T) {
	tf, err := NewTransform([3]float64{}, [4]float64{0, 0, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, Identity, tf)

	_, err = NewTransform([3]float64{}, [4]float64{})
	assert.ErrorIs(t, err, ErrInvalidRotation)

	s := identitySample(7, 3)
	assert.Equal(t, s, Identity.Apply(s))
}
