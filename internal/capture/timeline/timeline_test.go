// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timeline

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wall0 = time.Date(2026, 2, 22, 12, 34, 56, 0, time.UTC)

func TestBase_TranslateUsesDelta(t *testing.T) {
	b := NewBase(5_000_000_000, wall0)

	assert.Equal(t, wall0, b.Translate(5_000_000_000))
	assert.Equal(t, wall0.Add(1500*time.Millisecond), b.Translate(6_500_000_000))
	assert.Equal(t, wall0.Add(-time.Second), b.Translate(4_000_000_000))
	assert.Equal(t, wall0.UnixMilli()+1500, b.TranslateMillis(6_500_000_000))
}

func TestBase_NanosecondPrecisionAfterLongUptime(t *testing.T) {
	// 30 days of device uptime: float64 seconds would no longer resolve 1 ns.
	const uptime = int64(30 * 24 * time.Hour)
	b := NewBase(uptime, wall0)

	got := b.Translate(uptime + 1)
	assert.Equal(t, wall0.UnixNano()+1, got.UnixNano())
}

func TestBase_TranslateIsMonotonic(t *testing.T) {
	b := NewBase(123_456_789, wall0)
	rng := rand.New(rand.NewSource(7))

	prev := int64(123_456_789)
	prevWall := b.Translate(prev)
	for i := 0; i < 10_000; i++ {
		d := prev + rng.Int63n(50_000_000)
		w := b.Translate(d)
		if d == prev {
			assert.True(t, w.Equal(prevWall))
		} else {
			assert.True(t, w.After(prevWall), "translate must be strictly increasing for d1 < d2")
		}
		prev, prevWall = d, w
	}
}

func TestTranslator_RequiresReset(t *testing.T) {
	var tr Translator
	_, ok := tr.Translate(42)
	assert.False(t, ok)

	tr.Reset(0, wall0)
	got, ok := tr.Translate(int64(time.Second))
	require.True(t, ok)
	assert.Equal(t, wall0.Add(time.Second), got)

	tr.Clear()
	_, ok = tr.Translate(42)
	assert.False(t, ok)
}

func TestTranslator_StreamsAgreeAtSharedInstant(t *testing.T) {
	// Two streams with unrelated device epochs anchored at the same wall
	// instant produce the same wall time for simultaneous samples.
	var depth, camera Translator
	depth.Reset(9_000_000_000, wall0)
	camera.Reset(77_000_000, wall0)

	dw, _ := depth.Translate(9_000_000_000 + 250_000_000)
	cw, _ := camera.Translate(77_000_000 + 250_000_000)
	assert.Equal(t, dw, cw)
}

func TestFormatDeviceSeconds(t *testing.T) {
	cases := map[int64]string{
		0:              "0.000000000",
		1_000_000:      "0.001000000",
		12_000_345_678: "12.000345678",
		-1_500_000_000: "-1.500000000",
		math.MaxInt64:  "9223372036.854775807",
		math.MinInt64:  "-9223372036.854775808",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDeviceSeconds(in))
	}
}

func TestTranslateMillisFloorsNegative(t *testing.T) {
	b := NewBase(0, time.Unix(0, 0))
	assert.Equal(t, int64(-1), b.TranslateMillis(-1))
	assert.Equal(t, int64(0), b.TranslateMillis(999_999))
}
