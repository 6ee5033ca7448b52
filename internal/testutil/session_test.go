// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/xrcap/internal/session"
)

func TestRecordSession(t *testing.T) {
	sum := RecordSession(t, t.TempDir(), "fixture", time.Second, 5)

	assert.Equal(t, "fixture", sum.Name)
	assert.Equal(t, session.StatusComplete, sum.Status)
	assert.InDelta(t, 5, float64(sum.Counts["head_poses"]), 1)
	assert.Equal(t, uint64(100), sum.Counts["left_controller_poses"])

	m, err := session.ReadManifest(sum.Dir)
	assert.NoError(t, err)
	assert.Equal(t, sum.ID, m.SessionID)
}
