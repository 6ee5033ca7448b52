// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func summaryAt(id string, start time.Time) session.Summary {
	return session.Summary{
		ID:        id,
		Name:      start.UTC().Format(session.NameLayout),
		Dir:       "/data/recordings/" + id,
		Status:    session.StatusComplete,
		StartedAt: start,
		StoppedAt: start.Add(2 * time.Second),
		Counts:    map[string]uint64{"left_depth": 6, "right_depth": 6},
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := summaryAt("a", time.Date(2025, 1, 1, 12, 0, 0, 123_000_000, time.UTC))
	require.NoError(t, s.Record(ctx, want))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sum := summaryAt("a", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, s.Record(ctx, sum))

	sum.Status = session.StatusFailed
	sum.Errors = []string{"session: stop depth: disk full"}
	require.NoError(t, s.Record(ctx, sum))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Equal(t, sum.Errors, got.Errors)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.Record(ctx, summaryAt(id, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].ID)
	assert.Equal(t, "first", all[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[1].ID)

	require.NoError(t, s.Ping(ctx))
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), summaryAt("keep", time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(context.Background(), "keep")
	require.NoError(t, err)
}
