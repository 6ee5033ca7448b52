// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rowlog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xrcap/internal/log"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestLogger_RoundTripPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "left_depth_descriptors.csv")
	l, err := Open(path, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "left_depth_descriptors", l.Name())

	for i := 0; i < 500; i++ {
		require.NoError(t, l.EnqueueRow(strconv.Itoa(i), "x"))
	}
	require.NoError(t, l.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 501)
	assert.Equal(t, []string{"a", "b"}, rows[0])
	for i := 0; i < 500; i++ {
		assert.Equal(t, strconv.Itoa(i), rows[i+1][0])
	}

	st := l.Stats()
	assert.Equal(t, uint64(500), st.Enqueued)
	assert.Equal(t, uint64(500), st.Written)
	assert.Zero(t, st.Pending)
}

func TestLogger_HeaderWrittenBeforeAnyRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head_poses.csv")
	l, err := Open(path, []string{"unix_time", "pos_x"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "unix_time,pos_x\n", string(data))

	require.NoError(t, l.Close())
}

func TestLogger_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "rows.csv")
	l, err := Open(path, []string{"v"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLogger_TruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale\nstale\nstale\n"), 0o600))

	l, err := Open(path, []string{"v"})
	require.NoError(t, err)
	require.NoError(t, l.EnqueueRow("1"))
	require.NoError(t, l.Close())

	assert.Equal(t, [][]string{{"v"}, {"1"}}, readAll(t, path))
}

func TestLogger_RejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l, err := Open(filepath.Join(t.TempDir(), "rows.csv"), []string{"v"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.EnqueueRow("late"), ErrClosed)
	assert.ErrorIs(t, l.Close(), ErrClosed)
}

func TestLogger_RejectsWrongArity(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "rows.csv"), []string{"a", "b", "c"})
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	assert.ErrorIs(t, l.EnqueueRow("only", "two"), ErrColumnCount)
	assert.Zero(t, l.Stats().Enqueued)
}

func TestLogger_EmptyHeaderRejected(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "rows.csv"), nil)
	require.Error(t, err)
}

func TestLogger_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "rows.csv")
	l, err := Open(path, []string{"producer", "seq"})
	require.NoError(t, err)

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = l.EnqueueRow(strconv.Itoa(p), strconv.Itoa(i))
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	rows := readAll(t, path)
	require.Len(t, rows, producers*perProducer+1)

	next := make(map[string]int)
	for _, row := range rows[1:] {
		seq, err := strconv.Atoi(row[1])
		require.NoError(t, err)
		assert.Equal(t, next[row[0]], seq, "producer %s out of order", row[0])
		next[row[0]] = seq + 1
	}
}

func TestLogger_QuotesFieldsWithCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	l, err := Open(path, []string{"note"})
	require.NoError(t, err)
	require.NoError(t, l.EnqueueRow("a,b"))
	require.NoError(t, l.Close())

	assert.Equal(t, [][]string{{"note"}, {"a,b"}}, readAll(t, path))
}

func TestLogger_WriteFailureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	path := filepath.Join(t.TempDir(), "head_poses.csv")
	l, err := Open(path, []string{"a"})
	require.NoError(t, err)

	// Pull the file out from under the drain goroutine.
	require.NoError(t, l.file.Close())
	require.NoError(t, l.EnqueueRow("1"))
	require.NoError(t, l.EnqueueRow("2"))
	require.Error(t, l.Close())

	var failures int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry[log.FieldEvent] == "rowlog.write_failed" {
			failures++
			assert.Equal(t, path, entry[log.FieldPath])
		}
	}
	assert.Equal(t, 1, failures)
}
