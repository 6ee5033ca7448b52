// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rowlog writes CSV rows from real-time producers without ever
// blocking them on file-system I/O. Each Logger owns one file, an unbounded
// FIFO queue and exactly one background drain goroutine.
package rowlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
)

var (
	// ErrClosed is returned when enqueuing on, or closing, a closed logger.
	ErrClosed = errors.New("rowlog: logger closed")
	// ErrColumnCount is returned when a row's arity does not match the header.
	ErrColumnCount = errors.New("rowlog: column count does not match header")
)

// Stats is a point-in-time view of a logger's counters.
type Stats struct {
	Enqueued uint64
	Written  uint64
	Pending  int
}

// Logger is an asynchronous CSV writer.
type Logger struct {
	name   string
	path   string
	header []string

	file   *os.File
	logger zerolog.Logger

	mu     sync.Mutex
	queue  [][]string
	closed bool
	err    error

	wake chan struct{}
	done chan struct{}

	enqueued atomic.Uint64
	written  atomic.Uint64
}

// Open creates the parent directory if needed, creates or truncates path,
// writes the header line synchronously and starts the drain goroutine.
func Open(path string, header []string) (*Logger, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("rowlog: empty header for %s", path)
	}
	dir := filepath.Dir(path)
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("rowlog: create directory %s: %w", dir, err)
			}
		}
	}

	// #nosec G304 -- path is composed by the session controller under the recordings root
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rowlog: create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rowlog: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rowlog: flush header: %w", err)
	}

	l := &Logger{
		name:   streamName(path),
		path:   path,
		header: append([]string(nil), header...),
		file:   f,
		logger: log.WithComponent("rowlog").With().Str(log.FieldPath, path).Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.drain(cw)
	return l, nil
}

func streamName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Name returns the stream label used in metrics (file name without extension).
func (l *Logger) Name() string { return l.name }

// Path returns the output file path.
func (l *Logger) Path() string { return l.path }

// Header returns a copy of the column names.
func (l *Logger) Header() []string { return append([]string(nil), l.header...) }

// EnqueueRow appends a row to the queue. It never waits on I/O.
func (l *Logger) EnqueueRow(values ...string) error {
	if len(values) != len(l.header) {
		metrics.IncRowLog(l.name, "rejected")
		return fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(values), len(l.header))
	}
	row := append([]string(nil), values...)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		metrics.IncRowLog(l.name, "rejected")
		return ErrClosed
	}
	l.queue = append(l.queue, row)
	pending := len(l.queue)
	l.mu.Unlock()

	l.enqueued.Add(1)
	metrics.IncRowLog(l.name, "enqueued")
	metrics.SetRowLogPending(l.name, pending)

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting rows and blocks until every queued row has been
// written and flushed, then closes the file. It returns the first write error.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns the logger counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Enqueued: l.enqueued.Load(),
		Written:  l.written.Load(),
		Pending:  pending,
	}
}

func (l *Logger) drain(cw *csv.Writer) {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		if len(batch) > 0 {
			l.writeBatch(cw, batch)
		}

		// Once closed is observed no further rows can be queued, so the batch
		// just taken was the tail.
		if closed {
			break
		}
	}

	if err := l.file.Sync(); err != nil {
		l.recordErr(fmt.Errorf("rowlog: sync %s: %w", l.path, err))
	}
	if err := l.file.Close(); err != nil {
		l.recordErr(fmt.Errorf("rowlog: close %s: %w", l.path, err))
	}
	metrics.SetRowLogPending(l.name, 0)
}

func (l *Logger) writeBatch(cw *csv.Writer, batch [][]string) {
	for _, row := range batch {
		if err := cw.Write(row); err != nil {
			l.recordErr(fmt.Errorf("rowlog: write %s: %w", l.path, err))
			metrics.IncRowLog(l.name, "write_error")
			continue
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		l.recordErr(fmt.Errorf("rowlog: flush %s: %w", l.path, err))
		metrics.IncRowLog(l.name, "write_error")
		return
	}

	l.written.Add(uint64(len(batch)))
	for range batch {
		metrics.IncRowLog(l.name, "written")
	}

	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	metrics.SetRowLogPending(l.name, pending)
}

// recordErr keeps the first error and logs it once.
func (l *Logger) recordErr(err error) {
	l.mu.Lock()
	first := l.err == nil
	if first {
		l.err = err
	}
	l.mu.Unlock()
	if first {
		l.logger.Error().Err(err).
			Str("event", "rowlog.write_failed").
			Msg("row log write failed, later rows may be lost")
	}
}
