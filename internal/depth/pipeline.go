// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package depth captures stereo environment depth maps. On every gated tick
// it copies both texture layers into pooled GPU buffers, reads them back
// asynchronously and persists each eye as a raw float32 file plus one
// descriptor row.
package depth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
	"github.com/ManuGH/xrcap/internal/gpu"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
	"github.com/ManuGH/xrcap/internal/rowlog"
)

const defaultDrainTimeout = 2 * time.Second

// Config tunes the pipeline.
type Config struct {
	// DrainTimeout bounds how long Stop waits for in-flight readbacks.
	DrainTimeout time.Duration
	// SkipLogInterval throttles per-tick skip warnings.
	SkipLogInterval time.Duration
}

// Pipeline is the depth capture stream. It implements capture.Stream.
type Pipeline struct {
	src  Source
	dev  gpu.Device
	perm Permission
	cfg  Config

	logger  zerolog.Logger
	skipLog *rate.Sometimes

	mu    sync.Mutex
	bound *capture.Session
	run   *run
	last  map[string]uint64
}

type run struct {
	sess  *capture.Session
	dirs  map[capture.Eye]string
	rows  map[capture.Eye]*rowlog.Logger
	clock timeline.Translator

	inflight sync.WaitGroup
	written  map[capture.Eye]*atomic.Uint64

	// stopMu guards stopped. Completions hold it shared across the file write
	// and the row enqueue so a frame is either fully persisted or dropped.
	stopMu  sync.RWMutex
	stopped bool
}

// New returns an idle pipeline. perm may be nil when no permission gating
// is required.
func New(src Source, dev gpu.Device, perm Permission, cfg Config) *Pipeline {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.SkipLogInterval <= 0 {
		cfg.SkipLogInterval = 5 * time.Second
	}
	return &Pipeline{
		src:     src,
		dev:     dev,
		perm:    perm,
		cfg:     cfg,
		logger:  log.WithComponent("depth"),
		skipLog: &rate.Sometimes{First: 1, Interval: cfg.SkipLogInterval},
	}
}

// Name implements capture.Stream.
func (p *Pipeline) Name() string { return "depth" }

// Active reports whether a session is running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Bind records the session the next Start will write into.
func (p *Pipeline) Bind(sess *capture.Session) error {
	if sess == nil || sess.Pool == nil {
		return fmt.Errorf("depth: bind: session without buffer pool")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = sess
	return nil
}

// Start creates the per-eye directories and descriptor files and enables
// depth sensing if the platform has it off.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		p.logger.Warn().Str("event", "depth.start_rejected").Msg("start while active ignored")
		return ErrAlreadyActive
	}
	sess := p.bound
	if sess == nil {
		return ErrNotBound
	}

	r := &run{
		sess:    sess,
		dirs:    make(map[capture.Eye]string, 2),
		rows:    make(map[capture.Eye]*rowlog.Logger, 2),
		written: make(map[capture.Eye]*atomic.Uint64, 2),
	}
	for _, eye := range capture.Eyes {
		dir := filepath.Join(sess.Dir, string(eye)+"_depth")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			r.closeRows()
			return fmt.Errorf("depth: create %s: %w", dir, err)
		}
		rl, err := rowlog.Open(filepath.Join(sess.Dir, string(eye)+"_depth_descriptors.csv"), Header)
		if err != nil {
			r.closeRows()
			return fmt.Errorf("depth: open descriptors: %w", err)
		}
		r.dirs[eye] = dir
		r.rows[eye] = rl
		r.written[eye] = new(atomic.Uint64)
	}

	if !p.src.Enabled() {
		if err := p.src.SetEnabled(true); err != nil {
			r.closeRows()
			return fmt.Errorf("depth: enable sensing: %w", err)
		}
		p.logger.Info().Str("event", "depth.sensing_enabled").Msg("environment depth enabled")
	}

	p.run = r
	logger := log.WithContext(ctx, p.logger)
	logger.Info().
		Str("event", "depth.started").
		Msg("depth capture started")
	return nil
}

// ResetTimeline anchors the depth driver clock to wall.
func (p *Pipeline) ResetTimeline(wall time.Time) {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return
	}
	b := r.clock.Reset(p.src.DeviceNow(), wall)
	p.logger.Debug().
		Str("event", "depth.timeline_reset").
		Int64(log.FieldDeviceNs, b.DeviceAtStart()).
		Int64(log.FieldUnixMs, wall.UnixMilli()).
		Msg("depth timeline anchored")
}

// Tick captures one frame when gated. Failures skip the tick.
func (p *Pipeline) Tick(_ time.Time, gated bool) {
	if !gated {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.run
	if r == nil {
		return
	}
	if p.perm != nil && !p.perm.Granted() {
		p.skip("permission_pending", nil)
		return
	}
	if _, ok := r.clock.Base(); !ok {
		p.skip("timeline_unset", nil)
		return
	}

	frame, err := p.src.AcquireFrame()
	if err != nil {
		reason := "acquire_error"
		if errors.Is(err, ErrFrameNotReady) {
			reason = "not_ready"
		}
		p.skip(reason, err)
		return
	}
	if err := validate(frame); err != nil {
		p.skip("invalid_frame", err)
		return
	}

	n := frame.Width * frame.Height
	pool := r.sess.Pool
	left, err := pool.Acquire(n)
	if err != nil {
		p.skip("buffer_error", err)
		return
	}
	right, err := pool.Acquire(n)
	if err != nil {
		_ = pool.Release(left)
		p.skip("buffer_error", err)
		return
	}

	if err := p.dev.DispatchSplit(frame.Texture, left, right, frame.Width, frame.Height); err != nil {
		_ = pool.Release(left)
		_ = pool.Release(right)
		p.skip("dispatch_error", err)
		return
	}

	bufs := [2]gpu.Buffer{left, right}
	for i, eye := range capture.Eyes {
		buf := bufs[i]
		desc := frame.Descriptors[i]
		r.inflight.Add(1)
		p.dev.ReadbackAsync(buf, func(data []float32, err error) {
			defer r.inflight.Done()
			p.complete(r, eye, buf, desc, n, data, err)
		})
	}
}

func (p *Pipeline) skip(reason string, err error) {
	metrics.IncDepthFrame("", reason)
	p.skipLog.Do(func() {
		ev := p.logger.Warn()
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Str("event", "depth.frame_skipped").
			Str(log.FieldReason, reason).
			Msg("depth frame skipped")
	})
}

func (p *Pipeline) complete(r *run, eye capture.Eye, buf gpu.Buffer, desc FrameDescriptor, n int, data []float32, err error) {
	defer func() {
		if rerr := r.sess.Pool.Release(buf); rerr != nil {
			p.logger.Error().Err(rerr).
				Str("event", "depth.release_failed").
				Str(log.FieldEye, string(eye)).
				Msg("readback buffer release failed")
		}
	}()

	if err != nil {
		p.fail(eye, "readback_error", err)
		return
	}
	if len(data) != n {
		p.fail(eye, "readback_error", fmt.Errorf("depth: readback returned %d elements, want %d", len(data), n))
		return
	}

	r.stopMu.RLock()
	defer r.stopMu.RUnlock()
	if r.stopped {
		p.fail(eye, "late", nil)
		return
	}

	base, ok := r.clock.Base()
	if !ok {
		p.fail(eye, "timeline_unset", nil)
		return
	}
	unixMs := base.TranslateMillis(desc.DeviceTime)

	path := filepath.Join(r.dirs[eye], strconv.FormatInt(unixMs, 10)+".raw")
	if err := renameio.WriteFile(path, encodeFloat32LE(data), 0o640); err != nil {
		p.fail(eye, "write_error", err)
		return
	}
	if err := r.rows[eye].EnqueueRow(desc.Row(unixMs)...); err != nil {
		p.fail(eye, "row_error", err)
		return
	}
	r.written[eye].Add(1)
	metrics.IncDepthFrame(string(eye), "written")
}

func (p *Pipeline) fail(eye capture.Eye, reason string, err error) {
	metrics.IncDepthFrame(string(eye), reason)
	p.skipLog.Do(func() {
		ev := p.logger.Warn()
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Str("event", "depth.frame_dropped").
			Str(log.FieldEye, string(eye)).
			Str(log.FieldReason, reason).
			Msg("depth frame dropped")
	})
}

func encodeFloat32LE(data []float32) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Stop waits for in-flight readbacks (bounded by DrainTimeout or ctx) and
// closes both descriptor files. Depth sensing stays enabled.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.bound = nil
	p.mu.Unlock()

	if r == nil {
		p.logger.Warn().Str("event", "depth.stop_rejected").Msg("stop while idle ignored")
		return ErrNotActive
	}

	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()

	var errs []error
	select {
	case <-drained:
	case <-timer.C:
		p.logger.Warn().
			Str("event", "depth.drain_timeout").
			Dur("timeout", p.cfg.DrainTimeout).
			Msg("readbacks still pending at stop, late frames will be dropped")
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("depth: drain readbacks: %w", ctx.Err()))
	}

	r.stopMu.Lock()
	r.stopped = true
	r.stopMu.Unlock()

	errs = append(errs, r.closeRows())
	r.clock.Clear()

	p.mu.Lock()
	p.last = r.counts()
	p.mu.Unlock()

	logger := log.WithContext(ctx, p.logger)
	logger.Info().
		Str("event", "depth.stopped").
		Uint64("left_frames", r.written[capture.Left].Load()).
		Uint64("right_frames", r.written[capture.Right].Load()).
		Msg("depth capture stopped")
	return errors.Join(errs...)
}

// Counts reports frames written per eye during the last or current session.
func (p *Pipeline) Counts() map[string]uint64 {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return p.lastCounts()
	}
	return r.counts()
}

func (p *Pipeline) lastCounts() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return map[string]uint64{}
	}
	return p.last
}

func (r *run) counts() map[string]uint64 {
	out := make(map[string]uint64, len(r.written))
	for eye, c := range r.written {
		out[string(eye)+"_depth"] = c.Load()
	}
	return out
}

func (r *run) closeRows() error {
	var errs []error
	for _, eye := range capture.Eyes {
		if rl := r.rows[eye]; rl != nil {
			if err := rl.Close(); err != nil && !errors.Is(err, rowlog.ErrClosed) {
				errs = append(errs, fmt.Errorf("depth: close %s descriptors: %w", eye, err))
			}
		}
	}
	return errors.Join(errs...)
}
