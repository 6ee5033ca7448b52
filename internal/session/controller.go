// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session owns the recording lifecycle: it allocates the session
// directory and buffer pool, starts every capture stream against one shared
// wall-clock instant, arms the capture gate and tears everything down again
// on Stop. It does no capture work itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/xrcap/internal/bufferpool"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/gate"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/fsm"
	"github.com/ManuGH/xrcap/internal/gpu"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
	"github.com/ManuGH/xrcap/internal/telemetry"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

var allStates = []string{string(StateIdle), string(StateRecording), string(StateFinalizing)}

type event string

const (
	evStarted   event = "started"
	evStop      event = "stop"
	evFinalized event = "finalized"
)

var (
	// ErrNotIdle is returned by Start while a session is active.
	ErrNotIdle = errors.New("session: controller not idle")
	// ErrNotRecording is returned by Stop when no session is active.
	ErrNotRecording = errors.New("session: controller not recording")
)

// Config holds controller settings.
type Config struct {
	RecordingsDir string
	// Device is recorded in the manifest.
	Device      string
	PoolMaxSize int
}

// Journal persists finished sessions.
type Journal interface {
	Record(ctx context.Context, s Summary) error
}

// Listener is notified after a session has fully stopped. The controller is
// idle when it runs, so a listener may start the next session.
type Listener func(ctx context.Context, s Summary)

// Deps are the collaborators of a Controller.
type Deps struct {
	Gate      *gate.Gate
	Allocator gpu.Allocator
	// Streams are started in order and stopped in reverse order.
	Streams []capture.Stream
	Journal Journal
	Clock   clock.Clock
}

// Summary describes a stopped session.
type Summary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Dir       string            `json:"dir"`
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	StoppedAt time.Time         `json:"stopped_at"`
	Counts    map[string]uint64 `json:"counts"`
	Errors    []string          `json:"errors,omitempty"`
}

// Duration is the wall-clock length of the session.
func (s Summary) Duration() time.Duration { return s.StoppedAt.Sub(s.StartedAt) }

// Active describes the running session.
type Active struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

// Controller is the recording session controller.
type Controller struct {
	cfg     Config
	gate    *gate.Gate
	alloc   gpu.Allocator
	streams []capture.Stream
	journal Journal
	clock   clock.Clock
	tracer  trace.Tracer
	logger  zerolog.Logger

	machine *fsm.Machine[State, event]

	// opMu serializes Start, Stop and Shutdown. Tick never takes it.
	opMu       sync.Mutex
	recording  atomic.Bool
	current    atomic.Pointer[capture.Session]
	stateSince atomic.Int64

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New builds an idle controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Gate == nil {
		return nil, errors.New("session: gate is required")
	}
	if deps.Allocator == nil {
		return nil, errors.New("session: buffer allocator is required")
	}
	if cfg.RecordingsDir == "" {
		return nil, errors.New("session: recordings directory is required")
	}
	if cfg.PoolMaxSize <= 0 {
		cfg.PoolMaxSize = 8
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	m, err := fsm.New(StateIdle, []fsm.Transition[State, event]{
		{From: StateIdle, Event: evStarted, To: StateRecording},
		{From: StateRecording, Event: evStop, To: StateFinalizing},
		{From: StateFinalizing, Event: evFinalized, To: StateIdle},
	})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		gate:    deps.Gate,
		alloc:   deps.Allocator,
		streams: deps.Streams,
		journal: deps.Journal,
		clock:   deps.Clock,
		tracer:  telemetry.Tracer("xrcap/session"),
		logger:  log.WithComponent("session"),
		machine: m,
	}
	c.stateSince.Store(c.clock.Now().UnixNano())
	m.Observe(func(from, to State, ev event) {
		c.stateSince.Store(c.clock.Now().UnixNano())
		metrics.SetSessionState(string(to), allStates)
		c.logger.Debug().
			Str("event", "session.transition").
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("controller state changed")
	})
	metrics.SetSessionState(string(StateIdle), allStates)
	return c, nil
}

// OnStopped registers a listener for completed sessions.
func (c *Controller) OnStopped(fn Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the lifecycle state.
func (c *Controller) State() State { return c.machine.State() }

// StateSince returns the lifecycle state and when it was entered.
func (c *Controller) StateSince() (State, time.Time) {
	return c.machine.State(), time.Unix(0, c.stateSince.Load())
}

// Current returns the running session, if any.
func (c *Controller) Current() (Active, bool) {
	sess := c.current.Load()
	if sess == nil {
		return Active{}, false
	}
	return Active{ID: sess.ID, Name: sess.Name, Dir: sess.Dir, StartedAt: sess.StartedAt}, true
}

// CaptureRate returns the gate interval as a rate in Hz (0 for unlimited).
func (c *Controller) CaptureRate() float64 {
	iv := c.gate.Interval()
	if iv <= 0 {
		return 0
	}
	return float64(time.Second) / float64(iv)
}

// ApplyCaptureRate changes the gate rate. A running session keeps its phase.
func (c *Controller) ApplyCaptureRate(rateHz float64) {
	c.gate.SetRate(rateHz)
	c.logger.Info().
		Str("event", "session.rate_applied").
		Float64(log.FieldRateHz, rateHz).
		Msg("capture rate updated")
}

// Tick runs once per render tick on the tick goroutine.
func (c *Controller) Tick(now time.Time) {
	gated := c.gate.Evaluate(now)
	if !c.recording.Load() {
		return
	}
	for _, s := range c.streams {
		s.Tick(now, gated)
	}
}

// Start begins a session. An empty name derives one from the current UTC
// time. It returns the session name.
func (c *Controller) Start(ctx context.Context, name string) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st := c.machine.State(); st != StateIdle {
		c.logger.Warn().
			Str("event", "session.start_rejected").
			Str("state", string(st)).
			Msg("start requested while not idle")
		metrics.IncSession("rejected")
		return "", ErrNotIdle
	}

	ctx, span := c.tracer.Start(ctx, "session.start")
	defer span.End()

	startedAt := c.clock.Now()
	sessName, dir, err := allocateDir(c.cfg.RecordingsDir, name, startedAt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.IncSession("start_failed")
		return "", err
	}

	sess := &capture.Session{
		ID:        uuid.NewString(),
		Name:      sessName,
		Dir:       dir,
		StartedAt: startedAt,
		Pool:      bufferpool.New(c.alloc, c.cfg.PoolMaxSize),
	}
	span.SetAttributes(telemetry.SessionAttributes(sess.ID, sess.Name, c.CaptureRate())...)
	ctx = log.ContextWithSession(ctx, sessName)
	logger := log.WithContext(ctx, c.logger).With().Str(log.FieldSessionID, sess.ID).Logger()

	if err := c.startStreams(ctx, sess); err != nil {
		sess.Pool.Dispose()
		_ = os.RemoveAll(dir)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes("stream_start")...)
		metrics.IncSession("start_failed")
		logger.Error().Err(err).Str("event", "session.start_failed").Msg("session start rolled back")
		return "", err
	}

	if err := WriteManifest(dir, c.manifest(sess, StatusRecording, nil, nil)); err != nil {
		logger.Warn().Err(err).Str("event", "session.manifest_failed").Msg("initial manifest not written")
	}

	c.current.Store(sess)
	c.recording.Store(true)
	c.gate.StartCapture()
	if _, err := c.machine.Fire(ctx, evStarted); err != nil {
		return "", err
	}

	metrics.IncSession("started")
	logger.Info().
		Str("event", "session.start").
		Str(log.FieldPath, dir).
		Float64(log.FieldRateHz, c.CaptureRate()).
		Msg("recording started")
	return sessName, nil
}

// startStreams runs the start sequence: bind, native path updates, start,
// then one shared wall instant for every timeline. Started streams are
// stopped again on failure.
func (c *Controller) startStreams(ctx context.Context, sess *capture.Session) error {
	for _, s := range c.streams {
		if err := s.Bind(sess); err != nil {
			return fmt.Errorf("session: bind %s: %w", s.Name(), err)
		}
	}
	for _, s := range c.streams {
		if pu, ok := s.(capture.PathUpdater); ok {
			if err := pu.UpdatePaths(); err != nil {
				return fmt.Errorf("session: update paths %s: %w", s.Name(), err)
			}
		}
	}

	started := make([]capture.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		if err := s.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			return fmt.Errorf("session: start %s: %w", s.Name(), err)
		}
		started = append(started, s)
	}

	wall := c.clock.Now()
	for _, s := range c.streams {
		s.ResetTimeline(wall)
	}
	return nil
}

// Stop ends the session. Every stream has flushed and closed its files and
// the controller is idle before listeners run.
func (c *Controller) Stop(ctx context.Context) (Summary, error) {
	c.opMu.Lock()

	if st := c.machine.State(); st != StateRecording {
		c.opMu.Unlock()
		c.logger.Warn().
			Str("event", "session.stop_rejected").
			Str("state", string(st)).
			Msg("stop requested while not recording")
		return Summary{}, ErrNotRecording
	}

	ctx, span := c.tracer.Start(ctx, "session.stop")
	defer span.End()

	c.gate.StopCapture()
	c.recording.Store(false)
	if _, err := c.machine.Fire(ctx, evStop); err != nil {
		c.opMu.Unlock()
		return Summary{}, err
	}

	sess := c.current.Load()
	ctx = log.ContextWithSession(ctx, sess.Name)
	var errs []error
	for i := len(c.streams) - 1; i >= 0; i-- {
		s := c.streams[i]
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session: stop %s: %w", s.Name(), err))
		}
	}
	sess.Pool.Dispose()

	summary := Summary{
		ID:        sess.ID,
		Name:      sess.Name,
		Dir:       sess.Dir,
		Status:    StatusComplete,
		StartedAt: sess.StartedAt,
		StoppedAt: c.clock.Now(),
		Counts:    c.counts(),
	}
	for _, err := range errs {
		summary.Errors = append(summary.Errors, err.Error())
	}
	if len(errs) > 0 {
		summary.Status = StatusFailed
		span.SetStatus(codes.Error, "stream stop failed")
		span.SetAttributes(telemetry.ErrorAttributes("stream_stop")...)
	}
	for _, name := range sortedKeys(summary.Counts) {
		span.SetAttributes(telemetry.StreamAttributes(name, summary.Counts[name])...)
	}

	logger := log.WithContext(ctx, c.logger).With().Str(log.FieldSessionID, sess.ID).Logger()
	stoppedAt := summary.StoppedAt
	if err := WriteManifest(sess.Dir, c.manifest(sess, summary.Status, &stoppedAt, &summary)); err != nil {
		logger.Warn().Err(err).Str("event", "session.manifest_failed").Msg("final manifest not written")
	}
	if c.journal != nil {
		if err := c.journal.Record(ctx, summary); err != nil {
			logger.Warn().Err(err).Str("event", "session.journal_failed").Msg("session not journaled")
		}
	}

	c.current.Store(nil)
	if _, err := c.machine.Fire(ctx, evFinalized); err != nil {
		c.opMu.Unlock()
		return summary, err
	}
	c.opMu.Unlock()

	metrics.IncSession(summary.Status)
	metrics.ObserveSessionDuration(summary.Duration())
	logger.Info().
		Str("event", "session.stop").
		Str("status", summary.Status).
		Dur("duration", summary.Duration()).
		Interface("counts", summary.Counts).
		Msg("recording stopped")

	c.notify(ctx, summary)
	return summary, errors.Join(errs...)
}

// Shutdown stops an active session, if any.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.State() != StateRecording {
		return nil
	}
	_, err := c.Stop(ctx)
	if errors.Is(err, ErrNotRecording) {
		return nil
	}
	return err
}

func (c *Controller) notify(ctx context.Context, s Summary) {
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, s)
	}
}

func (c *Controller) counts() map[string]uint64 {
	out := make(map[string]uint64)
	for _, s := range c.streams {
		if cs, ok := s.(capture.Counter); ok {
			for k, v := range cs.Counts() {
				out[k] = v
			}
		}
	}
	return out
}

func (c *Controller) manifest(sess *capture.Session, status string, stoppedAt *time.Time, summary *Summary) Manifest {
	names := make([]string, 0, len(c.streams))
	for _, s := range c.streams {
		names = append(names, s.Name())
	}
	m := Manifest{
		SessionID:     sess.ID,
		Name:          sess.Name,
		Device:        c.cfg.Device,
		Status:        status,
		CaptureRateHz: c.CaptureRate(),
		StartedAt:     sess.StartedAt.UTC(),
		Streams:       names,
	}
	if stoppedAt != nil {
		ts := stoppedAt.UTC()
		m.StoppedAt = &ts
	}
	if summary != nil {
		m.FrameCount = summary.Counts
		m.Errors = summary.Errors
	}
	return m
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
