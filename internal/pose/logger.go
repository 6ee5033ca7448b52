// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pose records head and controller poses, one CSV per tracked node.
package pose

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/timeline"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
	"github.com/ManuGH/xrcap/internal/rowlog"
)

// Node names a tracked device.
type Node string

const (
	Head            Node = "head"
	LeftController  Node = "left_controller"
	RightController Node = "right_controller"
)

// Mode selects the tracker query.
type Mode string

const (
	// Latest returns the most recent measured pose.
	Latest Mode = "latest"
	// Predicted returns the pose predicted for the current display time.
	Predicted Mode = "predicted"
)

var (
	// ErrNotTracking is returned by trackers that lost the node.
	ErrNotTracking   = errors.New("pose: node not tracked")
	ErrAlreadyActive = errors.New("pose: logger already active")
	ErrNotActive     = errors.New("pose: logger not active")
	ErrNotBound      = errors.New("pose: no session bound")
)

// Header is the column layout of <node>_poses.csv.
var Header = []string{
	"unix_time",
	"ovr_timestamp",
	"pos_x",
	"pos_y",
	"pos_z",
	"rot_x",
	"rot_y",
	"rot_z",
	"rot_w",
}

// Sample is one tracker reading.
type Sample struct {
	DeviceTime int64
	Position   [3]float32
	Rotation   [4]float32
}

// Tracker is the platform pose provider.
type Tracker interface {
	GetPose(node Node, mode Mode) (Sample, error)
	DeviceNow() int64
}

// Config describes one tracked node.
type Config struct {
	Node Node
	// Gated nodes sample only on capture ticks; ungated nodes every tick.
	Gated     bool
	Mode      Mode
	Transform *Transform
}

// Logger records one node. It implements capture.Stream.
type Logger struct {
	cfg     Config
	tracker Tracker
	logger  zerolog.Logger
	errLog  *rate.Sometimes

	mu       sync.Mutex
	bound    *capture.Session
	rows     *rowlog.Logger
	clock    timeline.Translator
	lastTs   int64
	haveLast bool

	written atomic.Uint64
}

// New returns an idle logger for cfg.Node.
func New(cfg Config, tracker Tracker) *Logger {
	if cfg.Mode == "" {
		cfg.Mode = Latest
	}
	return &Logger{
		cfg:     cfg,
		tracker: tracker,
		logger:  log.WithComponent("pose").With().Str(log.FieldNode, string(cfg.Node)).Logger(),
		errLog:  &rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Name implements capture.Stream.
func (l *Logger) Name() string { return string(l.cfg.Node) + "_poses" }

// Bind records the session directory.
func (l *Logger) Bind(sess *capture.Session) error {
	if sess == nil {
		return ErrNotBound
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bound = sess
	return nil
}

// Start opens <node>_poses.csv.
func (l *Logger) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rows != nil {
		l.logger.Warn().Str("event", "pose.start_rejected").Msg("start while active ignored")
		return ErrAlreadyActive
	}
	if l.bound == nil {
		return ErrNotBound
	}
	rows, err := rowlog.Open(filepath.Join(l.bound.Dir, l.Name()+".csv"), Header)
	if err != nil {
		return fmt.Errorf("pose: open %s: %w", l.cfg.Node, err)
	}
	l.rows = rows
	l.haveLast = false
	l.lastTs = 0
	l.written.Store(0)
	return nil
}

// ResetTimeline anchors the tracker clock to wall.
func (l *Logger) ResetTimeline(wall time.Time) {
	b := l.clock.Reset(l.tracker.DeviceNow(), wall)
	l.logger.Debug().
		Str("event", "pose.timeline_reset").
		Int64(log.FieldDeviceNs, b.DeviceAtStart()).
		Msg("pose timeline anchored")
}

// Tick samples the node. Samples whose device timestamp does not advance
// are dropped.
func (l *Logger) Tick(_ time.Time, gated bool) {
	if l.cfg.Gated && !gated {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rows == nil {
		return
	}
	base, ok := l.clock.Base()
	if !ok {
		return
	}

	node := string(l.cfg.Node)
	s, err := l.tracker.GetPose(l.cfg.Node, l.cfg.Mode)
	if err != nil {
		metrics.IncPoseSample(node, "error")
		l.errLog.Do(func() {
			l.logger.Warn().Err(err).Str("event", "pose.sample_failed").Msg("pose sample failed")
		})
		return
	}
	if l.haveLast && s.DeviceTime <= l.lastTs {
		metrics.IncPoseSample(node, "duplicate")
		return
	}
	deviceTime := s.DeviceTime

	if l.cfg.Transform != nil {
		s = l.cfg.Transform.Apply(s)
	}
	if err := l.rows.EnqueueRow(row(base, s)...); err != nil {
		metrics.IncPoseSample(node, "error")
		return
	}
	l.lastTs = deviceTime
	l.haveLast = true
	l.written.Add(1)
	metrics.IncPoseSample(node, "written")
}

func row(base timeline.Base, s Sample) []string {
	out := make([]string, 0, len(Header))
	out = append(out,
		strconv.FormatInt(base.TranslateMillis(s.DeviceTime), 10),
		timeline.FormatDeviceSeconds(s.DeviceTime),
	)
	for _, v := range s.Position {
		out = append(out, strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	for _, v := range s.Rotation {
		out = append(out, strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	return out
}

// Stop closes the pose file after flushing queued rows.
func (l *Logger) Stop(context.Context) error {
	l.mu.Lock()
	rows := l.rows
	l.rows = nil
	l.bound = nil
	l.mu.Unlock()

	if rows == nil {
		l.logger.Warn().Str("event", "pose.stop_rejected").Msg("stop while idle ignored")
		return ErrNotActive
	}
	l.clock.Clear()
	if err := rows.Close(); err != nil {
		return fmt.Errorf("pose: close %s: %w", l.cfg.Node, err)
	}
	l.logger.Info().
		Str("event", "pose.stopped").
		Uint64("samples", l.written.Load()).
		Msg("pose capture stopped")
	return nil
}

// Counts reports rows written in the current or last session.
func (l *Logger) Counts() map[string]uint64 {
	return map[string]uint64{l.Name(): l.written.Load()}
}
