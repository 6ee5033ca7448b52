// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the capture core, the control API and the ambient
// services into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xrcap/internal/api"
	"github.com/ManuGH/xrcap/internal/capture/gate"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/config"
	"github.com/ManuGH/xrcap/internal/health"
	"github.com/ManuGH/xrcap/internal/journal"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/telemetry"
	"github.com/ManuGH/xrcap/internal/verification"
	"github.com/ManuGH/xrcap/internal/verification/checks"
)

const (
	// recorderStuckAfter is how long the controller may stay in finalizing
	// before health reports it degraded.
	recorderStuckAfter = 30 * time.Second
	closeTimeout       = 15 * time.Second
)

// ErrMissingConfig is returned when NewApp is called without a config holder.
var ErrMissingConfig = errors.New("daemon: config holder is required")

// Option customizes an App.
type Option func(*App)

// WithClock replaces the wall clock used for ticks and session timestamps.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithListener serves the control API on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithReloadSignal sets the signal that triggers a config reload. nil disables it.
func WithReloadSignal(sig os.Signal) Option {
	return func(a *App) { a.reloadSignal = sig }
}

// App owns the long-lived runtime: the tick driver, the control API, the
// config watcher and reload wiring, and post-session verification.
type App struct {
	cfg          config.AppConfig
	holder       *config.ConfigHolder
	logger       zerolog.Logger
	clock        clock.Clock
	listener     net.Listener
	reloadSignal os.Signal

	// tickMu serializes ticks with session start so every stream anchors
	// its timeline on the same latched device time.
	tickMu sync.Mutex

	rig       *rig
	ctrl      *session.Controller
	journal   *journal.Store
	reports   *verification.Store
	verify    *verifyWorker
	health    *health.Manager
	server    *api.Server
	telemetry *telemetry.Provider
}

// NewApp builds the runtime from the holder's current configuration.
func NewApp(ctx context.Context, holder *config.ConfigHolder, opts ...Option) (*App, error) {
	if holder == nil {
		return nil, ErrMissingConfig
	}
	a := &App{
		cfg:          holder.Get(),
		holder:       holder,
		logger:       log.WithComponent("daemon"),
		clock:        clock.Real{},
		reloadSignal: syscall.SIGHUP,
	}
	for _, opt := range opts {
		opt(a)
	}
	cfg := a.cfg

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName(cfg),
		ServiceVersion: cfg.Version,
		Environment:    cfg.Device,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = tp

	if err := a.build(); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	r, err := buildRig(cfg, a.clock)
	if err != nil {
		return err
	}
	a.rig = r

	deps := session.Deps{
		Gate:      gate.New(cfg.Capture.RateHz),
		Allocator: r.allocator,
		Streams:   r.streams,
		Clock:     a.clock,
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
		deps.Journal = j
	}

	ctrl, err := session.New(session.Config{
		RecordingsDir: cfg.Capture.RecordingsDir,
		Device:        cfg.Device,
		PoolMaxSize:   cfg.Depth.PoolMaxSize,
	}, deps)
	if err != nil {
		return fmt.Errorf("build session controller: %w", err)
	}
	a.ctrl = ctrl

	a.reports = verification.NewStore()
	a.verify = newVerifyWorker(verification.New(checks.Default(checks.DefaultAlignmentWindow)...), a.reports)
	go a.verify.run()
	ctrl.OnStopped(a.verify.enqueue)

	a.health = health.NewManager(cfg.Version)
	a.health.RegisterChecker(health.NewDirChecker("recordings", cfg.Capture.RecordingsDir))
	if a.journal != nil {
		a.health.RegisterChecker(health.NewPingChecker("journal", a.journal.Ping))
	}
	a.health.RegisterChecker(health.NewRecorderChecker(func() (string, time.Time) {
		s, since := ctrl.StateSince()
		return string(s), since
	}, recorderStuckAfter))
	for _, p := range r.pollers {
		a.health.RegisterChecker(health.NewPermissionChecker(string(p.Kind()), r.permissionGranted(p.Kind())))
	}

	apiDeps := api.Deps{
		Recorder: tickSerialized{Controller: ctrl, mu: &a.tickMu},
		Reports:  a.reports,
		Health:   a.health,
	}
	if a.journal != nil {
		apiDeps.Journal = a.journal
	}
	apiCfg := api.Config{
		ListenAddr:      cfg.API.ListenAddr,
		Version:         cfg.Version,
		RateLimit:       cfg.API.RateLimit,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}
	if a.telemetry.Enabled() {
		apiCfg.TracingService = serviceName(cfg)
	}
	srv, err := api.New(apiCfg, apiDeps)
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}
	a.server = srv
	return nil
}

func serviceName(cfg config.AppConfig) string {
	if cfg.LogService != "" {
		return cfg.LogService
	}
	return "xrcapd"
}

// Controller exposes the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// Reports exposes the verification report store.
func (a *App) Reports() *verification.Store { return a.reports }

// Run starts all owned subsystems and blocks until ctx is cancelled or a
// fatal error occurs. An active session is stopped and verified before Run
// returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().
		Str("event", "daemon.start").
		Str("device", a.cfg.Device).
		Float64(log.FieldRateHz, a.cfg.Capture.RateHz).
		Float64("tick_hz", a.cfg.Capture.TickHz).
		Int("streams", len(a.rig.streams)).
		Msg("capture daemon starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.driveTicks(ctx)
		return nil
	})

	// Config watcher is best-effort: a watcher failure keeps the daemon running.
	g.Go(func() error {
		if err := a.holder.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		return nil
	})

	applyCh := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-applyCh:
				a.apply(cfg)
			}
		}
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.holder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		if a.listener != nil {
			return a.server.Serve(ctx, a.listener)
		}
		return a.server.ListenAndServe(ctx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if stopErr := a.ctrl.Shutdown(closeCtx); stopErr != nil {
		a.logger.Error().Err(stopErr).Str("event", "daemon.session_stop_failed").Msg("active session did not stop cleanly")
		err = errors.Join(err, stopErr)
	}
	a.release(closeCtx)

	a.logger.Info().Str("event", "daemon.stopped").Msg("capture daemon stopped")
	return err
}

// driveTicks calls Controller.Tick at the configured tick rate until ctx is done.
func (a *App) driveTicks(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / a.cfg.Capture.TickHz)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.tick(a.clock.Now())
		}
	}
}

// tick latches the device time and runs one controller tick.
func (a *App) tick(now time.Time) {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()
	a.rig.latch.Set(now)
	a.ctrl.Tick(now)
}

// tickSerialized starts sessions between ticks.
type tickSerialized struct {
	*session.Controller
	mu *sync.Mutex
}

func (t tickSerialized) Start(ctx context.Context, name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Controller.Start(ctx, name)
}

// apply pushes reloadable settings into the running components.
func (a *App) apply(cfg config.AppConfig) {
	a.ctrl.ApplyCaptureRate(cfg.Capture.RateHz)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	a.logger.Info().
		Str("event", "daemon.config_applied").
		Float64(log.FieldRateHz, cfg.Capture.RateHz).
		Msg("applied reloaded configuration")
}

// release drains verification and closes owned resources. It is safe on a
// partially built App.
func (a *App) release(ctx context.Context) {
	if a.verify != nil {
		a.verify.close()
	}
	if a.rig != nil {
		a.rig.wait()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn().Err(err).Str("event", "journal.close_failed").Msg("failed to close journal")
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "telemetry.shutdown_failed").Msg("failed to flush traces")
		}
	}
}
