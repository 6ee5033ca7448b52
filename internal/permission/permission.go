// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package permission polls OS runtime permissions without blocking the tick.
package permission

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
)

// Kind identifies a runtime permission.
type Kind string

const (
	// SceneData grants access to environment depth.
	SceneData Kind = "scene"
	// Camera grants access to the passthrough cameras.
	Camera Kind = "camera"
)

// Provider is the platform permission service.
type Provider interface {
	HasPermission(kind Kind) bool
	RequestPermission(kind Kind) error
}

// Poller caches a granted permission and re-checks a missing one at most
// once per interval, off the calling goroutine. The first failed check also
// issues a single permission request.
type Poller struct {
	provider Provider
	kind     Kind
	limiter  *rate.Limiter

	granted   atomic.Bool
	polling   atomic.Bool
	requested atomic.Bool
	wg        sync.WaitGroup
}

// NewPoller returns a poller. interval <= 0 checks on every call.
func NewPoller(provider Provider, kind Kind, interval time.Duration) *Poller {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	metrics.SetPermission(string(kind), false)
	return &Poller{
		provider: provider,
		kind:     kind,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Kind returns the polled permission.
func (p *Poller) Kind() Kind { return p.kind }

// Granted reports the cached permission state. When not yet granted it may
// start an asynchronous check; the result becomes visible on a later call.
func (p *Poller) Granted() bool {
	if p.granted.Load() {
		return true
	}
	if p.limiter.Allow() && p.polling.CompareAndSwap(false, true) {
		p.wg.Add(1)
		go p.poll()
	}
	return false
}

// Wait blocks until any in-flight check has finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) poll() {
	defer p.wg.Done()
	defer p.polling.Store(false)

	logger := log.WithComponent("permission")
	if p.provider.HasPermission(p.kind) {
		p.granted.Store(true)
		metrics.SetPermission(string(p.kind), true)
		logger.Info().
			Str("event", "permission.granted").
			Str("kind", string(p.kind)).
			Msg("permission granted")
		return
	}

	if p.requested.CompareAndSwap(false, true) {
		if err := p.provider.RequestPermission(p.kind); err != nil {
			logger.Warn().Err(err).
				Str("event", "permission.request_failed").
				Str("kind", string(p.kind)).
				Msg("permission request failed")
			return
		}
		logger.Info().
			Str("event", "permission.requested").
			Str("kind", string(p.kind)).
			Msg("permission requested, waiting for grant")
	}
}
