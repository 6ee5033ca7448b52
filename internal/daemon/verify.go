// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
)

// ReportFile is the name of the verification report inside a session directory.
const ReportFile = "verification.json"

const verifyQueueSize = 16

// verifyWorker checks stopped sessions off the Stop caller's goroutine.
type verifyWorker struct {
	verifier *verification.Verifier
	reports  *verification.Store
	logger   zerolog.Logger

	queue chan session.Summary
	done  chan struct{}
}

func newVerifyWorker(v *verification.Verifier, reports *verification.Store) *verifyWorker {
	return &verifyWorker{
		verifier: v,
		reports:  reports,
		logger:   log.WithComponent("verification"),
		queue:    make(chan session.Summary, verifyQueueSize),
		done:     make(chan struct{}),
	}
}

// enqueue is a session.Listener. It never blocks; a full queue drops the job.
func (w *verifyWorker) enqueue(ctx context.Context, s session.Summary) {
	if s.Dir == "" {
		return
	}
	select {
	case w.queue <- s:
	default:
		metrics.IncVerification("dropped")
		logger := log.WithContext(ctx, w.logger)
		logger.Warn().
			Str("event", "verification.dropped").
			Msg("verification queue full, session not verified")
	}
}

// run verifies queued sessions until close is called and the queue is drained.
func (w *verifyWorker) run() {
	defer close(w.done)
	for s := range w.queue {
		w.verify(s)
	}
}

// close stops accepting jobs and waits for queued ones.
func (w *verifyWorker) close() {
	close(w.queue)
	<-w.done
}

func (w *verifyWorker) verify(s session.Summary) {
	report := w.verifier.Verify(context.Background(), s.Dir)
	w.reports.Put(report)

	counts := make(map[verification.MismatchKind]int)
	for _, m := range report.Mismatches {
		counts[m.Kind]++
	}
	for kind, n := range counts {
		metrics.AddVerificationMismatches(string(kind), n)
	}

	path := filepath.Join(s.Dir, ReportFile)
	if err := verification.WriteReport(path, report); err != nil {
		metrics.IncVerification("write_failed")
		w.logger.Error().Err(err).
			Str("event", "verification.write_failed").
			Str(log.FieldSessionName, s.Name).
			Str(log.FieldPath, path).
			Msg("failed to write verification report")
		return
	}

	if report.OK() {
		metrics.IncVerification("ok")
		w.logger.Info().
			Str("event", "verification.ok").
			Str(log.FieldSessionName, s.Name).
			Msg("session layout verified")
		return
	}
	metrics.IncVerification("mismatch")
	w.logger.Warn().
		Str("event", "verification.mismatch").
		Str(log.FieldSessionName, s.Name).
		Int("mismatches", len(report.Mismatches)).
		Str("first_key", report.Mismatches[0].Key).
		Msg("session layout mismatches detected")
}
