// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// Verifier runs a fixed set of checkers against session directories.
type Verifier struct {
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

// New returns a verifier. Each Verify call is bounded to 30s.
func New(checkers ...Checker) *Verifier {
	return &Verifier{checkers: checkers, timeout: 30 * time.Second, now: time.Now}
}

// Verify checks dir. Checker failures are reported as runtime mismatches so
// they show up in the report instead of aborting it.
func (v *Verifier) Verify(ctx context.Context, dir string) Report {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var all []Mismatch
	for _, c := range v.checkers {
		if ctx.Err() != nil {
			all = append(all, Mismatch{
				Kind:     KindRuntime,
				Key:      "verification." + c.Name(),
				Expected: "completed",
				Actual:   ctx.Err().Error(),
			})
			break
		}
		ms, err := c.Check(ctx, dir)
		if err != nil {
			all = append(all, Mismatch{
				Kind:     KindRuntime,
				Key:      "verification." + c.Name(),
				Expected: "success",
				Actual:   err.Error(),
			})
			continue
		}
		all = append(all, ms...)
	}

	r := Report{
		Version:    1,
		Session:    filepath.Base(dir),
		LastCheck:  v.now().UTC(),
		Mismatches: all,
		Detected:   len(all) > 0,
	}
	normalize(&r)
	return r
}

// normalize sorts mismatches and truncates long values for stable output.
func normalize(r *Report) {
	for i := range r.Mismatches {
		r.Mismatches[i].Expected = truncateForReport(r.Mismatches[i].Expected)
		r.Mismatches[i].Actual = truncateForReport(r.Mismatches[i].Actual)
	}
	sort.SliceStable(r.Mismatches, func(i, j int) bool {
		mi, mj := r.Mismatches[i], r.Mismatches[j]
		if mi.Kind != mj.Kind {
			return mi.Kind < mj.Kind
		}
		return mi.Key < mj.Key
	})
}

func truncateForReport(val string) string {
	const maxLen = 256
	if len(val) > maxLen {
		return val[:maxLen] + "...(truncated)"
	}
	return val
}

// Store keeps the latest report per session in memory.
type Store struct {
	mu      sync.RWMutex
	reports map[string]Report
	last    string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{reports: make(map[string]Report)}
}

// Put records r.
func (s *Store) Put(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Session] = r
	s.last = r.Session
}

// Get returns the report for a session.
func (s *Store) Get(sessionName string) (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[sessionName]
	return r, ok
}

// Last returns the most recently stored report.
func (s *Store) Last() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == "" {
		return Report{}, false
	}
	return s.reports[s.last], true
}

// WriteReport atomically writes r as indented JSON.
func WriteReport(path string, r Report) error {
	for _, m := range r.Mismatches {
		if !m.Kind.Valid() {
			return fmt.Errorf("invalid mismatch kind: %s", m.Kind)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, err
	}
	return r, nil
}
