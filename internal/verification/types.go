// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package verification checks a recorded session directory against the
// on-disk layout expected by the offline reconstruction step.
package verification

import (
	"context"
	"time"
)

// Report is the outcome of verifying one session directory.
type Report struct {
	Version    int        `json:"version"`
	Session    string     `json:"session"`
	Detected   bool       `json:"detected"`
	LastCheck  time.Time  `json:"last_check"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether no mismatch was found.
func (r Report) OK() bool { return !r.Detected }

// Mismatch describes one deviation from the expected layout.
type Mismatch struct {
	Kind     MismatchKind `json:"kind"`
	Key      string       `json:"key"` // e.g. "left_depth_descriptors.csv:12"
	Expected string       `json:"expected"`
	Actual   string       `json:"actual"`
}

// MismatchKind classifies a mismatch.
type MismatchKind string

const (
	KindLayout    MismatchKind = "layout"
	KindHeader    MismatchKind = "header"
	KindRow       MismatchKind = "row"
	KindFrame     MismatchKind = "frame"
	KindTimestamp MismatchKind = "timestamp"
	KindAlignment MismatchKind = "alignment"
	KindManifest  MismatchKind = "manifest"
	KindRuntime   MismatchKind = "runtime"
)

// Valid returns true if the kind is known.
func (k MismatchKind) Valid() bool {
	switch k {
	case KindLayout, KindHeader, KindRow, KindFrame, KindTimestamp, KindAlignment, KindManifest, KindRuntime:
		return true
	default:
		return false
	}
}

// Checker inspects one aspect of a session directory. It returns the
// mismatches found, or an error if the check itself could not run.
type Checker interface {
	Name() string
	Check(ctx context.Context, dir string) ([]Mismatch, error)
}
