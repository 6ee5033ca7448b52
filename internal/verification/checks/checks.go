// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package checks holds the session layout checkers.
package checks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/depth"
	"github.com/ManuGH/xrcap/internal/pose"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
)

// DefaultAlignmentWindow is the largest gap tolerated between a frame and
// the nearest reference pose sample.
const DefaultAlignmentWindow = 30 * time.Millisecond

// Default returns the full checker set.
func Default(window time.Duration) []verification.Checker {
	return []verification.Checker{
		Layout{},
		Depth{},
		Pose{},
		Camera{},
		Alignment{Window: window, Reference: "head_poses.csv"},
		Manifest{},
	}
}

func descriptorFile(eye capture.Eye) string { return string(eye) + "_depth_descriptors.csv" }
func depthDir(eye capture.Eye) string { return string(eye) + "_depth" }

// Layout checks that the mandatory files exist.
type Layout struct{}

func (Layout) Name() string { return "layout" }

func (Layout) Check(_ context.Context, dir string) ([]verification.Mismatch, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var out []verification.Mismatch
	required := []string{session.ManifestFile}
	for _, eye := range capture.Eyes {
		required = append(required, descriptorFile(eye), depthDir(eye))
	}
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			out = append(out, missing(verification.KindLayout, name))
		}
	}
	poses, _ := filepath.Glob(filepath.Join(dir, "*_poses.csv"))
	if len(poses) == 0 {
		out = append(out, missing(verification.KindLayout, "*_poses.csv"))
	}
	return out, nil
}

// Depth checks descriptor files against the raw frames they describe.
type Depth struct{}

func (Depth) Name() string { return "depth" }

func (Depth) Check(ctx context.Context, dir string) ([]verification.Mismatch, error) {
	var out []verification.Mismatch
	for _, eye := range capture.Eyes {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		name := descriptorFile(eye)
		header, rows, err := readCSV(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, checkHeader(name, header, depth.Header)...)

		described := make(map[string]bool, len(rows))
		var prev int64
		for i, row := range rows {
			key := fmt.Sprintf("%s:%d", name, i+2)
			if len(row) != len(depth.Header) {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindRow,
					Key:      key,
					Expected: strconv.Itoa(len(depth.Header)) + " columns",
					Actual:   strconv.Itoa(len(row)) + " columns",
				})
				continue
			}
			ns, err := ParseDeviceSeconds(row[1])
			if err != nil {
				out = append(out, invalid(verification.KindRow, key, "ovr_timestamp", row[1]))
				continue
			}
			if i > 0 && ns <= prev {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindTimestamp,
					Key:      key,
					Expected: "> " + strconv.FormatInt(prev, 10),
					Actual:   strconv.FormatInt(ns, 10),
				})
			}
			prev = ns

			w, werr := strconv.Atoi(row[15])
			h, herr := strconv.Atoi(row[16])
			if werr != nil || herr != nil || w <= 0 || h <= 0 {
				out = append(out, invalid(verification.KindRow, key, "width,height", row[15]+","+row[16]))
				continue
			}

			raw := filepath.Join(depthDir(eye), row[0]+".raw")
			described[row[0]+".raw"] = true
			info, err := os.Stat(filepath.Join(dir, raw))
			if err != nil {
				out = append(out, missing(verification.KindFrame, raw))
				continue
			}
			if want := int64(w) * int64(h) * 4; info.Size() != want {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindFrame,
					Key:      raw,
					Expected: strconv.FormatInt(want, 10) + " bytes",
					Actual:   strconv.FormatInt(info.Size(), 10) + " bytes",
				})
			}
		}

		frames, _ := filepath.Glob(filepath.Join(dir, depthDir(eye), "*.raw"))
		for _, f := range frames {
			if !described[filepath.Base(f)] {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindFrame,
					Key:      filepath.Join(depthDir(eye), filepath.Base(f)),
					Expected: "descriptor row",
					Actual:   "orphan frame",
				})
			}
		}
	}
	return out, nil
}

// Pose checks every <node>_poses.csv.
type Pose struct{}

func (Pose) Name() string { return "pose" }

func (Pose) Check(_ context.Context, dir string) ([]verification.Mismatch, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*_poses.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var out []verification.Mismatch
	for _, path := range files {
		name := filepath.Base(path)
		header, rows, err := readCSV(path)
		if err != nil {
			return nil, err
		}
		out = append(out, checkHeader(name, header, pose.Header)...)

		var prev int64
		for i, row := range rows {
			key := fmt.Sprintf("%s:%d", name, i+2)
			if len(row) != len(pose.Header) {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindRow,
					Key:      key,
					Expected: strconv.Itoa(len(pose.Header)) + " columns",
					Actual:   strconv.Itoa(len(row)) + " columns",
				})
				continue
			}
			ns, err := ParseDeviceSeconds(row[1])
			if err != nil {
				out = append(out, invalid(verification.KindRow, key, "ovr_timestamp", row[1]))
				continue
			}
			if i > 0 && ns <= prev {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindTimestamp,
					Key:      key,
					Expected: "> " + strconv.FormatInt(prev, 10),
					Actual:   strconv.FormatInt(ns, 10),
				})
			}
			prev = ns
		}
	}
	return out, nil
}

// Camera checks camera frame sizes against the recorded image format.
type Camera struct{}

func (Camera) Name() string { return "camera" }

func (Camera) Check(_ context.Context, dir string) ([]verification.Mismatch, error) {
	var out []verification.Mismatch
	for _, eye := range capture.Eyes {
		imageDir := camera.ImageDir(dir, eye)
		if _, err := os.Stat(imageDir); err != nil {
			continue
		}
		formatPath := camera.FormatInfoPath(dir, eye)
		format, err := camera.ReadImageFormat(formatPath)
		if err != nil {
			out = append(out, missing(verification.KindLayout, filepath.Base(formatPath)))
			continue
		}
		if _, err := os.Stat(camera.CharacteristicsPath(dir, eye)); err != nil {
			out = append(out, missing(verification.KindLayout, filepath.Base(camera.CharacteristicsPath(dir, eye))))
		}

		want := int64(format.FrameSize())
		frames, _ := filepath.Glob(filepath.Join(imageDir, "*.yuv"))
		for _, f := range frames {
			key := filepath.Join(filepath.Base(imageDir), filepath.Base(f))
			if _, err := strconv.ParseInt(strings.TrimSuffix(filepath.Base(f), ".yuv"), 10, 64); err != nil {
				out = append(out, invalid(verification.KindFrame, key, "name", filepath.Base(f)))
				continue
			}
			info, err := os.Stat(f)
			if err != nil {
				return nil, err
			}
			if info.Size() != want {
				out = append(out, verification.Mismatch{
					Kind:     verification.KindFrame,
					Key:      key,
					Expected: strconv.FormatInt(want, 10) + " bytes",
					Actual:   strconv.FormatInt(info.Size(), 10) + " bytes",
				})
			}
		}
	}
	return out, nil
}

// Alignment checks that every depth and camera frame can be interpolated
// from the reference poses: there must be a sample at or before it and one
// at or after it, each within Window. Sessions without the reference file
// are skipped.
type Alignment struct {
	Window    time.Duration
	Reference string
}

func (Alignment) Name() string { return "alignment" }

func (a Alignment) Check(_ context.Context, dir string) ([]verification.Mismatch, error) {
	window := a.Window
	if window <= 0 {
		window = DefaultAlignmentWindow
	}
	_, rows, err := readCSV(filepath.Join(dir, a.Reference))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref := make([]int64, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if ms, err := strconv.ParseInt(row[0], 10, 64); err == nil {
			ref = append(ref, ms)
		}
	}
	if len(ref) == 0 {
		return nil, nil
	}
	sort.Slice(ref, func(i, j int) bool { return ref[i] < ref[j] })

	var out []verification.Mismatch
	check := func(key string, ms int64) {
		before, after, ok := bracket(ref, ms, window)
		if ok {
			return
		}
		out = append(out, verification.Mismatch{
			Kind:     verification.KindAlignment,
			Key:      key,
			Expected: "pose within " + window.String() + " on both sides",
			Actual:   "before=" + before + " after=" + after,
		})
	}

	for _, eye := range capture.Eyes {
		_, drows, err := readCSV(filepath.Join(dir, descriptorFile(eye)))
		if err == nil {
			for i, row := range drows {
				if len(row) == 0 {
					continue
				}
				if ms, err := strconv.ParseInt(row[0], 10, 64); err == nil {
					check(fmt.Sprintf("%s:%d", descriptorFile(eye), i+2), ms)
				}
			}
		}
		frames, _ := filepath.Glob(filepath.Join(camera.ImageDir(dir, eye), "*.yuv"))
		for _, f := range frames {
			base := filepath.Base(f)
			if ms, err := strconv.ParseInt(strings.TrimSuffix(base, ".yuv"), 10, 64); err == nil {
				check(filepath.Join(filepath.Base(camera.ImageDir(dir, eye)), base), ms)
			}
		}
	}
	return out, nil
}

// bracket reports the gaps to the last sample at or before v and the first
// sample at or after v. ok is false when either is missing or outside window.
func bracket(sorted []int64, v int64, window time.Duration) (before, after string, ok bool) {
	before, after = "none", "none"
	var prevOK, nextOK bool
	if i := sort.Search(len(sorted), func(i int) bool { return sorted[i] > v }); i > 0 {
		gap := time.Duration(v-sorted[i-1]) * time.Millisecond
		before = gap.String()
		prevOK = gap <= window
	}
	if j := sort.Search(len(sorted), func(j int) bool { return sorted[j] >= v }); j < len(sorted) {
		gap := time.Duration(sorted[j]-v) * time.Millisecond
		after = gap.String()
		nextOK = gap <= window
	}
	return before, after, prevOK && nextOK
}

// Manifest checks session.json against what is on disk.
type Manifest struct{}

func (Manifest) Name() string { return "manifest" }

func (Manifest) Check(_ context.Context, dir string) ([]verification.Mismatch, error) {
	m, err := session.ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return []verification.Mismatch{invalid(verification.KindManifest, session.ManifestFile, "json", err.Error())}, nil
	}

	var out []verification.Mismatch
	if m.Status != session.StatusComplete {
		out = append(out, verification.Mismatch{
			Kind:     verification.KindManifest,
			Key:      "status",
			Expected: session.StatusComplete,
			Actual:   m.Status,
		})
	}
	if m.SessionID == "" {
		out = append(out, missing(verification.KindManifest, "session_id"))
	}

	keys := make([]string, 0, len(m.FrameCount))
	for k := range m.FrameCount {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		actual, ok := countOnDisk(dir, k)
		if !ok {
			continue
		}
		if actual != m.FrameCount[k] {
			out = append(out, verification.Mismatch{
				Kind:     verification.KindManifest,
				Key:      "frame_count." + k,
				Expected: strconv.FormatUint(m.FrameCount[k], 10),
				Actual:   strconv.FormatUint(actual, 10),
			})
		}
	}
	return out, nil
}

// countOnDisk maps a manifest counter to what the directory holds. Camera
// counters count capture requests, which the native side may legitimately
// drop, so they are not compared.
func countOnDisk(dir, key string) (uint64, bool) {
	switch {
	case strings.HasSuffix(key, "_depth"):
		_, rows, err := readCSV(filepath.Join(dir, key+"_descriptors.csv"))
		if err != nil {
			return 0, false
		}
		return uint64(len(rows)), true
	case strings.HasSuffix(key, "_poses"):
		_, rows, err := readCSV(filepath.Join(dir, key+".csv"))
		if err != nil {
			return 0, false
		}
		return uint64(len(rows)), true
	default:
		return 0, false
	}
}

// ParseDeviceSeconds parses "sec.nnnnnnnnn" back into nanoseconds without
// going through float64.
func ParseDeviceSeconds(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	secPart, fracPart, _ := strings.Cut(s, ".")
	if secPart == "" || len(fracPart) > 9 {
		return 0, fmt.Errorf("invalid device timestamp %q", s)
	}
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, err
	}
	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64)
		if err != nil {
			return 0, err
		}
	}
	ns := sec*int64(time.Second) + frac
	if neg {
		ns = -ns
	}
	return ns, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func checkHeader(name string, got, want []string) []verification.Mismatch {
	if strings.Join(got, ",") == strings.Join(want, ",") {
		return nil
	}
	return []verification.Mismatch{{
		Kind:     verification.KindHeader,
		Key:      name,
		Expected: strings.Join(want, ","),
		Actual:   strings.Join(got, ","),
	}}
}

func missing(kind verification.MismatchKind, key string) verification.Mismatch {
	return verification.Mismatch{Kind: kind, Key: key, Expected: "exists", Actual: "missing"}
}

func invalid(kind verification.MismatchKind, key, field, value string) verification.Mismatch {
	return verification.Mismatch{Kind: kind, Key: key, Expected: "valid " + field, Actual: value}
}
