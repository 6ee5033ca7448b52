// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// xrcap-verify checks recorded session directories against the layout the
// offline reconstruction step expects.
//
// Usage:
//
//	xrcap-verify [flags] <session-dir>...
//	xrcap-verify [flags] --root <recordings-dir>
//
// Exit codes:
//   - 0: every session is consistent
//   - 1: at least one session has mismatches
//   - 2: usage error
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
	"github.com/ManuGH/xrcap/internal/verification/checks"
	"github.com/ManuGH/xrcap/internal/version"
)

const reportFile = "verification.json"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("xrcap-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "verify every session directory under this recordings root")
	window := fs.Duration("window", checks.DefaultAlignmentWindow, "max camera/depth to head-pose timestamp gap")
	asJSON := fs.Bool("json", false, "print reports as JSON")
	write := fs.Bool("write", false, "write "+reportFile+" into each session directory")
	parallel := fs.Int("parallel", runtime.GOMAXPROCS(0), "sessions verified concurrently")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	dirs := fs.Args()
	if *root != "" {
		found, err := sessionDirs(*root)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		dirs = append(dirs, found...)
	}
	if len(dirs) == 0 {
		fmt.Fprintln(stderr, "Error: no session directories given")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  xrcap-verify <session-dir>...")
		fmt.Fprintln(stderr, "  xrcap-verify --root <recordings-dir>")
		return 2
	}
	if *window <= 0 {
		fmt.Fprintf(stderr, "Error: --window must be positive, got %s\n", *window)
		return 2
	}

	reports, err := verifyAll(ctx, dirs, *window, *parallel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *write {
		for i, r := range reports {
			if err := verification.WriteReport(filepath.Join(dirs[i], reportFile), r); err != nil {
				fmt.Fprintf(stderr, "Error: write report for %s: %v\n", r.Session, err)
				return 1
			}
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		printText(stdout, reports)
	}

	for _, r := range reports {
		if !r.OK() {
			return 1
		}
	}
	return 0
}

// verifyAll verifies dirs with at most parallel concurrent sessions. Reports
// are returned in the order of dirs.
func verifyAll(ctx context.Context, dirs []string, window time.Duration, parallel int) ([]verification.Report, error) {
	v := verification.New(checks.Default(window)...)
	reports := make([]verification.Report, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = v.Verify(ctx, dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// sessionDirs lists the subdirectories of root that contain a session
// manifest or depth descriptors, sorted by name.
func sessionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read recordings root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if exists(filepath.Join(dir, session.ManifestFile)) || exists(filepath.Join(dir, "left_depth_descriptors.csv")) {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printText(w io.Writer, reports []verification.Report) {
	for _, r := range reports {
		if r.OK() {
			fmt.Fprintf(w, "OK        %s\n", r.Session)
			continue
		}
		fmt.Fprintf(w, "MISMATCH  %s (%d)\n", r.Session, len(r.Mismatches))
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  %-10s %s: expected %s, got %s\n", m.Kind, m.Key, m.Expected, m.Actual)
		}
	}
}
