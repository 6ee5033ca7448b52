// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirChecker checks that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writable-directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "directory writable"}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}

// PingChecker reports unhealthy when ping fails. A nil ping means the
// component is disabled.
type PingChecker struct {
	name    string
	ping    func(context.Context) error
	timeout time.Duration
}

// NewPingChecker creates a checker around ping, bounded to 2s.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: 2 * time.Second}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// RecorderChecker reports the session controller state. It is always
// healthy; a session stuck finalizing longer than stuckAfter is degraded.
type RecorderChecker struct {
	state      func() (state string, since time.Time)
	stuckAfter time.Duration
	now        func() time.Time
}

// NewRecorderChecker creates a recorder checker.
func NewRecorderChecker(state func() (string, time.Time), stuckAfter time.Duration) *RecorderChecker {
	return &RecorderChecker{state: state, stuckAfter: stuckAfter, now: time.Now}
}

func (c *RecorderChecker) Name() string { return "recorder" }

func (c *RecorderChecker) Check(context.Context) CheckResult {
	state, since := c.state()
	if state == "finalizing" && !since.IsZero() && c.now().Sub(since) > c.stuckAfter {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("finalizing for %s", c.now().Sub(since).Truncate(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: state}
}

// PermissionChecker reports degraded while a runtime permission is missing.
// Capture keeps running; the affected stream waits.
type PermissionChecker struct {
	kind    string
	granted func() bool
}

// NewPermissionChecker creates a permission checker.
func NewPermissionChecker(kind string, granted func() bool) *PermissionChecker {
	return &PermissionChecker{kind: kind, granted: granted}
}

func (c *PermissionChecker) Name() string { return "permission_" + c.kind }

func (c *PermissionChecker) Check(context.Context) CheckResult {
	if c.granted() {
		return CheckResult{Status: StatusHealthy, Message: "granted"}
	}
	return CheckResult{Status: StatusDegraded, Message: "waiting for permission"}
}
