// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// NameLayout formats timestamp-derived session names (UTC).
const NameLayout = "20060102_150405"

var (
	// ErrInvalidName is returned for names that are not a single safe path element.
	ErrInvalidName = errors.New("session: invalid session name")
	// ErrSessionExists is returned when an explicit name is already taken.
	ErrSessionExists = errors.New("session: session directory already exists")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks an explicit session name.
func ValidateName(name string) error {
	if !validName.MatchString(name) || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// allocateDir picks and creates the session directory. Timestamp names get
// a numeric suffix on collision; explicit names fail instead.
func allocateDir(root, name string, now time.Time) (string, string, error) {
	explicit := name != ""
	if explicit {
		if err := ValidateName(name); err != nil {
			return "", "", err
		}
	} else {
		name = now.UTC().Format(NameLayout)
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", "", fmt.Errorf("session: create recordings root: %w", err)
	}

	candidate := name
	for i := 1; ; i++ {
		dir := filepath.Join(root, candidate)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return candidate, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("session: create %s: %w", dir, err)
		}
		if explicit {
			return "", "", fmt.Errorf("%w: %s", ErrSessionExists, candidate)
		}
		if i > 99 {
			return "", "", fmt.Errorf("%w: %s", ErrSessionExists, name)
		}
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
}
