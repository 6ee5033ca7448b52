// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"sync"

	"github.com/ManuGH/xrcap/internal/permission"
)

// Permissions grants every requested permission.
type Permissions struct {
	mu      sync.Mutex
	granted map[permission.Kind]bool
}

// NewPermissions returns a provider with the given kinds pre-granted.
func NewPermissions(granted ...permission.Kind) *Permissions {
	p := &Permissions{granted: make(map[permission.Kind]bool)}
	for _, k := range granted {
		p.granted[k] = true
	}
	return p
}

// HasPermission implements permission.Provider.
func (p *Permissions) HasPermission(kind permission.Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted[kind]
}

// RequestPermission implements permission.Provider.
func (p *Permissions) RequestPermission(kind permission.Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted[kind] = true
	return nil
}
