// Package secrets keeps the session provider keys in memory so an operator
// can rotate them with a SIGHUP instead of a restart.
package secrets

import (
	"fmt"
	"sync"
)

// Loader reads the current key set, normally from a mounted secrets file.
type Loader func() (map[string]string, error)

// Vault serves provider keys to the session client between rotations.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault loads the initial key set. A file that cannot be read at
// startup is an error; later reload failures are not.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("load session secrets: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the key named name, or "" so the caller keeps its
// configured value.
func (v *Vault) Get(name string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[name]
}

// Reload swaps in a freshly loaded key set. Requests in flight keep the
// keys they already read; on error the previous set stays active.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload session secrets: %w", err)
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}

// Redacted masks name's value for the rotation log: two leading
// characters and "****", or "****" alone for short keys. Missing keys
// yield "".
func (v *Vault) Redacted(name string) string {
	s := v.Get(name)
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}
