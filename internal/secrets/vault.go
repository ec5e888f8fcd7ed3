// Package secrets holds operator-supplied credentials in memory and swaps
// them on reload, so rotated files take effect without a restart.
package secrets

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Loader produces the full set of secrets from its source.
type Loader func() (map[string]string, error)

// Vault serves the latest successfully loaded secret set. Reads never block
// on a reload.
type Vault struct {
	load    Loader
	reload  sync.Mutex
	current atomic.Pointer[map[string]string]
	gen     atomic.Uint64
}

// NewVault loads the initial secret set; a failing loader is fatal here.
func NewVault(load Loader) (*Vault, error) {
	v := &Vault{load: load}
	if err := v.swap(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

func (v *Vault) swap() error {
	vals, err := v.load()
	if err != nil {
		return err
	}
	if vals == nil {
		vals = map[string]string{}
	}
	v.current.Store(&vals)
	v.gen.Add(1)
	return nil
}

// Get returns the secret for key, or "" when it is unset.
func (v *Vault) Get(key string) string {
	return (*v.current.Load())[key]
}

// Getter binds key to the vault; the returned func sees later reloads.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Generation counts successful loads, starting at 1.
func (v *Vault) Generation() uint64 { return v.gen.Load() }

// Reload replaces the secret set. On error the previous set stays active.
func (v *Vault) Reload() error {
	v.reload.Lock()
	defer v.reload.Unlock()
	if err := v.swap(); err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	return nil
}

// Redacted masks a secret for logs: two leading characters then "****",
// only "****" for values of four bytes or less, "" when unset.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	}
	return val[:2] + "****"
}
