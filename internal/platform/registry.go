package platform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aretw0/humus/pkg/core"
)

// Registry shares open stores within a process. Opening the same directory
// twice yields handles on one Service; the store is closed when the last
// handle is.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	svc  *core.Service
	refs int
}

// Handle is one reference to a store opened through a Registry.
type Handle struct {
	*core.Service
	path     string
	registry *Registry
	once     sync.Once
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Open returns a handle on the store at path, opening it on first use.
// Options only apply to the call that opens the store.
func (r *Registry) Open(ctx context.Context, path string, opts ...Option) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[abs]; ok {
		e.refs++
		return &Handle{Service: e.svc, path: abs, registry: r}, nil
	}

	svc, err := NewContext(ctx, abs, opts...)
	if err != nil {
		return nil, err
	}
	r.entries[abs] = &registryEntry{svc: svc, refs: 1}
	return &Handle{Service: svc, path: abs, registry: r}, nil
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close closes every open store regardless of outstanding handles.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var errs []error
	for path, e := range entries {
		if err := e.svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) release(path string, svc *core.Service) error {
	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok || e.svc != svc {
		// Already closed by Registry.Close.
		r.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, path)
	r.mu.Unlock()

	return svc.Close()
}

// Path returns the absolute store directory.
func (h *Handle) Path() string {
	return h.path
}

// Close releases the handle. Only the first call has an effect.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.registry.release(h.path, h.Service)
	})
	return err
}
