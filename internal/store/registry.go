package store

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
)

// Registry is the name→provider map. It is populated once at startup and
// read-only afterwards; request handling never mutates it, so concurrent
// inspections need no locking here.
type Registry struct {
	guarded map[string]*Guarded
	names   []string
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{guarded: make(map[string]*Guarded), logger: logger}
}

// Register adds a provider under its name, wrapped with the adapter-boundary
// guard. Call only during startup wiring; duplicate names are a
// configuration error.
func (r *Registry) Register(p Provider, timeout time.Duration) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider has no name")
	}
	if _, exists := r.guarded[name]; exists {
		return fmt.Errorf("duplicate provider name %q", name)
	}
	r.guarded[name] = newGuarded(p, timeout, r.logger)
	r.names = append(r.names, name)
	sort.Strings(r.names)
	return nil
}

// Get returns the guarded provider registered under name.
func (r *Registry) Get(name string) (*Guarded, bool) {
	g, ok := r.guarded[name]
	return g, ok
}

// Providers returns all registered providers sorted by name.
func (r *Registry) Providers() []*Guarded {
	out := make([]*Guarded, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.guarded[n])
	}
	return out
}

// Names returns the registered provider names sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Close releases every provider that owns a connection pool.
func (r *Registry) Close() error {
	var firstErr error
	for _, n := range r.names {
		if c, ok := r.guarded[n].Provider.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing provider %s: %w", n, err)
			}
		}
	}
	return firstErr
}
