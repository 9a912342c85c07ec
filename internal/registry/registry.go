// Package registry tracks the single connection registered with the host and
// the disposable needed to unregister it.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/metrics"
)

// ErrAlreadyRegistered is returned when Register is called while a
// connection is still registered.
var ErrAlreadyRegistered = errors.New("connection already registered")

// Registry owns at most one registration handle.
type Registry struct {
	host host.ConnectionRegistrar

	mu     sync.Mutex
	handle host.Disposable
	desc   *host.Descriptor
}

// New returns a Registry publishing to h.
func New(h host.ConnectionRegistrar) *Registry {
	return &Registry{host: h}
}

// Register publishes d. Nothing is stored when the host rejects it.
func (r *Registry) Register(d host.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, r.desc.Name)
	}
	handle, err := r.host.RegisterConnection(d)
	if err != nil {
		metrics.IncRegistration(false)
		return fmt.Errorf("failed to register connection %s: %w", d.Name, err)
	}
	r.handle = handle
	r.desc = &d
	metrics.IncRegistration(true)
	slog.Info("Registered connection", "name", d.Name, "type", d.Type, "socket", d.SocketPath)
	return nil
}

// Unregister disposes the stored handle and forgets it. It is a no-op when
// nothing is registered.
func (r *Registry) Unregister() {
	r.mu.Lock()
	handle, desc := r.handle, r.desc
	r.handle, r.desc = nil, nil
	r.mu.Unlock()
	if handle == nil {
		return
	}
	handle.Dispose()
	metrics.IncUnregistration()
	slog.Info("Unregistered connection", "name", desc.Name)
}

// Registered reports whether a handle is held.
func (r *Registry) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// Current returns the registered descriptor, if any.
func (r *Registry) Current() (host.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.desc == nil {
		return host.Descriptor{}, false
	}
	return *r.desc, true
}
