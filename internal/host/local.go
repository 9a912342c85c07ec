package host

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProviderInfo is a read-only view of a provider.
type ProviderInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      ProviderStatus `json:"status"`
	Images      Images         `json:"images"`
	Connections int            `json:"connections"`
}

// ConnectionInfo is a read-only view of a registered connection. Status is
// evaluated through the descriptor's accessor at read time.
type ConnectionInfo struct {
	Provider     string           `json:"provider"`
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	SocketPath   string           `json:"socket_path"`
	Status       ConnectionStatus `json:"status"`
	RegisteredAt time.Time        `json:"registered_at"`
}

// Local is an in-process Host that keeps providers and connections in memory.
type Local struct {
	mu        sync.RWMutex
	providers map[string]*localProvider
}

// NewLocal returns an empty Local host.
func NewLocal() *Local {
	return &Local{providers: make(map[string]*localProvider)}
}

// CreateProvider registers a new provider. IDs are unique until the provider
// is disposed.
func (l *Local) CreateProvider(o ProviderOptions) (Provider, error) {
	if o.ID == "" {
		return nil, fmt.Errorf("provider id required")
	}
	if o.Status == "" {
		o.Status = ProviderUnknown
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.providers[o.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, o.ID)
	}
	p := &localProvider{
		host:   l,
		id:     o.ID,
		name:   o.Name,
		status: o.Status,
		images: o.Images,
		conns:  make(map[int]*registration),
	}
	l.providers[o.ID] = p
	slog.Info("Provider created", "id", o.ID, "name", o.Name, "status", o.Status)
	return p, nil
}

// Provider looks up a provider by id.
func (l *Local) Provider(id string) (Provider, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.providers[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// Providers lists providers ordered by id.
func (l *Local) Providers() []ProviderInfo {
	l.mu.RLock()
	ps := make([]*localProvider, 0, len(l.providers))
	for _, p := range l.providers {
		ps = append(ps, p)
	}
	l.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connections lists every registered connection ordered by provider and
// registration time.
func (l *Local) Connections() []ConnectionInfo {
	l.mu.RLock()
	ps := make([]*localProvider, 0, len(l.providers))
	for _, p := range l.providers {
		ps = append(ps, p)
	}
	l.mu.RUnlock()

	var out []ConnectionInfo
	for _, p := range ps {
		out = append(out, p.connections()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

func (l *Local) remove(id string) {
	l.mu.Lock()
	delete(l.providers, id)
	l.mu.Unlock()
}

type localProvider struct {
	host *Local

	mu       sync.Mutex
	id       string
	name     string
	status   ProviderStatus
	images   Images
	conns    map[int]*registration
	nextID   int
	disposed bool
}

func (p *localProvider) ID() string { return p.id }

func (p *localProvider) UpdateStatus(s ProviderStatus) {
	p.mu.Lock()
	old := p.status
	p.status = s
	p.mu.Unlock()
	if old != s {
		slog.Debug("Provider status updated", "id", p.id, "from", old, "to", s)
	}
}

func (p *localProvider) Status() ProviderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *localProvider) RegisterConnection(d Descriptor) (Disposable, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisposed, p.id)
	}
	p.nextID++
	r := &registration{provider: p, id: p.nextID, desc: d, at: time.Now()}
	p.conns[r.id] = r
	slog.Info("Connection registered", "provider", p.id, "name", d.Name, "type", d.Type, "socket", d.SocketPath)
	return r, nil
}

// Dispose removes the provider and every connection it still holds.
func (p *localProvider) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.conns = make(map[int]*registration)
	p.mu.Unlock()
	p.host.remove(p.id)
	slog.Info("Provider disposed", "id", p.id)
}

func (p *localProvider) info() ProviderInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProviderInfo{ID: p.id, Name: p.name, Status: p.status, Images: p.images, Connections: len(p.conns)}
}

func (p *localProvider) connections() []ConnectionInfo {
	p.mu.Lock()
	regs := make([]*registration, 0, len(p.conns))
	for _, r := range p.conns {
		regs = append(regs, r)
	}
	p.mu.Unlock()

	out := make([]ConnectionInfo, 0, len(regs))
	for _, r := range regs {
		out = append(out, ConnectionInfo{
			Provider:     p.id,
			Name:         r.desc.Name,
			Type:         r.desc.Type,
			SocketPath:   r.desc.SocketPath,
			Status:       r.desc.Status(),
			RegisteredAt: r.at,
		})
	}
	return out
}

type registration struct {
	provider *localProvider
	id       int
	desc     Descriptor
	at       time.Time
	once     sync.Once
}

func (r *registration) Dispose() {
	r.once.Do(func() {
		p := r.provider
		p.mu.Lock()
		delete(p.conns, r.id)
		p.mu.Unlock()
		slog.Info("Connection unregistered", "provider", p.id, "name", r.desc.Name)
	})
}
