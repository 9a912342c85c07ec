// Package monitor drives the bridge process and its host registration from
// periodic runtime probes.
//
// One tick probes the runtime and reacts:
//
//	not installed         -> unknown, tear down
//	installed, not running -> stopped, tear down
//	running, bridge alive -> nothing to do, not even a status publish
//	running, no bridge    -> start bridge, wait the grace period, register
//
// Teardown always stops the bridge before unregistering the connection.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/metrics"
	"github.com/loykin/socktainerd/internal/probe"
	"github.com/loykin/socktainerd/internal/process"
	"github.com/loykin/socktainerd/internal/telemetry"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultStartupGrace = 2 * time.Second

	ConnectionName = "Apple"
	ConnectionType = "docker"
)

// Prober classifies the runtime.
type Prober interface {
	Probe(ctx context.Context) probe.Result
}

// Supervisor owns the bridge process.
type Supervisor interface {
	Start() (process.Handle, error)
	Stop()
	IsRunning() bool
}

// Registrar owns the host registration.
type Registrar interface {
	Register(d host.Descriptor) error
	Unregister()
	Registered() bool
}

// StatusUpdater receives every status the monitor publishes.
type StatusUpdater interface {
	UpdateStatus(s host.ProviderStatus)
}

// Options configures a Monitor. Probe, Supervisor and Registry are required.
type Options struct {
	Probe      Prober
	Supervisor Supervisor
	Registry   Registrar
	Provider   StatusUpdater  // optional
	Sink       telemetry.Sink // optional
	SocketPath string

	PollInterval time.Duration // DefaultPollInterval when zero
	StartupGrace time.Duration // DefaultStartupGrace when zero; negative disables
	Sleep        Sleeper       // TimerSleep when nil
	Readiness    ReadinessCheck
}

// Monitor is the status state machine. Ticks never overlap: Tick, Run and
// the teardown in Deactivate share one mutex.
type Monitor struct {
	opts Options

	mu sync.Mutex // serializes ticks and teardown

	status        atomic.Value // Status
	stopRequested atomic.Bool
	stopOnce      sync.Once
	stop          chan struct{}

	lmu       sync.Mutex
	conn      *connection
	listeners []func(old, new Status)
}

// connection is the descriptor state for one start transition.
type connection struct {
	desc    host.Descriptor
	started atomic.Bool
}

func (c *connection) phase() host.ConnectionStatus {
	if c.started.Load() {
		return host.ConnectionStarted
	}
	return host.ConnectionStarting
}

// New returns a Monitor in the Unknown state.
func New(opts Options) (*Monitor, error) {
	if opts.Probe == nil || opts.Supervisor == nil || opts.Registry == nil {
		return nil, errors.New("monitor: probe, supervisor and registry are required")
	}
	if opts.SocketPath == "" {
		return nil, errors.New("monitor: socket path required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StartupGrace == 0 {
		opts.StartupGrace = DefaultStartupGrace
	}
	if opts.Sleep == nil {
		opts.Sleep = TimerSleep
	}
	m := &Monitor{opts: opts, stop: make(chan struct{})}
	m.status.Store(Unknown)
	return m, nil
}

// Status returns the last published status.
func (m *Monitor) Status() Status { return m.status.Load().(Status) }

// Connected reports whether a bridge is alive or a connection is registered.
func (m *Monitor) Connected() bool {
	return m.opts.Supervisor.IsRunning() || m.opts.Registry.Registered()
}

// Connection returns the descriptor of the current start transition,
// including while the grace period is still running.
func (m *Monitor) Connection() (host.Descriptor, bool) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	if m.conn == nil {
		return host.Descriptor{}, false
	}
	return m.conn.desc, true
}

// OnStatus registers fn to be called on every status change.
func (m *Monitor) OnStatus(fn func(old, new Status)) {
	m.lmu.Lock()
	m.listeners = append(m.listeners, fn)
	m.lmu.Unlock()
}

// StopRequested reports whether Deactivate was called.
func (m *Monitor) StopRequested() bool { return m.stopRequested.Load() }

// Run ticks until ctx is done or Deactivate is called. The flag is checked
// before each tick only; a tick in flight always completes.
func (m *Monitor) Run(ctx context.Context) {
	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-sleepCtx.Done():
		}
	}()

	for !m.stopRequested.Load() && ctx.Err() == nil {
		m.Tick(ctx)
		if m.stopRequested.Load() || ctx.Err() != nil {
			break
		}
		_ = m.opts.Sleep(sleepCtx, m.opts.PollInterval)
	}
	slog.Info("status monitor stopped")
}

// Deactivate stops further ticks and tears down the bridge and its
// registration. It waits for a tick in flight and is safe to call twice.
func (m *Monitor) Deactivate() {
	m.stopRequested.Store(true)
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Connected() {
		m.cleanup()
	}
}

// Tick runs one probe-and-react cycle. Failures, including panics from
// collaborators, are logged and never returned. After Deactivate it does
// nothing.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRequested.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.IncTickFailure()
			slog.Error("Error updating container system status", "panic", r)
		}
	}()
	metrics.IncTick()
	m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) {
	res := m.opts.Probe.Probe(ctx)

	if !res.Installed {
		metrics.IncProbe("not_installed")
		m.setStatus(Unknown)
		if m.Connected() {
			m.cleanup()
		}
		return
	}
	if res.Running && m.opts.Supervisor.IsRunning() && m.opts.Registry.Registered() {
		metrics.IncProbe("running")
		slog.Debug("container provider connection already started")
		return
	}
	m.publish(Installed)

	if !res.Running {
		metrics.IncProbe("not_running")
		if m.Connected() {
			m.cleanup()
		}
		m.setStatus(Stopped)
		return
	}
	metrics.IncProbe("running")

	if m.opts.Supervisor.IsRunning() {
		// bridge alive without a registration
		m.cleanup()
	} else if m.opts.Registry.Registered() {
		slog.Warn("bridge process is gone, dropping its connection")
		m.cleanup()
	}

	m.setStatus(Ready)
	m.startAndRegister(ctx, res.Version)
}

func (m *Monitor) startAndRegister(ctx context.Context, version string) {
	h, err := m.opts.Supervisor.Start()
	if err != nil {
		slog.Error("failed to start bridge process", "error", err)
		return
	}

	c := &connection{}
	c.desc = host.Descriptor{
		Name:       ConnectionName,
		Type:       ConnectionType,
		SocketPath: m.opts.SocketPath,
		Status:     c.phase,
	}
	m.setConn(c)

	began := time.Now()
	if m.opts.StartupGrace > 0 {
		if err := m.opts.Sleep(ctx, m.opts.StartupGrace); err != nil {
			slog.Warn("startup grace interrupted, stopping bridge", "pid", h.PID, "error", err)
			m.cleanup()
			return
		}
	}
	metrics.ObserveStartupWait(time.Since(began).Seconds())

	if m.opts.Readiness != nil {
		if err := m.opts.Readiness(ctx, m.opts.SocketPath); err != nil {
			slog.Warn("bridge socket not ready after grace period", "socket", m.opts.SocketPath, "error", err)
		}
	}

	c.started.Store(true)
	if err := m.opts.Registry.Register(c.desc); err != nil {
		slog.Error("failed to register connection, stopping bridge", "error", err)
		m.cleanup()
		return
	}
	m.setStatus(Started)
	telemetry.Emit(ctx, m.opts.Sink, telemetry.NewEvent(
		telemetry.EventRegisteredConnection, map[string]string{"version": version}))
}

// cleanup stops the bridge, then unregisters its connection.
func (m *Monitor) cleanup() {
	m.opts.Supervisor.Stop()
	m.opts.Registry.Unregister()
	m.setConn(nil)
}

func (m *Monitor) setConn(c *connection) {
	m.lmu.Lock()
	m.conn = c
	m.lmu.Unlock()
}

// publish reports s to the provider only; the monitor's own status, its
// listeners and metrics are untouched.
func (m *Monitor) publish(s Status) {
	if p := m.opts.Provider; p != nil {
		p.UpdateStatus(s.ProviderStatus())
	}
}

func (m *Monitor) setStatus(s Status) {
	old := m.status.Swap(s).(Status)
	m.publish(s)
	if old == s {
		return
	}
	metrics.SetRuntimeStatus(string(s))
	metrics.RecordStatusTransition(string(old), string(s))
	slog.Debug("container runtime status changed", "from", old, "to", s)

	m.lmu.Lock()
	ls := slices.Clone(m.listeners)
	m.lmu.Unlock()
	for _, fn := range ls {
		fn(old, s)
	}
}
