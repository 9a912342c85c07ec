// Package socktainerd exposes the Apple container runtime to a host as a
// Docker-compatible connection served by the socktainer bridge.
package socktainerd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/socktainerd/internal/config"
	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/logger"
	"github.com/loykin/socktainerd/internal/monitor"
	"github.com/loykin/socktainerd/internal/probe"
	"github.com/loykin/socktainerd/internal/process"
	"github.com/loykin/socktainerd/internal/registry"
	"github.com/loykin/socktainerd/internal/telemetry"
)

// Re-export core types for external consumers.

type Status = monitor.Status

type Descriptor = host.Descriptor

type BridgeStatus = process.Status

type ProbeResult = probe.Result

type Sink = telemetry.Sink

type Event = telemetry.Event

const (
	ProviderID   = "apple-container"
	ProviderName = "Apple"
)

// ProviderImages is the icon set shown for the provider.
var ProviderImages = host.Images{Icon: "./icon.png", Logo: "./logo.png"}

// ErrActive is returned by Activate when the extension is already active.
var ErrActive = errors.New("extension already active")

// Options wires an Extension. Zero values select the defaults.
type Options struct {
	Host host.Host // in-memory host when nil

	RuntimeBinary  string
	RuntimeTimeout time.Duration
	Prober         monitor.Prober // overrides RuntimeBinary/RuntimeTimeout

	BridgePath string // resolved bridge binary
	BridgeEnv  []string
	BridgeLog  logger.Config
	SocketPath string // <home>/.socktainer/container.sock when empty

	PollInterval   time.Duration
	StartupGrace   time.Duration
	ReadinessCheck bool
	Sleep          monitor.Sleeper

	Sink telemetry.Sink // usage events are logged when nil
}

// Extension owns one provider and the monitor driving it. State is rebuilt
// on every Activate.
type Extension struct {
	opts Options
	host host.Host

	mu         sync.Mutex
	provider   host.Provider
	supervisor *process.Supervisor
	monitor    *monitor.Monitor
	cancel     context.CancelFunc
	done       chan struct{}
}

// New returns an inactive Extension.
func New(opts Options) *Extension {
	h := opts.Host
	if h == nil {
		h = host.NewLocal()
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.LogSink{}
	}
	return &Extension{opts: opts, host: h}
}

// FromConfig builds Options from a loaded configuration.
func FromConfig(c *config.Config) (Options, error) {
	bridge, err := c.Bridge.ResolveBridgePath()
	if err != nil {
		return Options{}, err
	}
	environ, err := c.Bridge.Environ()
	if err != nil {
		return Options{}, fmt.Errorf("failed to build bridge environment: %w", err)
	}
	return Options{
		RuntimeBinary:  c.Runtime.Binary,
		RuntimeTimeout: c.Runtime.Timeout,
		BridgePath:     bridge,
		BridgeEnv:      environ,
		BridgeLog:      c.Bridge.Log,
		PollInterval:   c.Monitor.PollInterval,
		StartupGrace:   startupGrace(c.Monitor.StartupGrace),
		ReadinessCheck: c.Monitor.ReadinessCheck,
	}, nil
}

// startupGrace maps an explicit zero from config to "no grace period".
func startupGrace(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// Host returns the host the provider is registered with.
func (e *Extension) Host() host.Host { return e.host }

// Monitor returns the monitor of the current activation, or nil.
func (e *Extension) Monitor() *monitor.Monitor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor
}

// Supervisor returns the bridge supervisor of the current activation, or nil.
func (e *Extension) Supervisor() *process.Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.supervisor
}

// Activate creates the provider with status unknown and starts monitoring
// in the background.
func (e *Extension) Activate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitor != nil {
		return ErrActive
	}

	socket := e.opts.SocketPath
	if socket == "" {
		var err error
		if socket, err = config.SocketPath(); err != nil {
			return err
		}
	}

	provider, err := e.host.CreateProvider(host.ProviderOptions{
		ID:     ProviderID,
		Name:   ProviderName,
		Status: host.ProviderUnknown,
		Images: ProviderImages,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	prober := e.opts.Prober
	if prober == nil {
		prober = probe.New(e.opts.RuntimeBinary, e.opts.RuntimeTimeout)
	}
	sup := process.New(process.Spec{
		Path: e.opts.BridgePath,
		Env:  e.opts.BridgeEnv,
		Log:  e.opts.BridgeLog,
	})
	var readiness monitor.ReadinessCheck
	if e.opts.ReadinessCheck {
		readiness = monitor.DockerPing
	}
	m, err := monitor.New(monitor.Options{
		Probe:        prober,
		Supervisor:   sup,
		Registry:     registry.New(provider),
		Provider:     provider,
		Sink:         e.opts.Sink,
		SocketPath:   socket,
		PollInterval: e.opts.PollInterval,
		StartupGrace: e.opts.StartupGrace,
		Sleep:        e.opts.Sleep,
		Readiness:    readiness,
	})
	if err != nil {
		provider.Dispose()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.provider, e.supervisor, e.monitor = provider, sup, m
	e.cancel, e.done = cancel, done

	slog.Info("Activating container provider", "provider", ProviderID, "bridge", e.opts.BridgePath, "socket", socket)
	go func() {
		defer close(done)
		m.Run(runCtx)
	}()
	return nil
}

// Deactivate stops monitoring, tears down the bridge and its connection and
// disposes the provider. It is a no-op when inactive.
func (e *Extension) Deactivate() {
	e.mu.Lock()
	m, cancel, done, provider := e.monitor, e.cancel, e.done, e.provider
	e.monitor, e.cancel, e.done, e.provider, e.supervisor = nil, nil, nil, nil, nil
	e.mu.Unlock()
	if m == nil {
		return
	}

	m.Deactivate()
	cancel()
	<-done
	provider.Dispose()
	slog.Info("Container provider deactivated", "provider", ProviderID)
}
