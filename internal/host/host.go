// Package host models the registration surface the connection is published
// to: providers with a status and the container connections they expose.
package host

import "errors"

// ProviderStatus is the status a provider reports to the host.
type ProviderStatus string

const (
	ProviderUnknown   ProviderStatus = "unknown"
	ProviderInstalled ProviderStatus = "installed"
	ProviderReady     ProviderStatus = "ready"
	ProviderStarted   ProviderStatus = "started"
	ProviderStopped   ProviderStatus = "stopped"
)

// ConnectionStatus is the lifecycle phase a registered connection reports.
type ConnectionStatus string

const (
	ConnectionStarting ConnectionStatus = "starting"
	ConnectionStarted  ConnectionStatus = "started"
)

// Descriptor describes how the host reaches a container engine connection.
// Status is polled by the host; it is never pushed.
type Descriptor struct {
	Name       string
	Type       string
	SocketPath string
	Status     func() ConnectionStatus
}

// Validate checks that d can be registered.
func (d Descriptor) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("connection name required")
	case d.SocketPath == "":
		return errors.New("connection socket path required")
	case d.Status == nil:
		return errors.New("connection status accessor required")
	}
	return nil
}

// Disposable releases a host-side resource. Dispose must be idempotent.
type Disposable interface {
	Dispose()
}

// Images is the icon set shown for a provider.
type Images struct {
	Icon string `json:"icon,omitempty"`
	Logo string `json:"logo,omitempty"`
}

// ProviderOptions are passed to CreateProvider.
type ProviderOptions struct {
	ID     string
	Name   string
	Status ProviderStatus
	Images Images
}

// ConnectionRegistrar registers connections and hands back the disposable
// needed to unregister them.
type ConnectionRegistrar interface {
	RegisterConnection(d Descriptor) (Disposable, error)
}

// Provider is a host-side provider handle.
type Provider interface {
	ConnectionRegistrar
	Disposable
	ID() string
	UpdateStatus(s ProviderStatus)
	Status() ProviderStatus
}

// Host creates providers.
type Host interface {
	CreateProvider(o ProviderOptions) (Provider, error)
}

var (
	ErrDuplicateProvider = errors.New("provider already exists")
	ErrProviderDisposed  = errors.New("provider disposed")
)
