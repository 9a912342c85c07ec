package monitor

import "github.com/loykin/socktainerd/internal/host"

// Status is the observed state of the container runtime. It says nothing
// about the bridge process itself. Installed is only ever reported to the
// provider, between the two probe steps; the monitor itself moves straight
// on to Ready or Stopped.
type Status string

const (
	Unknown   Status = "unknown"
	Installed Status = "installed"
	Ready     Status = "ready"
	Started   Status = "started"
	Stopped   Status = "stopped"
)

// ProviderStatus maps s onto the status reported to the host.
func (s Status) ProviderStatus() host.ProviderStatus { return host.ProviderStatus(s) }

func (s Status) String() string { return string(s) }
