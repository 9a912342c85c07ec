package client

import "time"

// Status mirrors GET /status.
type Status struct {
	Provider  string       `json:"provider"`
	Status    string       `json:"status"`
	Connected bool         `json:"connected"`
	Bridge    BridgeStatus `json:"bridge"`
}

// BridgeStatus is the supervisor snapshot of the bridge process.
type BridgeStatus struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	ExitErr   string    `json:"exit_error,omitempty"`
	Starts    int       `json:"starts"`
}

// Connection mirrors one entry of GET /connections.
type Connection struct {
	Provider     string    `json:"provider"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	SocketPath   string    `json:"socket_path"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Provider mirrors one entry of GET /providers.
type Provider struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Images      struct {
		Icon string `json:"icon,omitempty"`
		Logo string `json:"logo,omitempty"`
	} `json:"images"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
