package process

import "time"

// Handle identifies one live run of the bridge process.
type Handle struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"` // last observed exit code; nil until a run exits
	ExitErr   string    `json:"exit_error,omitempty"`
	Starts    int       `json:"starts"`
}
