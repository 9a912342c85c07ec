// Package probe classifies the state of the native container runtime by
// running its CLI.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultBinary is where the Apple container CLI installs itself.
const DefaultBinary = "/usr/local/bin/container"

// DefaultTimeout bounds a single CLI invocation.
const DefaultTimeout = 10 * time.Second

// Result is the classification returned by Probe.
type Result struct {
	Installed bool   `json:"installed"`
	Running   bool   `json:"running"`
	Version   string `json:"version,omitempty"`
}

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s %s failed: %s: %w", name, strings.Join(args, " "), msg, err)
		}
		return "", fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// Probe runs the "installed" and "running" checks against the runtime CLI.
type Probe struct {
	Binary  string
	Timeout time.Duration
	Runner  Runner
}

// New returns a Probe for binary using the exec runner. An empty binary
// selects DefaultBinary.
func New(binary string, timeout time.Duration) *Probe {
	if binary == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{Binary: binary, Timeout: timeout, Runner: ExecRunner{}}
}

// Probe never fails: every error degrades the result and is logged.
// The status check only runs when the version check succeeded.
func (p *Probe) Probe(ctx context.Context) Result {
	var res Result

	out, err := p.run(ctx, "system", "--version")
	if err != nil {
		slog.Error("Error checking container system version", "binary", p.Binary, "error", err)
		return res
	}
	res.Installed = true
	res.Version = strings.TrimSpace(out)

	if _, err := p.run(ctx, "system", "status"); err != nil {
		slog.Error("Error checking container runtime status", "binary", p.Binary, "error", err)
		return res
	}
	res.Running = true
	return res
}

func (p *Probe) run(ctx context.Context, args ...string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	r := p.Runner
	if r == nil {
		r = ExecRunner{}
	}
	return r.Run(ctx, p.Binary, args...)
}
