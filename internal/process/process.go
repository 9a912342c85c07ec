// Package process supervises the bridge process: at most one live run,
// spawned without arguments, with its output logged line by line.
package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/socktainerd/internal/logger"
	"github.com/loykin/socktainerd/internal/metrics"
)

// ErrNotStarted is returned by operations that need a live run.
var ErrNotStarted = errors.New("bridge process not started")

// waitDelay bounds how long Wait keeps copying output after the process exits
// while a forked child still holds the pipes.
const waitDelay = 2 * time.Second

// Spec describes the bridge process.
type Spec struct {
	Name string        // used in log attributes and capture file names
	Path string        // resolved executable path
	Env  []string      // nil inherits the parent environment
	Log  logger.Config // optional raw output capture
}

// Supervisor owns at most one run of the bridge process.
// Start and Stop are safe for concurrent use, but callers are expected to
// drive them from a single loop.
type Supervisor struct {
	spec Spec

	mu        sync.Mutex
	cur       *run
	last      *run
	starts    int
	stoppedAt time.Time
	exitCode  *int
	exitErr   error
}

type run struct {
	cmd       *exec.Cmd
	handle    Handle
	waitDone  chan struct{} // closed once cmd.Wait returns
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	stdout    *lineWriter
	stderr    *lineWriter
}

// New returns a Supervisor for spec. Nothing is spawned until Start.
func New(spec Spec) *Supervisor {
	if spec.Name == "" {
		spec.Name = "socktainer"
	}
	return &Supervisor{spec: spec}
}

// Spec returns the configured spec.
func (s *Supervisor) Spec() Spec { return s.spec }

// Start spawns the bridge process unless a run is already alive, in which
// case the existing handle is returned and nothing is spawned.
func (s *Supervisor) Start() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return s.cur.handle, nil
	}

	name := s.spec.Name
	// #nosec G204
	cmd := exec.Command(s.spec.Path)
	cmd.Env = s.spec.Env
	configureSysProcAttr(cmd)
	cmd.WaitDelay = waitDelay

	r := &run{cmd: cmd, waitDone: make(chan struct{})}
	if s.spec.Log.Enabled() {
		r.outCloser, r.errCloser = s.spec.Log.Writers(name)
	}
	r.stdout = &lineWriter{
		emit: func(line string) { slog.Info("bridge output", "name", name, "line", line) },
		tee:  writerOrNil(r.outCloser),
	}
	r.stderr = &lineWriter{
		emit: func(line string) { slog.Error("bridge error output", "name", name, "line", line) },
		tee:  writerOrNil(r.errCloser),
	}
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	slog.Info("Starting bridge process", "name", name, "path", s.spec.Path)
	if err := cmd.Start(); err != nil {
		r.closeWriters()
		metrics.IncBridgeSpawnFailure()
		return Handle{}, fmt.Errorf("failed to start %s: %w", s.spec.Path, err)
	}

	r.handle = Handle{PID: cmd.Process.Pid, StartedAt: time.Now()}
	s.cur = r
	s.last = r
	s.starts++
	metrics.IncBridgeStart()
	metrics.SetBridgeRunning(true)

	go s.waitAndHandleExit(r)
	return r.handle, nil
}

// waitAndHandleExit is the exit observer: it records the exit code and clears
// the handle if r is still the current run.
func (s *Supervisor) waitAndHandleExit(r *run) {
	err := r.cmd.Wait()
	r.stdout.Flush()
	r.stderr.Flush()
	r.closeWriters()

	code := exitCode(err)
	s.mu.Lock()
	unexpected := s.cur == r
	if unexpected {
		s.cur = nil
	}
	s.stoppedAt = time.Now()
	s.exitCode = &code
	s.exitErr = err
	running := s.cur != nil
	s.mu.Unlock()
	close(r.waitDone)

	metrics.SetBridgeRunning(running)
	metrics.IncBridgeExit(unexpected)
	if unexpected {
		slog.Warn("bridge process exited unexpectedly", "name", s.spec.Name, "pid", r.handle.PID, "code", code)
		return
	}
	slog.Info("bridge process exited", "name", s.spec.Name, "pid", r.handle.PID, "code", code)
}

// Stop sends a terminate signal and clears the handle without waiting for the
// process to exit. It is a no-op when nothing runs.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	metrics.SetBridgeRunning(false)
	metrics.IncBridgeStop()
	slog.Info("Stopping bridge process", "name", s.spec.Name, "pid", r.handle.PID)
	if err := terminate(r.cmd.Process); err != nil {
		slog.Warn("failed to signal bridge process", "name", s.spec.Name, "pid", r.handle.PID, "error", err)
	}
}

// IsRunning reports whether a handle is held.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Current returns the live handle, if any.
func (s *Supervisor) Current() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Handle{}, false
	}
	return s.cur.handle, true
}

// Done returns a channel closed when the most recent run has exited, or nil
// if nothing was ever started.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.waitDone
}

// Snapshot returns a copy of the current status.
func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Name:      s.spec.Name,
		Path:      s.spec.Path,
		Running:   s.cur != nil,
		StoppedAt: s.stoppedAt,
		Starts:    s.starts,
	}
	if s.exitCode != nil {
		c := *s.exitCode
		st.ExitCode = &c
	}
	if s.exitErr != nil {
		st.ExitErr = s.exitErr.Error()
	}
	if s.cur != nil {
		st.PID = s.cur.handle.PID
		st.StartedAt = s.cur.handle.StartedAt
	}
	return st
}

func (r *run) closeWriters() {
	if r.outCloser != nil {
		_ = r.outCloser.Close()
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
	}
}

// writerOrNil avoids storing a typed nil in an io.Writer.
func writerOrNil(w io.WriteCloser) io.Writer {
	if w == nil {
		return nil
	}
	return w
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
