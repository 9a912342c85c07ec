//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the bridge in its own process group so a stop
// reaches anything it forked.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group led by p.
func terminate(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGTERM)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// group may be gone while the leader lingers; signal it directly
	if err := p.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
