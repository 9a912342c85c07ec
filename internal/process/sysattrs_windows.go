//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// CREATE_NEW_PROCESS_GROUP isolates the bridge from console control events.
const CREATE_NEW_PROCESS_GROUP = 0x00000200

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: CREATE_NEW_PROCESS_GROUP}
}

// terminate has no SIGTERM equivalent on Windows; the process is killed.
func terminate(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
