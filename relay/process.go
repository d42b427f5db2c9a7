package relay

import (
	"errors"
	"os"
	"syscall"
)

// groupProcess signals the whole process group of a CLI started with
// Setpgid, so MCP servers and tool subprocesses go down with it.
type groupProcess struct {
	pid int
}

// Signal implements session.Process.
func (p groupProcess) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return errors.New("unsupported signal type")
	}
	if err := syscall.Kill(-p.pid, s); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

// Kill implements session.Process.
func (p groupProcess) Kill() error {
	return p.Signal(syscall.SIGKILL)
}
