package monitor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrProbeFailed indicates the liveness probe itself could not run,
// as opposed to a definitive dead/alive answer.
var ErrProbeFailed = errors.New("process probe failed")

// ProcessRunning reports whether a process with the given pid is alive,
// using a null signal probe. A permission error still means the process
// exists, so it counts as running.
func ProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		// On unix FindProcess never fails, but keep the contract honest.
		return false, fmt.Errorf("%w: find pid %d: %v", ErrProbeFailed, pid, err)
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EPERM) {
		return true, nil
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false, nil
	}
	return false, fmt.Errorf("%w: signal pid %d: %v", ErrProbeFailed, pid, err)
}
