//go:build unix

package proc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// TakeStdout moves the protocol stream off file descriptor 1 and points
// fd 1 at stderr. It returns the protocol stream. Writers that captured
// os.Stdout earlier still write to fd 1, so they end up on stderr too.
func TakeStdout() (*os.File, error) {
	fd, err := unix.Dup(int(os.Stdout.Fd()))
	if err != nil {
		return nil, fmt.Errorf("proc: duplicating stdout: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Dup2(int(os.Stderr.Fd()), int(os.Stdout.Fd())); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("proc: redirecting stdout: %w", err)
	}

	return os.NewFile(uintptr(fd), "parmap-protocol"), nil
}
