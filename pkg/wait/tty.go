package wait

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/signals"
)

// Terminal hands the controlling terminal between process groups. A nil
// Terminal means the shell is not interactive and never touches it.
type Terminal interface {
	// SetForeground makes pgid the terminal's foreground process group.
	SetForeground(pgid int) error
	// RestoreShell makes the shell's own group the foreground group again.
	RestoreShell() error
}

// TTY is the Terminal backed by a real terminal device.
type TTY struct {
	fd      int
	signals *signals.Manager
}

// NewTTY returns a Terminal over f. sig, when non-nil, is used to ignore
// SIGTTOU while the foreground group is changed.
func NewTTY(f *os.File, sig *signals.Manager) *TTY {
	return &TTY{fd: int(f.Fd()), signals: sig}
}

// SetForeground makes pgid the foreground process group.
func (t *TTY) SetForeground(pgid int) error {
	set := func() error {
		if err := unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid); err != nil {
			switch {
			case errors.Is(err, unix.EPERM):
				return fmt.Errorf("process group [%d] does not belong to this session: %w", pgid, err)
			case errors.Is(err, unix.EINVAL):
				return fmt.Errorf("invalid process group [%d]: %w", pgid, err)
			}
			return fmt.Errorf("tcsetpgrp: %w", err)
		}
		return nil
	}
	if t.signals == nil {
		return set()
	}
	return t.signals.WithIgnored(unix.SIGTTOU, set)
}

// RestoreShell makes the shell's process group the foreground group.
func (t *TTY) RestoreShell() error {
	return t.SetForeground(unix.Getpgrp())
}

// Foreground returns the terminal's current foreground process group.
func (t *TTY) Foreground() (int, error) {
	pgid, err := unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
	if err != nil {
		return 0, fmt.Errorf("tcgetpgrp: %w", err)
	}
	return pgid, nil
}

// Claim prepares an interactive shell: it waits until the shell's group is
// in the foreground, moves the shell into a process group of its own and
// takes the terminal for that group.
func (t *TTY) Claim() error {
	for {
		fg, err := t.Foreground()
		if err != nil {
			return err
		}
		pgrp := unix.Getpgrp()
		if fg == pgrp {
			break
		}
		// Started in the background: stop until a job-control parent
		// brings us to the foreground.
		if err := unix.Kill(-pgrp, unix.SIGTTIN); err != nil {
			return fmt.Errorf("kill(SIGTTIN): %w", err)
		}
	}
	pid := unix.Getpid()
	if unix.Getpgrp() != pid {
		if err := unix.Setpgid(0, 0); err != nil && !errors.Is(err, unix.EPERM) {
			return fmt.Errorf("setpgid: %w", err)
		}
	}
	return t.SetForeground(unix.Getpgrp())
}
