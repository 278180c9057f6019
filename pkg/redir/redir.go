// Package redir applies I/O redirections.
//
// Commands that run in a child process get a FDTable: the child's
// descriptor table is assembled in the shell and handed to the process at
// start, so the shell's own descriptors are never touched. Built-ins that
// run inside the shell get a Record: a virtual table of pseudo-descriptors
// over the shell's real streams, discarded after the call.
package redir

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/syntax"
)

// FileMode is the mode new redirection targets are created with, before
// the umask.
const FileMode os.FileMode = 0777

// MaxFD bounds the descriptor numbers a redirection may name.
const MaxFD = 1024

// ErrBadFD is returned for a redirection naming a descriptor that is not
// open.
var ErrBadFD = unix.EBADF

// Opener opens redirection targets. *sandbox.Policy implements it for
// restricted mode.
type Opener interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
}

// OSOpener opens files with os.OpenFile.
type OSOpener struct{}

func (OSOpener) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm) // #nosec G304 -- redirection target named by the user
}

// OpenFlags returns the open(2) flags for op. Plain '>' refuses to
// overwrite; '>|' is the explicit clobber.
func OpenFlags(op syntax.RedirOp) int {
	switch op {
	case syntax.RedirIn, syntax.RedirDupIn:
		return os.O_RDONLY
	case syntax.RedirOut, syntax.RedirDupOut:
		return os.O_WRONLY | os.O_CREATE | os.O_EXCL
	case syntax.RedirAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case syntax.RedirReadWrite:
		return os.O_RDWR | os.O_CREATE
	case syntax.RedirClobber:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	return os.O_RDONLY
}

// ParseFD parses a duplication source. Anything that is not a plain
// non-negative decimal reports false, and the caller treats the target as a
// filename instead.
func ParseFD(s string) (int, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDup(op syntax.RedirOp) bool {
	return op == syntax.RedirDupIn || op == syntax.RedirDupOut
}

func badFD(fd int) error {
	return fmt.Errorf("%d: %w", fd, ErrBadFD)
}

func checkFD(fd int) error {
	if fd < 0 || fd >= MaxFD {
		return badFD(fd)
	}
	return nil
}

func openTarget(r syntax.Redirection, opener Opener, trace *log.Logger) (*os.File, error) {
	if opener == nil {
		opener = OSOpener{}
	}
	flags := OpenFlags(r.Op)
	if trace != nil {
		trace.Printf("open %q flags %#o for fd %d", r.Target, flags, r.FD)
	}
	return opener.OpenFile(r.Target, flags, FileMode)
}

// dupFile duplicates f onto a new close-on-exec descriptor.
func dupFile(f *os.File) (*os.File, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var nfd int
	var dupErr error
	if err := rc.Control(func(fd uintptr) {
		nfd, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, os.NewSyscallError("fcntl", dupErr)
	}
	return os.NewFile(uintptr(nfd), f.Name()), nil
}

// dupShellFD duplicates descriptor fd of the shell itself, for a
// duplication whose source no earlier redirection mapped. Descriptors 0 to
// 2 are always mapped, so they never get here.
func dupShellFD(fd int) (*os.File, error) {
	if fd <= 2 {
		return nil, badFD(fd)
	}
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		if errors.Is(err, unix.EBADF) {
			return nil, badFD(fd)
		}
		return nil, os.NewSyscallError("fcntl", err)
	}
	return os.NewFile(uintptr(nfd), "fd "+strconv.Itoa(fd)), nil
}

func closeAll(files []*os.File) error {
	var errs []error
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
