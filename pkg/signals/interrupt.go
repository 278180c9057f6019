package signals

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrInterrupted is returned by a Reader whose read was cut short.
var ErrInterrupted = errors.New("interrupted")

func (m *Manager) startWake() error {
	if m.waking {
		return nil
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return os.NewSyscallError("pipe2", err)
	}
	m.wake, m.waking = fds, true
	go func(w int) {
		for range m.interrupts {
			// A full pipe already holds a pending interrupt.
			_, _ = unix.Write(w, []byte{0})
		}
	}(fds[1])
	return nil
}

// ClearInterrupts forgets interrupts that arrived while nothing was
// reading, so they do not cut short the next read.
func (m *Manager) ClearInterrupts() {
	if m.waking {
		drain(m.wake[0])
	}
}

// Reader returns f wrapped so that a read blocked on it returns
// ErrInterrupted once an interrupt enabled by EnableInterrupt arrives.
// Input is never consumed on that path. Without EnableInterrupt, f is
// returned as is.
func (m *Manager) Reader(f *os.File) io.Reader {
	if !m.waking {
		return f
	}
	return &interruptReader{f: f, wake: m.wake[0]}
}

type interruptReader struct {
	f    *os.File
	wake int
}

func (r *interruptReader) Read(p []byte) (int, error) {
	rc, err := r.f.SyscallConn()
	if err != nil {
		return r.f.Read(p)
	}
	fd := -1
	if err := rc.Control(func(u uintptr) { fd = int(u) }); err != nil {
		return r.f.Read(p)
	}
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: unix.POLLIN},
		{Fd: int32(r.wake), Events: unix.POLLIN},
	}
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, os.NewSyscallError("poll", err)
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			drain(r.wake)
			return 0, ErrInterrupted
		}
		if fds[0].Revents != 0 {
			return r.f.Read(p)
		}
	}
}

func drain(fd int) {
	var buf [16]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n > 0 || errors.Is(err, unix.EINTR) {
			continue
		}
		return
	}
}
