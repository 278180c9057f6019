// Package signals manages the shell's own signal dispositions.
//
// A job-control shell must not be stopped by ^Z, interrupted by ^C or
// stopped by SIGTTOU while it hands the terminal around, yet the children it
// starts need the dispositions the shell itself inherited. The Manager keeps
// those signals caught (and discarded) instead of ignored: exec resets caught
// signals to their default action but preserves ignored ones, so children
// start with the dispositions recorded at Init. Signals that were already
// ignored when the shell started stay ignored everywhere.
package signals

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	ErrInitialized    = errors.New("signal manager already initialized")
	ErrNotInitialized = errors.New("signal manager not initialized")
	ErrUncatchable    = errors.New("signal cannot be caught or ignored")
	ErrInvalidSignal  = errors.New("invalid signal")
)

// JobControl lists the signals the shell shields itself from.
var JobControl = []syscall.Signal{unix.SIGTSTP, unix.SIGINT, unix.SIGTTOU}

type disposition int

const (
	dispDefault disposition = iota
	dispCaught
	dispIgnored
)

// Manager owns the process-wide signal dispositions. Create one per shell
// and pass it by reference. It is not safe for concurrent use.
type Manager struct {
	initialized bool
	// snapshot records, per job-control signal, whether it was ignored
	// when the shell started.
	snapshot   map[syscall.Signal]bool
	current    map[syscall.Signal]disposition
	discard    chan os.Signal
	interrupts chan os.Signal
	// wake is a non-blocking pipe written once per interrupt; see Reader.
	wake   [2]int
	waking bool
}

// New returns a Manager that has not touched any disposition yet.
func New() *Manager {
	return &Manager{
		snapshot: map[syscall.Signal]bool{},
		current:  map[syscall.Signal]disposition{},
		// Never drained: the runtime drops deliveries once it is full.
		discard:    make(chan os.Signal, 1),
		interrupts: make(chan os.Signal, 1),
	}
}

// Init records the startup dispositions of the job-control signals and
// shields the shell from them. It may be called once.
func (m *Manager) Init() error {
	if m.initialized {
		return ErrInitialized
	}
	for _, sig := range JobControl {
		ignored := signal.Ignored(sig)
		m.snapshot[sig] = ignored
		if ignored {
			m.current[sig] = dispIgnored
			continue
		}
		m.set(sig, dispCaught)
	}
	m.initialized = true
	return nil
}

// Initialized reports whether Init has run.
func (m *Manager) Initialized() bool {
	return m.initialized
}

// IgnoredAtStart reports whether sig was ignored when Init ran.
func (m *Manager) IgnoredAtStart(sig syscall.Signal) bool {
	return m.snapshot[sig]
}

// EnableInterrupt makes sig cut short any read going through Reader, without
// otherwise affecting the shell. Previous state is not saved.
func (m *Manager) EnableInterrupt(sig syscall.Signal) error {
	if err := validate(sig); err != nil {
		return err
	}
	if m.snapshot[sig] {
		// The shell was started with sig ignored; honour that.
		return nil
	}
	if err := m.startWake(); err != nil {
		return err
	}
	signal.Notify(m.interrupts, sig)
	m.current[sig] = dispCaught
	return nil
}

// Ignore sets sig to be ignored without saving previous state.
func (m *Manager) Ignore(sig syscall.Signal) error {
	if err := validate(sig); err != nil {
		return err
	}
	m.set(sig, dispIgnored)
	return nil
}

// WithIgnored runs fn with sig truly ignored, then puts the previous
// disposition back. The terminal hand-over runs under SIGTTOU this way.
func (m *Manager) WithIgnored(sig syscall.Signal, fn func() error) error {
	if err := validate(sig); err != nil {
		return err
	}
	prev := m.current[sig]
	if prev == dispIgnored {
		return fn()
	}
	signal.Ignore(sig)
	defer m.set(sig, prev)
	return fn()
}

// Restore reinstates the dispositions recorded by Init.
func (m *Manager) Restore() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	for _, sig := range JobControl {
		if m.snapshot[sig] {
			m.set(sig, dispIgnored)
		} else {
			m.set(sig, dispDefault)
		}
	}
	return nil
}

func (m *Manager) set(sig syscall.Signal, d disposition) {
	switch d {
	case dispDefault:
		// Reset alone does not undo an Ignore; notifying first hands the
		// signal back to the runtime so Reset can restore it.
		signal.Notify(m.discard, sig)
		signal.Reset(sig)
	case dispCaught:
		signal.Notify(m.discard, sig)
	case dispIgnored:
		signal.Ignore(sig)
	}
	m.current[sig] = d
}

func validate(sig syscall.Signal) error {
	switch {
	case sig <= 0 || sig >= maxSignal:
		return fmt.Errorf("%w: %d", ErrInvalidSignal, int(sig))
	case sig == unix.SIGKILL || sig == unix.SIGSTOP:
		return fmt.Errorf("%w: %s", ErrUncatchable, Name(sig))
	}
	return nil
}
