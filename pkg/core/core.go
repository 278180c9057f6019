// Package core provides the stdio and exit status conventions shared by the
// shell's packages.
package core

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Exit codes following POSIX conventions
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
	// ExitCannotRun is reported for a command that never ran: lookup,
	// redirection, assignment and exec failures all end up here.
	ExitCannotRun = 127
	// SignalBase is added to a signal number to form the status of a
	// command killed or stopped by that signal.
	SignalBase = 128
)

// Stdio holds the standard I/O streams for a command.
// This allows for easy testing by injecting mock streams.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// DefaultStdio returns Stdio configured with os.Stdin, os.Stdout, os.Stderr.
func DefaultStdio() *Stdio {
	return &Stdio{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
	}
}

// Errorf writes a formatted error message to stderr.
func (s *Stdio) Errorf(format string, args ...any) {
	fmt.Fprintf(s.Err, format, args...)
}

// Printf writes a formatted message to stdout.
func (s *Stdio) Printf(format string, args ...any) {
	fmt.Fprintf(s.Out, format, args...)
}

// Print writes a message to stdout.
func (s *Stdio) Print(args ...any) {
	fmt.Fprint(s.Out, args...)
}

// Println writes a message to stdout with a newline.
func (s *Stdio) Println(args ...any) {
	fmt.Fprintln(s.Out, args...)
}

// UsageError prints a usage error and returns ExitUsage.
func UsageError(stdio *Stdio, name, message string) int {
	stdio.Errorf("%s: %s\n", name, message)
	return ExitUsage
}

// FileError prints a file-related error and returns ExitFailure.
func FileError(stdio *Stdio, name, path string, err error) int {
	stdio.Errorf("%s: %s: %v\n", name, path, err)
	return ExitFailure
}

// StatusFromWait translates a wait status into a shell exit status.
func StatusFromWait(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return SignalBase + int(ws.Signal())
	case ws.Stopped():
		return SignalBase + int(ws.StopSignal())
	}
	return ExitSuccess
}
