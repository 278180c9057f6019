// Package wait collects the status of the shell's jobs: it waits on the
// foreground job, hands it the terminal, and sweeps finished background
// jobs before each prompt.
package wait

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/jobs"
)

var ErrJobGone = errors.New("job no longer exists")

// Waiter waits on process groups tracked in a job table.
type Waiter struct {
	Jobs *jobs.Table
	// Term is nil for a non-interactive shell.
	Term Terminal
	// Err receives job notices such as "[1] Done".
	Err io.Writer
	// Color highlights job notices.
	Color bool
	Trace *log.Logger
}

var (
	doneColor    = color.New(color.FgGreen)
	termColor    = color.New(color.FgRed)
	stoppedColor = color.New(color.FgYellow)
)

func (w *Waiter) errOut() io.Writer {
	if w.Err == nil {
		return os.Stderr
	}
	return w.Err
}

func (w *Waiter) tracef(format string, args ...any) {
	if w.Trace != nil {
		w.Trace.Printf(format, args...)
	}
}

func (w *Waiter) notice(jid int, what string) {
	text := what
	if w.Color {
		switch what {
		case "Done":
			text = doneColor.Sprint(what)
		case "Terminated":
			text = termColor.Sprint(what)
		case "Stopped":
			text = stoppedColor.Sprint(what)
		}
	}
	fmt.Fprintf(w.errOut(), "[%d] %s\n", jid, text)
}

// ForegroundGroup continues pgid, gives it the terminal and waits until
// every member has terminated or one has stopped. It returns the shell
// status of the job: the exit code of the last member reaped, 128 plus the
// signal number for a signalled member, or 128 plus the stop signal when
// the job stopped. A finished job is removed from the table; a stopped job
// stays in it.
func (w *Waiter) ForegroundGroup(pgid int) (status int, err error) {
	jid, ok := w.Jobs.JobID(pgid)
	if !ok {
		return 0, fmt.Errorf("%w: %d", jobs.ErrUnknownGroup, pgid)
	}

	if err := unix.Kill(-pgid, unix.SIGCONT); err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			fmt.Fprintf(w.errOut(), "ash: job [%d] no longer exists\n", jid)
			return 0, fmt.Errorf("%w: [%d]", ErrJobGone, jid)
		case errors.Is(err, unix.EPERM):
			return 0, fmt.Errorf("kill(SIGCONT) [%d]: permission denied: %w", jid, err)
		}
		return 0, fmt.Errorf("kill(SIGCONT) [%d]: %w", jid, err)
	}

	if w.Term != nil {
		// Reclaim the terminal on every path below, including a failed
		// hand-over.
		defer func() {
			if rerr := w.Term.RestoreShell(); rerr != nil {
				fmt.Fprintf(w.errOut(), "ash: failed to restore shell as foreground process group: %v\n", rerr)
			}
		}()
		if err := w.Term.SetForeground(pgid); err != nil {
			fmt.Fprintf(w.errOut(), "ash: %v\n", err)
			return 0, err
		}
	}

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-pgid, &ws, unix.WUNTRACED, nil)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.ECHILD):
				done, serr := w.finish(jid, pgid)
				if serr != nil {
					return 0, serr
				}
				w.tracef("job [%d] pgid %d finished: %d", jid, pgid, core.StatusFromWait(done.Status))
				return core.StatusFromWait(done.Status), nil
			}
			return 0, fmt.Errorf("wait4(-%d): %w", pgid, err)
		}
		w.tracef("reaped pid %d of job [%d]: %#x", pid, jid, uint32(ws))
		if err := w.Jobs.SetStatus(jid, ws); err != nil {
			return 0, err
		}
		if ws.Stopped() {
			w.notice(jid, "Stopped")
			return core.StatusFromWait(ws), nil
		}
	}
}

// ForegroundJob is ForegroundGroup addressed by job id.
func (w *Waiter) ForegroundJob(jid int) (int, error) {
	pgid, ok := w.Jobs.ProcessGroup(jid)
	if !ok {
		return 0, fmt.Errorf("%w: %d", jobs.ErrUnknownJob, jid)
	}
	return w.ForegroundGroup(pgid)
}

// ContinueBackground resumes a stopped job without waiting for it.
func (w *Waiter) ContinueBackground(jid int) error {
	pgid, ok := w.Jobs.ProcessGroup(jid)
	if !ok {
		return fmt.Errorf("%w: %d", jobs.ErrUnknownJob, jid)
	}
	if err := unix.Kill(-pgid, unix.SIGCONT); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("%w: [%d]", ErrJobGone, jid)
		}
		return fmt.Errorf("kill(SIGCONT) [%d]: %w", jid, err)
	}
	if err := w.Jobs.SetState(jid, jobs.Running); err != nil {
		return err
	}
	fmt.Fprintf(w.errOut(), "[%d] %d\n", jid, pgid)
	return nil
}

// ReapBackground collects whatever the tracked jobs have to report without
// blocking. A job whose members are all gone is announced as Done or
// Terminated and removed; a job with a newly stopped member is announced as
// Stopped and kept.
func (w *Waiter) ReapBackground() error {
	for _, job := range w.Jobs.Snapshot() {
		if err := w.reapJob(job); err != nil {
			return err
		}
	}
	return nil
}

func (w *Waiter) reapJob(job jobs.Job) error {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-job.PGID, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.ECHILD):
				done, serr := w.finish(job.ID, job.PGID)
				if serr != nil {
					return serr
				}
				if done.Status.Signaled() {
					w.notice(done.ID, "Terminated")
				} else {
					w.notice(done.ID, done.State.String())
				}
				return nil
			}
			return fmt.Errorf("wait4(-%d): %w", job.PGID, err)
		}
		if pid == 0 {
			return nil
		}
		w.tracef("reaped pid %d of job [%d]: %#x", pid, job.ID, uint32(ws))
		if err := w.Jobs.SetStatus(job.ID, ws); err != nil {
			return err
		}
		if ws.Stopped() {
			w.notice(job.ID, "Stopped")
			return nil
		}
	}
}

// finish marks a job whose members are all gone as completed and stops
// tracking it. The returned copy is the job's final record.
func (w *Waiter) finish(jid, pgid int) (jobs.Job, error) {
	if err := w.Jobs.SetState(jid, jobs.Completed); err != nil {
		return jobs.Job{}, err
	}
	done, _ := w.Jobs.Lookup(jid)
	// Removal failure is not fatal: the job is finished either way.
	_ = w.Jobs.Remove(pgid)
	return done, nil
}

// List returns the tracked jobs ordered by id.
func (w *Waiter) List() []jobs.Job {
	return w.Jobs.Snapshot()
}
