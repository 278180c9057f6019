// Package runner executes parsed command lists: it builds pipelines, places
// every chain in its own process group, registers the group as a job and
// either waits for it or leaves it running in the background.
package runner

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/builtins"
	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/expand"
	"github.com/rcarmo/go-ash/pkg/jobs"
	"github.com/rcarmo/go-ash/pkg/redir"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/vars"
	"github.com/rcarmo/go-ash/pkg/wait"
)

// Dispatcher resolves built-in commands.
type Dispatcher interface {
	Lookup(name string) (builtins.Func, bool)
}

// Interrupter lets an interrupt cut short a built-in reading inside the
// shell. *signals.Manager implements it.
type Interrupter interface {
	ClearInterrupts()
	Reader(f *os.File) io.Reader
}

// Config wires a Runner to the rest of the shell.
type Config struct {
	Jobs   *jobs.Table
	Waiter *wait.Waiter
	Vars   *vars.Store
	// Expander defaults to one over Vars that also resolves $?, $$ and $!.
	Expander *expand.Expander
	Builtins Dispatcher

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Opener opens redirection targets. Nil means the plain filesystem.
	Opener redir.Opener
	// Self is the executable re-run for built-ins that need their own
	// process. Defaults to os.Executable.
	Self string
	// Exited, when set, is checked after every command; once it reports
	// true the rest of the list is skipped.
	Exited func() bool
	// Interrupter, when set, makes the standard input of inline
	// built-ins interruptible.
	Interrupter Interrupter
	Trace       *log.Logger
}

// Runner executes command lists against one shell state.
type Runner struct {
	cfg    Config
	status int
	lastBg int
}

// pipeline carries state from one command of a chain to the next.
type pipeline struct {
	// upstream is the read end of the pipe feeding the next command.
	upstream *os.File
	pgid     int
	jid      int
}

func (p *pipeline) reset() {
	if p.upstream != nil {
		_ = p.upstream.Close()
	}
	*p = pipeline{}
}

// New returns a runner for cfg.
func New(cfg Config) (*Runner, error) {
	if cfg.Jobs == nil || cfg.Waiter == nil || cfg.Vars == nil {
		return nil, errors.New("runner: jobs, waiter and vars are required")
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Opener == nil {
		cfg.Opener = redir.OSOpener{}
	}
	if cfg.Self == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		cfg.Self = self
	}
	r := &Runner{cfg: cfg}
	if r.cfg.Expander == nil {
		r.cfg.Expander = &expand.Expander{Vars: cfg.Vars, Special: r.special}
	}
	return r, nil
}

// Status returns the status of the last command run, as $? reports it.
func (r *Runner) Status() int {
	return r.status
}

// SetStatus overrides the status, for errors found before Run.
func (r *Runner) SetStatus(code int) {
	r.status = code
}

// LastBackground returns the pid of the last process started in the
// background, or 0.
func (r *Runner) LastBackground() int {
	return r.lastBg
}

func (r *Runner) special(c byte) (string, bool) {
	switch c {
	case '?':
		return strconv.Itoa(r.status), true
	case '$':
		return strconv.Itoa(os.Getpid()), true
	case '!':
		if r.lastBg == 0 {
			return "", true
		}
		return strconv.Itoa(r.lastBg), true
	}
	return "", false
}

func (r *Runner) tracef(format string, args ...any) {
	if r.cfg.Trace != nil {
		r.cfg.Trace.Printf(format, args...)
	}
}

func (r *Runner) errorf(format string, args ...any) {
	fmt.Fprintf(r.cfg.Stderr, "ash: "+format+"\n", args...)
}

// Run executes cl. Failures of a single command, such as a missing program
// or a redirection that cannot be opened, only set the status to 127. An
// error is returned when the list itself cannot continue; any partially
// started chain is killed and left for the background sweep to report.
func (r *Runner) Run(cl syntax.CommandList) error {
	if err := cl.Validate(); err != nil {
		return err
	}
	var p pipeline
	for _, cmd := range cl {
		if err := r.runCommand(&p, cmd); err != nil {
			r.abort(&p)
			return err
		}
		if r.cfg.Exited != nil && r.cfg.Exited() {
			p.reset()
			break
		}
	}
	return nil
}

// abort kills whatever part of the current chain is already running.
func (r *Runner) abort(p *pipeline) {
	if p.pgid != 0 {
		r.tracef("abort: killing pgid %d", p.pgid)
		_ = unix.Kill(-p.pgid, unix.SIGKILL)
	}
	p.reset()
}

func (r *Runner) runCommand(p *pipeline, cmd *syntax.Command) error {
	if err := r.cfg.Expander.Command(cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	r.tracef("run %s", cmd)

	var downstream *os.File
	if cmd.Op == syntax.Pipe {
		pr, pw, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("pipe: %w", err)
		}
		downstream = pw
		defer func() {
			if p.upstream != nil {
				_ = p.upstream.Close()
			}
			p.upstream = pr
		}()
	}

	fn, builtin := r.lookupBuiltin(cmd)
	if builtin && cmd.Op == syntax.Sequential {
		return r.runInline(p, cmd, fn)
	}

	pid, started := r.start(p, cmd, builtin, downstream)
	// The child holds its own copies. Keeping ours would stop an earlier
	// stage from seeing EPIPE once this one exits.
	if downstream != nil {
		_ = downstream.Close()
	}
	if p.upstream != nil {
		_ = p.upstream.Close()
		p.upstream = nil
	}
	if started {
		if err := r.join(p, pid); err != nil {
			return err
		}
	}

	switch cmd.Op {
	case syntax.Pipe:
		return nil
	case syntax.Background:
		if started {
			r.lastBg = pid
		}
		if p.pgid != 0 {
			fmt.Fprintf(r.cfg.Stderr, "[%d] %d\n", p.jid, p.pgid)
		}
		r.status = core.ExitSuccess
		if !started {
			r.status = core.ExitCannotRun
		}
		p.reset()
		return nil
	}

	status := core.ExitCannotRun
	if p.pgid != 0 {
		got, err := r.cfg.Waiter.ForegroundGroup(p.pgid)
		if err != nil {
			p.reset()
			return err
		}
		if started {
			status = got
		}
	}
	r.status = status
	p.reset()
	return nil
}

// lookupBuiltin treats a command without words as a built-in that does
// nothing, so its assignments land in the shell.
func (r *Runner) lookupBuiltin(cmd *syntax.Command) (builtins.Func, bool) {
	name := cmd.Name()
	if name == "" {
		return func(*syntax.Command, *redir.Record) int { return core.ExitSuccess }, true
	}
	if r.cfg.Builtins == nil {
		return nil, false
	}
	return r.cfg.Builtins.Lookup(name)
}

// runInline runs a built-in inside the shell so it can change shell state.
// When it ends a pipeline, the earlier stages are waited for afterwards
// and the built-in's status wins.
func (r *Runner) runInline(p *pipeline, cmd *syntax.Command, fn builtins.Func) error {
	rec := redir.NewRecord(&core.Stdio{In: r.cfg.Stdin, Out: r.cfg.Stdout, Err: r.cfg.Stderr})
	rec.Trace = r.cfg.Trace
	if r.cfg.Interrupter != nil {
		r.cfg.Interrupter.ClearInterrupts()
		rec.Input = r.cfg.Interrupter.Reader
	}
	if p.upstream != nil {
		rec.Map(0, p.upstream)
		p.upstream = nil
	}
	status := r.callInline(cmd, fn, rec)
	if err := rec.Close(); err != nil {
		r.tracef("closing redirections of %s: %v", cmd.Name(), err)
	}

	if p.pgid != 0 {
		if _, err := r.cfg.Waiter.ForegroundGroup(p.pgid); err != nil {
			p.reset()
			return err
		}
	}
	r.status = status
	p.reset()
	return nil
}

func (r *Runner) callInline(cmd *syntax.Command, fn builtins.Func, rec *redir.Record) int {
	if err := rec.Apply(cmd.Redirs, r.cfg.Opener); err != nil {
		r.errorf("%v", err)
		return core.ExitCannotRun
	}
	if err := r.cfg.Vars.Apply(cmd.Assignments, false); err != nil {
		r.errorf("%v", err)
		return core.ExitCannotRun
	}
	if fn(cmd, rec) != core.ExitSuccess {
		return core.ExitCannotRun
	}
	return core.ExitSuccess
}

// start launches cmd as a child in the chain's process group. Failures
// that leave no process are reported here and yield started == false.
func (r *Runner) start(p *pipeline, cmd *syntax.Command, builtin bool, downstream *os.File) (int, bool) {
	table := redir.NewFDTable(r.cfg.Stdin, r.cfg.Stdout, r.cfg.Stderr)
	table.Trace = r.cfg.Trace
	defer func() {
		if err := table.Close(); err != nil {
			r.tracef("closing redirections of %s: %v", cmd.Name(), err)
		}
	}()
	if p.upstream != nil {
		table.Set(0, p.upstream)
	}
	if downstream != nil {
		table.Set(1, downstream)
	}
	if err := table.Apply(cmd.Redirs, r.cfg.Opener); err != nil {
		r.errorf("%v", err)
		return 0, false
	}

	var (
		path string
		argv []string
		env  []string
		err  error
	)
	if builtin {
		path, argv, env, err = r.builtinChild(cmd)
	} else {
		path, argv, env, err = r.externalChild(cmd)
	}
	if err != nil {
		r.errorf("%v", err)
		return 0, false
	}

	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   env,
		Files: table.Files(),
		Sys:   &syscall.SysProcAttr{Setpgid: true, Pgid: p.pgid},
	})
	if err != nil {
		r.errorf("%s: %v", cmd.Name(), unwrapPath(err))
		return 0, false
	}
	pid := proc.Pid
	// The pid is reaped through wait4 on the process group.
	_ = proc.Release()
	r.tracef("started %s as pid %d in pgid %d", cmd.Name(), pid, p.pgid)
	return pid, true
}

func (r *Runner) externalChild(cmd *syntax.Command) (string, []string, []string, error) {
	env := r.cfg.Vars.Clone()
	if err := env.Apply(cmd.Assignments, true); err != nil {
		return "", nil, nil, err
	}
	path, err := lookPath(cmd.Name(), env.Get("PATH"))
	if err != nil {
		return "", nil, nil, err
	}
	return path, cmd.Words, env.Environ(), nil
}

// join puts pid into the chain's process group from the parent side and
// registers the chain as a job when pid is its first process.
func (r *Runner) join(p *pipeline, pid int) error {
	pgid := p.pgid
	if pgid == 0 {
		pgid = pid
	}
	raced, err := joinGroup(pid, pgid)
	if err != nil {
		if p.pgid == 0 {
			// Nothing tracks this process yet, so reap it here.
			killAndReap(pid)
		}
		return fmt.Errorf("setpgid(%d, %d): %w", pid, pgid, err)
	}
	if raced {
		r.tracef("setpgid(%d, %d): child got there first", pid, pgid)
	}
	if p.pgid != 0 {
		return nil
	}
	jid, err := r.cfg.Jobs.Add(pgid)
	if err != nil {
		killAndReap(pid)
		return err
	}
	p.pgid, p.jid = pgid, jid
	return nil
}

// joinGroup repeats the child's setpgid. EACCES means the child already
// exec'd, and so already made the same call itself.
func joinGroup(pid, pgid int) (raced bool, err error) {
	err = unix.Setpgid(pid, pgid)
	if errors.Is(err, unix.EACCES) {
		return true, nil
	}
	return false, err
}

func killAndReap(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if !errors.Is(err, unix.EINTR) {
			return
		}
	}
}

func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
