// Package shell assembles the job-control shell: it wires the signal
// manager, job table, waiter, built-ins and runner together and reads
// command lines from a script, a -c string or an interactive terminal.
package shell

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/rcarmo/go-ash/pkg/builtins"
	"github.com/rcarmo/go-ash/pkg/config"
	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/jobs"
	"github.com/rcarmo/go-ash/pkg/redir"
	"github.com/rcarmo/go-ash/pkg/runner"
	"github.com/rcarmo/go-ash/pkg/sandbox"
	"github.com/rcarmo/go-ash/pkg/signals"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/vars"
	"github.com/rcarmo/go-ash/pkg/wait"
)

// Shell is one shell session.
type Shell struct {
	cfg   *config.Configuration
	stdio *core.Stdio
	in    *os.File

	Vars    *vars.Store
	Jobs    *jobs.Table
	signals *signals.Manager
	waiter  *wait.Waiter
	env     *builtins.Env
	runner  *runner.Runner

	interactive bool
}

// New builds a shell reading from stdin and writing to stdout and stderr.
// An interactive shell takes over the terminal and its job-control signals;
// Close gives them back.
func New(cfg *config.Configuration, stdin, stdout, stderr *os.File) (*Shell, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Shell{
		cfg:     cfg,
		stdio:   &core.Stdio{In: stdin, Out: stdout, Err: stderr},
		in:      stdin,
		Vars:    vars.FromEnviron(os.Environ()),
		Jobs:    jobs.New(cfg.MaxJobs),
		signals: signals.New(),
	}
	if cfg.Interactive != nil {
		s.interactive = *cfg.Interactive
	} else {
		s.interactive = term.IsTerminal(int(stdin.Fd())) && term.IsTerminal(int(stderr.Fd()))
	}

	var trace *log.Logger
	if cfg.Trace {
		trace = log.New(stderr, "ash: trace: ", log.Lmicroseconds)
	}
	s.waiter = &wait.Waiter{Jobs: s.Jobs, Err: stderr, Trace: trace}

	var interrupter runner.Interrupter
	if s.interactive {
		if err := s.signals.Init(); err != nil {
			return nil, err
		}
		if err := s.signals.EnableInterrupt(unix.SIGINT); err != nil {
			return nil, err
		}
		interrupter = s.signals
		s.waiter.Color = cfg.Color
		if term.IsTerminal(int(stdin.Fd())) {
			tty := wait.NewTTY(stdin, s.signals)
			if err := tty.Claim(); err != nil {
				s.stdio.Errorf("ash: can't access tty; job control turned off: %v\n", err)
			} else {
				s.waiter.Term = tty
			}
		}
	}

	var (
		policy *sandbox.Policy
		opener redir.Opener = redir.OSOpener{}
	)
	if sc := cfg.Sandbox(); sc != nil {
		p, err := sandbox.New(sc)
		if err != nil {
			return nil, err
		}
		policy, opener = p, p
	}

	s.env = &builtins.Env{Vars: s.Vars, Jobs: s.waiter, Policy: policy}
	r, err := runner.New(runner.Config{
		Jobs:     s.Jobs,
		Waiter:   s.waiter,
		Vars:     s.Vars,
		Builtins: builtins.NewRegistry(s.env),
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
		Opener:   opener,
		Exited:   s.exitRequested,
		Trace:    trace,

		Interrupter: interrupter,
	})
	if err != nil {
		return nil, err
	}
	s.env.LastStatus = r.Status
	s.runner = r
	return s, nil
}

func (s *Shell) exitRequested() bool {
	_, ok := s.env.ExitRequested()
	return ok
}

// Interactive reports whether the shell runs as an interactive session.
func (s *Shell) Interactive() bool {
	return s.interactive
}

// Status is the exit status of the shell so far: the code given to exit,
// or the status of the last command.
func (s *Shell) Status() int {
	if code, ok := s.env.ExitRequested(); ok {
		return code
	}
	return s.runner.Status()
}

// RunLine parses and runs one command line. It reports whether the shell
// should exit.
func (s *Shell) RunLine(line string) bool {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
		return false
	}
	cl, err := syntax.Parse(line)
	if err != nil {
		s.stdio.Errorf("ash: %v\n", err)
		s.runner.SetStatus(core.ExitUsage)
		return false
	}
	if len(cl) == 0 {
		return false
	}
	if err := s.runner.Run(cl); err != nil {
		s.stdio.Errorf("ash: %v\n", err)
		s.runner.SetStatus(core.ExitUsage)
	}
	return s.exitRequested()
}

// RunScript runs r line by line and returns the final status.
func (s *Shell) RunScript(r io.Reader) int {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if s.RunLine(scanner.Text()) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		s.stdio.Errorf("ash: %v\n", err)
		return core.ExitFailure
	}
	return s.Status()
}

// RunCommand runs the argument of -c.
func (s *Shell) RunCommand(command string) int {
	return s.RunScript(strings.NewReader(command))
}

func (s *Shell) prompt() string {
	if ps1, ok := s.Vars.Lookup("PS1"); ok {
		return ps1
	}
	return s.cfg.Prompt
}

// RunInteractive reads lines from the terminal until end of input or exit.
// Finished background jobs are reported before every prompt.
func (s *Shell) RunInteractive() int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     s.cfg.HistoryPath(s.Vars.Get("HOME")),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           readline.NewCancelableStdin(s.in),
		Stdout:          s.stdio.Out,
		Stderr:          s.stdio.Err,
	})
	if err != nil {
		s.stdio.Errorf("ash: %v\n", err)
		return core.ExitFailure
	}
	defer rl.Close()

	for {
		if err := s.waiter.ReapBackground(); err != nil {
			s.stdio.Errorf("ash: %v\n", err)
		}
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		switch {
		case errors.Is(err, io.EOF):
			return s.Status()
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case err != nil:
			s.stdio.Errorf("ash: %v\n", err)
			return core.ExitFailure
		}
		if s.RunLine(line) {
			return s.Status()
		}
	}
}

// Close gives the job-control signals back their startup dispositions.
func (s *Shell) Close() error {
	if !s.signals.Initialized() {
		return nil
	}
	return s.signals.Restore()
}

// ServeForkedBuiltin runs a built-in on behalf of a parent shell when this
// process was started for that. The caller exits with the returned code
// when ok is true.
func ServeForkedBuiltin() (code int, ok bool) {
	return runner.ServeForkedBuiltin(func(store *vars.Store) runner.Dispatcher {
		return builtins.NewRegistry(&builtins.Env{Vars: store})
	})
}
