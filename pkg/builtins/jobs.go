package builtins

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/jobs"
	"github.com/rcarmo/go-ash/pkg/signals"
)

var errNoJobControl = errors.New("no job control")

// Jobs lists the tracked jobs. With -p only process group ids are shown.
func Jobs(env *Env, stdio *core.Stdio, args []string) int {
	opts := getopt.New()
	pgidsOnly := opts.Bool('p', "print process group ids only")
	if err := opts.Getopt(args, nil); err != nil {
		return core.UsageError(stdio, args[0], err.Error())
	}
	if env.Jobs == nil {
		stdio.Errorf("%s: %v\n", args[0], errNoJobControl)
		return core.ExitFailure
	}
	for _, job := range env.Jobs.List() {
		if *pgidsOnly {
			stdio.Printf("%d\n", job.PGID)
			continue
		}
		stdio.Printf("[%d]  %-10s %d\n", job.ID, job.State, job.PGID)
	}
	return core.ExitSuccess
}

// Fg brings a job to the foreground and waits for it.
func Fg(env *Env, stdio *core.Stdio, args []string) int {
	jid, code := jobArg(env, stdio, args)
	if code != core.ExitSuccess {
		return code
	}
	status, err := env.Jobs.ForegroundJob(jid)
	if err != nil {
		stdio.Errorf("%s: %v\n", args[0], err)
		return core.ExitFailure
	}
	return status
}

// Bg resumes a stopped job in the background.
func Bg(env *Env, stdio *core.Stdio, args []string) int {
	jid, code := jobArg(env, stdio, args)
	if code != core.ExitSuccess {
		return code
	}
	if err := env.Jobs.ContinueBackground(jid); err != nil {
		stdio.Errorf("%s: %v\n", args[0], err)
		return core.ExitFailure
	}
	return core.ExitSuccess
}

// jobArg resolves the optional %n argument of fg and bg, defaulting to the
// most recent job.
func jobArg(env *Env, stdio *core.Stdio, args []string) (int, int) {
	if env.Jobs == nil {
		stdio.Errorf("%s: %v\n", args[0], errNoJobControl)
		return 0, core.ExitFailure
	}
	switch len(args) {
	case 1:
		list := env.Jobs.List()
		if len(list) == 0 {
			stdio.Errorf("%s: no current job\n", args[0])
			return 0, core.ExitFailure
		}
		return list[len(list)-1].ID, core.ExitSuccess
	case 2:
		jid, err := parseJobSpec(args[1])
		if err != nil {
			stdio.Errorf("%s: %s: %v\n", args[0], args[1], err)
			return 0, core.ExitFailure
		}
		return jid, core.ExitSuccess
	}
	return 0, core.UsageError(stdio, args[0], "too many arguments")
}

func parseJobSpec(spec string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
	if err != nil || n <= 0 {
		return 0, jobs.ErrUnknownJob
	}
	return n, nil
}

// Kill sends a signal to processes or jobs. Targets are pids, or %n for
// every process in job n.
//
//	kill [-s SIG | -SIG] target...
//	kill -l
func Kill(env *Env, stdio *core.Stdio, args []string) int {
	sig := unix.SIGTERM
	// -TERM and -9 are not getopt options; peel them off first.
	if len(args) > 1 && len(args[1]) > 1 && args[1][0] == '-' && args[1] != "-s" && args[1] != "-l" && args[1] != "--" {
		s, ok := signals.Parse(args[1][1:])
		if !ok {
			return core.UsageError(stdio, args[0], "invalid signal: "+args[1][1:])
		}
		sig = s
		args = append([]string{args[0]}, args[2:]...)
	}

	opts := getopt.New()
	name := opts.String('s', "", "signal to send")
	list := opts.Bool('l', "list signal names")
	if err := opts.Getopt(args, nil); err != nil {
		return core.UsageError(stdio, args[0], err.Error())
	}
	if *list {
		names := make([]string, 0)
		for _, s := range signals.Names() {
			names = append(names, signals.Name(s))
		}
		stdio.Println(strings.Join(names, " "))
		return core.ExitSuccess
	}
	if *name != "" {
		s, ok := signals.Parse(*name)
		if !ok {
			return core.UsageError(stdio, args[0], "invalid signal: "+*name)
		}
		sig = s
	}
	targets := opts.Args()
	if len(targets) == 0 {
		return core.UsageError(stdio, args[0], "usage: kill [-s SIG | -SIG] pid|%job...")
	}

	status := core.ExitSuccess
	for _, target := range targets {
		pid, err := killTarget(env, target)
		if err == nil {
			err = unix.Kill(pid, sig)
		}
		if err != nil {
			stdio.Errorf("%s: %s: %v\n", args[0], target, err)
			status = core.ExitFailure
		}
	}
	return status
}

// killTarget turns a kill operand into a kill(2) pid argument.
func killTarget(env *Env, target string) (int, error) {
	if strings.HasPrefix(target, "%") {
		jid, err := parseJobSpec(target)
		if err != nil {
			return 0, err
		}
		if env.Jobs == nil {
			return 0, errNoJobControl
		}
		for _, job := range env.Jobs.List() {
			if job.ID == jid {
				return -job.PGID, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", jobs.ErrUnknownJob, target)
	}
	pid, err := strconv.Atoi(target)
	if err != nil {
		return 0, fmt.Errorf("invalid pid: %w", syscall.EINVAL)
	}
	return pid, nil
}
