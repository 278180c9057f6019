// Package builtins holds the commands the shell runs itself rather than
// as external programs.
package builtins

import (
	"sort"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/jobs"
	"github.com/rcarmo/go-ash/pkg/redir"
	"github.com/rcarmo/go-ash/pkg/sandbox"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/vars"
)

// Func is the calling contract between the runner and a built-in: it gets
// the expanded command and the virtual descriptor table to do its I/O
// through. Zero means success.
type Func func(cmd *syntax.Command, rec *redir.Record) int

// Builtin is a shell built-in command. args[0] is the command name.
type Builtin interface {
	Main(env *Env, stdio *core.Stdio, args []string) int
}

// BuiltinFunc adapts a function to Builtin.
type BuiltinFunc func(env *Env, stdio *core.Stdio, args []string) int

func (f BuiltinFunc) Main(env *Env, stdio *core.Stdio, args []string) int {
	return f(env, stdio, args)
}

var _ Builtin = (BuiltinFunc)(nil)

// JobControl is what the job built-ins need from the wait subsystem.
type JobControl interface {
	List() []jobs.Job
	ForegroundJob(jid int) (int, error)
	ContinueBackground(jid int) error
}

// Env is the shell state built-ins may read and change.
type Env struct {
	Vars *vars.Store
	// Jobs is nil where job control is unavailable, such as in a built-in
	// running in its own process.
	Jobs JobControl
	// Policy restricts cd in restricted mode. Nil allows everything.
	Policy *sandbox.Policy
	// LastStatus reports the status of the previous command.
	LastStatus func() int

	exitRequested bool
	exitCode      int
}

// RequestExit asks the shell to exit with code once the current command
// list is done.
func (e *Env) RequestExit(code int) {
	e.exitRequested = true
	e.exitCode = code
}

// ExitRequested reports whether exit was called, and with which code.
func (e *Env) ExitRequested() (int, bool) {
	return e.exitCode, e.exitRequested
}

func (e *Env) lastStatus() int {
	if e.LastStatus == nil {
		return core.ExitSuccess
	}
	return e.LastStatus()
}

// Registry maps names to built-ins bound to one Env.
type Registry struct {
	env      *Env
	builtins map[string]Builtin
}

// NewRegistry returns a registry holding the standard built-ins.
func NewRegistry(env *Env) *Registry {
	r := &Registry{env: env, builtins: map[string]Builtin{}}
	r.Register("cd", BuiltinFunc(Cd))
	r.Register("pwd", BuiltinFunc(Pwd))
	r.Register("echo", BuiltinFunc(Echo))
	r.Register("read", BuiltinFunc(Read))
	r.Register("exit", BuiltinFunc(Exit))
	r.Register("export", BuiltinFunc(Export))
	r.Register("unset", BuiltinFunc(Unset))
	r.Register("jobs", BuiltinFunc(Jobs))
	r.Register("fg", BuiltinFunc(Fg))
	r.Register("bg", BuiltinFunc(Bg))
	r.Register("kill", BuiltinFunc(Kill))
	return r
}

// Register adds or replaces a built-in.
func (r *Registry) Register(name string, b Builtin) {
	r.builtins[name] = b
}

// Env returns the environment built-ins run against.
func (r *Registry) Env() *Env {
	return r.env
}

// Lookup returns the built-in called name.
func (r *Registry) Lookup(name string) (Func, bool) {
	b, ok := r.builtins[name]
	if !ok {
		return nil, false
	}
	return func(cmd *syntax.Command, rec *redir.Record) int {
		return b.Main(r.env, rec.Stdio(), cmd.Words)
	}, true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
