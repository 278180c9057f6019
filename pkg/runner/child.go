package runner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/redir"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/vars"
)

// ChildEnv carries a forked built-in invocation to the re-executed shell.
const ChildEnv = "ASH_BUILTIN_CHILD"

// childRequest is what a built-in running in its own process needs to
// know. Redirections are already applied to its descriptors.
type childRequest struct {
	Words       []string            `json:"words"`
	Assignments []syntax.Assignment `json:"assignments,omitempty"`
	Vars        []vars.Var          `json:"vars"`
}

// builtinChild prepares a re-execution of the shell that runs cmd as a
// built-in and exits.
func (r *Runner) builtinChild(cmd *syntax.Command) (string, []string, []string, error) {
	payload, err := json.Marshal(childRequest{
		Words:       cmd.Words,
		Assignments: cmd.Assignments,
		Vars:        r.cfg.Vars.All(),
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	env := append(r.cfg.Vars.Environ(), ChildEnv+"="+string(payload))
	name := cmd.Name()
	if name == "" {
		name = "ash"
	}
	return r.cfg.Self, []string{name}, env, nil
}

// ServeForkedBuiltin runs the built-in described by ASH_BUILTIN_CHILD, if
// the variable is set. It returns the exit code for the process and true
// when it served a request; the caller should exit with that code. It must
// run before anything else in main.
func ServeForkedBuiltin(dispatcher func(*vars.Store) Dispatcher) (int, bool) {
	payload, ok := os.LookupEnv(ChildEnv)
	if !ok {
		return 0, false
	}
	_ = os.Unsetenv(ChildEnv)

	stdio := core.DefaultStdio()
	var req childRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		stdio.Errorf("ash: bad built-in request: %v\n", err)
		return core.ExitCannotRun, true
	}
	store := vars.FromVars(req.Vars)
	if err := store.Apply(req.Assignments, false); err != nil {
		stdio.Errorf("ash: %v\n", err)
		return core.ExitCannotRun, true
	}
	if len(req.Words) == 0 {
		return core.ExitSuccess, true
	}
	fn, ok := dispatcher(store).Lookup(req.Words[0])
	if !ok {
		stdio.Errorf("ash: %s: not a built-in\n", req.Words[0])
		return core.ExitCannotRun, true
	}

	rec := redir.NewRecord(stdio)
	defer rec.Close()
	if fn(&syntax.Command{Words: req.Words, Assignments: req.Assignments}, rec) != core.ExitSuccess {
		return core.ExitCannotRun, true
	}
	return core.ExitSuccess, true
}
