package builtins

import (
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/syntax"
)

// Export marks variables for export, optionally assigning them first.
// With -p, or with no names, it lists the exported variables.
func Export(env *Env, stdio *core.Stdio, args []string) int {
	opts := getopt.New()
	list := opts.Bool('p', "list exported variables")
	if err := opts.Getopt(args, nil); err != nil {
		return core.UsageError(stdio, args[0], err.Error())
	}
	names := opts.Args()
	if *list || len(names) == 0 {
		for _, v := range env.Vars.Exported() {
			stdio.Printf("export %s=%s\n", v.Name, quote(v.Value))
		}
		return core.ExitSuccess
	}

	status := core.ExitSuccess
	for _, word := range names {
		name := word
		if n, value, ok := syntax.ParseAssignment(word); ok {
			name = n
			if err := env.Vars.Set(name, value); err != nil {
				stdio.Errorf("%s: %v\n", args[0], err)
				status = core.ExitFailure
				continue
			}
		}
		if err := env.Vars.Export(name); err != nil {
			stdio.Errorf("%s: %v\n", args[0], err)
			status = core.ExitFailure
		}
	}
	return status
}

// Unset removes variables.
func Unset(env *Env, stdio *core.Stdio, args []string) int {
	opts := getopt.New()
	opts.Bool('v', "treat NAME as a variable")
	if err := opts.Getopt(args, nil); err != nil {
		return core.UsageError(stdio, args[0], err.Error())
	}
	status := core.ExitSuccess
	for _, name := range opts.Args() {
		if err := env.Vars.Unset(name); err != nil {
			stdio.Errorf("%s: %v\n", args[0], err)
			status = core.ExitFailure
		}
	}
	return status
}

// Exit asks the shell to exit with the given status, or with the status
// of the previous command.
func Exit(env *Env, stdio *core.Stdio, args []string) int {
	code := env.lastStatus()
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return core.UsageError(stdio, args[0], "illegal number: "+args[1])
		}
		code = n & 0xff
	default:
		return core.UsageError(stdio, args[0], "too many arguments")
	}
	env.RequestExit(code)
	return core.ExitSuccess
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
