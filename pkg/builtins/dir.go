package builtins

import (
	"os"

	"github.com/rcarmo/go-ash/pkg/core"
)

// Cd changes the shell's working directory. "cd -" returns to OLDPWD.
func Cd(env *Env, stdio *core.Stdio, args []string) int {
	target := ""
	printDir := false
	switch len(args) {
	case 1:
		target = env.Vars.Get("HOME")
		if target == "" {
			return core.UsageError(stdio, args[0], "HOME not set")
		}
	case 2:
		target = args[1]
		if target == "-" {
			target = env.Vars.Get("OLDPWD")
			if target == "" {
				return core.UsageError(stdio, args[0], "OLDPWD not set")
			}
			printDir = true
		}
	default:
		return core.UsageError(stdio, args[0], "too many arguments")
	}

	old, _ := os.Getwd()
	if err := env.Policy.Chdir(target); err != nil {
		return core.FileError(stdio, args[0], target, unwrapPath(err))
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = target
	}
	_ = env.Vars.Set("OLDPWD", old)
	_ = env.Vars.Set("PWD", cwd)
	if printDir {
		stdio.Println(cwd)
	}
	return core.ExitSuccess
}

// Pwd prints the working directory.
func Pwd(env *Env, stdio *core.Stdio, args []string) int {
	dir, err := os.Getwd()
	if err != nil {
		stdio.Errorf("%s: %v\n", args[0], err)
		return core.ExitFailure
	}
	stdio.Println(dir)
	return core.ExitSuccess
}

func unwrapPath(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}
