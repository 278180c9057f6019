// Command ash is a small POSIX-style shell with job control.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcarmo/go-ash/pkg/config"
	"github.com/rcarmo/go-ash/pkg/shell"
)

var (
	cfgPath     string
	command     string
	interactive bool
	trace       bool

	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "ash [-c command] [-i] [script]",
	Short: "A small job-control shell",
	Long: `ash runs simple commands, pipelines and background jobs.

Commands are read from the -c argument, from a script file, or from
standard input. A terminal on standard input starts an interactive
session with line editing and job control (jobs, fg, bg, kill %n).`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run `command` and exit")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "force an interactive session")
	rootCmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	rootCmd.Flags().BoolVar(&trace, "trace", false, "log process and descriptor activity to stderr")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if trace {
		cfg.Trace = true
	}
	if interactive {
		on := true
		cfg.Interactive = &on
	} else if command != "" || len(args) > 0 {
		off := false
		cfg.Interactive = &off
	}

	var script *os.File
	if len(args) == 1 {
		script, err = os.Open(args[0])
		if err != nil {
			return err
		}
		defer script.Close()
	}

	sh, err := shell.New(cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	switch {
	case command != "":
		exitCode = sh.RunCommand(command)
	case script != nil:
		exitCode = sh.RunScript(script)
	case sh.Interactive():
		exitCode = sh.RunInteractive()
	default:
		exitCode = sh.RunScript(os.Stdin)
	}
	return sh.Close()
}

func main() {
	// A built-in started in its own process never reaches cobra.
	if code, ok := shell.ServeForkedBuiltin(); ok {
		os.Exit(code)
	}
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}
