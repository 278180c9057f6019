package builtins

import (
	"errors"
	"io"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcarmo/go-ash/pkg/core"
)

// Echo prints its arguments. A leading -n suppresses the newline.
func Echo(env *Env, stdio *core.Stdio, args []string) int {
	words := args[1:]
	newline := true
	for len(words) > 0 && words[0] == "-n" {
		newline = false
		words = words[1:]
	}
	out := strings.Join(words, " ")
	if newline {
		out += "\n"
	}
	if _, err := io.WriteString(stdio.Out, out); err != nil {
		stdio.Errorf("%s: write error: %v\n", args[0], err)
		return core.ExitFailure
	}
	return core.ExitSuccess
}

// Read reads one line from standard input and splits it into the named
// variables on blanks; the last variable takes the rest of the line. With
// -r backslashes are not special. A final line without a newline still
// assigns; only end of input with nothing read fails.
func Read(env *Env, stdio *core.Stdio, args []string) int {
	opts := getopt.New()
	raw := opts.Bool('r', "do not treat backslash as an escape")
	if err := opts.Getopt(args, nil); err != nil {
		return core.UsageError(stdio, args[0], err.Error())
	}
	names := opts.Args()
	if len(names) == 0 {
		names = []string{"REPLY"}
	}

	line, err := readLine(stdio.In, *raw)
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if !errors.Is(err, io.EOF) {
			stdio.Errorf("%s: %v\n", args[0], err)
		}
		return core.ExitFailure
	}

	fields := splitFields(line, len(names))
	for i, name := range names {
		value := ""
		if i < len(fields) {
			value = fields[i]
		}
		if err := env.Vars.Set(name, value); err != nil {
			stdio.Errorf("%s: %v\n", args[0], err)
			return core.ExitFailure
		}
	}
	return core.ExitSuccess
}

// readLine reads up to a newline one byte at a time so that input meant
// for later commands stays unread.
func readLine(r io.Reader, raw bool) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	escaped := false
	for {
		n, err := r.Read(buf)
		if n == 1 {
			c := buf[0]
			switch {
			case escaped:
				escaped = false
				if c != '\n' {
					b.WriteByte(c)
				}
				continue
			case c == '\\' && !raw:
				escaped = true
				continue
			case c == '\n':
				return b.String(), nil
			}
			b.WriteByte(c)
		}
		if err != nil {
			return b.String(), err
		}
	}
}

// splitFields splits line on blanks into at most n fields.
func splitFields(line string, n int) []string {
	var fields []string
	rest := strings.TrimLeft(line, " \t")
	for len(fields) < n-1 && rest != "" {
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeft(rest[end:], " \t")
	}
	if rest = strings.TrimRight(rest, " \t"); rest != "" {
		fields = append(fields, rest)
	}
	return fields
}
