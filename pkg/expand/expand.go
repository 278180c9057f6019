// Package expand performs the word expansions the shell supports: a leading
// tilde and $NAME, ${NAME}, $?, $$ and $! parameter references.
package expand

import (
	"errors"
	"os"
	"strings"

	"github.com/rcarmo/go-ash/pkg/syntax"
)

var ErrBadSubstitution = errors.New("bad substitution")

// Lookup resolves a variable name.
type Lookup interface {
	Lookup(name string) (string, bool)
}

// Expander expands words against a variable store.
type Expander struct {
	Vars Lookup
	// Special resolves the one-character parameters '?', '$' and '!'.
	// Unresolved specials expand to "".
	Special func(c byte) (string, bool)
}

// Word expands a single word.
func (e *Expander) Word(tok string) (string, error) {
	tok = e.tilde(tok)
	if !strings.Contains(tok, "$") {
		return tok, nil
	}
	var buf strings.Builder
	for i := 0; i < len(tok); i++ {
		if tok[i] != '$' || i+1 >= len(tok) {
			buf.WriteByte(tok[i])
			continue
		}
		switch c := tok[i+1]; c {
		case '?', '$', '!':
			if e.Special != nil {
				if v, ok := e.Special(c); ok {
					buf.WriteString(v)
				}
			}
			i++
			continue
		case '{':
			end := strings.IndexByte(tok[i+2:], '}')
			if end < 0 {
				return "", ErrBadSubstitution
			}
			name := tok[i+2 : i+2+end]
			switch {
			case len(name) == 1 && strings.ContainsAny(name, "?$!"):
				if e.Special != nil {
					if v, ok := e.Special(name[0]); ok {
						buf.WriteString(v)
					}
				}
			case syntax.IsName(name):
				buf.WriteString(e.lookup(name))
			default:
				return "", ErrBadSubstitution
			}
			i += end + 2
			continue
		}
		j := i + 1
		for j < len(tok) && isNameByte(tok[j], j == i+1) {
			j++
		}
		if j == i+1 {
			buf.WriteByte(tok[i])
			continue
		}
		buf.WriteString(e.lookup(tok[i+1 : j]))
		i = j - 1
	}
	return buf.String(), nil
}

// Command expands the words, assignment values and redirection targets of
// cmd in place.
func (e *Expander) Command(cmd *syntax.Command) error {
	for i, w := range cmd.Words {
		v, err := e.Word(w)
		if err != nil {
			return err
		}
		cmd.Words[i] = v
	}
	for i, a := range cmd.Assignments {
		v, err := e.Word(a.Value)
		if err != nil {
			return err
		}
		cmd.Assignments[i].Value = v
	}
	for i, r := range cmd.Redirs {
		v, err := e.Word(r.Target)
		if err != nil {
			return err
		}
		cmd.Redirs[i].Target = v
	}
	return nil
}

func (e *Expander) lookup(name string) string {
	if e.Vars == nil {
		return ""
	}
	v, _ := e.Vars.Lookup(name)
	return v
}

// tilde expands "~" and "~/..." using HOME, falling back to the process
// home directory.
func (e *Expander) tilde(tok string) string {
	if tok != "~" && !strings.HasPrefix(tok, "~/") {
		return tok
	}
	home := e.lookup("HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return tok
		}
		home = dir
	}
	return home + tok[1:]
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case !first && c >= '0' && c <= '9':
		return true
	}
	return false
}
