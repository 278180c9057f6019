package syntax

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
)

var (
	ErrSyntax        = errors.New("syntax error")
	ErrMissingTarget = errors.New("missing redirection target")
)

var redirPattern = regexp.MustCompile(`^(\d*)(<&|>&|>>|<>|>\||<|>)(.*)$`)

// Parse turns one input line into a CommandList.
//
// Words are split with POSIX shell quoting rules. Control operators and
// redirections are recognised by their text after quote removal, so a
// quoted "|" is still a pipe. Only the first run of NAME=value words is
// taken as assignments.
func Parse(line string) (CommandList, error) {
	tokens, err := shlex.Split(spaceOperators(line), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	var list CommandList
	cur := &Command{}
	empty := true
	flush := func(op CtrlOp, tok string) error {
		if empty {
			return fmt.Errorf("%w near unexpected token `%s'", ErrSyntax, tok)
		}
		cur.Op = op
		list = append(list, cur)
		cur = &Command{}
		empty = true
		return nil
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case ";":
			if err := flush(Sequential, tok); err != nil {
				return nil, err
			}
			continue
		case "&":
			if err := flush(Background, tok); err != nil {
				return nil, err
			}
			continue
		case "|":
			if err := flush(Pipe, tok); err != nil {
				return nil, err
			}
			continue
		}

		if m := redirPattern.FindStringSubmatch(tok); m != nil {
			op, _ := ParseRedirOp(m[2])
			fd := op.DefaultFD()
			if m[1] != "" {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					return nil, fmt.Errorf("%w: bad descriptor %q", ErrSyntax, m[1])
				}
				fd = n
			}
			target := m[3]
			if target == "" {
				if i+1 >= len(tokens) {
					return nil, fmt.Errorf("%w after %q", ErrMissingTarget, tok)
				}
				i++
				target = tokens[i]
			}
			cur.Redirs = append(cur.Redirs, Redirection{Op: op, FD: fd, Target: target})
			empty = false
			continue
		}

		if len(cur.Words) == 0 {
			if name, value, ok := ParseAssignment(tok); ok {
				cur.Assignments = append(cur.Assignments, Assignment{Name: name, Value: value})
				empty = false
				continue
			}
		}
		cur.Words = append(cur.Words, tok)
		empty = false
	}

	if !empty {
		cur.Op = Sequential
		list = append(list, cur)
	}
	if len(list) > 0 && list[len(list)-1].Op == Pipe {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, ErrDanglingPipe)
	}
	return list, nil
}

// spaceOperators pads unquoted ';', '&' and '|' with blanks so they come
// out of the word splitter as tokens of their own. The '&' of ">&"/"<&" and
// the '|' of ">|" stay attached to their redirection.
func spaceOperators(line string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' && quote == '"' && i+1 < len(line) {
				b.WriteByte(c)
				i++
				c = line[i]
			}
		case c == '\\' && i+1 < len(line):
			b.WriteByte(c)
			i++
			c = line[i]
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			b.WriteString(" ; ")
			continue
		case c == '&' || c == '|':
			if i > 0 && (line[i-1] == '>' || (c == '&' && line[i-1] == '<')) {
				break
			}
			b.WriteByte(' ')
			b.WriteByte(c)
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseAssignment splits NAME=value. It reports false when tok is not an
// assignment word.
func ParseAssignment(tok string) (string, string, bool) {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return "", "", false
	}
	name := tok[:eq]
	if !IsName(name) {
		return "", "", false
	}
	return name, tok[eq+1:], true
}

// IsName reports whether name is a valid variable name.
func IsName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
