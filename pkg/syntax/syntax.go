// Package syntax holds the parsed form of a command line: an ordered list of
// simple commands, each tagged with the control operator that follows it.
package syntax

import (
	"errors"
	"fmt"
	"strings"
)

// CtrlOp is the control operator that terminates a command.
type CtrlOp int

const (
	// Sequential is ';' or end of line: run and wait.
	Sequential CtrlOp = iota
	// Background is '&': run without waiting.
	Background
	// Pipe is '|': connect stdout to the next command's stdin.
	Pipe
)

func (op CtrlOp) String() string {
	switch op {
	case Sequential:
		return ";"
	case Background:
		return "&"
	case Pipe:
		return "|"
	}
	return fmt.Sprintf("CtrlOp(%d)", int(op))
}

// RedirOp is a redirection operator.
type RedirOp int

const (
	RedirIn        RedirOp = iota // <
	RedirOut                      // >
	RedirAppend                   // >>
	RedirReadWrite                // <>
	RedirClobber                  // >|
	RedirDupIn                    // <&
	RedirDupOut                   // >&
)

var redirOpStrings = [...]string{
	RedirIn:        "<",
	RedirOut:       ">",
	RedirAppend:    ">>",
	RedirReadWrite: "<>",
	RedirClobber:   ">|",
	RedirDupIn:     "<&",
	RedirDupOut:    ">&",
}

func (op RedirOp) String() string {
	if op >= 0 && int(op) < len(redirOpStrings) {
		return redirOpStrings[op]
	}
	return fmt.Sprintf("RedirOp(%d)", int(op))
}

// ParseRedirOp maps operator text to a RedirOp.
func ParseRedirOp(s string) (RedirOp, bool) {
	for i, text := range redirOpStrings {
		if text == s {
			return RedirOp(i), true
		}
	}
	return 0, false
}

// DefaultFD is the descriptor an operator applies to when none is written.
func (op RedirOp) DefaultFD() int {
	switch op {
	case RedirIn, RedirReadWrite, RedirDupIn:
		return 0
	}
	return 1
}

// Redirection is one "[FD]op target" item. Target is a filename, a
// descriptor number for the duplicating operators, or "-" to close FD.
type Redirection struct {
	Op     RedirOp
	FD     int
	Target string
}

func (r Redirection) String() string {
	return fmt.Sprintf("%d%s%s", r.FD, r.Op, r.Target)
}

// Assignment is a NAME=value prefix of a command.
type Assignment struct {
	Name  string
	Value string
}

// Command is a single simple command.
type Command struct {
	Op          CtrlOp
	Words       []string
	Assignments []Assignment
	Redirs      []Redirection
}

// Name returns the first word, or "" for an assignment-only command.
func (c *Command) Name() string {
	if len(c.Words) == 0 {
		return ""
	}
	return c.Words[0]
}

func (c *Command) String() string {
	var parts []string
	for _, a := range c.Assignments {
		parts = append(parts, a.Name+"="+a.Value)
	}
	parts = append(parts, c.Words...)
	for _, r := range c.Redirs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ") + " " + c.Op.String()
}

// CommandList is an ordered sequence of commands from one input line.
type CommandList []*Command

var (
	ErrEmptyList    = errors.New("empty command list")
	ErrDanglingPipe = errors.New("pipe without a following command")
)

// Validate checks the structural invariants the runner relies on.
func (cl CommandList) Validate() error {
	if len(cl) == 0 {
		return ErrEmptyList
	}
	if cl[len(cl)-1].Op == Pipe {
		return ErrDanglingPipe
	}
	return nil
}
