// Package vars implements the shell variable store.
package vars

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rcarmo/go-ash/pkg/syntax"
)

var (
	ErrBadName  = errors.New("bad variable name")
	ErrReadOnly = errors.New("read-only variable")
)

// Var is a single shell variable.
type Var struct {
	Name     string
	Value    string
	Exported bool
	ReadOnly bool
}

// Store holds shell variables. It is not safe for concurrent use.
type Store struct {
	vars map[string]*Var
}

// New returns an empty store.
func New() *Store {
	return &Store{vars: map[string]*Var{}}
}

// FromEnviron builds a store from KEY=value pairs, marking all of them
// exported. Malformed entries are skipped.
func FromEnviron(env []string) *Store {
	s := New()
	for _, kv := range env {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 || !syntax.IsName(kv[:eq]) {
			continue
		}
		s.vars[kv[:eq]] = &Var{Name: kv[:eq], Value: kv[eq+1:], Exported: true}
	}
	return s
}

// Set assigns value to name, keeping its export flag.
func (s *Store) Set(name, value string) error {
	if !syntax.IsName(name) {
		return fmt.Errorf("%w: %s", ErrBadName, name)
	}
	v, ok := s.vars[name]
	if !ok {
		s.vars[name] = &Var{Name: name, Value: value}
		return nil
	}
	if v.ReadOnly {
		return fmt.Errorf("%s: %w", name, ErrReadOnly)
	}
	v.Value = value
	return nil
}

// Export marks name for export, creating it empty when unset.
func (s *Store) Export(name string) error {
	if !syntax.IsName(name) {
		return fmt.Errorf("%w: %s", ErrBadName, name)
	}
	v, ok := s.vars[name]
	if !ok {
		v = &Var{Name: name}
		s.vars[name] = v
	}
	v.Exported = true
	return nil
}

// SetReadOnly marks name read-only, creating it empty when unset.
func (s *Store) SetReadOnly(name string) error {
	if !syntax.IsName(name) {
		return fmt.Errorf("%w: %s", ErrBadName, name)
	}
	v, ok := s.vars[name]
	if !ok {
		v = &Var{Name: name}
		s.vars[name] = v
	}
	v.ReadOnly = true
	return nil
}

// Unset removes name.
func (s *Store) Unset(name string) error {
	if !syntax.IsName(name) {
		return fmt.Errorf("%w: %s", ErrBadName, name)
	}
	if v, ok := s.vars[name]; ok && v.ReadOnly {
		return fmt.Errorf("%s: %w", name, ErrReadOnly)
	}
	delete(s.vars, name)
	return nil
}

// Get returns the value of name, or "" when unset.
func (s *Store) Get(name string) string {
	v, _ := s.Lookup(name)
	return v
}

// Lookup returns the value of name and whether it is set.
func (s *Store) Lookup(name string) (string, bool) {
	v, ok := s.vars[name]
	if !ok {
		return "", false
	}
	return v.Value, true
}

// Apply assigns each assignment in order, exporting them when export is set.
// It stops at the first failure.
func (s *Store) Apply(assigns []syntax.Assignment, export bool) error {
	for _, a := range assigns {
		if err := s.Set(a.Name, a.Value); err != nil {
			return err
		}
		if export {
			if err := s.Export(a.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exported returns the exported variables sorted by name.
func (s *Store) Exported() []Var {
	out := make([]Var, 0, len(s.vars))
	for _, v := range s.vars {
		if v.Exported {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Environ returns the exported variables as NAME=value pairs.
func (s *Store) Environ() []string {
	exported := s.Exported()
	env := make([]string, 0, len(exported))
	for _, v := range exported {
		env = append(env, v.Name+"="+v.Value)
	}
	return env
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	c := New()
	for name, v := range s.vars {
		cp := *v
		c.vars[name] = &cp
	}
	return c
}

// All returns every variable sorted by name.
func (s *Store) All() []Var {
	out := make([]Var, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromVars rebuilds a store from the output of All.
func FromVars(list []Var) *Store {
	s := New()
	for _, v := range list {
		if !syntax.IsName(v.Name) {
			continue
		}
		cp := v
		s.vars[v.Name] = &cp
	}
	return s
}
