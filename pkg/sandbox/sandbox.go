// Package sandbox implements restricted mode: a path policy consulted before
// the shell opens a redirection target or changes directory.
package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Common sandbox errors.
var (
	ErrAccessDenied = errors.New("access denied: path not in sandbox")
	ErrReadOnly     = errors.New("write access denied: sandbox is read-only")
)

// Permission represents file access permissions.
type Permission uint8

const (
	PermNone  Permission = 0
	PermRead  Permission = 1 << iota // Can read files
	PermWrite                        // Can write/create files
)

// PathRule defines access rules for a path prefix.
type PathRule struct {
	Path       string     // Path prefix (resolved to absolute)
	Permission Permission // Allowed operations
}

// Config holds sandbox configuration.
type Config struct {
	// Paths to allow access to (with permissions)
	AllowedPaths []PathRule
	// Allow access to current working directory
	AllowCwd bool
	// Default permission for cwd if AllowCwd is true
	CwdPermission Permission
}

// Policy decides which paths the shell may touch. A nil *Policy allows
// everything.
type Policy struct {
	rules []PathRule
}

// New builds a policy from cfg. Relative rule paths are resolved against
// the current directory.
func New(cfg *Config) (*Policy, error) {
	p := &Policy{}
	if cfg.AllowCwd {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		perm := cfg.CwdPermission
		if perm == PermNone {
			perm = PermRead | PermWrite
		}
		p.rules = append(p.rules, PathRule{Path: cwd, Permission: perm})
	}
	for _, rule := range cfg.AllowedPaths {
		absPath, err := filepath.Abs(rule.Path)
		if err != nil {
			continue
		}
		p.rules = append(p.rules, PathRule{
			Path:       filepath.Clean(absPath),
			Permission: rule.Permission,
		})
	}
	return p, nil
}

// Rules returns the resolved rules.
func (p *Policy) Rules() []PathRule {
	if p == nil {
		return nil
	}
	return append([]PathRule(nil), p.rules...)
}

// Check verifies if the given path can be accessed with the requested permission.
func (p *Policy) Check(path string, perm Permission) error {
	if p == nil {
		return nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ErrAccessDenied
	}

	// Clean the path to prevent traversal attacks
	absPath = filepath.Clean(absPath)

	denied := ErrAccessDenied
	for _, rule := range p.rules {
		if !strings.HasPrefix(absPath, rule.Path) {
			continue
		}
		remainder := strings.TrimPrefix(absPath, rule.Path)
		if remainder != "" && !strings.HasPrefix(remainder, string(filepath.Separator)) && rule.Path != string(filepath.Separator) {
			continue
		}
		if rule.Permission&perm == perm {
			return nil
		}
		if perm&PermWrite != 0 && rule.Permission&PermWrite == 0 {
			denied = ErrReadOnly
		}
	}

	return denied
}

// OpenFile opens a file with the given flags within the sandbox.
func (p *Policy) OpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	required := PermRead
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		required |= PermWrite
	}
	if err := p.Check(path, required); err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.OpenFile(path, flag, perm) // #nosec G304 -- Check enforces allowed paths
}

// Chdir changes the current working directory within sandbox constraints.
func (p *Policy) Chdir(path string) error {
	if err := p.Check(path, PermRead); err != nil {
		return &os.PathError{Op: "chdir", Path: path, Err: err}
	}
	return os.Chdir(path)
}
