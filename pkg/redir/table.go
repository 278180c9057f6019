package redir

import (
	"log"
	"os"

	"github.com/rcarmo/go-ash/pkg/syntax"
)

// FDTable is the descriptor table a child process will start with. Slot i
// becomes descriptor i in the child; a nil slot is closed there.
type FDTable struct {
	files  []*os.File
	mapped map[int]bool
	opened []*os.File
	// Trace, when set, logs every file the table opens.
	Trace *log.Logger
}

// NewFDTable starts a table from the three standard streams.
func NewFDTable(stdin, stdout, stderr *os.File) *FDTable {
	return &FDTable{
		files:  []*os.File{stdin, stdout, stderr},
		mapped: map[int]bool{0: true, 1: true, 2: true},
	}
}

// Set places f at fd. A nil f closes fd in the child.
func (t *FDTable) Set(fd int, f *os.File) {
	for len(t.files) <= fd {
		t.files = append(t.files, nil)
	}
	t.files[fd] = f
	t.mapped[fd] = true
}

// Get returns the file at fd, or nil when fd is closed.
func (t *FDTable) Get(fd int) *os.File {
	if fd < 0 || fd >= len(t.files) {
		return nil
	}
	return t.files[fd]
}

// Apply performs redirs in order. It stops at the first failure; files
// opened so far are still released by Close.
func (t *FDTable) Apply(redirs []syntax.Redirection, opener Opener) error {
	for _, r := range redirs {
		if err := t.apply(r, opener); err != nil {
			return err
		}
	}
	return nil
}

func (t *FDTable) apply(r syntax.Redirection, opener Opener) error {
	if err := checkFD(r.FD); err != nil {
		return err
	}
	if isDup(r.Op) {
		if r.Target == "-" {
			t.Set(r.FD, nil)
			return nil
		}
		if src, ok := ParseFD(r.Target); ok {
			f := t.Get(src)
			if f == nil && !t.mapped[src] {
				// The child inherits nothing above 2 unless asked to,
				// so hand it a copy of the shell's own descriptor.
				shared, err := dupShellFD(src)
				if err != nil {
					return err
				}
				t.opened = append(t.opened, shared)
				f = shared
			}
			if f == nil {
				return badFD(src)
			}
			t.Set(r.FD, f)
			return nil
		}
	}
	f, err := openTarget(r, opener, t.Trace)
	if err != nil {
		return err
	}
	t.opened = append(t.opened, f)
	t.Set(r.FD, f)
	return nil
}

// Files returns the table in the form os.ProcAttr.Files expects.
func (t *FDTable) Files() []*os.File {
	n := len(t.files)
	for n > 0 && t.files[n-1] == nil {
		n--
	}
	return append([]*os.File(nil), t.files[:n]...)
}

// Close releases the files Apply opened. The child keeps its own copies,
// so the shell calls this once the process has started.
func (t *FDTable) Close() error {
	err := closeAll(t.opened)
	t.opened = nil
	return err
}
