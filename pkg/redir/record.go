package redir

import (
	"io"
	"log"
	"os"
	"strconv"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/syntax"
)

// entry maps one pseudo-descriptor. Exactly one of file, stream or closed
// describes it: file is owned by the record, stream is one of the shell's
// base streams and is only borrowed.
type entry struct {
	pseudo int
	file   *os.File
	stream any
	closed bool
}

func (e *entry) release() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// Record is the virtual descriptor table of a built-in running inside the
// shell. Lookups fall back to the base streams for 0, 1 and 2. Close must
// run on every path; it releases every descriptor the record opened or
// duplicated and never closes a base stream.
type Record struct {
	base    *core.Stdio
	entries []*entry
	// Trace, when set, logs every file the record opens.
	Trace *log.Logger
	// Input, when set, wraps the file behind pseudo-descriptor 0 each time
	// a reader for it is handed out.
	Input func(*os.File) io.Reader
}

// NewRecord returns an empty record over base.
func NewRecord(base *core.Stdio) *Record {
	if base == nil {
		base = core.DefaultStdio()
	}
	return &Record{base: base}
}

func (r *Record) find(pseudo int) *entry {
	for _, e := range r.entries {
		if e.pseudo == pseudo {
			return e
		}
	}
	return nil
}

// slot returns the entry for pseudo, emptied and ready to be refilled. A
// later redirection of the same pseudo-descriptor replaces the earlier one
// in place.
func (r *Record) slot(pseudo int) *entry {
	if e := r.find(pseudo); e != nil {
		_ = e.release()
		e.stream = nil
		e.closed = false
		return e
	}
	e := &entry{pseudo: pseudo}
	r.entries = append(r.entries, e)
	return e
}

// Map adopts f as pseudo. The record closes f on Close.
func (r *Record) Map(pseudo int, f *os.File) {
	r.slot(pseudo).file = f
}

// Apply performs redirs in order, stopping at the first failure.
func (r *Record) Apply(redirs []syntax.Redirection, opener Opener) error {
	for _, rd := range redirs {
		if err := r.apply(rd, opener); err != nil {
			return err
		}
	}
	return nil
}

func (r *Record) apply(rd syntax.Redirection, opener Opener) error {
	if err := checkFD(rd.FD); err != nil {
		return err
	}
	if isDup(rd.Op) {
		if rd.Target == "-" {
			r.slot(rd.FD).closed = true
			return nil
		}
		if src, ok := ParseFD(rd.Target); ok {
			return r.dup(src, rd.FD)
		}
	}
	f, err := openTarget(rd, opener, r.Trace)
	if err != nil {
		return err
	}
	r.Map(rd.FD, f)
	return nil
}

func (r *Record) dup(src, dst int) error {
	if src == dst {
		if e := r.find(src); e != nil && e.closed {
			return badFD(src)
		}
		return nil
	}
	if e := r.find(src); e != nil {
		switch {
		case e.closed:
			return badFD(src)
		case e.file != nil:
			f, err := dupFile(e.file)
			if err != nil {
				return err
			}
			r.Map(dst, f)
		default:
			r.slot(dst).stream = e.stream
		}
		return nil
	}
	if stream := r.baseStream(src); stream != nil {
		r.slot(dst).stream = stream
		return nil
	}
	f, err := dupShellFD(src)
	if err != nil {
		return err
	}
	r.Map(dst, f)
	return nil
}

func (r *Record) baseStream(fd int) any {
	switch fd {
	case 0:
		return r.base.In
	case 1:
		return r.base.Out
	case 2:
		return r.base.Err
	}
	return nil
}

func (r *Record) resolve(pseudo int) any {
	if e := r.find(pseudo); e != nil {
		switch {
		case e.closed:
			return nil
		case e.file != nil:
			return e.file
		}
		return e.stream
	}
	return r.baseStream(pseudo)
}

// Reader returns the stream behind pseudo for reading. A closed or unknown
// pseudo-descriptor yields a reader that fails with EBADF.
func (r *Record) Reader(pseudo int) io.Reader {
	v := r.resolve(pseudo)
	if f, ok := v.(*os.File); ok && f != nil && pseudo == 0 && r.Input != nil {
		return r.Input(f)
	}
	if rd, ok := v.(io.Reader); ok {
		return rd
	}
	return badStream(pseudo)
}

// Writer returns the stream behind pseudo for writing. A closed or unknown
// pseudo-descriptor yields a writer that fails with EBADF.
func (r *Record) Writer(pseudo int) io.Writer {
	if w, ok := r.resolve(pseudo).(io.Writer); ok {
		return w
	}
	return badStream(pseudo)
}

// Stdio returns the record's view of descriptors 0, 1 and 2.
func (r *Record) Stdio() *core.Stdio {
	return &core.Stdio{In: r.Reader(0), Out: r.Writer(1), Err: r.Writer(2)}
}

// Len returns the number of mapped pseudo-descriptors.
func (r *Record) Len() int {
	return len(r.entries)
}

// Close releases every descriptor the record owns. It is safe to call more
// than once.
func (r *Record) Close() error {
	files := make([]*os.File, 0, len(r.entries))
	for _, e := range r.entries {
		files = append(files, e.file)
		e.file = nil
	}
	r.entries = nil
	return closeAll(files)
}

// badStream stands in for a descriptor that is closed or was never open.
type badStream int

func (b badStream) Read([]byte) (int, error) {
	return 0, &os.PathError{Op: "read", Path: "fd " + strconv.Itoa(int(b)), Err: ErrBadFD}
}

func (b badStream) Write([]byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: "fd " + strconv.Itoa(int(b)), Err: ErrBadFD}
}
