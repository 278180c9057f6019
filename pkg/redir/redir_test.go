package redir_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/core"
	"github.com/rcarmo/go-ash/pkg/redir"
	"github.com/rcarmo/go-ash/pkg/sandbox"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/testutil"
)

func rd(op syntax.RedirOp, fd int, target string) syntax.Redirection {
	return syntax.Redirection{Op: op, FD: fd, Target: target}
}

func TestOpenFlags(t *testing.T) {
	tests := []struct {
		op   syntax.RedirOp
		want int
	}{
		{syntax.RedirIn, os.O_RDONLY},
		{syntax.RedirDupIn, os.O_RDONLY},
		{syntax.RedirOut, os.O_WRONLY | os.O_CREATE | os.O_EXCL},
		{syntax.RedirDupOut, os.O_WRONLY | os.O_CREATE | os.O_EXCL},
		{syntax.RedirAppend, os.O_WRONLY | os.O_CREATE | os.O_APPEND},
		{syntax.RedirReadWrite, os.O_RDWR | os.O_CREATE},
		{syntax.RedirClobber, os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redir.OpenFlags(tt.op), tt.op.String())
	}
}

func TestParseFD(t *testing.T) {
	for in, want := range map[string]bool{"0": true, "12": true, "": false, "-": false, "+1": false, "1x": false, "file": false} {
		_, ok := redir.ParseFD(in)
		assert.Equal(t, want, ok, in)
	}
}

func TestFDTable(t *testing.T) {
	dir := t.TempDir()
	fs := testutil.CaptureFiles(t, "")

	t.Run("dup_and_close", func(t *testing.T) {
		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		require.NoError(t, tbl.Apply([]syntax.Redirection{
			rd(syntax.RedirDupOut, 2, "1"),
			rd(syntax.RedirDupIn, 0, "-"),
		}, nil))
		files := tbl.Files()
		require.Len(t, files, 3)
		assert.Nil(t, files[0])
		assert.Same(t, fs.Out, files[2])
		assert.NoError(t, tbl.Close())
	})

	t.Run("bad_source", func(t *testing.T) {
		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		err := tbl.Apply([]syntax.Redirection{rd(syntax.RedirDupOut, 3, "900")}, nil)
		assert.True(t, errors.Is(err, unix.EBADF))
		assert.NoError(t, tbl.Close())
	})

	t.Run("closed_source", func(t *testing.T) {
		shared := testutil.TempFile(t, "closed.txt", "")
		f, err := os.Open(shared)
		require.NoError(t, err)
		defer f.Close()
		fd := strconv.Itoa(int(f.Fd()))

		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		err = tbl.Apply([]syntax.Redirection{
			rd(syntax.RedirDupIn, int(f.Fd()), "-"),
			rd(syntax.RedirDupIn, 0, fd),
		}, nil)
		assert.True(t, errors.Is(err, unix.EBADF), "a descriptor closed for the child stays closed")
	})

	t.Run("shell_descriptor", func(t *testing.T) {
		f, err := os.Open(testutil.TempFile(t, "shared.txt", "shared"))
		require.NoError(t, err)
		defer f.Close()

		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		require.NoError(t, tbl.Apply([]syntax.Redirection{
			rd(syntax.RedirDupIn, 0, strconv.Itoa(int(f.Fd()))),
		}, nil))
		in := tbl.Files()[0]
		require.NotNil(t, in)
		assert.NotSame(t, f, in)
		data, err := io.ReadAll(in)
		require.NoError(t, err)
		assert.Equal(t, "shared", string(data))

		require.NoError(t, tbl.Close())
		_, err = f.Stat()
		assert.NoError(t, err, "the shell keeps its own descriptor")
	})

	t.Run("trailing_closed_slots_trimmed", func(t *testing.T) {
		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		require.NoError(t, tbl.Apply([]syntax.Redirection{rd(syntax.RedirDupOut, 2, "-")}, nil))
		assert.Len(t, tbl.Files(), 2)
	})

	t.Run("strict_create_refuses_existing", func(t *testing.T) {
		path := testutil.TempFile(t, "keep.txt", "original")
		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		err := tbl.Apply([]syntax.Redirection{rd(syntax.RedirOut, 1, path)}, nil)
		assert.True(t, errors.Is(err, os.ErrExist))
		testutil.AssertFileContent(t, path, "original")
	})

	t.Run("open_modes", func(t *testing.T) {
		appendPath := testutil.TempFile(t, "log", "a")
		clobberPath := testutil.TempFile(t, "clob", "old contents")
		rwPath := filepath.Join(dir, "rw")
		dupFilePath := filepath.Join(dir, "dupfile")

		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		require.NoError(t, tbl.Apply([]syntax.Redirection{
			rd(syntax.RedirAppend, 1, appendPath),
			rd(syntax.RedirClobber, 2, clobberPath),
			rd(syntax.RedirReadWrite, 3, rwPath),
			rd(syntax.RedirDupOut, 4, dupFilePath),
		}, nil))
		files := tbl.Files()
		require.Len(t, files, 5)
		_, err := io.WriteString(files[1], "b")
		require.NoError(t, err)
		_, err = io.WriteString(files[2], "new")
		require.NoError(t, err)
		require.NoError(t, tbl.Close())

		testutil.AssertFileContent(t, appendPath, "ab")
		testutil.AssertFileContent(t, clobberPath, "new")
		testutil.AssertFileExists(t, rwPath)
		testutil.AssertFileExists(t, dupFilePath)
		_, err = files[1].Write([]byte("x"))
		assert.Error(t, err, "Close releases opened files")
	})

	t.Run("out_of_range_fd", func(t *testing.T) {
		tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
		err := tbl.Apply([]syntax.Redirection{rd(syntax.RedirOut, redir.MaxFD, "x")}, nil)
		assert.True(t, errors.Is(err, unix.EBADF))
	})
}

func TestFDTableUsesOpener(t *testing.T) {
	allowed := t.TempDir()
	policy, err := sandbox.New(&sandbox.Config{
		AllowedPaths: []sandbox.PathRule{{Path: allowed, Permission: sandbox.PermRead}},
	})
	require.NoError(t, err)

	fs := testutil.CaptureFiles(t, "")
	tbl := redir.NewFDTable(fs.In, fs.Out, fs.Err)
	err = tbl.Apply([]syntax.Redirection{rd(syntax.RedirOut, 1, filepath.Join(allowed, "x"))}, policy)
	assert.True(t, errors.Is(err, sandbox.ErrReadOnly))
	testutil.AssertFileNotExists(t, filepath.Join(allowed, "x"))
}

func TestRecordFallsBackToBase(t *testing.T) {
	stdio, out, errBuf := testutil.CaptureStdio("input")
	rec := redir.NewRecord(stdio)
	defer rec.Close()

	data, err := io.ReadAll(rec.Reader(0))
	require.NoError(t, err)
	assert.Equal(t, "input", string(data))
	rec.Stdio().Printf("out")
	rec.Stdio().Errorf("err")
	assert.Equal(t, "out", out.String())
	assert.Equal(t, "err", errBuf.String())
	assert.Equal(t, 0, rec.Len())

	_, err = rec.Writer(5).Write([]byte("x"))
	assert.True(t, errors.Is(err, unix.EBADF))
}

func TestRecordRedirections(t *testing.T) {
	stdio, out, errBuf := testutil.CaptureStdio("")
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	rec := redir.NewRecord(stdio)
	require.NoError(t, rec.Apply([]syntax.Redirection{
		rd(syntax.RedirOut, 1, path),
		rd(syntax.RedirDupOut, 2, "1"),
		rd(syntax.RedirDupOut, 3, "2"),
	}, nil))
	assert.Equal(t, 3, rec.Len())

	io.WriteString(rec.Writer(1), "one ")
	io.WriteString(rec.Writer(2), "two ")
	io.WriteString(rec.Writer(3), "three")
	require.NoError(t, rec.Close())

	testutil.AssertFileContent(t, path, "one two three")
	assert.Empty(t, out.String())
	assert.Empty(t, errBuf.String())
}

func TestRecordBorrowsBaseStreams(t *testing.T) {
	stdio, out, _ := testutil.CaptureStdio("")
	rec := redir.NewRecord(stdio)
	require.NoError(t, rec.Apply([]syntax.Redirection{rd(syntax.RedirDupOut, 2, "1")}, nil))
	rec.Stdio().Errorf("to stdout")
	require.NoError(t, rec.Close())
	assert.Equal(t, "to stdout", out.String())
}

func TestRecordClose(t *testing.T) {
	stdio, _, _ := testutil.CaptureStdio("")
	rec := redir.NewRecord(stdio)
	require.NoError(t, rec.Apply([]syntax.Redirection{rd(syntax.RedirDupOut, 1, "-")}, nil))
	_, err := rec.Writer(1).Write([]byte("x"))
	assert.True(t, errors.Is(err, unix.EBADF))

	err = rec.Apply([]syntax.Redirection{rd(syntax.RedirDupOut, 2, "1")}, nil)
	assert.True(t, errors.Is(err, unix.EBADF), "duplicating a closed pseudo-descriptor fails")
}

func TestRecordReplacesInPlace(t *testing.T) {
	stdio, _, _ := testutil.CaptureStdio("")
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")

	rec := redir.NewRecord(stdio)
	require.NoError(t, rec.Apply([]syntax.Redirection{
		rd(syntax.RedirOut, 1, first),
		rd(syntax.RedirOut, 1, second),
	}, nil))
	assert.Equal(t, 1, rec.Len())
	io.WriteString(rec.Writer(1), "later wins")
	require.NoError(t, rec.Close())

	testutil.AssertFileContent(t, first, "")
	testutil.AssertFileContent(t, second, "later wins")
}

func TestRecordRestoresDescriptorTable(t *testing.T) {
	fs := testutil.CaptureFiles(t, "")
	dir := t.TempDir()
	// Warm up the runtime poller so its descriptors exist before the baseline.
	wr, ww, err := os.Pipe()
	require.NoError(t, err)
	wr.Close()
	ww.Close()
	before := testutil.OpenFDs(t)

	pr, pw, err := os.Pipe()
	require.NoError(t, err)

	rec := redir.NewRecord(&core.Stdio{In: fs.In, Out: fs.Out, Err: fs.Err})
	rec.Map(0, pr)
	rec.Map(1, pw)
	require.NoError(t, rec.Apply([]syntax.Redirection{
		rd(syntax.RedirDupOut, 2, "1"),
		rd(syntax.RedirDupOut, 5, "1"),
		rd(syntax.RedirOut, 6, filepath.Join(dir, "six")),
		rd(syntax.RedirDupIn, 0, "-"),
	}, nil))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "Close is idempotent")

	assert.ElementsMatch(t, before, testutil.OpenFDs(t))
	_, err = fs.Out.WriteString("base stream still open")
	assert.NoError(t, err)
}

func TestRecordDupsShellDescriptor(t *testing.T) {
	stdio, _, _ := testutil.CaptureStdio("")
	f, err := os.Open(testutil.TempFile(t, "shared.txt", "from the shell"))
	require.NoError(t, err)
	defer f.Close()

	rec := redir.NewRecord(stdio)
	require.NoError(t, rec.Apply([]syntax.Redirection{
		rd(syntax.RedirDupIn, 0, strconv.Itoa(int(f.Fd()))),
	}, nil))
	data, err := io.ReadAll(rec.Reader(0))
	require.NoError(t, err)
	assert.Equal(t, "from the shell", string(data))
	require.NoError(t, rec.Close())

	_, err = f.Stat()
	assert.NoError(t, err, "the shell keeps its own descriptor")

	err = rec.Apply([]syntax.Redirection{rd(syntax.RedirDupIn, 0, "900")}, nil)
	assert.True(t, errors.Is(err, unix.EBADF))
}
