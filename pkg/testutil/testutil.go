// Package testutil provides shared testing utilities and fixtures.
package testutil

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcarmo/go-ash/pkg/core"
)

// TempFile creates a temp file with content, returns path.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TempDirWithFiles creates a temp directory populated with files.
// The files map keys are relative paths, values are file contents.
func TempDirWithFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// CaptureStdio creates a Stdio with captured output buffers.
// Returns the Stdio, stdout buffer, and stderr buffer.
func CaptureStdio(input string) (*core.Stdio, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	return &core.Stdio{
		In:  strings.NewReader(input),
		Out: out,
		Err: errBuf,
	}, out, errBuf
}

// CaptureStdioNoInput creates a Stdio with no input and captured output.
func CaptureStdioNoInput() (*core.Stdio, *bytes.Buffer, *bytes.Buffer) {
	return CaptureStdio("")
}

// FileStdio is a set of real files standing in for a shell's 0, 1 and 2.
// Child processes inherit them, so output written by children is captured
// the same way as output written by the shell itself.
type FileStdio struct {
	In  *os.File
	Out *os.File
	Err *os.File
}

// CaptureFiles creates a FileStdio backed by temp files. Input is readable
// from In. The files are closed when the test ends.
func CaptureFiles(t *testing.T, input string) *FileStdio {
	t.Helper()
	dir := t.TempDir()
	open := func(name string) *os.File {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = f.Close() })
		return f
	}
	fs := &FileStdio{In: open("stdin"), Out: open("stdout"), Err: open("stderr")}
	if _, err := io.WriteString(fs.In, input); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.In.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	return fs
}

// Stdout returns everything written to Out so far.
func (fs *FileStdio) Stdout(t *testing.T) string {
	t.Helper()
	return readAll(t, fs.Out)
}

// Stderr returns everything written to Err so far.
func (fs *FileStdio) Stderr(t *testing.T) string {
	t.Helper()
	return readAll(t, fs.Err)
}

func readAll(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("failed to read %s: %v", f.Name(), err)
	}
	return string(data)
}

// RequireCommands skips the test unless every named utility is on PATH.
func RequireCommands(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

// AssertExitCode checks that the exit code matches expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("exit code = %d, want %d", got, want)
	}
}

// AssertOutput checks that stdout matches expected.
func AssertOutput(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

// AssertOutputContains checks that stdout contains expected substring.
func AssertOutputContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("output %q does not contain %q", got, want)
	}
}

// AssertNoError fails if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// AssertError fails if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// AssertFileExists checks that a file exists.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("file %s does not exist", path)
	}
}

// AssertFileNotExists checks that a file does not exist.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("file %s should not exist", path)
	}
}

// AssertFileContent checks that a file contains expected content.
func AssertFileContent(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("file %s content = %q, want %q", path, got, want)
	}
}

// OpenFDs lists the descriptors currently open in this process. Tests use it
// to check that a command leaves no descriptors behind.
func OpenFDs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("/proc/self/fd not available: %v", err)
	}
	fds := make([]string, 0, len(entries))
	for _, e := range entries {
		fds = append(fds, e.Name())
	}
	return fds
}

// RunScript is a helper type for running shell script tests.
type RunScript func(t *testing.T, fs *FileStdio, script string) int

// ScriptTestCase defines a parameterized test case for command lines.
type ScriptTestCase struct {
	Name       string                         // Test name
	Script     string                         // Command lines to run
	Input      string                         // Stdin input
	WantCode   int                            // Expected exit code
	WantOut    string                         // Expected stdout (exact match)
	WantOutSub string                         // Expected stdout substring
	WantErr    string                         // Expected stderr substring
	Files      map[string]string              // Files to create in temp dir
	Requires   []string                       // Utilities that must be on PATH
	Setup      func(t *testing.T, dir string) // Optional setup function
	Check      func(t *testing.T, dir string) // Optional post-run check
}

// RunScriptTests runs a slice of parameterized script test cases.
func RunScriptTests(t *testing.T, run RunScript, tests []ScriptTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			RequireCommands(t, tt.Requires...)

			// Create temp directory with files
			var dir string
			if len(tt.Files) > 0 {
				dir = TempDirWithFiles(t, tt.Files)
			} else {
				dir = t.TempDir()
			}

			// Change to temp dir for relative path tests
			oldDir, _ := os.Getwd()
			if err := os.Chdir(dir); err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = os.Chdir(oldDir) })

			if tt.Setup != nil {
				tt.Setup(t, dir)
			}

			fs := CaptureFiles(t, tt.Input)
			code := run(t, fs, tt.Script)

			AssertExitCode(t, code, tt.WantCode)
			if tt.WantOut != "" {
				AssertOutput(t, fs.Stdout(t), tt.WantOut)
			}
			if tt.WantOutSub != "" {
				AssertOutputContains(t, fs.Stdout(t), tt.WantOutSub)
			}
			if tt.WantErr != "" {
				AssertOutputContains(t, fs.Stderr(t), tt.WantErr)
			}

			if tt.Check != nil {
				tt.Check(t, dir)
			}
		})
	}
}
