package expand_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/rcarmo/go-ash/pkg/expand"
	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/testutil"
	"github.com/rcarmo/go-ash/pkg/vars"
)

func newExpander(t *testing.T) *expand.Expander {
	t.Helper()
	store := vars.New()
	testutil.AssertNoError(t, store.Set("FOO", "bar"))
	testutil.AssertNoError(t, store.Set("HOME", "/home/ash"))
	return &expand.Expander{
		Vars: store,
		Special: func(c byte) (string, bool) {
			switch c {
			case '?':
				return "3", true
			case '$':
				return "100", true
			}
			return "", false
		},
	}
}

func TestWord(t *testing.T) {
	e := newExpander(t)
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"$FOO", "bar"},
		{"x${FOO}y", "xbary"},
		{"$FOO.txt", "bar.txt"},
		{"$UNSET-", "-"},
		{"$?", "3"},
		{"${?}", "3"},
		{"$$", "100"},
		{"$!", ""},
		{"cost$", "cost$"},
		{"$1", "$1"},
		{"~", "/home/ash"},
		{"~/bin", "/home/ash/bin"},
		{"a~", "a~"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := e.Word(tt.in)
			testutil.AssertNoError(t, err)
			testutil.AssertOutput(t, got, tt.want)
		})
	}
}

func TestBadSubstitution(t *testing.T) {
	e := newExpander(t)
	for _, in := range []string{"${FOO", "${1x}", "${}"} {
		if _, err := e.Word(in); !errors.Is(err, expand.ErrBadSubstitution) {
			t.Errorf("Word(%q) error = %v, want ErrBadSubstitution", in, err)
		}
	}
}

func TestCommand(t *testing.T) {
	e := newExpander(t)
	cmd := &syntax.Command{
		Words:       []string{"echo", "$FOO"},
		Assignments: []syntax.Assignment{{Name: "X", Value: "${FOO}1"}},
		Redirs:      []syntax.Redirection{{Op: syntax.RedirOut, FD: 1, Target: "$FOO.out"}},
	}
	testutil.AssertNoError(t, e.Command(cmd))
	testutil.AssertOutput(t, cmd.Words[1], "bar")
	testutil.AssertOutput(t, cmd.Assignments[0].Value, "bar1")
	testutil.AssertOutput(t, cmd.Redirs[0].Target, "bar.out")
}

func FuzzWord(f *testing.F) {
	for _, seed := range []string{"$FOO", "${FOO}x", "~/a", "$?$$", "${", "$"} {
		f.Add([]byte(seed))
	}
	e := &expand.Expander{Vars: vars.New()}
	f.Fuzz(func(t *testing.T, data []byte) {
		data = testutil.ClampBytes(data, testutil.MaxFuzzBytes)
		got, err := e.Word(string(data))
		if err != nil && !errors.Is(err, expand.ErrBadSubstitution) {
			t.Fatalf("Word(%q) unexpected error: %v", data, err)
		}
		if err == nil && !strings.Contains(string(data), "$") && !strings.HasPrefix(string(data), "~") && got != string(data) {
			t.Fatalf("Word(%q) = %q, want unchanged", data, got)
		}
	})
}
