package syntax_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-ash/pkg/syntax"
	"github.com/rcarmo/go-ash/pkg/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want syntax.CommandList
	}{
		{
			name: "simple",
			line: "echo hi",
			want: syntax.CommandList{{Op: syntax.Sequential, Words: []string{"echo", "hi"}}},
		},
		{
			name: "pipeline_and_sequence",
			line: "printf hi | read x ; echo $x",
			want: syntax.CommandList{
				{Op: syntax.Pipe, Words: []string{"printf", "hi"}},
				{Op: syntax.Sequential, Words: []string{"read", "x"}},
				{Op: syntax.Sequential, Words: []string{"echo", "$x"}},
			},
		},
		{
			name: "unspaced_operators",
			line: "a|b;c&",
			want: syntax.CommandList{
				{Op: syntax.Pipe, Words: []string{"a"}},
				{Op: syntax.Sequential, Words: []string{"b"}},
				{Op: syntax.Background, Words: []string{"c"}},
			},
		},
		{
			name: "background",
			line: "sleep 5 &",
			want: syntax.CommandList{{Op: syntax.Background, Words: []string{"sleep", "5"}}},
		},
		{
			name: "redirections",
			line: "cmd <in >out 2>>log 3<>rw 4>|clob 2>&1 0<&- > spaced",
			want: syntax.CommandList{{
				Op:    syntax.Sequential,
				Words: []string{"cmd"},
				Redirs: []syntax.Redirection{
					{Op: syntax.RedirIn, FD: 0, Target: "in"},
					{Op: syntax.RedirOut, FD: 1, Target: "out"},
					{Op: syntax.RedirAppend, FD: 2, Target: "log"},
					{Op: syntax.RedirReadWrite, FD: 3, Target: "rw"},
					{Op: syntax.RedirClobber, FD: 4, Target: "clob"},
					{Op: syntax.RedirDupOut, FD: 2, Target: "1"},
					{Op: syntax.RedirDupIn, FD: 0, Target: "-"},
					{Op: syntax.RedirOut, FD: 1, Target: "spaced"},
				},
			}},
		},
		{
			name: "assignments",
			line: "A=1 B='two words' env C=3",
			want: syntax.CommandList{{
				Op:          syntax.Sequential,
				Words:       []string{"env", "C=3"},
				Assignments: []syntax.Assignment{{Name: "A", Value: "1"}, {Name: "B", Value: "two words"}},
			}},
		},
		{
			name: "assignment_only",
			line: "X=5",
			want: syntax.CommandList{{Op: syntax.Sequential, Assignments: []syntax.Assignment{{Name: "X", Value: "5"}}}},
		},
		{
			name: "quoted_semicolon",
			line: `echo 'a;b' "c|d"`,
			want: syntax.CommandList{{Op: syntax.Sequential, Words: []string{"echo", "a;b", "c|d"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := syntax.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"| cat",
		"echo hi |",
		"echo ; ; echo",
		"cat <",
		`echo "unterminated`,
	} {
		t.Run(line, func(t *testing.T) {
			_, err := syntax.Parse(line)
			if !errors.Is(err, syntax.ErrSyntax) && !errors.Is(err, syntax.ErrMissingTarget) {
				t.Fatalf("Parse(%q) error = %v, want syntax error", line, err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := syntax.Parse("   ")
	testutil.AssertNoError(t, err)
	if len(got) != 0 {
		t.Fatalf("Parse(blank) = %v, want empty list", got)
	}
	if !errors.Is(got.Validate(), syntax.ErrEmptyList) {
		t.Errorf("Validate() = %v, want ErrEmptyList", got.Validate())
	}
}

func TestDefaultFD(t *testing.T) {
	reads := []syntax.RedirOp{syntax.RedirIn, syntax.RedirReadWrite, syntax.RedirDupIn}
	writes := []syntax.RedirOp{syntax.RedirOut, syntax.RedirAppend, syntax.RedirClobber, syntax.RedirDupOut}
	for _, op := range reads {
		assert.Equal(t, 0, op.DefaultFD(), op.String())
	}
	for _, op := range writes {
		assert.Equal(t, 1, op.DefaultFD(), op.String())
	}
}

func TestIsName(t *testing.T) {
	assert.True(t, syntax.IsName("_a1"))
	assert.True(t, syntax.IsName("PATH"))
	assert.False(t, syntax.IsName("1a"))
	assert.False(t, syntax.IsName(""))
	assert.False(t, syntax.IsName("a-b"))
}

func FuzzParse(f *testing.F) {
	f.Add("echo hi | cat > out ; sleep 1 &")
	f.Add("A=1 2>&1 <>x")
	f.Fuzz(func(t *testing.T, line string) {
		line = testutil.ClampString(line, testutil.MaxFuzzBytes)
		list, err := syntax.Parse(line)
		if err != nil {
			return
		}
		if len(list) > 0 {
			if verr := list.Validate(); verr != nil {
				t.Fatalf("Parse(%q) produced invalid list: %v", line, verr)
			}
		}
	})
}
