package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestCompilation() *compilation {
	return newCompilation(CallingFunction{}, nil, nil, nil)
}

func TestReplaceOperators(t *testing.T) {
	c := newTestCompilation()

	got := c.replaceOperators("a AND b OR c AND NOT d")
	require.Equal(t, "a PLA0 b PLA1 c PLA2 PLA3 d", got)
	require.Equal(t, []string{"AND", "OR", "AND", "NOT"}, c.delims)
}

func TestExtractGroupsInnermostFirst(t *testing.T) {
	c := newTestCompilation()

	s := c.replaceOperators("( a AND ( b OR c ) )")
	s, err := c.extractGroups(s)
	require.NoError(t, err)

	require.Equal(t, []string{"grp:1"}, strings.Fields(s))
	require.Equal(t, []string{"b", "PLA1", "c"}, strings.Fields(c.groups["grp:0"]))
	require.Equal(t, []string{"a", "PLA0", "grp:0"}, strings.Fields(c.groups["grp:1"]))
}

func TestBuildTree(t *testing.T) {
	tests := []struct {
		name   string
		syntax string
		want   exprNode
	}{
		{
			name:   "single leaf",
			syntax: "x",
			want:   leaf("x"),
		},
		{
			name:   "comparison segment",
			syntax: "x > 5",
			want:   expr{leaf("x"), leaf(">"), leaf("5")},
		},
		{
			name:   "single binary operator",
			syntax: "a AND b",
			want:   expr{leaf("PLA0"), leaf("a"), leaf("b")},
		},
		{
			name:   "left-to-right fold without precedence",
			syntax: "a AND b OR c",
			want: expr{
				leaf("PLA1"),
				expr{leaf("PLA0"), leaf("a"), leaf("b")},
				leaf("c"),
			},
		},
		{
			name:   "unary not",
			syntax: "NOT a",
			want:   expr{leaf("PLA0"), leaf("a")},
		},
		{
			name:   "not binds before the binary fold",
			syntax: "a AND NOT b",
			want: expr{
				leaf("PLA0"),
				leaf("a"),
				expr{leaf("PLA1"), leaf("b")},
			},
		},
		{
			name:   "parenthesized group as left operand",
			syntax: "( a OR b ) AND c",
			want: expr{
				leaf("PLA1"),
				expr{leaf("PLA0"), leaf("a"), leaf("b")},
				leaf("c"),
			},
		},
		{
			name:   "nested parentheses collapse",
			syntax: "( ( a AND b ) )",
			want:   expr{leaf("PLA0"), leaf("a"), leaf("b")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompilation()
			got, err := c.buildTree(tt.syntax)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildTreeErrors(t *testing.T) {
	tests := []struct {
		name   string
		syntax string
	}{
		{"unbalanced open paren", "( a AND b"},
		{"unbalanced close paren", "a AND b )"},
		{"not without operand", "NOT"},
		{"binary without right operand", "a AND"},
		{"binary without left operand", "AND b"},
		{"operand before not", "a NOT b"},
		{"empty input", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompilation()
			_, err := c.buildTree(tt.syntax)
			require.Error(t, err)

			var cerr *CompileError
			require.True(t, errors.As(err, &cerr))
			require.Equal(t, ErrSyntax, cerr.Kind)
		})
	}
}
