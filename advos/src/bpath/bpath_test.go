package bpath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ustr"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/a/b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/a/../../b", "/b"},
		{"/a//b///c", "/a/b/c"},
		{"/", "/"},
		{"/..", "/"},
	}
	for _, c := range cases {
		got := Canonicalize(ustr.Ustr(c.in))
		require.Equal(t, c.want, got.String(), "input %q", c.in)
	}
}
