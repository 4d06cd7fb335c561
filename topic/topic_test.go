package topic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) Name {
	t.Helper()
	n, err := NewName(s)
	require.NoError(t, err)
	return n
}

func mustFilter(t *testing.T, s string) Filter {
	t.Helper()
	f, err := NewFilter(s)
	require.NoError(t, err)
	return f
}

func TestNewName_Boundaries(t *testing.T) {
	_, err := NewName("")
	assert.ErrorIs(t, err, ErrInvalidName)

	exact := strings.Repeat("a", maxBytes)
	_, err = NewName(exact)
	assert.NoError(t, err)

	tooLong := strings.Repeat("a", maxBytes+1)
	_, err = NewName(tooLong)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewName("a+b")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewName("a#b")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewName_ServerInternal(t *testing.T) {
	n := mustName(t, "$SYS/session")
	assert.True(t, n.IsServerInternal())

	n2 := mustName(t, "todos/1")
	assert.False(t, n2.IsServerInternal())
}

func TestNewFilter_Validation(t *testing.T) {
	_, err := NewFilter("")
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = NewFilter("foo+")
	assert.ErrorIs(t, err, ErrInvalidFilter, "mixing a wildcard char with literal chars in one level is invalid")

	_, err = NewFilter("a/#/b")
	assert.ErrorIs(t, err, ErrInvalidFilter, "multi-level wildcard must be the final level")

	_, err = NewFilter("+")
	assert.NoError(t, err)

	_, err = NewFilter("foo")
	assert.NoError(t, err)
}

func TestFilter_Matches_WorkedExamples(t *testing.T) {
	cases := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact literal", "a/b/c", "a/b/c", true},
		{"single-level wildcard", "a/+/c", "a/b/c", true},
		{"multi-level wildcard trailing", "a/#", "a/b/c/d", true},
		{"server-internal requires dollar filter", "+/x", "$SYS/x", false},
		{"star is equivalent to hash", "a/*", "a/b/c", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := mustFilter(t, c.filter)
			n := mustName(t, c.topic)
			assert.Equal(t, c.want, f.Matches(n))
		})
	}
}

// TestFilter_Matches_OneOrMore documents the resolved Open Question from
// DESIGN.md: "a/#" does not match the bare name "a" under the one-or-more
// interpretation chosen for this build.
func TestFilter_Matches_OneOrMore(t *testing.T) {
	f := mustFilter(t, "a/#")
	n := mustName(t, "a")
	assert.False(t, f.Matches(n))

	n2 := mustName(t, "a/b")
	assert.True(t, f.Matches(n2))
}

func TestFilter_Matches_ServerInternalDollarPrefixFilter(t *testing.T) {
	f := mustFilter(t, "$SYS/session")
	n := mustName(t, "$SYS/session")
	assert.True(t, f.Matches(n))

	f2 := mustFilter(t, "$SYS/+")
	assert.True(t, f2.Matches(n))
}

func TestFilter_Matches_Deterministic(t *testing.T) {
	f := mustFilter(t, "a/+/c")
	n := mustName(t, "a/b/c")
	first := f.Matches(n)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.Matches(n))
	}
}

func TestFilter_Equal(t *testing.T) {
	a := mustFilter(t, "a/b")
	b := mustFilter(t, "a/b")
	c := mustFilter(t, "a/c")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
