package topicid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		in    string
		depth int
		key   string
	}{
		{"18", 1, "18"},
		{"18.3", 2, "18.3"},
		{"18.3.a", 3, "18.3.a"},
		{"18.3.A", 3, "18.3.a"},
		{" 5.1 ", 2, "5.1"},
		{"18.3.", 2, "18.3"},
		{"IV.2", 2, "iv.2"},
		{"07.010", 2, "7.10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.depth, id.Depth())
			assert.Equal(t, tt.key, id.Key())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", ".", "18..2", ".18", "18.x-1", "18 3", "18.3..", "99999999999999999999"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, in, pe.Text)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, in := range []string{"1", "18.3", "18.3.a", "A.B.c", "007", "2.10.1.x"} {
		first := MustParse(in)
		second, err := Parse(first.String())
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "round trip of %q", in)
		assert.Equal(t, first.Key(), second.Key())
	}
}

func TestCompare_NumericOrdering(t *testing.T) {
	ordered := []string{"1", "2", "9", "10", "10.1", "10.2", "10.10", "10.a", "10.b", "11"}
	for i := 0; i+1 < len(ordered); i++ {
		a, b := MustParse(ordered[i]), MustParse(ordered[i+1])
		assert.Equal(t, -1, Compare(a, b), "%s < %s", ordered[i], ordered[i+1])
		assert.Equal(t, 1, Compare(b, a), "%s > %s", ordered[i+1], ordered[i])
	}
	assert.Equal(t, 0, Compare(MustParse("18.3.A"), MustParse("18.3.a")))
}

func TestSort(t *testing.T) {
	ids := []ID{MustParse("18.10"), MustParse("18.2"), MustParse("9"), MustParse("18")}
	Sort(ids)
	got := make([]string, len(ids))
	for i, id := range ids {
		got[i] = id.String()
	}
	assert.Equal(t, []string{"9", "18", "18.2", "18.10"}, got)
}

func TestParentAndAncestry(t *testing.T) {
	id := MustParse("18.3.a")

	p, ok := id.Parent()
	require.True(t, ok)
	assert.Equal(t, "18.3", p.String())
	assert.True(t, IsAncestor(p, id))
	assert.True(t, IsAncestor(MustParse("18"), id))
	assert.False(t, IsAncestor(id, id))
	assert.False(t, IsAncestor(MustParse("1"), MustParse("18.3")))
	assert.False(t, IsAncestor(ID{}, id))

	_, ok = MustParse("18").Parent()
	assert.False(t, ok)
	assert.True(t, MustParse("18").ParentOrRoot().IsZero())
}

func TestParentDoesNotAliasChild(t *testing.T) {
	id := MustParse("4.1.2")
	p, _ := id.Parent()
	sibling := p.ChildNumber(9)
	assert.Equal(t, "4.1.9", sibling.String())
	assert.Equal(t, "4.1.2", id.String())
}

func TestChildNumber(t *testing.T) {
	assert.Equal(t, "18.2", MustParse("18").ChildNumber(2).String())
	assert.Equal(t, "7", ID{}.ChildNumber(7).String())
}

func TestSameParent(t *testing.T) {
	assert.True(t, SameParent(MustParse("18.1"), MustParse("18.3")))
	assert.True(t, SameParent(MustParse("5"), MustParse("9")))
	assert.False(t, SameParent(MustParse("18.1"), MustParse("19.1")))
}

func TestNewGrammar(t *testing.T) {
	_, err := NewGrammar(`^[0-9]+$`)
	require.NoError(t, err)

	for _, bad := range []string{`[`, `^.*$`, `^[0-9.]+$`} {
		_, err := NewGrammar(bad)
		assert.ErrorIs(t, err, ErrInvalidGrammar, "pattern %q", bad)
	}
}

func TestGrammar_RestrictsSegments(t *testing.T) {
	g := MustGrammar(`^[0-9]+$`)
	_, err := g.Parse("18.3")
	require.NoError(t, err)
	_, err = g.Parse("18.3.a")
	assert.ErrorIs(t, err, ErrParse)
}

func TestCompareText(t *testing.T) {
	assert.Equal(t, -1, CompareText("18.2", "18.10"))
	assert.Equal(t, -1, CompareText("18", "18..2"))
	assert.Equal(t, 1, CompareText("bad..id", "1"))
}
