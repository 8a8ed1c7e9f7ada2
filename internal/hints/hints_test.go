package hints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmap/internal/topicid"
)

func parseAll(ss ...string) []topicid.ID {
	out := make([]topicid.ID, len(ss))
	for i, s := range ss {
		out[i] = topicid.MustParse(s)
	}
	return out
}

func suggestionIDs(s []Suggestion) []string {
	out := make([]string, len(s))
	for i, x := range s {
		out[i] = x.ID
	}
	return out
}

func TestSuggest_BracketingSiblingsFirst(t *testing.T) {
	g := New(parseAll("18.3", "18", "18.1", "19"), 0)
	got := g.Suggest(topicid.MustParse("18.2"))
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, []string{"18.1", "18.3", "18"}, suggestionIDs(got)[:3])
	assert.Equal(t, RulePreviousSibling, got[0].Rule)
	assert.Equal(t, RuleNextSibling, got[1].Rule)
	assert.Equal(t, RuleParent, got[2].Rule)
	assert.NotContains(t, suggestionIDs(got), "19", "outside the parent prefix")
}

func TestSuggest_TopLevel(t *testing.T) {
	g := New(parseAll("5", "9", "14"), 0)
	got := g.Suggest(topicid.MustParse("7"))
	assert.Equal(t, []string{"5", "9", "14"}, suggestionIDs(got))
}

func TestSuggest_OnlyPreviousSibling(t *testing.T) {
	g := New(parseAll("4", "4.1", "4.2"), 0)
	got := g.Suggest(topicid.MustParse("4.5"))
	assert.Equal(t, []string{"4.2", "4", "4.1"}, suggestionIDs(got))
}

func TestSuggest_NoDuplicatesAndCapped(t *testing.T) {
	g := New(parseAll("2", "2.1", "2.3", "2.4", "2.5", "2.6", "2.7", "2.8"), 0)
	got := g.Suggest(topicid.MustParse("2.2"))
	require.Len(t, got, DefaultMax)
	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s.ID], "duplicate %s", s.ID)
		seen[s.ID] = true
	}
	assert.Equal(t, []string{"2.1", "2.3", "2"}, suggestionIDs(got)[:3])

	small := New(parseAll("2", "2.1", "2.3"), 2)
	assert.Len(t, small.Suggest(topicid.MustParse("2.2")), 2)

	wide := New(parseAll("2", "2.1", "2.3", "2.4", "2.5", "2.6", "2.7", "2.8"), 8)
	assert.Len(t, wide.Suggest(topicid.MustParse("2.2")), DefaultMax)
}

func TestSuggest_MissingParent(t *testing.T) {
	g := New(parseAll("3.1.1", "3.1.4"), 0)
	got := g.Suggest(topicid.MustParse("3.1.2"))
	assert.Equal(t, []string{"3.1.1", "3.1.4"}, suggestionIDs(got))
}

func TestSuggest_Deterministic(t *testing.T) {
	g := New(parseAll("1", "1.1", "1.3", "1.10", "2"), 0)
	first := g.Suggest(topicid.MustParse("1.2"))
	for range 5 {
		assert.Equal(t, first, g.Suggest(topicid.MustParse("1.2")))
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("18.2", "18.2"))
	assert.Equal(t, 1, levenshtein("18.2", "18.3"))
	assert.Equal(t, 2, levenshtein("18.2", "18.10"))
	assert.Equal(t, 4, levenshtein("", "18.2"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
