// Package hints proposes existing topics that a missing identifier most
// likely meant. Suggestions are purely structural: bracketing siblings, the
// parent, then the nearest identifiers by edit distance.
package hints

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dgallion1/docmap/internal/topicid"
)

// DefaultMax caps the number of suggestions per missing id.
const DefaultMax = 5

// Rule names how a suggestion was found.
type Rule string

const (
	RulePreviousSibling Rule = "previous_sibling"
	RuleNextSibling     Rule = "next_sibling"
	RuleParent          Rule = "parent"
	RuleNearest         Rule = "nearest_id"
)

// Suggestion is one candidate for a missing identifier.
type Suggestion struct {
	ID        string `json:"id"`
	Rule      Rule   `json:"rule"`
	Rationale string `json:"rationale"`
}

// Generator answers suggestions against a fixed set of registered ids.
type Generator struct {
	ids []topicid.ID
	max int
}

// New creates a Generator. ids need not be sorted; limit <= 0 means
// DefaultMax and larger limits are clamped to it.
func New(ids []topicid.ID, limit int) *Generator {
	sorted := slices.Clone(ids)
	topicid.Sort(sorted)
	if limit <= 0 {
		limit = DefaultMax
	}
	limit = min(limit, DefaultMax)
	return &Generator{ids: sorted, max: limit}
}

// Suggest returns ordered, de-duplicated candidates for missing.
func (g *Generator) Suggest(missing topicid.ID) []Suggestion {
	if missing.IsZero() {
		return nil
	}
	parent := missing.ParentOrRoot()

	var out []Suggestion
	seen := make(map[string]bool)
	add := func(id topicid.ID, rule Rule, why string) {
		if len(out) >= g.max || seen[id.Key()] || id.Equal(missing) {
			return
		}
		seen[id.Key()] = true
		out = append(out, Suggestion{ID: id.String(), Rule: rule, Rationale: why})
	}

	var prev, next topicid.ID
	for _, id := range g.ids {
		if !topicid.SameParent(id, missing) {
			continue
		}
		switch c := topicid.Compare(id, missing); {
		case c < 0:
			prev = id
		case c > 0 && next.IsZero():
			next = id
		}
	}
	if !prev.IsZero() {
		add(prev, RulePreviousSibling, fmt.Sprintf("nearest existing sibling before %s", missing))
	}
	if !next.IsZero() {
		add(next, RuleNextSibling, fmt.Sprintf("nearest existing sibling after %s", missing))
	}

	if !parent.IsZero() && slices.ContainsFunc(g.ids, parent.Equal) {
		add(parent, RuleParent, fmt.Sprintf("parent section of %s", missing))
	}

	type scored struct {
		id   topicid.ID
		dist int
	}
	target := missing.Key()
	var near []scored
	for _, id := range g.ids {
		if !parent.IsZero() && !topicid.IsAncestor(parent, id) {
			continue
		}
		near = append(near, scored{id: id, dist: levenshtein(id.Key(), target)})
	}
	slices.SortStableFunc(near, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return topicid.Compare(a.id, b.id)
	})
	for _, s := range near {
		add(s.id, RuleNearest, fmt.Sprintf("identifier within edit distance %d", s.dist))
	}
	return out
}

// levenshtein is the two-row edit distance over bytes. Identifier keys are
// ASCII.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
