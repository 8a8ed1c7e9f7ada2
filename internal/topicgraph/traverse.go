package topicgraph

import (
	"fmt"
	"slices"

	"github.com/dgallion1/docmap/internal/topicid"
)

// Strategy selects which edges ShortestPath may walk.
type Strategy string

const (
	AnyEdge       Strategy = "any_edge"
	HierarchyOnly Strategy = "hierarchy_only"
)

// ParseStrategy accepts the wire names of the strategies; empty means
// AnyEdge.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", AnyEdge:
		return AnyEdge, nil
	case HierarchyOnly:
		return HierarchyOnly, nil
	}
	return "", fmt.Errorf("%w: unknown path strategy %q", ErrInvalidQuery, s)
}

// Direction selects edges for References.
type Direction string

const (
	DirTo   Direction = "to"
	DirFrom Direction = "from"
	DirBoth Direction = "both"
)

// ParseDirection accepts "to", "from" or "both"; empty means both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirBoth:
		return DirBoth, nil
	case DirTo, DirFrom:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: unknown reference direction %q", ErrInvalidQuery, s)
}

// Parent returns the registered parent of id, if the hierarchy edge is
// valid.
func (g *Graph) Parent(id topicid.ID) (topicid.ID, bool, error) {
	i, err := g.mustIndex(id)
	if err != nil {
		return topicid.ID{}, false, err
	}
	if p := g.parentIndex(i); p >= 0 {
		return g.topics[p].ID, true, nil
	}
	return topicid.ID{}, false, nil
}

func (g *Graph) parentIndex(i int) int {
	for _, ei := range g.out[i] {
		e := g.edges[ei]
		if e.Hierarchy() && e.Valid() {
			return e.To
		}
	}
	return -1
}

// Ancestors returns the registered id-prefixes of id, nearest first. A
// missing intermediate parent is skipped, so 18 is an ancestor of 18.3.1
// even when 18.3 is absent.
func (g *Graph) Ancestors(id topicid.ID) ([]topicid.ID, error) {
	i, err := g.mustIndex(id)
	if err != nil {
		return nil, err
	}
	var out []topicid.ID
	for p, ok := g.topics[i].ID.Parent(); ok; p, ok = p.Parent() {
		if j, found := g.Index(p); found {
			out = append(out, g.topics[j].ID)
		}
	}
	return out, nil
}

func (g *Graph) childIndices(i int) []int {
	var out []int
	for _, ei := range g.in[i] {
		if e := g.edges[ei]; e.Hierarchy() {
			out = append(out, e.From)
		}
	}
	slices.Sort(out)
	return out
}

// Children returns the direct children of id in identifier order.
func (g *Graph) Children(id topicid.ID) ([]topicid.ID, error) {
	i, err := g.mustIndex(id)
	if err != nil {
		return nil, err
	}
	return g.ids(g.childIndices(i)), nil
}

// HasChildren reports whether node i has at least one registered child.
func (g *Graph) HasChildren(i int) bool {
	for _, ei := range g.in[i] {
		if g.edges[ei].Hierarchy() {
			return true
		}
	}
	return false
}

// Descendants returns every registered id that has id as a prefix, in
// identifier order. Missing intermediate levels do not cut the subtree.
func (g *Graph) Descendants(id topicid.ID) ([]topicid.ID, error) {
	i, err := g.mustIndex(id)
	if err != nil {
		return nil, err
	}
	root := g.topics[i].ID
	var out []topicid.ID
	for _, t := range g.topics {
		if topicid.IsAncestor(root, t.ID) {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

// References returns the non-hierarchy edges touching id. Outgoing edges
// include broken ones.
func (g *Graph) References(id topicid.ID, dir Direction) ([]Edge, error) {
	i, err := g.mustIndex(id)
	if err != nil {
		return nil, err
	}
	var out []Edge
	if dir == DirFrom || dir == DirBoth {
		for _, ei := range g.out[i] {
			if e := g.edges[ei]; !e.Hierarchy() {
				out = append(out, e)
			}
		}
	}
	if dir == DirTo || dir == DirBoth {
		for _, ei := range g.in[i] {
			if e := g.edges[ei]; !e.Hierarchy() {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

type step struct {
	to   int
	hier bool
}

// steps lists the moves available from each node under strategy. Hierarchy
// edges are walkable both ways; reference edges only forward; broken edges
// never.
func (g *Graph) steps(strategy Strategy) (fwd [][]step, rev [][]int) {
	fwd = make([][]step, len(g.topics))
	rev = make([][]int, len(g.topics))
	link := func(a, b int, hier bool) {
		fwd[a] = append(fwd[a], step{to: b, hier: hier})
		rev[b] = append(rev[b], a)
	}
	for _, e := range g.edges {
		if !e.Valid() {
			continue
		}
		switch {
		case e.Hierarchy():
			link(e.From, e.To, true)
			link(e.To, e.From, true)
		case strategy == AnyEdge:
			link(e.From, e.To, false)
		}
	}
	return fwd, rev
}

// ShortestPath returns the identifiers on a shortest path from a to b,
// both inclusive. Among equally short paths the walk prefers a hierarchy
// edge at each step, then the smaller next identifier.
func (g *Graph) ShortestPath(a, b topicid.ID, strategy Strategy) ([]topicid.ID, error) {
	from, err := g.mustIndex(a)
	if err != nil {
		return nil, err
	}
	to, err := g.mustIndex(b)
	if err != nil {
		return nil, err
	}
	if from == to {
		return []topicid.ID{g.topics[from].ID}, nil
	}

	fwd, rev := g.steps(strategy)

	// Distance to b over reversed moves.
	dist := make([]int, len(g.topics))
	for i := range dist {
		dist[i] = -1
	}
	dist[to] = 0
	queue := []int{to}
	for len(queue) > 0 && dist[from] < 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range rev[cur] {
			if dist[prev] < 0 {
				dist[prev] = dist[cur] + 1
				queue = append(queue, prev)
			}
		}
	}
	if dist[from] < 0 {
		return nil, &NoPathError{From: a.String(), To: b.String(), Strategy: strategy}
	}

	path := []int{from}
	for cur := from; cur != to; {
		best := step{to: -1}
		for _, s := range fwd[cur] {
			if dist[s.to] != dist[cur]-1 {
				continue
			}
			if best.to < 0 || better(s, best) {
				best = s
			}
		}
		cur = best.to
		path = append(path, cur)
	}
	return g.ids(path), nil
}

func better(s, than step) bool {
	if s.hier != than.hier {
		return s.hier
	}
	return s.to < than.to
}

func (g *Graph) ids(idx []int) []topicid.ID {
	out := make([]topicid.ID, len(idx))
	for j, i := range idx {
		out[j] = g.topics[i].ID
	}
	return out
}
