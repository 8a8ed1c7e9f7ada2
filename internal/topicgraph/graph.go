// Package topicgraph assembles registered topics and resolved references into
// an immutable directed multigraph.
//
// Storage is arena style: topics live in a slice ordered by identifier and
// edges refer to them by index. A broken edge keeps its target identifier but
// has no target index.
package topicgraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/resolver"
	"github.com/dgallion1/docmap/internal/topicid"
)

var (
	// ErrTopicNotFound is returned by queries naming an unregistered id.
	ErrTopicNotFound = errors.New("topicgraph: topic not found")
	// ErrNoPath matches every *NoPathError.
	ErrNoPath = errors.New("topicgraph: no path")
	// ErrInvalidQuery is wrapped by ParseStrategy and ParseDirection.
	ErrInvalidQuery = errors.New("topicgraph: invalid query")
)

// NoPathError reports that ShortestPath found no route.
type NoPathError struct {
	From     string
	To       string
	Strategy Strategy
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("topicgraph: no %s path from %s to %s", e.Strategy, e.From, e.To)
}

func (e *NoPathError) Is(target error) bool { return target == ErrNoPath }

// Edge is a resolved edge plus its endpoint indices. To is -1 for broken
// edges.
type Edge struct {
	resolver.Edge
	From int
	To   int
}

// Valid reports whether the edge's target is registered.
func (e Edge) Valid() bool { return e.Status == resolver.StatusValid }

// Hierarchy reports whether the edge is a derived parent link.
func (e Edge) Hierarchy() bool { return e.Kind == resolver.KindHierarchy }

// Graph is read-only after Build and safe for concurrent readers.
type Graph struct {
	topics     []registry.Topic
	index      map[string]int
	edges      []Edge
	out        [][]int
	in         [][]int
	unresolved []resolver.Unparsed
}

// Build creates the graph from a populated registry and a resolution
// produced against it.
func Build(reg *registry.Registry, res resolver.Resolution, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ids := reg.IDs()
	g := &Graph{
		topics:     make([]registry.Topic, len(ids)),
		index:      make(map[string]int, len(ids)),
		out:        make([][]int, len(ids)),
		in:         make([][]int, len(ids)),
		unresolved: append([]resolver.Unparsed(nil), res.Unresolved...),
	}
	for i, id := range ids {
		t, _ := reg.Lookup(id)
		g.topics[i] = t
		g.index[id.Key()] = i
	}

	for i, t := range g.topics {
		parent, ok := t.ID.Parent()
		if !ok {
			continue
		}
		g.add(Edge{Edge: resolver.Edge{
			Source:     t.ID,
			Target:     parent,
			Kind:       resolver.KindHierarchy,
			Status:     resolver.StatusBroken,
			Confidence: 1,
			Position:   t.Position,
		}, From: i, To: -1})
	}

	seen := make(map[edgeKey]int, len(res.Edges))
	dropped := 0
	for _, e := range res.Edges {
		from, ok := g.index[e.Source.Key()]
		if !ok {
			log.Warn("dropping edge from unregistered source", "source", e.Source.String())
			continue
		}
		k := edgeKey{e.Source.Key(), e.Target.Key(), e.Kind}
		if at, dup := seen[k]; dup {
			dropped++
			if e.Confidence > g.edges[at].Confidence {
				g.edges[at].Context = e.Context
				g.edges[at].Confidence = e.Confidence
				g.edges[at].Position = e.Position
			}
			continue
		}
		seen[k] = len(g.edges)
		g.add(Edge{Edge: e, From: from, To: -1})
	}

	log.Debug("topic graph built",
		"nodes", len(g.topics),
		"edges", len(g.edges),
		"duplicate_edges", dropped,
		"unresolved", len(g.unresolved),
	)
	return g
}

type edgeKey struct {
	source, target string
	kind           resolver.Kind
}

// add links e by index. The target is looked up here so status always
// reflects registry membership.
func (g *Graph) add(e Edge) {
	if to, ok := g.index[e.Target.Key()]; ok {
		e.To = to
		e.Status = resolver.StatusValid
	} else {
		e.To = -1
		e.Status = resolver.StatusBroken
	}
	i := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.From] = append(g.out[e.From], i)
	if e.To >= 0 {
		g.in[e.To] = append(g.in[e.To], i)
	}
}

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.topics) }

// Topic returns the node at arena index i.
func (g *Graph) Topic(i int) registry.Topic { return g.topics[i] }

// Topics returns all nodes in identifier order.
func (g *Graph) Topics() []registry.Topic {
	return append([]registry.Topic(nil), g.topics...)
}

// Index returns the arena index of id.
func (g *Graph) Index(id topicid.ID) (int, bool) {
	i, ok := g.index[id.Key()]
	return i, ok
}

// Lookup returns the node for id.
func (g *Graph) Lookup(id topicid.ID) (registry.Topic, bool) {
	i, ok := g.index[id.Key()]
	if !ok {
		return registry.Topic{}, false
	}
	return g.topics[i], true
}

// Edges returns every edge: hierarchy edges first in identifier order, then
// reference edges in mention order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Outgoing returns edges whose source is node i.
func (g *Graph) Outgoing(i int) []Edge { return g.collect(g.out[i]) }

// Incoming returns valid edges whose target is node i.
func (g *Graph) Incoming(i int) []Edge { return g.collect(g.in[i]) }

func (g *Graph) collect(idx []int) []Edge {
	out := make([]Edge, len(idx))
	for j, e := range idx {
		out[j] = g.edges[e]
	}
	return out
}

// Broken returns all broken edges in edge order.
func (g *Graph) Broken() []Edge {
	var out []Edge
	for _, e := range g.edges {
		if !e.Valid() {
			out = append(out, e)
		}
	}
	return out
}

// Unresolved returns the mentions that never became edges.
func (g *Graph) Unresolved() []resolver.Unparsed {
	return append([]resolver.Unparsed(nil), g.unresolved...)
}

func (g *Graph) mustIndex(id topicid.ID) (int, error) {
	i, ok := g.index[id.Key()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return i, nil
}
