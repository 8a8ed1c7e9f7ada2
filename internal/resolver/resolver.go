// Package resolver turns raw reference mentions into typed edges.
//
// Every mention is classified exactly once, on entry, as either a Parsed
// reference (both endpoints are identifiers) or an Unparsed one carrying the
// reason it could not be turned into an edge. Downstream code switches on the
// concrete type and never re-inspects the mention text.
package resolver

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/topicid"
)

// Kind is the relationship an edge expresses.
type Kind string

const (
	KindHierarchy      Kind = "hierarchy"
	KindCrossReference Kind = "cross_reference"
	KindForward        Kind = "forward"
	KindBackward       Kind = "backward"
)

// Status records whether an edge's target is registered.
type Status string

const (
	StatusValid  Status = "valid"
	StatusBroken Status = "broken"
)

// Edge is a typed relationship between two identifiers.
type Edge struct {
	Source     topicid.ID
	Target     topicid.ID
	Kind       Kind
	Status     Status
	Context    string
	Confidence float64
	// Position is the document offset of the mention that produced the edge.
	Position int
}

// Mention is a reference found in the text of a topic.
type Mention struct {
	SourceID   string
	Target     string
	Position   int
	Context    string
	Confidence float64
}

// Reason explains why a mention could not become an edge.
type Reason string

const (
	ReasonUnparseableTarget Reason = "unparseable_target"
	ReasonUnparseableSource Reason = "unparseable_source"
	ReasonUnknownSource     Reason = "unknown_source"
)

// Reference is either Parsed or Unparsed.
type Reference interface {
	mention() Mention
}

// Parsed is a mention whose source and target are valid identifiers.
type Parsed struct {
	Mention
	Source topicid.ID
	Target topicid.ID
}

// Unparsed is a mention that could not be turned into an edge.
type Unparsed struct {
	Mention
	Reason Reason
	Err    error
}

func (p Parsed) mention() Mention   { return p.Mention }
func (u Unparsed) mention() Mention { return u.Mention }

// Resolution is the output of Resolve. Edges are in mention order and not
// yet deduplicated.
type Resolution struct {
	Edges      []Edge
	Unresolved []Unparsed
}

// Options tune the resolver.
type Options struct {
	Grammar *topicid.Grammar
	Logger  *slog.Logger
}

// Resolver classifies mentions against a populated registry. It only reads
// from the registry.
type Resolver struct {
	reg     *registry.Registry
	grammar *topicid.Grammar
	log     *slog.Logger
}

// New creates a Resolver over reg.
func New(reg *registry.Registry, opts Options) *Resolver {
	g := opts.Grammar
	if g == nil {
		g = topicid.DefaultGrammar
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{reg: reg, grammar: g, log: log}
}

// Classify decides once whether m is a usable reference.
func (r *Resolver) Classify(m Mention) Reference {
	src, err := r.grammar.Parse(m.SourceID)
	if err != nil {
		return Unparsed{Mention: m, Reason: ReasonUnparseableSource, Err: err}
	}
	if !r.reg.Has(src) {
		return Unparsed{
			Mention: m,
			Reason:  ReasonUnknownSource,
			Err:     fmt.Errorf("source topic %s is not registered", src),
		}
	}
	dst, err := r.grammar.Parse(m.Target)
	if err != nil {
		return Unparsed{Mention: m, Reason: ReasonUnparseableTarget, Err: err}
	}
	return Parsed{Mention: m, Source: src, Target: dst}
}

// Resolve classifies mentions in order and turns parsed ones into edges.
// Mentions should be supplied in document order.
func (r *Resolver) Resolve(mentions []Mention) Resolution {
	var res Resolution
	for _, m := range mentions {
		switch ref := r.Classify(m).(type) {
		case Unparsed:
			r.log.Warn("unresolved reference",
				"source", m.SourceID,
				"target", m.Target,
				"reason", string(ref.Reason),
				"error", ref.Err,
			)
			res.Unresolved = append(res.Unresolved, ref)
		case Parsed:
			if ref.Source.Equal(ref.Target) {
				r.log.Debug("skipping self reference", "topic_id", ref.Source.String())
				continue
			}
			res.Edges = append(res.Edges, r.edge(ref))
		}
	}
	return res
}

func (r *Resolver) edge(p Parsed) Edge {
	e := Edge{
		Source:     p.Source,
		Target:     p.Target,
		Kind:       KindCrossReference,
		Status:     StatusBroken,
		Context:    p.Context,
		Confidence: clampConfidence(p.Confidence),
		Position:   p.Position,
	}
	dst, ok := r.reg.Lookup(p.Target)
	if !ok {
		return e
	}
	e.Status = StatusValid
	src, _ := r.reg.Lookup(p.Source)
	e.Kind = Direction(src.Position, dst.Position)
	return e
}

// Direction classifies a reference by the document positions of its
// endpoints.
func Direction(sourcePos, targetPos int) Kind {
	switch {
	case targetPos > sourcePos:
		return KindForward
	case targetPos < sourcePos:
		return KindBackward
	}
	return KindCrossReference
}

func clampConfidence(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return min(f, 1)
}
