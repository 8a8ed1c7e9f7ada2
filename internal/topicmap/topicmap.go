// Package topicmap is the entry point to the graph engine. It takes topic and
// mention records in document order, builds the registry, resolves
// references, assembles the graph and runs anomaly detection, then answers
// navigation queries over the result.
package topicmap

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/resolver"
	"github.com/dgallion1/docmap/internal/topicgraph"
	"github.com/dgallion1/docmap/internal/topicid"
)

// Version is written into exported topic maps.
const Version = "1.0"

var (
	ErrInvalidConfig = errors.New("topicmap: invalid configuration")
	ErrTopicNotFound = topicgraph.ErrTopicNotFound
	ErrNoPath        = topicgraph.ErrNoPath
	ErrInvalidQuery  = topicgraph.ErrInvalidQuery
)

// TopicRecord is one detected topic as produced by extraction.
type TopicRecord struct {
	RawID      string            `json:"id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	SpanStart  int               `json:"span_start"`
	SpanEnd    int               `json:"span_end"`
	Confidence float64           `json:"confidence"`
	Position   int               `json:"position"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MentionRecord is one reference found in a topic's text.
type MentionRecord struct {
	SourceID   string  `json:"source_id"`
	Target     string  `json:"target"`
	Position   int     `json:"position"`
	Context    string  `json:"context"`
	Confidence float64 `json:"confidence"`
}

// RejectedRecord is a topic record whose identifier did not parse.
type RejectedRecord struct {
	RawID    string `json:"id"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// Options configure Build. Zero values take package defaults.
type Options struct {
	SegmentPattern     string
	ConflictMargin     float64
	AmbiguityThreshold float64
	MaxCycles          int
	MaxGapRun          int
	MaxSuggestions     int
	Logger             *slog.Logger
}

// Map is a finished topic graph with its anomalies. It is immutable and
// safe for concurrent use.
type Map struct {
	grammar   *topicid.Grammar
	graph     *topicgraph.Graph
	anomalies []anomaly.Anomaly
	rejected  []RejectedRecord
	brokenSev map[[2]string]anomaly.Severity
}

// Build runs the engine. Construction is sequential in document order;
// only anomaly detection runs concurrently. Invalid options fail before any
// record is read.
func Build(ctx context.Context, topics []TopicRecord, mentions []MentionRecord, opts Options) (*Map, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	grammar := topicid.DefaultGrammar
	if opts.SegmentPattern != "" {
		g, err := topicid.NewGrammar(opts.SegmentPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		grammar = g
	}
	if opts.ConflictMargin < 0 || opts.ConflictMargin > 1 {
		return nil, fmt.Errorf("%w: conflict margin %v outside [0,1]", ErrInvalidConfig, opts.ConflictMargin)
	}
	detector, err := anomaly.New(anomaly.Options{
		AmbiguityThreshold: opts.AmbiguityThreshold,
		MaxCycles:          opts.MaxCycles,
		MaxGapRun:          opts.MaxGapRun,
		MaxSuggestions:     opts.MaxSuggestions,
		Logger:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m := &Map{grammar: grammar}

	reg := registry.New(registry.Options{ConflictMargin: opts.ConflictMargin, Logger: log})
	ordered := slices.Clone(topics)
	slices.SortStableFunc(ordered, func(a, b TopicRecord) int { return cmp.Compare(a.Position, b.Position) })
	for _, rec := range ordered {
		id, err := grammar.Parse(rec.RawID)
		if err != nil {
			log.Warn("rejecting topic with invalid id", "raw_id", rec.RawID, "position", rec.Position, "error", err)
			m.rejected = append(m.rejected, RejectedRecord{RawID: rec.RawID, Position: rec.Position, Reason: err.Error()})
			continue
		}
		reg.Register(registry.Topic{
			ID:         id,
			Title:      rec.Title,
			Content:    rec.Content,
			Span:       registry.Span{Start: rec.SpanStart, End: rec.SpanEnd},
			Position:   rec.Position,
			Confidence: rec.Confidence,
			Metadata:   rec.Metadata,
		})
	}

	ms := make([]resolver.Mention, len(mentions))
	for i, r := range mentions {
		ms[i] = resolver.Mention{
			SourceID:   r.SourceID,
			Target:     r.Target,
			Position:   r.Position,
			Context:    r.Context,
			Confidence: r.Confidence,
		}
	}
	slices.SortStableFunc(ms, func(a, b resolver.Mention) int { return cmp.Compare(a.Position, b.Position) })
	res := resolver.New(reg, resolver.Options{Grammar: grammar, Logger: log}).Resolve(ms)

	m.graph = topicgraph.Build(reg, res, log)

	m.anomalies, err = detector.Detect(ctx, m.graph)
	if err != nil {
		return nil, err
	}

	m.brokenSev = make(map[[2]string]anomaly.Severity)
	for _, a := range m.anomalies {
		if a.Kind == anomaly.KindMissingReferenced && len(a.AffectedIDs) == 2 {
			m.brokenSev[[2]string{a.AffectedIDs[0], a.AffectedIDs[1]}] = a.Severity
		}
	}

	log.Info("topic map built",
		"topics", m.graph.Len(),
		"rejected", len(m.rejected),
		"anomalies", len(m.anomalies),
	)
	return m, nil
}

func (m *Map) parse(text string) (topicid.ID, error) {
	id, err := m.grammar.Parse(text)
	if err != nil {
		return topicid.ID{}, fmt.Errorf("topic id: %w", err)
	}
	return id, nil
}

// Graph exposes the underlying graph.
func (m *Map) Graph() *topicgraph.Graph { return m.graph }

// Rejected lists topic records dropped for invalid identifiers.
func (m *Map) Rejected() []RejectedRecord { return slices.Clone(m.rejected) }

// Get returns the view of one topic.
func (m *Map) Get(id string) (NodeView, error) {
	tid, err := m.parse(id)
	if err != nil {
		return NodeView{}, err
	}
	t, ok := m.graph.Lookup(tid)
	if !ok {
		return NodeView{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return m.node(t), nil
}

// Children returns the views of id's direct children in identifier order.
func (m *Map) Children(id string) ([]NodeView, error) {
	tid, err := m.parse(id)
	if err != nil {
		return nil, err
	}
	kids, err := m.graph.Children(tid)
	if err != nil {
		return nil, err
	}
	out := make([]NodeView, 0, len(kids))
	for _, k := range kids {
		t, _ := m.graph.Lookup(k)
		out = append(out, m.node(t))
	}
	return out, nil
}

// References returns the reference edges touching id. direction is "to",
// "from" or "both".
func (m *Map) References(id, direction string) ([]EdgeView, error) {
	tid, err := m.parse(id)
	if err != nil {
		return nil, err
	}
	dir, err := topicgraph.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	edges, err := m.graph.References(tid, dir)
	if err != nil {
		return nil, err
	}
	return m.edgeViews(edges), nil
}

// Path returns the identifiers of a shortest path from a to b.
func (m *Map) Path(a, b, strategy string) ([]string, error) {
	from, err := m.parse(a)
	if err != nil {
		return nil, err
	}
	to, err := m.parse(b)
	if err != nil {
		return nil, err
	}
	s, err := topicgraph.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	path, err := m.graph.ShortestPath(from, to, s)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = p.String()
	}
	return out, nil
}

// Anomalies returns anomalies at or above floor in ranked order.
func (m *Map) Anomalies(floor anomaly.Severity) []anomaly.Anomaly {
	return anomaly.Filter(m.anomalies, floor)
}
