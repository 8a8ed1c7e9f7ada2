package anomaly

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/resolver"
	"github.com/dgallion1/docmap/internal/topicgraph"
	"github.com/dgallion1/docmap/internal/topicid"
)

// gap is one expected-but-absent sibling.
type gap struct {
	missing    topicid.ID
	prev, next topicid.ID
}

// snapshot holds facts shared by several checks. It is computed before the
// checks start and only read afterwards.
type snapshot struct {
	g             *topicgraph.Graph
	ids           []topicid.ID
	gaps          []gap
	gapKeys       map[string]bool
	brokenTargets map[string]bool
	truncated     int
}

func newSnapshot(g *topicgraph.Graph, maxRun int) *snapshot {
	s := &snapshot{
		g:             g,
		ids:           make([]topicid.ID, g.Len()),
		gapKeys:       make(map[string]bool),
		brokenTargets: make(map[string]bool),
	}
	for i := range g.Len() {
		s.ids[i] = g.Topic(i).ID
	}
	for _, e := range g.Broken() {
		s.brokenTargets[e.Target.Key()] = true
	}

	// Nodes are in identifier order, so numeric children of one parent
	// arrive ascending.
	last := make(map[string]topicid.ID)
	for _, id := range s.ids {
		if !id.Last().Numeric() {
			continue
		}
		pk := id.ParentOrRoot().Key()
		prev, ok := last[pk]
		last[pk] = id
		if !ok {
			continue
		}
		lo, hi := prev.Last().Number(), id.Last().Number()
		parent := id.ParentOrRoot()
		for n := lo + 1; n < hi; n++ {
			if n-lo > maxRun {
				s.truncated += hi - n
				break
			}
			missing := parent.ChildNumber(n)
			s.gaps = append(s.gaps, gap{missing: missing, prev: prev, next: id})
			s.gapKeys[missing.Key()] = true
		}
	}
	return s
}

func (s *snapshot) parse(text string) (topicid.ID, bool) {
	id, err := topicid.Parse(text)
	return id, err == nil
}

func (d *Detector) numberingGaps(_ context.Context, s *snapshot) ([]Anomaly, error) {
	if s.truncated > 0 {
		d.log.Warn("numbering gap report truncated", "omitted", s.truncated, "max_run", d.maxGapRun)
	}
	out := make([]Anomaly, 0, len(s.gaps))
	for _, gp := range s.gaps {
		sev := Medium
		desc := fmt.Sprintf("Topic %s is missing from the sequence between %s and %s", gp.missing, gp.prev, gp.next)
		if s.brokenTargets[gp.missing.Key()] {
			sev = High
			desc += " and is referenced elsewhere"
		}
		out = append(out, Anomaly{
			Kind:        KindNumberingGap,
			Location:    Location{From: gp.prev.String(), To: gp.next.String()},
			Severity:    sev,
			Description: desc,
			AffectedIDs: []string{gp.prev.String(), gp.next.String()},
			MissingID:   gp.missing.String(),
		})
	}
	return out, nil
}

func (d *Detector) missingReferenced(_ context.Context, s *snapshot) ([]Anomaly, error) {
	var out []Anomaly
	for _, e := range s.g.Broken() {
		src, missing := e.Source.String(), e.Target.String()
		var desc string
		if e.Hierarchy() {
			desc = fmt.Sprintf("Topic %s has no registered parent %s", src, missing)
		} else {
			desc = fmt.Sprintf("Topic %s references %s, which does not exist", src, missing)
		}

		sev := Medium
		switch {
		case s.gapKeys[e.Target.Key()]:
			sev = Critical
			desc += "; the id is also a gap in its parent's numbering"
		case s.hasValidEdge(e.From):
			sev = High
		}
		out = append(out, Anomaly{
			Kind:        KindMissingReferenced,
			Location:    Location{From: src, To: missing},
			Severity:    sev,
			Description: desc,
			AffectedIDs: []string{src, missing},
			MissingID:   missing,
		})
	}
	return out, nil
}

// hasValidEdge reports whether node i has any valid incident edge,
// hierarchy included.
func (s *snapshot) hasValidEdge(i int) bool {
	for _, e := range s.g.Outgoing(i) {
		if e.Valid() {
			return true
		}
	}
	return len(s.g.Incoming(i)) > 0
}

func (d *Detector) brokenCrossReferences(_ context.Context, s *snapshot) ([]Anomaly, error) {
	var out []Anomaly
	for _, u := range s.g.Unresolved() {
		sev := Medium
		if u.Reason == resolver.ReasonUnknownSource {
			sev = High
		}
		src := strings.TrimSpace(u.SourceID)
		target := strings.TrimSpace(u.Target)
		var affected []string
		if u.Reason != resolver.ReasonUnparseableSource {
			affected = []string{src}
		}
		out = append(out, Anomaly{
			Kind:        KindBrokenCrossReference,
			Location:    Location{From: src, To: target},
			Severity:    sev,
			Description: fmt.Sprintf("Reference from %q to %q could not be resolved (%s)", src, target, u.Reason),
			AffectedIDs: affected,
		})
	}
	return out, nil
}

func (d *Detector) orphans(_ context.Context, s *snapshot) ([]Anomaly, error) {
	var out []Anomaly
	for i, id := range s.ids {
		if s.g.HasChildren(i) || hasReference(s.g.Outgoing(i)) || hasReference(s.g.Incoming(i)) {
			continue
		}
		out = append(out, Anomaly{
			Kind:        KindOrphanContent,
			Location:    Location{From: id.String()},
			Severity:    Low,
			Description: fmt.Sprintf("Topic %s has no connections to other topics", id),
			AffectedIDs: []string{id.String()},
		})
	}
	return out, nil
}

func hasReference(edges []topicgraph.Edge) bool {
	for _, e := range edges {
		if !e.Hierarchy() {
			return true
		}
	}
	return false
}

func (d *Detector) duplicates(_ context.Context, s *snapshot) ([]Anomaly, error) {
	var out []Anomaly
	for i := range s.ids {
		t := s.g.Topic(i)
		if !t.Conflicted() {
			continue
		}
		dup := t.Duplicate
		sev := Medium
		if dup.Conflict == registry.ConflictMaterial || dup.Tied {
			sev = High
		}
		desc := fmt.Sprintf("Topic %s was detected %d times with %s differences", t.ID, dup.Occurrences, dup.Conflict)
		if dup.Tied {
			desc += " at equal confidence; the first detection was kept"
		}
		out = append(out, Anomaly{
			Kind:        KindDuplicateTopic,
			Location:    Location{From: t.ID.String()},
			Severity:    sev,
			Description: desc,
			AffectedIDs: []string{t.ID.String()},
		})
	}
	return out, nil
}

func (d *Detector) ambiguous(_ context.Context, s *snapshot) ([]Anomaly, error) {
	var out []Anomaly
	for i := range s.ids {
		t := s.g.Topic(i)
		if t.Confidence >= d.threshold {
			continue
		}
		out = append(out, Anomaly{
			Kind:        KindAmbiguousBoundary,
			Location:    Location{From: t.ID.String()},
			Severity:    Low,
			Description: fmt.Sprintf("Topic %s boundary detected with low confidence %.2f", t.ID, t.Confidence),
			AffectedIDs: []string{t.ID.String()},
		})
	}
	return out, nil
}
