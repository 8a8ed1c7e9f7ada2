package topicmap

import (
	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/resolver"
	"github.com/dgallion1/docmap/internal/topicgraph"
)

// NodeView is the serializable form of a topic.
type NodeView struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Content            string              `json:"content"`
	Parent             string              `json:"parent,omitempty"`
	Children           []string            `json:"children"`
	CrossReferences    []string            `json:"cross_references"`
	ForwardReferences  []string            `json:"forward_references"`
	BackwardReferences []string            `json:"backward_references"`
	Position           registry.Span       `json:"position"`
	Offset             int                 `json:"offset"`
	Confidence         float64             `json:"confidence"`
	Duplicate          *registry.Duplicate `json:"duplicate,omitempty"`
}

// EdgeView is the serializable form of an edge. Severity is set on broken
// edges only.
type EdgeView struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity,omitempty"`
}

// HierarchyNode is one level of the nested topic tree.
type HierarchyNode struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Children []HierarchyNode `json:"children,omitempty"`
}

// Statistics summarizes the graph.
type Statistics struct {
	TotalNodes         int     `json:"total_nodes"`
	TotalEdges         int     `json:"total_edges"`
	BrokenEdges        int     `json:"broken_edges"`
	OrphanNodes        int     `json:"orphan_nodes"`
	CircularReferences int     `json:"circular_references"`
	AverageDegree      float64 `json:"average_degree"`
	MaxDepth           int     `json:"max_depth"`
}

func (m *Map) node(t registry.Topic) NodeView {
	v := NodeView{
		ID:                 t.ID.String(),
		Title:              t.Title,
		Content:            t.Content,
		Children:           []string{},
		CrossReferences:    []string{},
		ForwardReferences:  []string{},
		BackwardReferences: []string{},
		Position:           t.Span,
		Offset:             t.Position,
		Confidence:         t.Confidence,
		Duplicate:          t.Duplicate,
	}
	if p, ok, _ := m.graph.Parent(t.ID); ok {
		v.Parent = p.String()
	}
	if kids, err := m.graph.Children(t.ID); err == nil {
		for _, k := range kids {
			v.Children = append(v.Children, k.String())
		}
	}
	refs, _ := m.graph.References(t.ID, topicgraph.DirFrom)
	for _, e := range refs {
		target := e.Target.String()
		switch e.Kind {
		case resolver.KindForward:
			v.ForwardReferences = append(v.ForwardReferences, target)
		case resolver.KindBackward:
			v.BackwardReferences = append(v.BackwardReferences, target)
		default:
			v.CrossReferences = append(v.CrossReferences, target)
		}
	}
	return v
}

// Nodes returns every topic view in identifier order.
func (m *Map) Nodes() []NodeView {
	out := make([]NodeView, 0, m.graph.Len())
	for _, t := range m.graph.Topics() {
		out = append(out, m.node(t))
	}
	return out
}

// Edges returns every edge view.
func (m *Map) Edges() []EdgeView {
	return m.edgeViews(m.graph.Edges())
}

func (m *Map) edgeViews(edges []topicgraph.Edge) []EdgeView {
	out := make([]EdgeView, len(edges))
	for i, e := range edges {
		v := EdgeView{
			Source:     e.Source.String(),
			Target:     e.Target.String(),
			Kind:       string(e.Kind),
			Status:     string(e.Status),
			Context:    e.Context,
			Confidence: e.Confidence,
		}
		if !e.Valid() {
			if sev, ok := m.brokenSev[[2]string{v.Source, v.Target}]; ok {
				v.Severity = sev.String()
			}
		}
		out[i] = v
	}
	return out
}

// Hierarchy returns the topic tree. Topics whose parent is not registered
// appear at the top level.
func (m *Map) Hierarchy() []HierarchyNode {
	var build func(i int) HierarchyNode
	build = func(i int) HierarchyNode {
		t := m.graph.Topic(i)
		n := HierarchyNode{ID: t.ID.String(), Title: t.Title}
		kids, _ := m.graph.Children(t.ID)
		for _, k := range kids {
			if ki, ok := m.graph.Index(k); ok {
				n.Children = append(n.Children, build(ki))
			}
		}
		return n
	}

	var roots []HierarchyNode
	for i := range m.graph.Len() {
		if _, ok, _ := m.graph.Parent(m.graph.Topic(i).ID); !ok {
			roots = append(roots, build(i))
		}
	}
	return roots
}

// Statistics computes summary counts. Average degree counts each edge at
// its source and, when valid, at its target.
func (m *Map) Statistics() Statistics {
	s := Statistics{TotalNodes: m.graph.Len()}
	degree := 0
	for _, e := range m.graph.Edges() {
		s.TotalEdges++
		degree++
		if e.Valid() {
			degree++
		} else {
			s.BrokenEdges++
		}
	}
	for _, t := range m.graph.Topics() {
		s.MaxDepth = max(s.MaxDepth, t.ID.Depth())
	}
	counts := anomaly.Count(m.anomalies)
	s.OrphanNodes = counts[anomaly.KindOrphanContent]
	s.CircularReferences = counts[anomaly.KindCircularReference]
	if s.TotalNodes > 0 {
		s.AverageDegree = float64(degree) / float64(s.TotalNodes)
	}
	return s
}
