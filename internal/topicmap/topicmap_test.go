package topicmap

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/topicgraph"
	"github.com/dgallion1/docmap/internal/topicid"
)

func rec(id string, pos int) TopicRecord {
	return TopicRecord{
		RawID:      id,
		Title:      "Section " + id,
		Content:    "The body of section " + id + " goes here.",
		SpanStart:  pos,
		SpanEnd:    pos + 40,
		Confidence: 0.95,
		Position:   pos,
	}
}

func mention(src, dst string, pos int) MentionRecord {
	return MentionRecord{SourceID: src, Target: dst, Position: pos, Context: "see topic " + dst, Confidence: 0.9}
}

func sample(t *testing.T) *Map {
	t.Helper()
	m, err := Build(context.Background(),
		[]TopicRecord{rec("18", 0), rec("18.1", 100), rec("18.3", 200), rec("19", 300), rec("bad..id", 400)},
		[]MentionRecord{
			mention("18", "18.2", 50),
			mention("18.3", "19", 250),
			mention("19", "18.1", 350),
		},
		Options{},
	)
	require.NoError(t, err)
	return m
}

func TestBuild_RejectsInvalidIDs(t *testing.T) {
	m := sample(t)
	rej := m.Rejected()
	require.Len(t, rej, 1)
	assert.Equal(t, "bad..id", rej[0].RawID)
	assert.Equal(t, 4, m.Graph().Len())
}

func TestBuild_InvalidConfigFailsFast(t *testing.T) {
	_, err := Build(context.Background(), nil, nil, Options{SegmentPattern: `^.*$`})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, topicid.ErrInvalidGrammar)

	_, err = Build(context.Background(), nil, nil, Options{AmbiguityThreshold: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Build(context.Background(), nil, nil, Options{ConflictMargin: -0.5})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Build(context.Background(), nil, nil, Options{MaxSuggestions: 8})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuild_OrderIndependentInput(t *testing.T) {
	a, err := Build(context.Background(),
		[]TopicRecord{rec("1", 0), rec("2", 10)},
		[]MentionRecord{mention("2", "1", 15)}, Options{})
	require.NoError(t, err)
	b, err := Build(context.Background(),
		[]TopicRecord{rec("2", 10), rec("1", 0)},
		[]MentionRecord{mention("2", "1", 15)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Nodes(), b.Nodes())
	assert.Equal(t, a.Anomalies(anomaly.Low), b.Anomalies(anomaly.Low))
}

func TestGet(t *testing.T) {
	m := sample(t)

	n, err := m.Get("18")
	require.NoError(t, err)
	assert.Equal(t, "Section 18", n.Title)
	assert.Equal(t, []string{"18.1", "18.3"}, n.Children)
	assert.Equal(t, []string{"18.2"}, n.CrossReferences)
	assert.Empty(t, n.Parent)

	n, err = m.Get("18.3")
	require.NoError(t, err)
	assert.Equal(t, "18", n.Parent)
	assert.Equal(t, []string{"19"}, n.ForwardReferences)

	n, err = m.Get("19")
	require.NoError(t, err)
	assert.Equal(t, []string{"18.1"}, n.BackwardReferences)

	_, err = m.Get("18.2")
	assert.ErrorIs(t, err, ErrTopicNotFound)
	_, err = m.Get("18..2")
	assert.ErrorIs(t, err, topicid.ErrParse)
}

func TestBuild_NaNConfidenceStaysEncodable(t *testing.T) {
	one, two := rec("1", 0), rec("2", 100)
	one.Confidence = math.NaN()
	ref := mention("1", "2", 50)
	ref.Confidence = math.NaN()
	m, err := Build(context.Background(), []TopicRecord{one, two}, []MentionRecord{ref}, Options{})
	require.NoError(t, err)

	n, err := m.Get("1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.Confidence)
	_, err = json.Marshal(n)
	require.NoError(t, err)
	_, err = json.Marshal(m.Edges())
	require.NoError(t, err)
}

func TestChildren(t *testing.T) {
	m := sample(t)
	kids, err := m.Children("18")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "18.1", kids[0].ID)
	assert.Equal(t, "18.3", kids[1].ID)
}

func TestReferences(t *testing.T) {
	m := sample(t)
	from, err := m.References("18", "from")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "broken", from[0].Status)
	assert.Equal(t, "critical", from[0].Severity)

	to, err := m.References("18.1", "to")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "19", to[0].Source)
	assert.Equal(t, "backward", to[0].Kind)
	assert.Empty(t, to[0].Severity)

	_, err = m.References("18", "up")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestPath(t *testing.T) {
	m := sample(t)
	p, err := m.Path("18.3", "18.1", "any_edge")
	require.NoError(t, err)
	assert.Equal(t, []string{"18.3", "18", "18.1"}, p)

	p, err = m.Path("18.3", "19", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"18.3", "19"}, p)

	_, err = m.Path("18.3", "19", "hierarchy_only")
	assert.ErrorIs(t, err, ErrNoPath)
	var npe *topicgraph.NoPathError
	require.True(t, errors.As(err, &npe))
	assert.Equal(t, topicgraph.HierarchyOnly, npe.Strategy)

	_, err = m.Path("18", "19", "teleport")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAnomalies(t *testing.T) {
	m := sample(t)
	crit := m.Anomalies(anomaly.Critical)
	require.Len(t, crit, 1)
	assert.Equal(t, anomaly.KindMissingReferenced, crit[0].Kind)
	assert.Equal(t, "18.2", crit[0].MissingID)
	require.GreaterOrEqual(t, len(crit[0].Suggestions), 2)
	assert.Equal(t, "18.1", crit[0].Suggestions[0].ID)
	assert.Equal(t, "18.3", crit[0].Suggestions[1].ID)

	all := m.Anomalies(anomaly.Low)
	assert.GreaterOrEqual(t, len(all), len(crit))
}

func TestStatistics(t *testing.T) {
	m := sample(t)
	s := m.Statistics()
	assert.Equal(t, 4, s.TotalNodes)
	// hierarchy: 18.1->18, 18.3->18; references: 18->18.2, 18.3->19, 19->18.1
	assert.Equal(t, 5, s.TotalEdges)
	assert.Equal(t, 1, s.BrokenEdges)
	assert.Equal(t, 2, s.MaxDepth)
	assert.InDelta(t, 9.0/4.0, s.AverageDegree, 1e-9)
	assert.Equal(t, 0, s.CircularReferences)
}

func TestHierarchy(t *testing.T) {
	m := sample(t)
	h := m.Hierarchy()
	require.Len(t, h, 2)
	assert.Equal(t, "18", h[0].ID)
	require.Len(t, h[0].Children, 2)
	assert.Equal(t, "18.3", h[0].Children[1].ID)
	assert.Equal(t, "19", h[1].ID)
	assert.Empty(t, h[1].Children)
}

func TestEdges_AllIncluded(t *testing.T) {
	m := sample(t)
	edges := m.Edges()
	assert.Len(t, edges, 5)
	kinds := map[string]int{}
	for _, e := range edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, 2, kinds["hierarchy"])
}
