// Package report writes finished topic maps and anomaly lists to their
// export formats: a JSON topic map and a CSV anomaly report.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/topicmap"
)

// Metadata heads an exported topic map.
type Metadata struct {
	TotalTopics int    `json:"total_topics"`
	Version     string `json:"version"`
	Source      string `json:"source,omitempty"`
}

// TopicMap is the exported document.
type TopicMap struct {
	Metadata   Metadata                 `json:"metadata"`
	Topics     Topics                   `json:"topics"`
	Hierarchy  []topicmap.HierarchyNode `json:"hierarchy"`
	Edges      []topicmap.EdgeView      `json:"edges"`
	Statistics topicmap.Statistics      `json:"statistics"`
}

// Topics marshals as a JSON object keyed by topic id, in identifier order.
type Topics []topicmap.NodeView

func (ts Topics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range ts {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", t.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Build assembles the export document for m.
func Build(m *topicmap.Map, source string) TopicMap {
	nodes := m.Nodes()
	hierarchy := m.Hierarchy()
	if hierarchy == nil {
		hierarchy = []topicmap.HierarchyNode{}
	}
	edges := m.Edges()
	if edges == nil {
		edges = []topicmap.EdgeView{}
	}
	return TopicMap{
		Metadata: Metadata{
			TotalTopics: len(nodes),
			Version:     topicmap.Version,
			Source:      source,
		},
		Topics:     Topics(nodes),
		Hierarchy:  hierarchy,
		Edges:      edges,
		Statistics: m.Statistics(),
	}
}

// WriteTopicMap writes m as indented JSON.
func WriteTopicMap(w io.Writer, m *topicmap.Map, source string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Build(m, source)); err != nil {
		return fmt.Errorf("write topic map: %w", err)
	}
	return nil
}

// AnomalyCSVHeader is the first row of an anomaly report.
var AnomalyCSVHeader = []string{"Type", "Location", "Severity", "Description", "Affected Topics", "Suggestions"}

// WriteAnomalyCSV writes one row per anomaly in the given order.
func WriteAnomalyCSV(w io.Writer, list []anomaly.Anomaly) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnomalyCSVHeader); err != nil {
		return fmt.Errorf("write anomaly header: %w", err)
	}
	for _, a := range list {
		row := []string{
			string(a.Kind),
			a.Location.String(),
			a.Severity.String(),
			a.Description,
			strings.Join(a.AffectedIDs, "; "),
			suggestionText(a),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write anomaly row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush anomaly report: %w", err)
	}
	return nil
}

func suggestionText(a anomaly.Anomaly) string {
	parts := make([]string, len(a.Suggestions))
	for i, s := range a.Suggestions {
		parts[i] = fmt.Sprintf("%s (%s)", s.ID, s.Rule)
	}
	return strings.Join(parts, " | ")
}
