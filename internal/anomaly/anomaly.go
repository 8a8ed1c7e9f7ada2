// Package anomaly runs a fixed battery of structural checks over a finished
// topic graph and returns a ranked list of findings.
package anomaly

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/docmap/internal/hints"
	"github.com/dgallion1/docmap/internal/topicid"
)

// Kind names a check.
type Kind string

const (
	KindNumberingGap         Kind = "numbering_gap"
	KindMissingReferenced    Kind = "missing_referenced_topic"
	KindBrokenCrossReference Kind = "broken_cross_reference"
	KindCircularReference    Kind = "circular_reference"
	KindOrphanContent        Kind = "orphan_content"
	KindDuplicateTopic       Kind = "duplicate_topic"
	KindAmbiguousBoundary    Kind = "ambiguous_boundary"
)

// Severity orders anomalies; higher is worse.
type Severity int

const (
	Low Severity = iota + 1
	Medium
	High
	Critical
)

var severityNames = map[Severity]string{
	Low:      "low",
	Medium:   "medium",
	High:     "high",
	Critical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity reads a severity name. Empty means Low.
func ParseSeverity(s string) (Severity, error) {
	if s == "" {
		return Low, nil
	}
	for sev, name := range severityNames {
		if strings.EqualFold(s, name) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("anomaly: unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Location is a single id or an ordered id pair.
type Location struct {
	From string
	To   string
}

func (l Location) String() string {
	if l.To == "" {
		return l.From
	}
	return l.From + " -> " + l.To
}

func (l Location) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *Location) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	from, to, _ := strings.Cut(s, " -> ")
	*l = Location{From: from, To: to}
	return nil
}

// Anomaly is one finding. Values are never modified after Detect returns.
type Anomaly struct {
	Kind        Kind               `json:"type"`
	Location    Location           `json:"location"`
	Severity    Severity           `json:"severity"`
	Description string             `json:"description"`
	AffectedIDs []string           `json:"affected_ids"`
	MissingID   string             `json:"missing_id,omitempty"`
	Suggestions []hints.Suggestion `json:"suggestions"`
}

// LowestAffected is the sort key within a severity band: the smallest
// affected id in identifier order.
func (a Anomaly) LowestAffected() string {
	if len(a.AffectedIDs) == 0 {
		return a.Location.From
	}
	return slices.MinFunc(a.AffectedIDs, topicid.CompareText)
}

// Sort orders anomalies by severity, most severe first, then ascending by
// lowest affected id. Equal keys keep their relative order.
func Sort(list []Anomaly) {
	slices.SortStableFunc(list, func(a, b Anomaly) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return topicid.CompareText(a.LowestAffected(), b.LowestAffected())
	})
}

// Filter returns anomalies at or above floor, preserving order.
func Filter(list []Anomaly, floor Severity) []Anomaly {
	out := make([]Anomaly, 0, len(list))
	for _, a := range list {
		if a.Severity >= floor {
			out = append(out, a)
		}
	}
	return out
}

// Count tallies anomalies per kind.
func Count(list []Anomaly) map[Kind]int {
	out := make(map[Kind]int)
	for _, a := range list {
		out[a.Kind]++
	}
	return out
}
