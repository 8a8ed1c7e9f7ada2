// Package registry holds the set of known topics keyed by identifier.
//
// Registration is order dependent: callers feed topics in document order and
// the registry merges repeated identifiers deterministically. Conflicting
// duplicates are tagged on the stored topic, never resolved silently.
package registry

import (
	"cmp"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/dgallion1/docmap/internal/topicid"
)

// DefaultConflictMargin is the confidence difference under which two
// detections of the same identifier count as equally trustworthy.
const DefaultConflictMargin = 0.1

// Outcome reports what Register did with a topic.
type Outcome int

const (
	Inserted Outcome = iota
	Merged
)

func (o Outcome) String() string {
	if o == Merged {
		return "merged"
	}
	return "inserted"
}

// Conflict classifies how two detections of the same identifier differ.
type Conflict string

const (
	ConflictNone       Conflict = ""
	ConflictFormatting Conflict = "formatting"
	ConflictOverlap    Conflict = "overlap"
	ConflictMaterial   Conflict = "material"
)

func (c Conflict) rank() int {
	switch c {
	case ConflictFormatting:
		return 1
	case ConflictOverlap:
		return 2
	case ConflictMaterial:
		return 3
	}
	return 0
}

// Span is a byte range of topic content in the source document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Variant records one detection of an identifier that was merged away.
type Variant struct {
	Title      string  `json:"title"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
}

// Duplicate describes repeated registrations of one identifier.
type Duplicate struct {
	Occurrences int       `json:"occurrences"`
	Conflict    Conflict  `json:"conflict"`
	Variants    []Variant `json:"variants"`
	// Flagged is set when the difference has to be surfaced: materially
	// different content, or any differing content at similar confidence.
	Flagged bool `json:"flagged"`
	// Tied is set when conflicting detections had equal confidence, so the
	// first one was kept by registration order alone.
	Tied bool `json:"tied"`
}

// Topic is a registered section of the document.
type Topic struct {
	ID         topicid.ID
	Title      string
	Content    string
	Span       Span
	Position   int
	Confidence float64
	Metadata   map[string]string

	Duplicate *Duplicate
}

// Conflicted reports whether the topic carries a duplicate that must be
// reported.
func (t Topic) Conflicted() bool {
	return t.Duplicate != nil && t.Duplicate.Flagged
}

// Options tune registry behavior.
type Options struct {
	ConflictMargin float64
	Logger         *slog.Logger
}

// Registry owns topics. It is not safe for concurrent mutation; once
// population is finished it may be read from many goroutines.
type Registry struct {
	topics map[string]*Topic
	margin float64
	log    *slog.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	margin := opts.ConflictMargin
	if margin <= 0 {
		margin = DefaultConflictMargin
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		topics: make(map[string]*Topic),
		margin: margin,
		log:    log,
	}
}

// Register inserts t or merges it into the existing entry for t.ID.
// The higher-confidence detection supplies title, content, span and
// position; confidence only ever rises; metadata is unioned with the first
// value kept per key.
func (r *Registry) Register(t Topic) Outcome {
	key := t.ID.Key()
	t.Confidence = clamp01(t.Confidence)

	existing, ok := r.topics[key]
	if !ok {
		stored := t
		stored.Metadata = maps.Clone(t.Metadata)
		stored.Duplicate = nil
		r.topics[key] = &stored
		return Inserted
	}

	dup := existing.Duplicate
	if dup == nil {
		dup = &Duplicate{
			Occurrences: 1,
			Variants: []Variant{{
				Title:      existing.Title,
				Position:   existing.Position,
				Confidence: existing.Confidence,
			}},
		}
	}
	dup.Occurrences++
	dup.Variants = append(dup.Variants, Variant{Title: t.Title, Position: t.Position, Confidence: t.Confidence})

	conflict := classify(existing.Content, t.Content)
	if conflict.rank() > dup.Conflict.rank() {
		dup.Conflict = conflict
	}
	similar := absDiff(existing.Confidence, t.Confidence) < r.margin
	if conflict == ConflictMaterial || (conflict != ConflictNone && similar) {
		dup.Flagged = true
		if existing.Confidence == t.Confidence {
			dup.Tied = true
		}
		r.log.Warn("conflicting duplicate topic",
			"topic_id", t.ID.String(),
			"conflict", string(conflict),
			"kept_confidence", existing.Confidence,
			"new_confidence", t.Confidence,
		)
	}

	if t.Confidence > existing.Confidence {
		existing.Title = t.Title
		existing.Content = t.Content
		existing.Span = t.Span
		existing.Position = t.Position
		existing.Confidence = t.Confidence
	}
	for k, v := range t.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]string)
		}
		if _, set := existing.Metadata[k]; !set {
			existing.Metadata[k] = v
		}
	}
	existing.Duplicate = dup
	return Merged
}

// Lookup returns a copy of the topic registered under id.
func (r *Registry) Lookup(id topicid.ID) (Topic, bool) {
	t, ok := r.topics[id.Key()]
	if !ok {
		return Topic{}, false
	}
	return t.clone(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id topicid.ID) bool {
	_, ok := r.topics[id.Key()]
	return ok
}

// Len is the number of distinct identifiers.
func (r *Registry) Len() int { return len(r.topics) }

// IDs returns all registered identifiers in identifier order.
func (r *Registry) IDs() []topicid.ID {
	ids := make([]topicid.ID, 0, len(r.topics))
	for _, t := range r.topics {
		ids = append(ids, t.ID)
	}
	topicid.Sort(ids)
	return ids
}

// Topics returns copies of all topics in document order, identifier order
// breaking position ties.
func (r *Registry) Topics() []Topic {
	out := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t.clone())
	}
	slices.SortFunc(out, func(a, b Topic) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return topicid.Compare(a.ID, b.ID)
	})
	return out
}

// Children returns registered ids whose parent is id, in identifier order.
// Passing the zero ID returns the top-level topics.
func (r *Registry) Children(id topicid.ID) []topicid.ID {
	var out []topicid.ID
	for _, t := range r.topics {
		if t.ID.ParentOrRoot().Equal(id) {
			out = append(out, t.ID)
		}
	}
	topicid.Sort(out)
	return out
}

// Siblings returns the other registered ids sharing id's parent.
func (r *Registry) Siblings(id topicid.ID) []topicid.ID {
	var out []topicid.ID
	for _, c := range r.Children(id.ParentOrRoot()) {
		if !c.Equal(id) {
			out = append(out, c)
		}
	}
	return out
}

// Duplicates returns topics that were registered more than once, in
// identifier order.
func (r *Registry) Duplicates() []Topic {
	var out []Topic
	for _, id := range r.IDs() {
		t := r.topics[id.Key()]
		if t.Duplicate != nil {
			out = append(out, t.clone())
		}
	}
	return out
}

func (t *Topic) clone() Topic {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	if t.Duplicate != nil {
		d := *t.Duplicate
		d.Variants = slices.Clone(t.Duplicate.Variants)
		c.Duplicate = &d
	}
	return c
}

// classify compares two content strings for the duplicate check.
func classify(a, b string) Conflict {
	if a == b {
		return ConflictNone
	}
	na, nb := normalize(a), normalize(b)
	switch {
	case na == nb:
		return ConflictFormatting
	case na == "" || nb == "":
		return ConflictOverlap
	case strings.Contains(na, nb) || strings.Contains(nb, na):
		return ConflictOverlap
	}
	return ConflictMaterial
}

// normalize lower-cases text and drops whitespace and punctuation.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return min(f, 1)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
