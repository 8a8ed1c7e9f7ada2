// Package topicid parses and orders hierarchical topic identifiers such as
// "18", "18.3" and "18.3.a".
//
// Numeric segments compare by integer value so "18.2" sorts before "18.10".
// Alphabetic segments compare case-insensitively. At the same position a
// numeric segment sorts before an alphabetic one, and a prefix sorts before
// any of its extensions.
package topicid

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("topicid: invalid identifier")
	// ErrInvalidGrammar is returned by NewGrammar for unusable patterns.
	ErrInvalidGrammar = errors.New("topicid: invalid grammar")
)

// ParseError describes identifier text that does not match the grammar.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("topicid: parse %q: %s", e.Text, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Segment is one dot-separated component of an identifier.
type Segment struct {
	raw     string
	num     uint64
	numeric bool
}

// Numeric reports whether the segment is all digits.
func (s Segment) Numeric() bool { return s.numeric }

// Number returns the integer value of a numeric segment (0 otherwise).
func (s Segment) Number() int { return int(s.num) }

func (s Segment) String() string { return s.raw }

func (s Segment) key() string {
	if s.numeric {
		return strconv.FormatUint(s.num, 10)
	}
	return strings.ToLower(s.raw)
}

func compareSegments(a, b Segment) int {
	switch {
	case a.numeric && b.numeric:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.numeric:
		return -1
	case b.numeric:
		return 1
	}
	return strings.Compare(strings.ToLower(a.raw), strings.ToLower(b.raw))
}

// ID is a parsed topic identifier. The zero value is the empty identifier,
// which stands for the document root and is never registered as a topic.
type ID struct {
	segs []Segment
}

// IsZero reports whether id is the empty root identifier.
func (id ID) IsZero() bool { return len(id.segs) == 0 }

// Depth is the number of segments.
func (id ID) Depth() int { return len(id.segs) }

// Last returns the final segment. It panics on the zero ID.
func (id ID) Last() Segment { return id.segs[len(id.segs)-1] }

// Segments returns a copy of the segments.
func (id ID) Segments() []Segment {
	return append([]Segment(nil), id.segs...)
}

// String renders the identifier as it was written. Parse(id.String())
// always yields an identifier equal to id.
func (id ID) String() string {
	parts := make([]string, len(id.segs))
	for i, s := range id.segs {
		parts[i] = s.raw
	}
	return strings.Join(parts, ".")
}

// Key is the canonical form used for map lookups: numeric segments without
// leading zeros, alphabetic segments lower-cased.
func (id ID) Key() string {
	parts := make([]string, len(id.segs))
	for i, s := range id.segs {
		parts[i] = s.key()
	}
	return strings.Join(parts, ".")
}

// Parent drops the last segment. Top-level identifiers have no parent.
func (id ID) Parent() (ID, bool) {
	if len(id.segs) < 2 {
		return ID{}, false
	}
	n := len(id.segs) - 1
	return ID{segs: id.segs[:n:n]}, true
}

// ParentOrRoot is like Parent but returns the zero ID for top-level ids.
func (id ID) ParentOrRoot() ID {
	p, _ := id.Parent()
	return p
}

// ChildNumber returns id extended by the numeric segment n. On the zero ID it
// returns the top-level identifier n.
func (id ID) ChildNumber(n int) ID {
	segs := make([]Segment, len(id.segs), len(id.segs)+1)
	copy(segs, id.segs)
	segs = append(segs, Segment{raw: strconv.Itoa(n), num: uint64(n), numeric: true})
	return ID{segs: segs}
}

// Equal reports segment-wise equality (case-insensitive for letters).
func (id ID) Equal(other ID) bool {
	return Compare(id, other) == 0
}

// Compare orders identifiers segment by segment.
func Compare(a, b ID) int {
	n := min(len(a.segs), len(b.segs))
	for i := 0; i < n; i++ {
		if c := compareSegments(a.segs[i], b.segs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a.segs) < len(b.segs):
		return -1
	case len(a.segs) > len(b.segs):
		return 1
	}
	return 0
}

// IsAncestor reports whether a is a strict prefix of b.
func IsAncestor(a, b ID) bool {
	if a.IsZero() || len(a.segs) >= len(b.segs) {
		return false
	}
	for i := range a.segs {
		if compareSegments(a.segs[i], b.segs[i]) != 0 {
			return false
		}
	}
	return true
}

// SameParent reports whether a and b are siblings (top-level ids are
// siblings of each other).
func SameParent(a, b ID) bool {
	return a.ParentOrRoot().Equal(b.ParentOrRoot())
}

// Grammar decides which segment texts are acceptable.
type Grammar struct {
	segment *regexp.Regexp
}

// DefaultSegmentPattern accepts plain alphanumeric segments.
const DefaultSegmentPattern = `^[0-9A-Za-z]+$`

// DefaultGrammar is used by the package-level Parse.
var DefaultGrammar = MustGrammar(DefaultSegmentPattern)

// NewGrammar compiles a segment pattern. Patterns that accept the empty
// string or a dot are rejected because identifiers would stop being
// unambiguous.
func NewGrammar(pattern string) (*Grammar, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
	}
	if re.MatchString("") {
		return nil, fmt.Errorf("%w: pattern %q accepts empty segments", ErrInvalidGrammar, pattern)
	}
	if re.MatchString(".") || re.MatchString("1.2") {
		return nil, fmt.Errorf("%w: pattern %q accepts the separator", ErrInvalidGrammar, pattern)
	}
	return &Grammar{segment: re}, nil
}

// MustGrammar is NewGrammar that panics on error.
func MustGrammar(pattern string) *Grammar {
	g, err := NewGrammar(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// Parse reads dotted identifier text. Surrounding whitespace and a single
// trailing dot ("18.3.") are ignored.
func (g *Grammar) Parse(text string) (ID, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return ID{}, &ParseError{Text: text, Reason: "empty identifier"}
	}
	parts := strings.Split(s, ".")
	segs := make([]Segment, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			return ID{}, &ParseError{Text: text, Reason: fmt.Sprintf("empty segment at position %d", i+1)}
		}
		if !g.segment.MatchString(p) || !isAlnum(p) {
			return ID{}, &ParseError{Text: text, Reason: fmt.Sprintf("segment %q is not alphanumeric", p)}
		}
		seg := Segment{raw: p}
		if isDigits(p) {
			n, err := strconv.ParseUint(p, 10, 63)
			if err != nil {
				return ID{}, &ParseError{Text: text, Reason: fmt.Sprintf("segment %q out of range", p)}
			}
			seg.num = n
			seg.numeric = true
		}
		segs = append(segs, seg)
	}
	return ID{segs: segs}, nil
}

// Parse reads identifier text with the default grammar.
func Parse(text string) (ID, error) {
	return DefaultGrammar.Parse(text)
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(text string) ID {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

// Sort orders ids in place.
func Sort(ids []ID) {
	slices.SortStableFunc(ids, Compare)
}

// CompareText orders identifier strings, falling back to plain string order
// when either side does not parse.
func CompareText(a, b string) int {
	ia, errA := Parse(a)
	ib, errB := Parse(b)
	switch {
	case errA == nil && errB == nil:
		if c := Compare(ia, ib); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
