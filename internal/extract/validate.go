package extract

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docmap/internal/topicmap"
)

// ErrInvalidRecord marks a record that cannot become a topic or mention.
var ErrInvalidRecord = errors.New("invalid record")

const (
	maxTitleLen   = 300
	maxContextLen = 400
)

// ValidateTopic normalizes rec in place and reports whether it is usable.
// Confidence is clamped to [0,1]; the identifier itself is checked later
// by the topic map's grammar.
func ValidateTopic(rec *topicmap.TopicRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil topic", ErrInvalidRecord)
	}
	rec.RawID = strings.TrimSpace(rec.RawID)
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Content = strings.TrimSpace(rec.Content)
	if rec.RawID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if len(rec.Title) < minTitleLen {
		return fmt.Errorf("%w: title %q shorter than %d", ErrInvalidRecord, rec.Title, minTitleLen)
	}
	if len(rec.Title) > maxTitleLen {
		return fmt.Errorf("%w: title longer than %d", ErrInvalidRecord, maxTitleLen)
	}
	rec.Confidence = clamp01(rec.Confidence)
	if rec.SpanEnd < rec.SpanStart {
		rec.SpanEnd = rec.SpanStart
	}
	return nil
}

// ValidateMention normalizes m in place and reports whether it is usable.
func ValidateMention(m *topicmap.MentionRecord) error {
	if m == nil {
		return fmt.Errorf("%w: nil mention", ErrInvalidRecord)
	}
	m.SourceID = strings.TrimSpace(m.SourceID)
	m.Target = strings.TrimRight(strings.TrimSpace(m.Target), ".,;:")
	if m.SourceID == "" || m.Target == "" {
		return fmt.Errorf("%w: mention needs source and target", ErrInvalidRecord)
	}
	if len(m.Context) > maxContextLen {
		cut := maxContextLen
		for cut > 0 && !utf8.RuneStart(m.Context[cut]) {
			cut--
		}
		m.Context = m.Context[:cut]
	}
	m.Confidence = clamp01(m.Confidence)
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a URL/path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}
