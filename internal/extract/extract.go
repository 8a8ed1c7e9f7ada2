// Package extract turns a parsed document tree into the topic and mention
// records the topic map is built from.
//
// Every heading title and every line of body text is considered in reading
// order. A line that starts with a topic identifier opens a new topic; the
// lines after it, up to the next topic line, are its content. Mentions are
// then found in each topic's content.
package extract

import (
	"cmp"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docmap/internal/doctree"
	"github.com/dgallion1/docmap/internal/topicmap"
)

const (
	headingConfidence   = 0.95
	bodyConfidence      = 0.9
	ambiguousConfidence = 0.55

	minTitleLen        = 3
	minContentLen      = 20
	maxContentLines    = 100
	mentionContextSpan = 60
)

var (
	numericTopic = regexp.MustCompile(`^(\d+(?:\.\d+)*(?:\.[A-Za-z])?)\.?\s+(.+)$`)
	romanTopic   = regexp.MustCompile(`^([IVX]+(?:\.[IVX]+)*)\.?\s+(.+)$`)
	letterTopic  = regexp.MustCompile(`^([A-Z](?:\.[A-Z])*)\.?\s+(.+)$`)
	numericID    = regexp.MustCompile(`^\d+(?:\.\d+)*(?:\.[A-Za-z])?$`)
)

// mentionPatterns are tried in order; a later pattern never claims a target
// an earlier one already matched.
var mentionPatterns = []struct {
	re         *regexp.Regexp
	confidence float64
}{
	{regexp.MustCompile(`(?i)\b(?:see|refer to|as in|discussed in)\s+(?:topic|section)\s+(\d+(?:\.\d+)*(?:\.[a-z])?)`), 0.9},
	{regexp.MustCompile(`(?i)\b(?:topic|section)\s+(\d+(?:\.\d+)*(?:\.[a-z])?)`), 0.8},
	{regexp.MustCompile(`\((\d+(?:\.\d+)*(?:\.[a-z])?)\)`), 0.6},
}

// Result holds the records extracted from one document.
type Result struct {
	Topics   []topicmap.TopicRecord
	Mentions []topicmap.MentionRecord
	Skipped  int
}

// Extractor finds topics and mentions in document trees.
type Extractor struct {
	log *slog.Logger
}

// New returns an Extractor. A nil logger discards output.
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Extractor{log: log}
}

// FromTree extracts with a default Extractor.
func FromTree(tree *doctree.DocTree) Result {
	return New(nil).FromTree(tree)
}

type line struct {
	text    string
	offset  int
	heading bool
	page    int
	attrs   map[string]string
}

type openTopic struct {
	rec     topicmap.TopicRecord
	heading bool
	lines   []string
}

// FromTree extracts topic records in reading order, then the mentions in
// each topic's content.
func (e *Extractor) FromTree(tree *doctree.DocTree) Result {
	var res Result
	var cur *openTopic

	closeTopic := func() {
		if cur == nil {
			return
		}
		rec := cur.rec
		if rec.Content == "" {
			rec.Content = strings.Join(cur.lines, " ")
		}
		rec.SpanEnd = rec.SpanStart + len(rec.Content)
		if rec.Confidence == 0 {
			rec.Confidence = confidenceFor(rec, cur.heading)
		}
		if err := ValidateTopic(&rec); err != nil {
			e.log.Debug("skipping topic", "id", rec.RawID, "position", rec.Position, "error", err)
			res.Skipped++
		} else {
			res.Topics = append(res.Topics, rec)
		}
		cur = nil
	}

	for _, ln := range flatten(tree) {
		if ln.attrs != nil && ln.attrs["id"] != "" {
			closeTopic()
			cur = &openTopic{rec: tableRecord(ln), heading: true}
			continue
		}
		id, title, ok := matchTopic(ln.text, ln.heading)
		if ok {
			closeTopic()
			cur = &openTopic{
				heading: ln.heading,
				rec: topicmap.TopicRecord{
					RawID:     id,
					Title:     title,
					SpanStart: ln.offset,
					Position:  ln.offset,
					Metadata:  lineMetadata(ln),
				},
			}
			continue
		}
		if cur != nil && len(cur.lines) < maxContentLines {
			cur.lines = append(cur.lines, ln.text)
		}
	}
	closeTopic()

	for _, t := range res.Topics {
		res.Mentions = append(res.Mentions, FindMentions(t)...)
	}

	e.log.Debug("extracted records",
		"title", tree.Title,
		"topics", len(res.Topics),
		"mentions", len(res.Mentions),
		"skipped", res.Skipped,
	)
	return res
}

// flatten lists heading titles and non-empty body lines in reading order.
func flatten(tree *doctree.DocTree) []line {
	var out []line
	tree.Walk(func(n *doctree.DocNode) bool {
		if n.Attrs != nil {
			out = append(out, line{text: n.Title, offset: n.Offset, heading: true, page: n.Page, attrs: n.Attrs})
			return true
		}
		if t := strings.TrimSpace(n.Title); t != "" {
			out = append(out, line{text: t, offset: n.Offset, heading: true, page: n.Page})
		}
		pos := 0
		for raw := range strings.Lines(n.Text) {
			start := pos
			pos += len(raw)
			t := strings.TrimSpace(raw)
			if t == "" {
				continue
			}
			lead := strings.Index(raw, t)
			out = append(out, line{text: t, offset: n.TextOffset + start + lead, page: n.Page})
		}
		return true
	})
	return out
}

func matchTopic(text string, heading bool) (id, title string, ok bool) {
	patterns := []*regexp.Regexp{numericTopic}
	if heading {
		patterns = append(patterns, romanTopic, letterTopic)
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], strings.TrimSpace(m[2]), true
		}
	}
	return "", "", false
}

func confidenceFor(rec topicmap.TopicRecord, heading bool) float64 {
	if len(rec.Content) < minContentLen || !numericID.MatchString(rec.RawID) {
		return ambiguousConfidence
	}
	if heading {
		return headingConfidence
	}
	return bodyConfidence
}

func lineMetadata(ln line) map[string]string {
	md := map[string]string{"source": "body"}
	if ln.heading {
		md["source"] = "heading"
	}
	if ln.page > 0 {
		md["page"] = strconv.Itoa(ln.page)
	}
	return md
}

// tableRecord builds a record from a topic table row. Columns other than
// id, title, content and confidence are kept as metadata.
func tableRecord(ln line) topicmap.TopicRecord {
	rec := topicmap.TopicRecord{
		RawID:     ln.attrs["id"],
		Title:     ln.attrs["title"],
		Content:   ln.attrs["content"],
		SpanStart: ln.offset,
		Position:  ln.offset,
		Metadata:  map[string]string{"source": "table"},
	}
	if c, err := strconv.ParseFloat(ln.attrs["confidence"], 64); err == nil {
		rec.Confidence = c
	}
	for k, v := range ln.attrs {
		switch k {
		case "id", "title", "content", "confidence":
		default:
			if v != "" {
				rec.Metadata[k] = v
			}
		}
	}
	return rec
}

type span struct{ start, end int }

// FindMentions returns the references in t's content, in content order.
func FindMentions(t topicmap.TopicRecord) []topicmap.MentionRecord {
	var claimed []span
	var out []topicmap.MentionRecord
	for _, p := range mentionPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(t.Content, -1) {
			target := span{m[2], m[3]}
			if overlaps(claimed, target) {
				continue
			}
			claimed = append(claimed, target)
			out = append(out, topicmap.MentionRecord{
				SourceID:   t.RawID,
				Target:     strings.TrimRight(t.Content[target.start:target.end], ".,;:"),
				Position:   t.Position + target.start,
				Context:    snippet(t.Content, m[0], m[1]),
				Confidence: p.confidence,
			})
		}
	}
	slices.SortStableFunc(out, func(a, b topicmap.MentionRecord) int { return cmp.Compare(a.Position, b.Position) })
	return out
}

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// snippet returns the text around [start,end) widened by the context span,
// cut on rune boundaries.
func snippet(s string, start, end int) string {
	lo := max(0, start-mentionContextSpan)
	hi := min(len(s), end+mentionContextSpan)
	for lo > 0 && !utf8.RuneStart(s[lo]) {
		lo--
	}
	for hi < len(s) && !utf8.RuneStart(s[hi]) {
		hi++
	}
	return strings.TrimSpace(s[lo:hi])
}
