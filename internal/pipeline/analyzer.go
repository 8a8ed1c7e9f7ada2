package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/doctree"
	"github.com/dgallion1/docmap/internal/extract"
	"github.com/dgallion1/docmap/internal/parser"
	"github.com/dgallion1/docmap/internal/topicmap"
)

// Analyzer runs the three document phases: parse, extract and map. Each
// phase is timed into the latency stats and the phase histogram.
type Analyzer struct {
	opts        topicmap.Options
	pdfFallback bool
	stats       *LatencyStats
	extractor   *extract.Extractor
	log         *slog.Logger
}

// NewAnalyzer builds an Analyzer. stats may be nil.
func NewAnalyzer(opts topicmap.Options, pdfFallback bool, stats *LatencyStats, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Logger == nil {
		opts.Logger = log
	}
	return &Analyzer{
		opts:        opts,
		pdfFallback: pdfFallback,
		stats:       stats,
		extractor:   extract.New(log),
		log:         log,
	}
}

func (a *Analyzer) observe(phase string, start time.Time) {
	d := time.Since(start)
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	if a.stats != nil {
		a.stats.Record(phase, d)
	}
}

// Parse converts raw bytes into a document tree.
func (a *Analyzer) Parse(data []byte, filename string) (*doctree.DocTree, error) {
	defer a.observe("parsing", time.Now())
	p, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = a.pdfFallback
	}
	tree, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return tree, nil
}

// Extract finds topic and mention records in tree.
func (a *Analyzer) Extract(tree *doctree.DocTree) extract.Result {
	defer a.observe("extracting", time.Now())
	res := a.extractor.FromTree(tree)
	topicsExtracted.Add(float64(len(res.Topics)))
	return res
}

// Map builds the topic map from extracted records.
func (a *Analyzer) Map(ctx context.Context, res extract.Result) (*topicmap.Map, error) {
	defer a.observe("mapping", time.Now())
	m, err := topicmap.Build(ctx, res.Topics, res.Mentions, a.opts)
	if err != nil {
		return nil, fmt.Errorf("build map: %w", err)
	}
	recordAnomalies(m.Anomalies(anomaly.Low))
	return m, nil
}

// Run performs all three phases.
func (a *Analyzer) Run(ctx context.Context, data []byte, filename string) (*topicmap.Map, error) {
	tree, err := a.Parse(data, filename)
	if err != nil {
		return nil, err
	}
	return a.Map(ctx, a.Extract(tree))
}
