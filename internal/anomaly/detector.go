package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docmap/internal/hints"
	"github.com/dgallion1/docmap/internal/topicgraph"
)

const (
	// DefaultAmbiguityThreshold flags topics detected with less confidence.
	DefaultAmbiguityThreshold = 0.6
	// DefaultMaxCycles bounds cycle enumeration.
	DefaultMaxCycles = 1000
	// DefaultMaxGapRun bounds how many missing ids one sibling pair reports.
	DefaultMaxGapRun = 100
)

// ErrInvalidOptions is returned by New.
var ErrInvalidOptions = errors.New("anomaly: invalid options")

// Options configure the detector. Zero values take the defaults, except
// AmbiguityThreshold which must be set explicitly to disable it (use a
// negative value).
type Options struct {
	AmbiguityThreshold float64
	MaxCycles          int
	MaxGapRun          int
	MaxSuggestions     int
	Logger             *slog.Logger
}

// Detector runs the check battery. It holds no per-graph state and may be
// shared.
type Detector struct {
	threshold      float64
	maxCycles      int
	maxGapRun      int
	maxSuggestions int
	log            *slog.Logger
}

// New validates opts and returns a Detector.
func New(opts Options) (*Detector, error) {
	d := &Detector{
		threshold:      opts.AmbiguityThreshold,
		maxCycles:      opts.MaxCycles,
		maxGapRun:      opts.MaxGapRun,
		maxSuggestions: opts.MaxSuggestions,
		log:            opts.Logger,
	}
	switch {
	case d.threshold == 0:
		d.threshold = DefaultAmbiguityThreshold
	case d.threshold > 1:
		return nil, fmt.Errorf("%w: ambiguity threshold %v outside [0,1]", ErrInvalidOptions, d.threshold)
	}
	if d.maxCycles < 0 || d.maxGapRun < 0 || d.maxSuggestions < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidOptions)
	}
	if d.maxCycles == 0 {
		d.maxCycles = DefaultMaxCycles
	}
	if d.maxGapRun == 0 {
		d.maxGapRun = DefaultMaxGapRun
	}
	if d.maxSuggestions > hints.DefaultMax {
		return nil, fmt.Errorf("%w: max suggestions %d above %d", ErrInvalidOptions, d.maxSuggestions, hints.DefaultMax)
	}
	if d.maxSuggestions == 0 {
		d.maxSuggestions = hints.DefaultMax
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	return d, nil
}

type check struct {
	kind Kind
	run  func(ctx context.Context, s *snapshot) ([]Anomaly, error)
}

func (d *Detector) battery() []check {
	return []check{
		{KindNumberingGap, d.numberingGaps},
		{KindMissingReferenced, d.missingReferenced},
		{KindBrokenCrossReference, d.brokenCrossReferences},
		{KindCircularReference, d.circularReferences},
		{KindOrphanContent, d.orphans},
		{KindDuplicateTopic, d.duplicates},
		{KindAmbiguousBoundary, d.ambiguous},
	}
}

// Detect runs every check against g concurrently and returns the sorted
// result. g is only read. The only error is context cancellation.
func (d *Detector) Detect(ctx context.Context, g *topicgraph.Graph) ([]Anomaly, error) {
	snap := newSnapshot(g, d.maxGapRun)
	checks := d.battery()
	results := make([][]Anomaly, len(checks))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range checks {
		eg.Go(func() error {
			found, err := c.run(egCtx, snap)
			if err != nil {
				return fmt.Errorf("%s: %w", c.kind, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("anomaly detection: %w", err)
	}

	var all []Anomaly
	for _, r := range results {
		all = append(all, r...)
	}
	Sort(all)

	gen := hints.New(snap.ids, d.maxSuggestions)
	for i := range all {
		if all[i].MissingID == "" {
			continue
		}
		if missing, ok := snap.parse(all[i].MissingID); ok {
			all[i].Suggestions = gen.Suggest(missing)
		}
	}

	counts := Count(all)
	d.log.Info("anomaly detection complete",
		"total", len(all),
		"numbering_gaps", counts[KindNumberingGap],
		"missing_referenced", counts[KindMissingReferenced],
		"cycles", counts[KindCircularReference],
	)
	return all, nil
}
