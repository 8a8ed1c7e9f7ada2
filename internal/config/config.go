package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/hints"
	"github.com/dgallion1/docmap/internal/registry"
	"github.com/dgallion1/docmap/internal/topicid"
	"github.com/dgallion1/docmap/internal/topicmap"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Optional map publishing to pathstore
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job and map state
	JobTTL      time.Duration
	MapTTL      time.Duration
	StatsWindow time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Detection rules
	RulesFile string
	Rules     Rules
}

// Rules tune the graph engine. Zero values take the engine defaults.
type Rules struct {
	AmbiguityThreshold        float64 `yaml:"ambiguity_threshold"`
	DuplicateConfidenceMargin float64 `yaml:"duplicate_confidence_margin"`
	MaxCycles                 int     `yaml:"max_cycles"`
	MaxGapRun                 int     `yaml:"max_gap_run"`
	MaxSuggestions            int     `yaml:"max_suggestions"`
	SegmentPattern            string  `yaml:"segment_pattern"`
}

// DefaultRules mirrors the engine defaults so they show up in dumps.
func DefaultRules() Rules {
	return Rules{
		AmbiguityThreshold:        anomaly.DefaultAmbiguityThreshold,
		DuplicateConfidenceMargin: registry.DefaultConflictMargin,
		MaxCycles:                 anomaly.DefaultMaxCycles,
		MaxGapRun:                 anomaly.DefaultMaxGapRun,
		MaxSuggestions:            hints.DefaultMax,
	}
}

// Load reads the environment and, when DOCMAP_RULES_FILE is set, the rules
// file. Environment values override the file.
func Load() (Config, error) {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("DOCMAP_API_KEY"),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL:      envDuration("JOB_TTL", 1*time.Hour),
		MapTTL:      envDuration("MAP_TTL", 24*time.Hour),
		StatsWindow: envDuration("STATS_WINDOW", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		RulesFile: os.Getenv("DOCMAP_RULES_FILE"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MapTTL <= 0 {
		cfg.MapTTL = 24 * time.Hour
	}

	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return cfg, err
	}
	rules.AmbiguityThreshold = envFloat("DOCMAP_AMBIGUITY_THRESHOLD", rules.AmbiguityThreshold)
	rules.DuplicateConfidenceMargin = envFloat("DOCMAP_DUPLICATE_MARGIN", rules.DuplicateConfidenceMargin)
	rules.MaxCycles = envInt("DOCMAP_MAX_CYCLES", rules.MaxCycles)
	rules.SegmentPattern = envOr("DOCMAP_SEGMENT_PATTERN", rules.SegmentPattern)
	cfg.Rules = rules

	return cfg, nil
}

// LoadRules starts from DefaultRules and applies the YAML file at path.
// An empty path returns the defaults; a named file that cannot be read is
// an error.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rules, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCMAP_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return c.Rules.Validate()
}

// Validate checks every rule the engine would otherwise reject at build time.
func (r Rules) Validate() error {
	var errs []error
	if r.AmbiguityThreshold < 0 || r.AmbiguityThreshold > 1 {
		errs = append(errs, fmt.Errorf("ambiguity_threshold %v outside [0,1]", r.AmbiguityThreshold))
	}
	if r.DuplicateConfidenceMargin < 0 || r.DuplicateConfidenceMargin > 1 {
		errs = append(errs, fmt.Errorf("duplicate_confidence_margin %v outside [0,1]", r.DuplicateConfidenceMargin))
	}
	if r.MaxCycles < 0 {
		errs = append(errs, fmt.Errorf("max_cycles %d is negative", r.MaxCycles))
	}
	if r.MaxGapRun < 0 {
		errs = append(errs, fmt.Errorf("max_gap_run %d is negative", r.MaxGapRun))
	}
	if r.MaxSuggestions < 0 || r.MaxSuggestions > hints.DefaultMax {
		errs = append(errs, fmt.Errorf("max_suggestions %d outside [0,%d]", r.MaxSuggestions, hints.DefaultMax))
	}
	if r.SegmentPattern != "" {
		if _, err := topicid.NewGrammar(r.SegmentPattern); err != nil {
			errs = append(errs, fmt.Errorf("segment_pattern: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", topicmap.ErrInvalidConfig, err)
	}
	return nil
}

// Options converts the rules into topic map build options. A zero
// ambiguity threshold turns the check off.
func (r Rules) Options(log *slog.Logger) topicmap.Options {
	threshold := r.AmbiguityThreshold
	if threshold == 0 {
		threshold = -1
	}
	return topicmap.Options{
		SegmentPattern:     r.SegmentPattern,
		ConflictMargin:     r.DuplicateConfidenceMargin,
		AmbiguityThreshold: threshold,
		MaxCycles:          r.MaxCycles,
		MaxGapRun:          r.MaxGapRun,
		MaxSuggestions:     r.MaxSuggestions,
		Logger:             log,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
