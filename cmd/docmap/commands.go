package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/config"
	"github.com/dgallion1/docmap/internal/pipeline"
	"github.com/dgallion1/docmap/internal/report"
	"github.com/dgallion1/docmap/internal/topicgraph"
	"github.com/dgallion1/docmap/internal/topicmap"
)

const (
	topicMapFile      = "topic_map.json"
	anomalyReportFile = "anomaly_report.csv"
)

type globalOptions struct {
	verbose   bool
	rulesFile string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "docmap",
		Short:        "Map topic hierarchies and cross-references in documents",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", os.Getenv("DOCMAP_RULES_FILE"), "YAML rules file")

	root.AddCommand(newAnalyzeCmd(opts), newPathCmd(opts))
	return root
}

func (o *globalOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildMap reads and maps one file with the configured rules.
func (o *globalOptions) buildMap(ctx context.Context, path string) (*topicmap.Map, error) {
	rules, err := config.LoadRules(o.rulesFile)
	if err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	log := o.logger()
	analyzer := pipeline.NewAnalyzer(rules.Options(log), true, nil, log)
	return analyzer.Run(ctx, data, filepath.Base(path))
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		outDir      string
		minSeverity string
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Write topic_map.json and anomaly_report.csv for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			floor, err := anomaly.ParseSeverity(minSeverity)
			if err != nil {
				return err
			}
			m, err := opts.buildMap(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			source := filepath.Base(args[0])
			if err := writeFile(filepath.Join(outDir, topicMapFile), func(f *os.File) error {
				return report.WriteTopicMap(f, m, source)
			}); err != nil {
				return err
			}
			list := m.Anomalies(floor)
			if err := writeFile(filepath.Join(outDir, anomalyReportFile), func(f *os.File) error {
				return report.WriteAnomalyCSV(f, list)
			}); err != nil {
				return err
			}

			stats := m.Statistics()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d topics, %d edges (%d broken), %d anomalies\n",
				source, stats.TotalNodes, stats.TotalEdges, stats.BrokenEdges, len(list))
			for _, sev := range []anomaly.Severity{anomaly.Critical, anomaly.High, anomaly.Medium, anomaly.Low} {
				if n := countSeverity(list, sev); n > 0 {
					fmt.Fprintf(out, "  %-8s %d\n", sev, n)
				}
			}
			if rej := m.Rejected(); len(rej) > 0 {
				fmt.Fprintf(out, "  rejected %d topic ids\n", len(rej))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "low", "lowest anomaly severity to report")
	return cmd
}

func newPathCmd(opts *globalOptions) *cobra.Command {
	var hierarchyOnly bool
	cmd := &cobra.Command{
		Use:   "path FILE FROM TO",
		Short: "Print the shortest path between two topics",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := opts.buildMap(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			strategy := topicgraph.AnyEdge
			if hierarchyOnly {
				strategy = topicgraph.HierarchyOnly
			}
			path, err := m.Path(args[1], args[2], string(strategy))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(path, " -> "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&hierarchyOnly, "hierarchy-only", false, "follow parent/child links only")
	return cmd
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func countSeverity(list []anomaly.Anomaly, sev anomaly.Severity) int {
	n := 0
	for _, a := range list {
		if a.Severity == sev {
			n++
		}
	}
	return n
}
