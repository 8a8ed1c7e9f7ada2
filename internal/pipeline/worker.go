package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgallion1/docmap/internal/anomaly"
)

// Worker processes a single document job.
type Worker struct {
	analyzer  *Analyzer
	maps      *MapStore
	publisher *Publisher
	log       *slog.Logger
}

// NewWorker returns a worker. publisher may be nil when publishing is off.
func NewWorker(analyzer *Analyzer, maps *MapStore, publisher *Publisher, log *slog.Logger) *Worker {
	return &Worker{
		analyzer:  analyzer,
		maps:      maps,
		publisher: publisher,
		log:       log,
	}
}

// Process runs the full analysis pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	data := job.FileData()

	// Identical content already mapped: reuse it.
	hash := ContentHashHex(data)
	job.SetContentHash(hash)
	if existing, ok := w.maps.FindByHash(hash); ok {
		log.Info("duplicate document, reusing map", "map_id", existing.ID)
		job.SetMapped(existing.ID, len(existing.Map.Rejected()), len(existing.Map.Anomalies(anomaly.Low)))
		w.finish(job, StatusCompleted, "deduplicated")
		return
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	tree, err := w.analyzer.Parse(data, job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(err.Error())
		w.finish(job, StatusFailed, "parsing")
		return
	}
	if job.Title != "" {
		tree.Title = job.Title
	}

	// Phase 2: Extract topic and mention records.
	job.SetStatus(StatusExtracting, "extracting")
	res := w.analyzer.Extract(tree)
	job.SetExtracted(tree.Len(), len(res.Topics), len(res.Mentions))
	log.Info("extracted records", "topics", len(res.Topics), "mentions", len(res.Mentions), "skipped", res.Skipped)
	if len(res.Topics) == 0 {
		job.AddError("no topics found")
		w.finish(job, StatusFailed, "extracting")
		return
	}

	// Phase 3: Build the map.
	job.SetStatus(StatusMapping, "mapping")
	m, err := w.analyzer.Map(ctx, res)
	if err != nil {
		log.Error("mapping failed", "error", err)
		job.AddError(err.Error())
		w.finish(job, StatusFailed, "mapping")
		return
	}
	entry := &MapEntry{
		ID:          uuid.NewString(),
		Source:      job.Filename,
		ContentHash: hash,
		Map:         m,
	}
	w.maps.Put(entry)
	job.SetMapped(entry.ID, len(m.Rejected()), len(m.Anomalies(anomaly.Low)))
	log.Info("map built", "map_id", entry.ID, "topics", m.Graph().Len())

	// Phase 4: Publish. A publishing failure leaves the map usable.
	if w.publisher != nil {
		job.SetStatus(StatusPublishing, "publishing")
		if _, err := w.publisher.Publish(ctx, entry); err != nil {
			job.AddError(fmt.Sprintf("publish: %s", err))
		}
	}

	w.finish(job, StatusCompleted, "done")
}

func (w *Worker) finish(job *Job, status JobStatus, phase string) {
	job.SetStatus(status, phase)
	jobsTotal.WithLabelValues(string(status)).Inc()
}
