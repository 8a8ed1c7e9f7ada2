package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/config"
	"github.com/dgallion1/docmap/internal/topicmap"
)

// Orchestrator manages the document analysis pipeline and the maps it
// produces.
type Orchestrator struct {
	jobs      *JobStore
	maps      *MapStore
	stats     *LatencyStats
	queue     chan *Job
	analyzer  *Analyzer
	publisher *Publisher
	log       *slog.Logger
	cfg       config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. publisher may be nil.
func NewOrchestrator(cfg config.Config, publisher *Publisher, log *slog.Logger) *Orchestrator {
	stats := NewLatencyStats(cfg.StatsWindow)
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		maps:      NewMapStore(cfg.MapTTL),
		stats:     stats,
		queue:     make(chan *Job, cfg.MaxQueueSize),
		analyzer:  NewAnalyzer(cfg.Rules.Options(log), cfg.PDFFallbackPdftotext, stats, log),
		publisher: publisher,
		log:       log,
		cfg:       cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.analyzer, o.maps, o.publisher, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					queueDepth.Set(float64(len(o.queue)))
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job and map cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				jobs, maps := o.jobs.Cleanup(), o.maps.Cleanup()
				if jobs+maps > 0 {
					o.log.Debug("expired state removed", "jobs", jobs, "maps", maps)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		queueDepth.Set(float64(len(o.queue)))
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		jobsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Maps exposes the map store for the query API.
func (o *Orchestrator) Maps() *MapStore {
	return o.maps
}

// Stats exposes the phase latency stats.
func (o *Orchestrator) Stats() *LatencyStats {
	return o.stats
}

// BuildMap maps records supplied directly by a client, skipping parse and
// extraction. The map is stored and, when enabled, published before
// returning.
func (o *Orchestrator) BuildMap(ctx context.Context, source string, topics []topicmap.TopicRecord, mentions []topicmap.MentionRecord) (*MapEntry, error) {
	start := time.Now()
	m, err := topicmap.Build(ctx, topics, mentions, o.cfg.Rules.Options(o.log))
	if err != nil {
		return nil, err
	}
	o.analyzer.observe("mapping", start)
	recordAnomalies(m.Anomalies(anomaly.Low))

	entry := &MapEntry{ID: uuid.NewString(), Source: source, Map: m}
	o.maps.Put(entry)
	if o.publisher != nil {
		if _, err := o.publisher.Publish(ctx, entry); err != nil {
			o.log.Warn("publish failed", "map_id", entry.ID, "error", err)
		}
	}
	return entry, nil
}

// DeleteMap drops a stored map and its published copy.
func (o *Orchestrator) DeleteMap(ctx context.Context, id string) (bool, error) {
	if !o.maps.Delete(id) {
		return false, nil
	}
	if o.publisher != nil {
		if err := o.publisher.Unpublish(ctx, id); err != nil {
			return true, fmt.Errorf("unpublish map %s: %w", id, err)
		}
	}
	return true, nil
}
