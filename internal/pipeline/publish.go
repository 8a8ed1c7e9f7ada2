package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docmap/internal/pathstore"
	"github.com/dgallion1/docmap/internal/resolver"
	"github.com/dgallion1/docmap/internal/topicmap"
)

// Store is the part of the pathstore client the publisher needs.
type Store interface {
	PutNode(ctx context.Context, key string, req pathstore.NodeRequest) error
	PutLink(ctx context.Context, req pathstore.LinkRequest) error
	DeleteNode(ctx context.Context, key string, recursive bool) error
}

// Publisher mirrors finished maps into pathstore: one node per topic, one
// link per valid edge, and a meta node with the statistics.
type Publisher struct {
	store   Store
	log     *slog.Logger
	backoff func(int) time.Duration
}

func NewPublisher(store Store, log *slog.Logger) *Publisher {
	return &Publisher{store: store, log: log, backoff: Backoff}
}

func mapPrefix(mapID string) string {
	return "docmap/maps/" + mapID
}

func topicKey(mapID, topicID string) string {
	return mapPrefix(mapID) + "/topics/" + topicID
}

// Publish writes the map. Topic and link failures are counted and the first
// one is returned after every write has been attempted.
func (p *Publisher) Publish(ctx context.Context, e *MapEntry) (int, error) {
	source := "docmap:" + e.ID
	written := 0
	var firstErr error
	record := func(err error) {
		if err == nil {
			written++
			return
		}
		publishErrors.Inc()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, n := range e.Map.Nodes() {
		req := pathstore.NodeRequest{
			Value: map[string]any{
				"id":         n.ID,
				"title":      n.Title,
				"content":    n.Content,
				"parent":     n.Parent,
				"confidence": n.Confidence,
			},
			MemoryType: "semantic",
			Salience:   n.Confidence,
			Source:     source,
		}
		key := topicKey(e.ID, n.ID)
		record(withRetry(ctx, p.backoff, func() error { return p.store.PutNode(ctx, key, req) }))
	}

	for _, edge := range e.Map.Edges() {
		if edge.Status != string(resolver.StatusValid) {
			continue
		}
		req := pathstore.LinkRequest{
			From:          topicKey(e.ID, edge.Source),
			To:            topicKey(e.ID, edge.Target),
			Weight:        edge.Confidence,
			Summary:       edge.Kind,
			Bidirectional: edge.Kind == string(resolver.KindHierarchy),
		}
		record(withRetry(ctx, p.backoff, func() error { return p.store.PutLink(ctx, req) }))
	}

	meta := pathstore.NodeRequest{
		Value: map[string]any{
			"source":     e.Source,
			"version":    topicmap.Version,
			"statistics": e.Map.Statistics(),
			"created_at": e.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     source,
	}
	record(withRetry(ctx, p.backoff, func() error { return p.store.PutNode(ctx, mapPrefix(e.ID)+"/meta", meta) }))

	if firstErr != nil {
		p.log.Warn("publish incomplete", "map_id", e.ID, "written", written, "error", firstErr)
		return written, fmt.Errorf("publish map %s: %w", e.ID, firstErr)
	}
	p.log.Info("map published", "map_id", e.ID, "written", written)
	return written, nil
}

// Unpublish removes everything published for mapID.
func (p *Publisher) Unpublish(ctx context.Context, mapID string) error {
	return withRetry(ctx, p.backoff, func() error { return p.store.DeleteNode(ctx, mapPrefix(mapID), true) })
}
