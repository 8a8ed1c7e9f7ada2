package pipeline

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/topicmap"
)

// MapEntry is a finished topic map held by the server.
type MapEntry struct {
	ID          string
	Source      string
	ContentHash string
	Map         *topicmap.Map
	CreatedAt   time.Time

	mu         sync.Mutex
	accessedAt time.Time
}

func (e *MapEntry) touch(now time.Time) {
	e.mu.Lock()
	e.accessedAt = now
	e.mu.Unlock()
}

func (e *MapEntry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accessedAt
}

// MapSummary is the listing form of a MapEntry.
type MapSummary struct {
	ID        string    `json:"map_id"`
	Source    string    `json:"source"`
	Topics    int       `json:"topics"`
	Anomalies int       `json:"anomalies"`
	CreatedAt time.Time `json:"created_at"`
}

// MapStore keeps maps in memory until they go unread for the TTL. Maps
// built from a document are also indexed by content hash so an identical
// upload reuses the existing map.
type MapStore struct {
	mu     sync.Mutex
	maps   map[string]*MapEntry
	byHash map[string]string
	ttl    time.Duration
	now    func() time.Time
}

func NewMapStore(ttl time.Duration) *MapStore {
	return &MapStore{
		maps:   make(map[string]*MapEntry),
		byHash: make(map[string]string),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MapStore) Put(e *MapEntry) {
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.touch(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps[e.ID] = e
	if e.ContentHash != "" {
		s.byHash[e.ContentHash] = e.ID
	}
}

// Get returns the entry and refreshes its TTL.
func (s *MapStore) Get(id string) (*MapEntry, bool) {
	s.mu.Lock()
	e, ok := s.maps[id]
	s.mu.Unlock()
	if ok {
		e.touch(s.now())
	}
	return e, ok
}

// FindByHash returns the map already built from identical content.
func (s *MapStore) FindByHash(hash string) (*MapEntry, bool) {
	s.mu.Lock()
	id, ok := s.byHash[hash]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return s.Get(id)
}

func (s *MapStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.maps[id]
	if !ok {
		return false
	}
	s.remove(e)
	return true
}

func (s *MapStore) remove(e *MapEntry) {
	delete(s.maps, e.ID)
	if e.ContentHash != "" && s.byHash[e.ContentHash] == e.ID {
		delete(s.byHash, e.ContentHash)
	}
}

// List summarizes every stored map, newest first.
func (s *MapStore) List() []MapSummary {
	s.mu.Lock()
	out := make([]MapSummary, 0, len(s.maps))
	for _, e := range s.maps {
		out = append(out, MapSummary{
			ID:        e.ID,
			Source:    e.Source,
			Topics:    e.Map.Graph().Len(),
			Anomalies: len(e.Map.Anomalies(anomaly.Low)),
			CreatedAt: e.CreatedAt,
		})
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b MapSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.maps)
}

// Cleanup removes maps idle for longer than the TTL.
func (s *MapStore) Cleanup() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, e := range s.maps {
		if e.idleSince().Before(cutoff) {
			s.remove(e)
			removed++
		}
	}
	return removed
}
