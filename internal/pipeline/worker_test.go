package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docmap/internal/pathstore"
	"github.com/dgallion1/docmap/internal/topicmap"
)

const budgetDoc = `# 18 Budget

Annual budget overview for the department. See section 18.2 for travel.

## 18.1 Staffing

Staffing costs are covered in full (18.3).

## 18.3 Travel

Travel is reimbursed at cost; refer to topic 19 for rules.

# 19 Rules

Rules apply to all staff members here.
`

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

type fakeStore struct {
	mu      sync.Mutex
	nodes   map[string]pathstore.NodeRequest
	links   []pathstore.LinkRequest
	deleted []string
	failN   int // fail the first failN calls with a 503
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: make(map[string]pathstore.NodeRequest)}
}

func (f *fakeStore) fail() error {
	f.calls++
	if f.calls <= f.failN {
		return &pathstore.StatusError{Op: "put", Status: http.StatusServiceUnavailable}
	}
	return nil
}

func (f *fakeStore) PutNode(_ context.Context, key string, req pathstore.NodeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.nodes[key] = req
	return nil
}

func (f *fakeStore) PutLink(_ context.Context, req pathstore.LinkRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.links = append(f.links, req)
	return nil
}

func (f *fakeStore) DeleteNode(_ context.Context, key string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestWorker(pub *Publisher) (*Worker, *MapStore) {
	maps := NewMapStore(time.Hour)
	a := NewAnalyzer(topicmap.Options{}, false, NewLatencyStats(time.Hour), discard())
	return NewWorker(a, maps, pub, discard()), maps
}

func TestWorker_ProcessMarkdown(t *testing.T) {
	w, maps := newTestWorker(nil)
	job := NewJob("j1", "budget.md", "", []byte(budgetDoc))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.Topics != 4 || snap.Progress.Mentions != 3 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
	if snap.Progress.Anomalies == 0 {
		t.Error("expected the missing 18.2 to be reported")
	}
	entry, ok := maps.Get(snap.MapID)
	if !ok {
		t.Fatalf("map %s not stored", snap.MapID)
	}
	if entry.Source != "budget.md" || entry.Map.Graph().Len() != 4 {
		t.Errorf("unexpected entry %s with %d topics", entry.Source, entry.Map.Graph().Len())
	}
	if job.FileData() != nil {
		t.Error("expected file data released")
	}
}

func TestWorker_DeduplicatesIdenticalContent(t *testing.T) {
	w, maps := newTestWorker(nil)
	first := NewJob("j1", "budget.md", "", []byte(budgetDoc))
	w.Process(context.Background(), first)
	second := NewJob("j2", "copy.md", "", []byte(budgetDoc))
	w.Process(context.Background(), second)

	a, b := first.Snapshot(), second.Snapshot()
	if a.MapID == "" || a.MapID != b.MapID {
		t.Errorf("expected shared map id, got %q and %q", a.MapID, b.MapID)
	}
	if b.Phase != "deduplicated" || b.Status != StatusCompleted {
		t.Errorf("unexpected second job state %s/%s", b.Status, b.Phase)
	}
	if maps.Len() != 1 {
		t.Errorf("expected 1 stored map, got %d", maps.Len())
	}
}

func TestWorker_Failures(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		phase    string
	}{
		{"unsupported format", "sheet.xlsx", "x", "parsing"},
		{"no topics", "notes.txt", "just some words without numbering", "extracting"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, _ := newTestWorker(nil)
			job := NewJob("j", tc.filename, "", []byte(tc.data))
			w.Process(context.Background(), job)
			snap := job.Snapshot()
			if snap.Status != StatusFailed || snap.Phase != tc.phase {
				t.Errorf("expected failed in %s, got %s/%s", tc.phase, snap.Status, snap.Phase)
			}
			if len(snap.Progress.Errors) == 0 {
				t.Error("expected an error message")
			}
		})
	}
}

func TestWorker_PublishesWithRetry(t *testing.T) {
	store := newFakeStore()
	store.failN = 2
	pub := NewPublisher(store, discard())
	pub.backoff = func(int) time.Duration { return 0 }

	w, _ := newTestWorker(pub)
	job := NewJob("j1", "budget.md", "", []byte(budgetDoc))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected retries to absorb transient errors, got %v", snap.Progress.Errors)
	}
	key := "docmap/maps/" + snap.MapID + "/topics/18.1"
	if _, ok := store.nodes[key]; !ok {
		t.Errorf("expected node %s to be published", key)
	}
	if _, ok := store.nodes["docmap/maps/"+snap.MapID+"/meta"]; !ok {
		t.Error("expected meta node")
	}
	// 2 hierarchy edges plus 2 valid references; the broken 18 -> 18.2 is skipped.
	if len(store.links) != 4 {
		t.Errorf("expected 4 links, got %d", len(store.links))
	}
}

func TestPublisher_PermanentErrorReported(t *testing.T) {
	store := newFakeStore()
	store.failN = 1000
	pub := NewPublisher(store, discard())
	pub.backoff = func(int) time.Duration { return 0 }

	w, maps := newTestWorker(nil)
	job := NewJob("j1", "budget.md", "", []byte(budgetDoc))
	w.Process(context.Background(), job)
	entry, _ := maps.Get(job.Snapshot().MapID)

	written, err := pub.Publish(context.Background(), entry)
	if err == nil || written != 0 {
		t.Fatalf("expected failure with nothing written, got %d, %v", written, err)
	}
	var se *pathstore.StatusError
	if !errors.As(err, &se) {
		t.Errorf("expected wrapped StatusError, got %v", err)
	}
	if !strings.Contains(err.Error(), entry.ID) {
		t.Errorf("expected map id in error, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	noWait := func(int) time.Duration { return 0 }

	calls := 0
	err := withRetry(context.Background(), noWait, func() error {
		calls++
		return &pathstore.StatusError{Status: http.StatusBadGateway}
	})
	if err == nil || calls != MaxRetries {
		t.Errorf("expected %d attempts and an error, got %d, %v", MaxRetries, calls, err)
	}

	calls = 0
	err = withRetry(context.Background(), noWait, func() error {
		calls++
		return errors.New("permanent")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected a single attempt for permanent errors, got %d", calls)
	}
}

func TestBackoff(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		if d < base || d >= base+base/2 {
			t.Errorf("attempt %d: %v outside [%v, %v)", attempt, d, base, base+base/2)
		}
	}
	if d := Backoff(10); d < 30*time.Second || d >= 45*time.Second {
		t.Errorf("expected cap at 30s plus jitter, got %v", d)
	}
}
