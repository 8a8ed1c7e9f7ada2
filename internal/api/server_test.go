package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmap/internal/config"
	"github.com/dgallion1/docmap/internal/pipeline"
)

const testKey = "secret"

const budgetDoc = `# 18 Budget

Annual budget overview for the department. See section 18.2 for travel.

## 18.1 Staffing

Staffing costs are covered in full (18.3).

## 18.3 Travel

Travel is reimbursed at cost; refer to topic 19 for rules.

# 19 Rules

Rules apply to all staff members here.
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:         testKey,
		WorkerCount:    1,
		MaxQueueSize:   4,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
		MapTTL:         time.Hour,
		StatsWindow:    time.Hour,
		Rules:          config.DefaultRules(),
	}
	log := slog.New(slog.DiscardHandler)
	orch := pipeline.NewOrchestrator(cfg, nil, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, log, cfg)
}

func do(t *testing.T, s *Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func upload(t *testing.T, field, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

// createMap posts a small record set and returns the new map id.
func createMap(t *testing.T, s *Server) string {
	t.Helper()
	topic := func(id string, pos int) map[string]any {
		return map[string]any{
			"id": id, "title": "Section " + id, "content": "The body of section " + id + " goes here.",
			"span_start": pos, "span_end": pos + 40, "confidence": 0.95, "position": pos,
		}
	}
	mention := func(src, dst string, pos int) map[string]any {
		return map[string]any{"source_id": src, "target": dst, "position": pos, "context": "see topic " + dst, "confidence": 0.9}
	}
	body, err := json.Marshal(map[string]any{
		"source": "Budget Manual",
		"topics": []any{topic("18", 0), topic("18.1", 100), topic("18.3", 200), topic("19", 300), topic("bad..id", 400)},
		"mentions": []any{
			mention("18", "18.2", 50),
			mention("18.3", "19", 250),
			mention("19", "18.1", 350),
		},
	})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/maps", body, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.EqualValues(t, 4, out["topics"])
	assert.Len(t, out["rejected"], 1)
	id, _ := out["map_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/maps/"+id, rec.Header().Get("Location"))
	return id
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/maps", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authorization", decode(t, rec)["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/maps", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyzeUploadAndPoll(t *testing.T) {
	s := newTestServer(t)
	body, ct := upload(t, "file", "../budget.md", budgetDoc)

	rec := do(t, s, http.MethodPost, "/api/analyze", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	out := decode(t, rec)
	jobID, _ := out["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "/api/analyze/"+jobID+"/status", out["poll_url"])

	var status map[string]any
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/api/analyze/"+jobID+"/status", nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		status = nil
		if json.Unmarshal(rec.Body.Bytes(), &status) != nil {
			return false
		}
		return status["status"] == "completed" || status["status"] == "failed"
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "completed", status["status"], status)
	assert.Equal(t, "budget.md", status["filename"])

	mapID, _ := status["map_id"].(string)
	require.NotEmpty(t, mapID)

	rec = do(t, s, http.MethodGet, "/api/maps/"+mapID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	topics, _ := doc["topics"].(map[string]any)
	assert.Contains(t, topics, "18")
	assert.Contains(t, topics, "18.3")
	meta, _ := doc["metadata"].(map[string]any)
	assert.EqualValues(t, 4, meta["total_topics"])
}

func TestAnalyzeRejectsUnsupportedType(t *testing.T) {
	s := newTestServer(t)
	body, ct := upload(t, "file", "sheet.xlsx", "data")
	rec := do(t, s, http.MethodPost, "/api/analyze", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestBatchAnalyzeReportsPerFile(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"a.md": budgetDoc, "b.exe": "x"} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
	}
	require.NoError(t, mw.Close())

	rec := do(t, s, http.MethodPost, "/api/analyze/batch", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobs, _ := decode(t, rec)["jobs"].([]any)
	require.Len(t, jobs, 2)
	byName := map[string]map[string]any{}
	for _, j := range jobs {
		m := j.(map[string]any)
		byName[m["filename"].(string)] = m
	}
	assert.NotEmpty(t, byName["a.md"]["job_id"])
	assert.Contains(t, byName["b.exe"]["error"], "unsupported file type")
}

func TestCreateMapValidation(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/maps", []byte(`{"topics":[]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/maps", []byte(`{"topics":[{"id":"1","title":"ab"}]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "no valid topics", body["error"])
	assert.Len(t, body["rejected"], 1)

	rec = do(t, s, http.MethodPost, "/api/maps", []byte(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMapSkipsInvalidRecords(t *testing.T) {
	s := newTestServer(t)
	payload := `{
		"source": "short titles",
		"topics": [
			{"id": "1", "title": "Scope of work", "content": "Applies to all staff.", "confidence": 0.9, "position": 0},
			{"id": "2", "title": "ab", "content": "Too short a heading.", "confidence": 0.9, "position": 100},
			{"id": "3", "title": "Travel rules", "content": "See section 1 first.", "confidence": 0.9, "position": 200}
		],
		"mentions": [
			{"source_id": "3", "target": "1", "position": 210, "confidence": 0.8},
			{"source_id": "", "target": "1", "position": 220, "confidence": 0.8}
		]
	}`
	rec := do(t, s, http.MethodPost, "/api/maps", []byte(payload), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.EqualValues(t, 2, body["topics"])
	assert.EqualValues(t, 1, body["skipped_mentions"])
	rejected, _ := body["rejected"].([]any)
	require.Len(t, rejected, 1)
	assert.Equal(t, "2", rejected[0].(map[string]any)["id"])
	assert.Contains(t, rejected[0].(map[string]any)["reason"], "shorter than")

	rec = do(t, s, http.MethodGet, "/api/maps/"+body["map_id"].(string)+"/topics/2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapQueries(t *testing.T) {
	s := newTestServer(t)
	id := createMap(t, s)
	base := "/api/maps/" + id

	rec := do(t, s, http.MethodGet, base+"/topics/18.1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	node := decode(t, rec)
	assert.Equal(t, "18.1", node["id"])
	assert.Equal(t, "18", node["parent"])

	rec = do(t, s, http.MethodGet, base+"/topics/18/children", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["children"], 2)

	rec = do(t, s, http.MethodGet, base+"/topics/19/references?direction=from", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	refs, _ := decode(t, rec)["references"].([]any)
	require.Len(t, refs, 1)
	assert.Equal(t, "18.1", refs[0].(map[string]any)["target"])

	rec = do(t, s, http.MethodGet, base+"/path?from=18.3&to=18.1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	path := decode(t, rec)
	assert.Equal(t, []any{"18.3", "18", "18.1"}, path["path"])
	assert.EqualValues(t, 2, path["length"])

	rec = do(t, s, http.MethodGet, base+"/anomalies?min_severity=critical", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = do(t, s, http.MethodGet, base+"/anomalies.csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="budget-manual_anomalies.csv"`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Type,Location,Severity,Description,Affected Topics,Suggestions\n"))
	assert.Contains(t, rec.Body.String(), "18 -> 18.2")

	rec = do(t, s, http.MethodGet, "/api/maps", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["maps"], 1)
}

func TestMapQueryErrors(t *testing.T) {
	s := newTestServer(t)
	id := createMap(t, s)
	base := "/api/maps/" + id

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"unknown map", "/api/maps/nope/topics/18", http.StatusNotFound},
		{"unknown topic", base + "/topics/42", http.StatusNotFound},
		{"bad topic id", base + "/topics/bad..id", http.StatusBadRequest},
		{"bad direction", base + "/topics/18/references?direction=up", http.StatusBadRequest},
		{"bad strategy", base + "/path?from=18&to=19&strategy=teleport", http.StatusBadRequest},
		{"missing endpoint", base + "/path?from=18", http.StatusBadRequest},
		{"no path", base + "/path?from=18.3&to=19&strategy=hierarchy_only", http.StatusUnprocessableEntity},
		{"bad severity", base + "/anomalies?min_severity=extreme", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target, nil, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestDeleteMap(t *testing.T) {
	s := newTestServer(t)
	id := createMap(t, s)

	rec := do(t, s, http.MethodDelete, "/api/maps/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deleted"])

	rec = do(t, s, http.MethodGet, "/api/maps/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/maps/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	createMap(t, s)

	rec := do(t, s, http.MethodGet, "/api/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.EqualValues(t, 1, out["maps"])
	assert.EqualValues(t, 0, out["queue_depth"])
	phases, _ := out["phases"].(map[string]any)
	assert.Contains(t, phases, "mapping")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		`C:\docs\notes.txt`: "notes.txt",
		"..":                "unnamed",
		"":                  "unnamed",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
