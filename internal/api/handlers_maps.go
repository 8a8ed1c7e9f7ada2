package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/docmap/internal/anomaly"
	"github.com/dgallion1/docmap/internal/extract"
	"github.com/dgallion1/docmap/internal/pipeline"
	"github.com/dgallion1/docmap/internal/report"
	"github.com/dgallion1/docmap/internal/topicid"
	"github.com/dgallion1/docmap/internal/topicmap"
	"github.com/go-chi/chi/v5"
)

type createMapRequest struct {
	Source   string                   `json:"source"`
	Topics   []topicmap.TopicRecord   `json:"topics"`
	Mentions []topicmap.MentionRecord `json:"mentions"`
}

func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req createMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Topics) == 0 {
		jsonError(w, "at least one topic is required", http.StatusBadRequest)
		return
	}
	var rejected []topicmap.RejectedRecord
	topics := make([]topicmap.TopicRecord, 0, len(req.Topics))
	for i := range req.Topics {
		rec := req.Topics[i]
		if err := extract.ValidateTopic(&rec); err != nil {
			s.log.Warn("skipping invalid topic", "index", i, "raw_id", rec.RawID, "error", err)
			rejected = append(rejected, topicmap.RejectedRecord{RawID: rec.RawID, Position: rec.Position, Reason: err.Error()})
			continue
		}
		topics = append(topics, rec)
	}
	if len(topics) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "no valid topics",
			"rejected": rejected,
		})
		return
	}
	mentions := make([]topicmap.MentionRecord, 0, len(req.Mentions))
	skippedMentions := 0
	for i := range req.Mentions {
		m := req.Mentions[i]
		if err := extract.ValidateMention(&m); err != nil {
			s.log.Warn("skipping invalid mention", "index", i, "error", err)
			skippedMentions++
			continue
		}
		mentions = append(mentions, m)
	}
	if req.Source == "" {
		req.Source = "api"
	}

	entry, err := s.orchestrator.BuildMap(r.Context(), req.Source, topics, mentions)
	if err != nil {
		s.log.Error("build map failed", "source", req.Source, "error", err)
		writeMapError(w, err)
		return
	}

	url := "/api/maps/" + entry.ID
	w.Header().Set("Location", url)
	writeJSON(w, http.StatusCreated, map[string]any{
		"map_id":           entry.ID,
		"source":           entry.Source,
		"topics":           len(entry.Map.Nodes()),
		"rejected":         append(rejected, entry.Map.Rejected()...),
		"skipped_mentions": skippedMentions,
		"anomalies":        len(entry.Map.Anomalies(anomaly.Low)),
		"url":              url,
	})
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"maps": s.orchestrator.Maps().List()})
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := report.WriteTopicMap(w, entry.Map, entry.Source); err != nil {
		s.log.Error("write topic map", "map_id", entry.ID, "error", err)
	}
}

func (s *Server) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "mapID")
	found, err := s.orchestrator.DeleteMap(r.Context(), id)
	if !found {
		jsonError(w, "map not found", http.StatusNotFound)
		return
	}
	if err != nil {
		// The map is gone locally; the published copy may linger.
		s.log.Warn("unpublish failed", "map_id", id, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"map_id": id, "deleted": true, "warning": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"map_id": id, "deleted": true})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	node, err := entry.Map.Get(chi.URLParam(r, "topicID"))
	if err != nil {
		writeMapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	kids, err := entry.Map.Children(chi.URLParam(r, "topicID"))
	if err != nil {
		writeMapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": kids})
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	direction := r.URL.Query().Get("direction")
	refs, err := entry.Map.References(chi.URLParam(r, "topicID"), direction)
	if err != nil {
		writeMapError(w, err)
		return
	}
	if refs == nil {
		refs = []topicmap.EdgeView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"references": refs})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		jsonError(w, "from and to are required", http.StatusBadRequest)
		return
	}
	path, err := entry.Map.Path(from, to, q.Get("strategy"))
	if err != nil {
		writeMapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "length": len(path) - 1})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	list, ok := filteredAnomalies(w, r, entry)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": list, "count": len(list)})
}

func (s *Server) handleAnomalyCSV(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.mapEntry(w, r)
	if !ok {
		return
	}
	list, ok := filteredAnomalies(w, r, entry)
	if !ok {
		return
	}
	name := extract.Slugify(entry.Source)
	if name == "" {
		name = entry.ID
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_anomalies.csv"`, name))
	if err := report.WriteAnomalyCSV(w, list); err != nil {
		s.log.Error("write anomaly csv", "map_id", entry.ID, "error", err)
	}
}

func filteredAnomalies(w http.ResponseWriter, r *http.Request, entry *pipeline.MapEntry) ([]anomaly.Anomaly, bool) {
	floor, err := anomaly.ParseSeverity(r.URL.Query().Get("min_severity"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	list := entry.Map.Anomalies(floor)
	if list == nil {
		list = []anomaly.Anomaly{}
	}
	return list, true
}

func (s *Server) mapEntry(w http.ResponseWriter, r *http.Request) (*pipeline.MapEntry, bool) {
	entry, ok := s.orchestrator.Maps().Get(chi.URLParam(r, "mapID"))
	if !ok {
		jsonError(w, "map not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}

// writeMapError maps engine errors to HTTP statuses.
func writeMapError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, topicmap.ErrTopicNotFound):
		code = http.StatusNotFound
	case errors.Is(err, topicmap.ErrNoPath):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, topicid.ErrParse), errors.Is(err, topicmap.ErrInvalidQuery):
		code = http.StatusBadRequest
	case errors.Is(err, topicmap.ErrInvalidConfig):
		code = http.StatusUnprocessableEntity
	}
	jsonError(w, err.Error(), code)
}
