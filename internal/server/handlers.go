package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// maxBatchSize bounds a single batch request; larger workloads should be
// split by the client.
const maxBatchSize = 500

type askRequest struct {
	Query   string             `json:"query"`
	Options *models.AskOptions `json:"options,omitempty"`
}

type batchRequest struct {
	Queries []string           `json:"queries"`
	Options *models.AskOptions `json:"options,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if !s.base.Ready() {
		s.respondError(w, http.StatusServiceUnavailable, "knowledge base not ready")
		return
	}

	opts := models.DefaultAskOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	s.logger.Debug("ask request", zap.String("query", req.Query))

	result := s.pipeline.ProcessSingle(r.Context(), req.Query, opts)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	queries := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one query is required")
		return
	}
	if len(queries) > maxBatchSize {
		s.respondError(w, http.StatusBadRequest, "too many queries in one batch")
		return
	}
	if !s.base.Ready() {
		s.respondError(w, http.StatusServiceUnavailable, "knowledge base not ready")
		return
	}

	opts := models.DefaultAskOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	s.logger.Debug("batch request", zap.Int("queries", len(queries)))

	results := s.pipeline.ProcessBatch(r.Context(), queries, opts)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.base.Stats()
	resp := map[string]interface{}{
		"ready":     s.base.Ready(),
		"documents": stats.Documents,
		"chunks":    stats.Chunks,
		"vectors":   stats.Vectors,
	}
	if !stats.BuiltAt.IsZero() {
		resp["built_at"] = stats.BuiltAt
	}
	if stats.DiskBytes > 0 {
		resp["disk_usage_bytes"] = stats.DiskBytes
	}

	resp["config"] = map[string]interface{}{
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"chunk_size":           s.config.Ingest.ChunkSize,
		"chunk_overlap":        s.config.Ingest.ChunkOverlap,
		"max_iterations":       s.config.Pipeline.MaxIterations,
		"min_quality_score":    s.config.Pipeline.MinQualityScore,
		"database_path":        s.config.Storage.DatabasePath,
		"vector_index_path":    s.config.Storage.VectorIndexPath,
	}
	if s.watch != nil {
		resp["watched_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
