package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/helmline/simdex/internal/domain"
)

type chunkIndexRequest struct {
	Chunks    []string `json:"chunks"`
	Model     string   `json:"model,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
}

type chunkMatch struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type chunkQueryResponse struct {
	Results []chunkMatch `json:"results"`
	Count   int          `json:"count"`
	Reason  string       `json:"reason,omitempty"`
}

type chunkStatusResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Model  string `json:"model,omitempty"`
}

// ChunkIndex handles POST /pdf/index. An empty chunk list clears the
// in-memory index instead of failing, so callers can reset between
// documents.
func (s *Server) ChunkIndex(w http.ResponseWriter, r *http.Request) {
	var req chunkIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Chunks) > maxIndexBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"chunks count must be at most "+strconv.Itoa(maxIndexBatch))
		return
	}

	n, err := s.chunks.Index(r.Context(), req.Chunks, req.Model, s.effectiveBatch(req.BatchSize))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{Status: "ok", Indexed: n})
}

// ChunkQuery handles POST /pdf/query.
func (s *Server) ChunkQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query text is required")
		return
	}

	docs, scores, err := s.chunks.Query(r.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			writeJSON(w, http.StatusOK, chunkQueryResponse{
				Results: []chunkMatch{},
				Reason:  err.Error(),
			})
			return
		}
		s.handleDomainError(w, err)
		return
	}

	results := make([]chunkMatch, len(docs))
	for i := range docs {
		results[i] = chunkMatch{Text: docs[i], Score: scores[i]}
	}
	writeJSON(w, http.StatusOK, chunkQueryResponse{Results: results, Count: len(results)})
}

// ChunkStatus handles GET /pdf/status.
func (s *Server) ChunkStatus(w http.ResponseWriter, r *http.Request) {
	info := s.chunks.Status()

	resp := chunkStatusResponse{
		Status: "not_ready",
		Chunks: info.Chunks,
		Model:  info.Model,
	}
	if info.Ready {
		resp.Status = "ready"
	}

	writeJSON(w, http.StatusOK, resp)
}
