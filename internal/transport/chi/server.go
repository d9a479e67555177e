package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
	cataloguc "github.com/helmline/simdex/internal/usecase/catalog"
	chunksuc "github.com/helmline/simdex/internal/usecase/chunks"
)

const maxIndexBatch = 10000

type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeRateLimited      errorCode = "rate_limited"
	codeProviderError    errorCode = "embedding_provider_error"
	codeBuildInProgress  errorCode = "build_in_progress"
	codeDimMismatch      errorCode = "vector_dim_mismatch"
	codeInternalError    errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the catalog and chunk services over HTTP.
type Server struct {
	catalog       *cataloguc.Service
	chunks        *chunksuc.Service
	batchSize     int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. batchSize bounds provider
// requests made on behalf of index builds.
func NewServer(
	catalog *cataloguc.Service,
	chunks *chunksuc.Service,
	batchSize int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		catalog:   catalog,
		chunks:    chunks,
		batchSize: batchSize,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		rateLimitHandler,
		sentinelHandler(domain.ErrBuildInProgress, http.StatusConflict, codeBuildInProgress),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNoExtractableJSON, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes mounts all API endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/status", s.Status)
	r.Post("/query", s.Query)
	r.Post("/index/records", s.IndexRecords)
	r.Post("/index/pages", s.IndexPages)

	r.Post("/pdf/index", s.ChunkIndex)
	r.Post("/pdf/query", s.ChunkQuery)
	r.Get("/pdf/status", s.ChunkStatus)

	r.Get("/metrics", s.Metrics)
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryResponse struct {
	Results []domain.Match `json:"results"`
	Count   int            `json:"count"`
	Reason  string         `json:"reason,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Items  int    `json:"items"`
	Model  string `json:"model,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type indexRecordsRequest struct {
	Products  []domain.Product `json:"products"`
	Model     string           `json:"model,omitempty"`
	BatchSize int              `json:"batch_size,omitempty"`
}

type pageItem struct {
	Content    string `json:"content"`
	SourcePDF  string `json:"source_pdf"`
	SourcePage int    `json:"source_page"`
	ImagePath  string `json:"image_path,omitempty"`
}

type indexPagesRequest struct {
	Pages     []pageItem `json:"pages"`
	Model     string     `json:"model,omitempty"`
	BatchSize int        `json:"batch_size,omitempty"`
}

type indexResponse struct {
	Status  string `json:"status"`
	Indexed int    `json:"indexed"`
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	info := s.catalog.Status()

	resp := statusResponse{
		Status: "not_ready",
		Items:  info.Items,
		Model:  info.Model,
		Reason: info.LastError,
	}
	if info.Ready {
		resp.Status = "ready"
	}

	writeJSON(w, http.StatusOK, resp)
}

// Query handles POST /query. An unbuilt index is not an error: the
// response carries empty results and the reason, so callers can tell
// "no matches" from "not ready yet".
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query text is required")
		return
	}

	matches, err := s.catalog.Query(r.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			writeJSON(w, http.StatusOK, queryResponse{
				Results: []domain.Match{},
				Reason:  err.Error(),
			})
			return
		}
		s.handleDomainError(w, err)
		return
	}

	if matches == nil {
		matches = []domain.Match{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Results: matches, Count: len(matches)})
}

// IndexRecords handles POST /index/records: a rebuild from already
// structured catalog records.
func (s *Server) IndexRecords(w http.ResponseWriter, r *http.Request) {
	var req indexRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Products) == 0 || len(req.Products) > maxIndexBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"products count must be between 1 and "+strconv.Itoa(maxIndexBatch))
		return
	}

	n, err := s.catalog.BuildIndex(r.Context(), req.Products, req.Model, s.effectiveBatch(req.BatchSize))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{Status: "ok", Indexed: n})
}

// IndexPages handles POST /index/pages: a rebuild from raw per-page
// extraction output that still needs parsing.
func (s *Server) IndexPages(w http.ResponseWriter, r *http.Request) {
	var req indexPagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Pages) == 0 || len(req.Pages) > maxIndexBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"pages count must be between 1 and "+strconv.Itoa(maxIndexBatch))
		return
	}

	pages := make([]cataloguc.Page, len(req.Pages))
	for i, p := range req.Pages {
		pages[i] = cataloguc.Page{
			Content:    p.Content,
			SourcePDF:  p.SourcePDF,
			SourcePage: p.SourcePage,
			ImagePath:  p.ImagePath,
		}
	}

	n, err := s.catalog.IndexPages(r.Context(), pages, req.Model, s.effectiveBatch(req.BatchSize))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{Status: "ok", Indexed: n})
}

// effectiveBatch resolves a per-request batch size against the
// configured default.
func (s *Server) effectiveBatch(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.batchSize
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrIndexNotReady,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrNoExtractableJSON,
		domain.ErrEmptyInput,
		domain.ErrBuildInProgress,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// rateLimitHandler handles ErrRateLimited with a Retry-After header when
// the provider supplied a delay hint.
func rateLimitHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	var rle *domain.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
