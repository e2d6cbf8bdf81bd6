// Package chi is the HTTP surface: ask, document and feedback endpoints on
// a chi router, with bearer auth, per-owner rate limiting and SSE answer
// streaming.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	logpkg "github.com/quarry-ai/quarry/internal/logger"
	"github.com/quarry-ai/quarry/internal/metrics"
	"github.com/quarry-ai/quarry/internal/ratelimit"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 32 << 20

// Asker runs the question-answering pipeline.
type Asker interface {
	Answer(ctx context.Context, ownerID string, q domain.Query, filters domain.Filters) (<-chan domain.StreamEvent, domain.ReasoningMetadata, error)
}

// Ingester manages documents.
type Ingester interface {
	Ingest(ctx context.Context, ownerID, filename string, data []byte) (domain.Document, error)
	GetDocument(ctx context.Context, ownerID, docID string) (domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, ownerID, docID string) error
}

// FeedbackRecorder registers thumb signals.
type FeedbackRecorder interface {
	Record(ctx context.Context, ownerID string, ref domain.ChunkRef, positive bool) error
}

// RateLimiter guards the ask endpoint per owner.
type RateLimiter interface {
	Check(ctx context.Context, id string, maxRequests int, window time.Duration) (ratelimit.Decision, error)
}

// Pinger checks storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RateLimitSettings are the ask endpoint limits.
type RateLimitSettings struct {
	MaxRequests int
	Window      time.Duration
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	asker         Asker
	ingester      Ingester
	feedback      FeedbackRecorder
	limiter       RateLimiter
	pinger        Pinger
	limits        RateLimitSettings
	apiKeys       []string
	validate      *validator.Validate
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	asker Asker,
	ingester Ingester,
	feedback FeedbackRecorder,
	limiter RateLimiter,
	pinger Pinger,
	limits RateLimitSettings,
	apiKeys []string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		asker:    asker,
		ingester: ingester,
		feedback: feedback,
		limiter:  limiter,
		pinger:   pinger,
		limits:   limits,
		apiKeys:  apiKeys,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, "empty_query"),
		sentinelHandler(domain.ErrUnsupportedFileType, http.StatusBadRequest, "unsupported_file_type"),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrRetrievalFailed, http.StatusServiceUnavailable, "retrieval_failed"),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, "generation_provider_error"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
	}
	return s
}

// Router assembles the chi router with the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(jsonRecoverer(s.logger))
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/documents", s.handleIngest)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{docID}", s.handleGetDocument)
		r.Delete("/documents/{docID}", s.handleDeleteDocument)
		r.Post("/feedback", s.handleFeedback)
	})

	return r
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	q, err := req.toQuery()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	owner := ownerID(r)
	if !s.allow(r.Context(), w, owner) {
		return
	}

	stream, md, err := s.asker.Answer(r.Context(), owner, q, req.toFilters())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if req.Stream {
		s.streamAnswer(w, stream, md)
		return
	}

	var answer strings.Builder
	for ev := range stream {
		if ev.Err != nil {
			s.handleDomainError(w, fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, ev.Err))
			return
		}
		answer.WriteString(ev.Token)
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:   answer.String(),
		Metadata: metadataToResponse(md),
	})
}

// streamAnswer renders the answer as server-sent events: one metadata
// event, then token events, then done.
func (s *Server) streamAnswer(w http.ResponseWriter, stream <-chan domain.StreamEvent, md domain.ReasoningMetadata) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "metadata", metadataToResponse(md))
	flusher.Flush()

	for ev := range stream {
		switch {
		case ev.Err != nil:
			writeSSE(w, "error", errorResponse{Code: "generation_failed", Message: ev.Err.Error()})
			flusher.Flush()
			return
		case ev.Done:
			writeSSE(w, "done", struct{}{})
			flusher.Flush()
			return
		default:
			writeSSE(w, "token", map[string]string{"token": ev.Token})
			flusher.Flush()
		}
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", `Missing "file" form field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Read upload: "+err.Error())
		return
	}

	doc, err := s.ingester.Ingest(r.Context(), ownerID(r), header.Filename, data)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingester.ListDocuments(r.Context(), ownerID(r))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToResponse(d)
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: items, Total: len(items)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ingester.GetDocument(r.Context(), ownerID(r), chi.URLParam(r, "docID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingester.DeleteDocument(r.Context(), ownerID(r), chi.URLParam(r, "docID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	ref := domain.ChunkRef{DocumentID: req.DocumentID, ChunkIndex: *req.ChunkIndex}
	if err := s.feedback.Record(r.Context(), ownerID(r), ref, *req.Helpful); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	if err := s.pinger.Ping(ctx); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]string{"status": status})
}

// allow checks the owner's rate budget, writing the 429 itself when the
// budget is exhausted. A limiter outage fails open.
func (s *Server) allow(ctx context.Context, w http.ResponseWriter, owner string) bool {
	if s.limiter == nil {
		return true
	}
	decision, err := s.limiter.Check(ctx, owner, s.limits.MaxRequests, s.limits.Window)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(decision.ResetAt).Seconds())+1))
		s.handleDomainError(w, domain.ErrRateLimited)
		return false
	}
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
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrUnsupportedFileType,
		domain.ErrDocumentNotFound,
		domain.ErrRateLimited,
		domain.ErrRetrievalFailed,
		domain.ErrGenerationProviderError,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// jsonRecoverer converts panics into JSON 500s.
func jsonRecoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
