package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/domain"
	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
	"github.com/imagespace/iqrproxy/internal/metrics"
	healthuc "github.com/imagespace/iqrproxy/internal/usecase/health"
)

// LegacyPrefix is the mount point used by the original front end.
const LegacyPrefix = "/smqtk_iqr"

const maxRefineBodyBytes = 1 << 20

// ResultsService assembles ranked result pages.
type ResultsService interface {
	Results(ctx context.Context, sid string, offset, limit *int) (domresults.Page, error)
}

// SessionService proxies the IQR session lifecycle.
type SessionService interface {
	Create(ctx context.Context, user string) (domsession.Record, error)
	List(ctx context.Context, user string) ([]domsession.Record, error)
	Refine(ctx context.Context, req domsession.RefineRequest) (json.RawMessage, error)
}

// HealthService reports component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the IQR HTTP surface.
type Server struct {
	results         ResultsService
	sessions        SessionService
	health          HealthService
	confidenceField string
	logger          *zap.Logger
	errorHandlers   []errorHandler
}

// NewServer creates an HTTP API server. confidenceField names the field
// that carries the IQR confidence on emitted documents.
func NewServer(
	results ResultsService,
	sessions SessionService,
	health HealthService,
	confidenceField string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		results:         results,
		sessions:        sessions,
		health:          health,
		confidenceField: confidenceField,
		logger:          logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidParameter, http.StatusBadRequest, ErrorResponseCodeInvalidParameter),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, ErrorResponseCodeUnauthorized),
		// Rate limit waits surface wrapped in an UpstreamError, so this goes first.
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorResponseCodeRateLimited),
		sentinelHandler(domain.ErrUpstream, http.StatusBadGateway, ErrorResponseCodeUpstreamError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusBadGateway, ErrorResponseCodeIndexError),
		sentinelHandler(domain.ErrDocumentJoin, http.StatusInternalServerError, ErrorResponseCodeDocumentJoinError),
	}
	return s
}

// RegisterRoutes mounts the API on r, at the root and under LegacyPrefix.
func (s *Server) RegisterRoutes(r chirouter.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorResponseCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponseCodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(s.apiRoutes)
	r.Route(LegacyPrefix, s.apiRoutes)
}

func (s *Server) apiRoutes(r chirouter.Router) {
	r.Post("/session", s.CreateSession)
	r.Get("/session", s.ListSessions)
	r.Put("/refine", s.Refine)
	r.Get("/results", s.Results)
}

// CreateSession handles POST /session.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Create(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionRecordToAPI(rec))
}

// ListSessions handles GET /session.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sessions.List(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SessionRecord, len(recs))
	for i, rec := range recs {
		items[i] = sessionRecordToAPI(rec)
	}
	writeJSON(w, http.StatusOK, items)
}

// Refine handles PUT /refine. The IQR response body is returned verbatim.
func (s *Server) Refine(w http.ResponseWriter, r *http.Request) {
	var body RefineRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRefineBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid request body")
		return
	}

	req, err := domsession.NewRefineRequest(body.SID, derefStrings(body.PosUUIDs), derefStrings(body.NegUUIDs))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	raw, err := s.sessions.Refine(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// Results handles GET /results.
func (s *Server) Results(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var sid string
	if err := runtime.BindQueryParameter("form", true, true, "sid", query, &sid); err != nil {
		s.handleDomainError(w, domain.NewInvalidParameter("sid", "is required"))
		return
	}
	var offset, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
		s.handleDomainError(w, domain.NewInvalidParameter("offset", "must be an integer"))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		s.handleDomainError(w, domain.NewInvalidParameter("limit", "must be an integer"))
		return
	}

	page, err := s.results.Results(r.Context(), sid, offset, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	docs := make([]map[string]any, len(page.Documents))
	for i := range page.Documents {
		docs[i] = page.Documents[i].Fields(s.confidenceField)
	}
	metrics.ResultDocuments.Observe(float64(len(docs)))

	writeJSON(w, http.StatusOK, ResultsResponse{NumFound: page.TotalFound, Docs: docs})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{Status: report.Status, Checks: report.Checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client-facing message without exposing upstream bodies.
func safeDomainMessage(err error) string {
	var invalid *domain.InvalidParameterError
	if errors.As(err, &invalid) {
		return invalid.Error()
	}
	var join *domain.DocumentJoinError
	if errors.As(err, &join) {
		return join.Error()
	}
	for _, sentinel := range []error{
		domain.ErrInvalidParameter,
		domain.ErrUnauthorized,
		domain.ErrRateLimited,
		domain.ErrUpstream,
		domain.ErrIndexUnavailable,
		domain.ErrDocumentJoin,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
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
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
