// Package httpapi serves the annotation workflow over HTTP: task hand-out,
// decision intake, consensus, audit issues and the scatter payload.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
	"github.com/curatehq/labelsmith/internal/metrics"
	"github.com/curatehq/labelsmith/internal/repository/dataset"
	"github.com/curatehq/labelsmith/internal/usecase/annotate"
	"github.com/curatehq/labelsmith/internal/usecase/health"
)

// errorCode identifies a client-facing error class.
type errorCode string

const (
	codeBadRequest             = errorCode("bad_request")
	codeNotFound               = errorCode("not_found")
	codeAlreadyExists          = errorCode("already_exists")
	codeValidationFailed       = errorCode("validation_failed")
	codeInsufficientAnnotators = errorCode("insufficient_annotators")
	codeEmbeddingProvider      = errorCode("embedding_provider_error")
	codeInternalError          = errorCode("internal_error")
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// TaskQueue is the consumer interface over the annotation queue.
type TaskQueue interface {
	Next(ctx context.Context, annotatorID string) (annotate.Task, error)
	Submit(d domain.Decision) error
	Decisions() []domain.Decision
}

// Aggregator resolves consensus labels and scores agreement.
type Aggregator interface {
	Resolve(decisions []domain.Decision, quorum int) ([]domain.Consensus, error)
	Kappa(decisions []domain.Decision) (float64, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Server is the annotation HTTP API.
type Server struct {
	queue         TaskQueue
	aggregator    Aggregator
	health        HealthChecker
	quorum        int
	issues        []domain.LabelIssue
	scatter       []dataset.ScatterPoint
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. Issues and scatter are the artifacts
// of the batch run, served read-only.
func NewServer(
	queue TaskQueue,
	aggregator Aggregator,
	healthSvc HealthChecker,
	quorum int,
	issues []domain.LabelIssue,
	scatter []dataset.ScatterPoint,
	logger *zap.Logger,
) *Server {
	s := &Server{
		queue:      queue,
		aggregator: aggregator,
		health:     healthSvc,
		quorum:     quorum,
		issues:     issues,
		scatter:    scatter,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInsufficientAnnotators, http.StatusConflict, codeInsufficientAnnotators),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// Router builds the chi router with metrics middleware on every route.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/healthz", s.getHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/queue/next", s.getNextTask)
	r.Post("/decisions", s.postDecision)
	r.Get("/consensus", s.getConsensus)
	r.Get("/issues", s.getIssues)
	r.Get("/items/scatter", s.getScatter)

	return r
}

// taskResponse is the JSON shape for one annotation task.
type taskResponse struct {
	ItemID     string          `json:"item_id"`
	Text       string          `json:"text"`
	Candidates []candidateJSON `json:"candidates"`
	Secondary  bool            `json:"secondary"`
	SessionID  string          `json:"session_id"`
}

type candidateJSON struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// getNextTask handles GET /queue/next.
func (s *Server) getNextTask(w http.ResponseWriter, r *http.Request) {
	annotatorID := r.URL.Query().Get("annotator_id")
	if annotatorID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "annotator_id is required")
		return
	}

	task, err := s.queue.Next(r.Context(), annotatorID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := taskResponse{
		ItemID:     task.Item.ID,
		Text:       task.Item.Text,
		Candidates: make([]candidateJSON, len(task.Ordering.Candidates)),
		Secondary:  task.Secondary,
		SessionID:  task.SessionID,
	}
	for i, c := range task.Ordering.Candidates {
		resp.Candidates[i] = candidateJSON{Label: c.Label, Score: c.Score}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decisionRequest is the JSON body for POST /decisions.
type decisionRequest struct {
	AnnotatorID string `json:"annotator_id"`
	ItemID      string `json:"item_id"`
	Label       string `json:"label"`
	SessionID   string `json:"session_id"`
}

// postDecision handles POST /decisions.
func (s *Server) postDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.AnnotatorID == "" || req.ItemID == "" || req.Label == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "annotator_id, item_id and label are required")
		return
	}

	err := s.queue.Submit(domain.Decision{
		AnnotatorID: req.AnnotatorID,
		ItemID:      req.ItemID,
		Label:       req.Label,
		SessionID:   req.SessionID,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

// consensusResponse is the JSON shape for GET /consensus.
type consensusResponse struct {
	Items []consensusJSON `json:"items"`
	Kappa float64         `json:"kappa"`
}

type consensusJSON struct {
	ItemID    string  `json:"item_id"`
	Label     string  `json:"label"`
	Agreement float64 `json:"agreement"`
}

// getConsensus handles GET /consensus.
func (s *Server) getConsensus(w http.ResponseWriter, r *http.Request) {
	decisions := s.queue.Decisions()

	consensus, err := s.aggregator.Resolve(decisions, s.quorum)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	kappa, err := s.aggregator.Kappa(decisions)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := consensusResponse{
		Items: make([]consensusJSON, len(consensus)),
		Kappa: kappa,
	}
	for i, c := range consensus {
		resp.Items[i] = consensusJSON{ItemID: c.ItemID, Label: c.Label, Agreement: c.Agreement}
	}
	writeJSON(w, http.StatusOK, resp)
}

// issueJSON is one row of the audit review queue.
type issueJSON struct {
	ItemID         string  `json:"item_id"`
	SuggestedLabel string  `json:"suggested_label"`
	Margin         float64 `json:"margin"`
}

// getIssues handles GET /issues.
func (s *Server) getIssues(w http.ResponseWriter, _ *http.Request) {
	out := make([]issueJSON, len(s.issues))
	for i, issue := range s.issues {
		out[i] = issueJSON{
			ItemID:         issue.ItemID,
			SuggestedLabel: issue.SuggestedLabel,
			Margin:         issue.Margin,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": out})
}

// getScatter handles GET /items/scatter.
func (s *Server) getScatter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"points": s.scatter})
}

// getHealth handles GET /healthz.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrInvalidSchema,
		domain.ErrInsufficientAnnotators,
		domain.ErrEmbedding,
		domain.ErrEmbeddingProviderError,
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
