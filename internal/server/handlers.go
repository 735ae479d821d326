package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/query"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	// maxAskBody bounds the POST /api/ask request body.
	maxAskBody = 64 << 10
)

// Outcome label values for docqa_ask_requests_total.
const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// handleAsk handles POST /api/ask. The body is validated before any
// retrieval happens.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	s.metrics.askInFlight.Inc()
	defer s.metrics.askInFlight.Dec()

	outcome := outcomeError
	defer func() {
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody)).Decode(&req); err != nil {
		outcome = outcomeInvalid
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		outcome = outcomeInvalid
		writeJSONError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	resp, err := s.engine.AskK(ctx, req.Question, req.TopK)
	switch {
	case err == nil:
	case errors.Is(err, query.ErrEmptyQuestion):
		outcome = outcomeInvalid
		writeJSONError(w, "question is required", http.StatusBadRequest)
		return
	case errors.Is(err, context.DeadlineExceeded):
		outcome = outcomeTimeout
		log.Warn("ask: timed out", slog.Duration("timeout", s.cfg.AskTimeout))
		writeJSONError(w, "answer timed out", http.StatusGatewayTimeout)
		return
	default:
		log.Error("ask: failed", slog.Any("error", err))
		writeJSONError(w, "failed to answer question", http.StatusInternalServerError)
		return
	}

	outcome = outcomeOK
	s.metrics.askSources.Observe(float64(len(resp.Sources)))
	writeJSON(w, http.StatusOK, resp)
}

// handleIndex handles GET /api/index and returns the manifest of the index
// currently serving questions.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	m, ok := s.engine.Index().(manifester)
	if !ok {
		writeJSONError(w, "index does not expose a manifest", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m.Manifest())
}

// handleHistory handles GET /api/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, "query history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history: read failed", slog.Any("error", err))
		writeJSONError(w, "failed to read query history", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, historyEntry{
			ID:          e.ID,
			Question:    e.Question,
			Answer:      e.Answer,
			Sources:     e.Sources,
			Fingerprint: e.Fingerprint,
			ElapsedMS:   e.Elapsed.Milliseconds(),
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// validationMessage turns the first validator failure into a client-facing
// message naming the JSON field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.StructField() {
	case "Question":
		field = "question"
	case "TopK":
		field = "top_k"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param()
	case "min":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an errorResponse with the given status code.
func writeJSONError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}
