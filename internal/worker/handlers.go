package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/tracker"
	"github.com/thebtf/dailyscore/pkg/models"
)

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrInvalidTask),
		errors.Is(err, db.ErrInvalid),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrTaskAlreadyReviewed),
		errors.Is(err, db.ErrDuplicate),
		errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server errors are logged
// and their text is not exposed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, publicMessage(err))
}

// publicMessage turns a wrapped domain error into client-facing text.
func publicMessage(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, tracker.ErrTaskAlreadyReviewed):
		return "task has already been reviewed"
	case errors.Is(err, db.ErrNotFound):
		return strings.TrimSuffix(msg, ": "+db.ErrNotFound.Error()) + " not found"
	case errors.Is(err, db.ErrDuplicate):
		return strings.TrimSuffix(msg, ": "+db.ErrDuplicate.Error()) + " already exists"
	}
	for _, sentinel := range []error{tracker.ErrInvalidTask, db.ErrInvalid, models.ErrInvalidStatus, models.ErrInvalidCategory} {
		msg = strings.ReplaceAll(msg, sentinel.Error()+": ", "")
	}
	return msg
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// unchanged.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", db.ErrInvalid, err)
	}
	return nil
}

// queryPtr returns the query parameter, or nil when it is absent or empty.
func queryPtr(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}

// healthResponse reports liveness, store reachability and stream count.
type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Database   string `json:"database"`
	Classifier string `json:"classifier"`
	Streams    int    `json:"streams"`
}

// handleHealth answers 200 with "ready", or 503 with "degraded" when the
// store does not respond.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:     "ready",
		Version:    s.version,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Database:   "ok",
		Classifier: "fallback",
		Streams:    s.events.ClientCount(),
	}
	if c, ok := s.classifier.(interface{ Configured() bool }); ok && c.Configured() {
		resp.Classifier = "gemini"
	}

	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check: store unreachable")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, resp)
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version": s.version,
	})
}

// classifyRequest is the body of POST /api/classify.
type classifyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleClassify categorizes text without creating a task.
func (s *Service) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "task title is required")
		return
	}

	var res classifier.Result
	if s.classifier != nil {
		res = s.classifier.Classify(r.Context(), req.Title, req.Description)
	} else {
		res = classifier.Fallback(req.Title, req.Description)
	}
	writeJSON(w, res)
}
