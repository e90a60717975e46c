package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/xfeed/internal/curation"
	"github.com/thebtf/xfeed/internal/oracle"
	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

// CurateRequest is the body of POST /api/curate.
type CurateRequest struct {
	Now        time.Time          `json:"now"`
	Candidates []models.Candidate `json:"candidates"`
	// Oracle is a JSON array of oracle entries.
	Oracle json.RawMessage `json:"oracle,omitempty"`
	// OracleResponses are raw oracle replies; the JSON array is extracted from each.
	OracleResponses []string `json:"oracle_responses,omitempty"`
	FeedSize        int      `json:"feed_size,omitempty"`
	Seed            int64    `json:"seed,omitempty"`
}

// AuthorResponse is the body of GET /api/authors/{handle}.
type AuthorResponse struct {
	Record     *models.ReputationRecord `json:"record"`
	Assessment reputation.Assessment    `json:"assessment"`
	InCooldown bool                     `json:"in_cooldown"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// handleHealth reports liveness plus store reachability.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":       "ok",
		"version":      s.version,
		"uptime":       time.Since(s.startTime).Round(time.Second).String(),
		"reclassifier": s.reclassifier.GetStats(),
		"rate_limit":   s.limiter.Stats(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h, ok := s.store.(healthReporter); ok {
		info := h.HealthCheck(ctx)
		body["store"] = info
		switch info.Status {
		case "unhealthy":
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["store_error"] = info.Error
		case "degraded":
			body["status"] = "degraded"
		}
	} else if p, ok := s.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["store_error"] = err.Error()
		}
	}
	writeJSON(w, status, body)
}

// handleCurate runs one curation cycle.
func (s *Service) handleCurate(w http.ResponseWriter, r *http.Request) {
	var req CurateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var responses [][]byte
	if len(req.Oracle) > 0 {
		responses = append(responses, req.Oracle)
	}
	for _, text := range req.OracleResponses {
		responses = append(responses, []byte(text))
	}

	scores := map[string]models.OracleScore{}
	var malformed []string
	if len(responses) > 0 {
		decoded, err := s.decoder.Decode(responses...)
		switch {
		case errors.Is(err, oracle.ErrNoScores):
			// Every candidate is then counted as missing a score.
			s.log.Warn().Str("request_id", GetRequestID(r.Context())).Msg("Oracle responses held no score array")
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		default:
			scores = decoded.Scores
			malformed = decoded.Malformed
		}
	}

	result, err := s.engine.Curate(r.Context(), curation.Request{
		Now:             req.Now,
		Candidates:      req.Candidates,
		Scores:          scores,
		MalformedScores: malformed,
		FeedSize:        req.FeedSize,
		Seed:            req.Seed,
	}, s.Config().Curation())
	switch {
	case errors.Is(err, models.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAuthor returns one author's record and current assessment.
func (s *Service) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	handle := models.NormalizeHandle(chi.URLParam(r, "handle"))
	if handle == "" {
		writeError(w, http.StatusBadRequest, "author handle required")
		return
	}

	rec, err := s.store.Get(r.Context(), handle)
	switch {
	case errors.Is(err, reputation.ErrCorruptRecord):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case rec == nil:
		writeError(w, http.StatusNotFound, "author not found")
		return
	}

	cfg := s.Config()
	history, err := s.store.History(r.Context(), handle, cfg.Reputation.HistoryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, AuthorResponse{
		Record:     rec,
		Assessment: reputation.NewClassifier(cfg.Reputation.Classifier).Classify(history, now),
		InCooldown: rec.InCooldown(now, cfg.Exploration.Cooldown()),
	})
}

// handleReclassify runs a reclassification pass immediately.
func (s *Service) handleReclassify(w http.ResponseWriter, r *http.Request) {
	report, err := s.reclassifier.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
