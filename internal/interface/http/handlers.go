package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/study-match/internal/application/command"
	"github.com/alem-hub/study-match/internal/application/query"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLive is the liveness probe. It never touches the backends.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady is the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	status := s.deps.Health.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// CYCLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// CycleResponse is the API view of a cycle result.
type CycleResponse struct {
	RunID               string            `json:"run_id"`
	Outcome             string            `json:"outcome"`
	PoolSize            int               `json:"pool_size"`
	MatchesCreated      int               `json:"matches_created"`
	ConversationsOpened int               `json:"conversations_opened"`
	Errors              []string          `json:"errors,omitempty"`
	Pairings            []PairingResponse `json:"pairings,omitempty"`
	StartedAt           time.Time         `json:"started_at"`
	DurationMs          int64             `json:"duration_ms"`
}

// PairingResponse is the API view of a pairing.
type PairingResponse struct {
	ID        string                  `json:"id"`
	UserAID   string                  `json:"user_a_id"`
	UserBID   string                  `json:"user_b_id"`
	Breakdown matching.ScoreBreakdown `json:"breakdown"`
	CreatedAt time.Time               `json:"created_at"`
}

func newCycleResponse(res *command.CycleResult) CycleResponse {
	resp := CycleResponse{
		RunID:               res.RunID,
		Outcome:             res.Outcome(),
		PoolSize:            res.PoolSize,
		MatchesCreated:      res.MatchesCreated,
		ConversationsOpened: res.ConversationsOpened,
		Errors:              res.Errors,
		StartedAt:           res.StartedAt,
		DurationMs:          res.Duration.Milliseconds(),
	}
	for _, p := range res.Pairings {
		resp.Pairings = append(resp.Pairings, PairingResponse{
			ID:        p.ID,
			UserAID:   p.UserAID,
			UserBID:   p.UserBID,
			Breakdown: p.Breakdown,
			CreatedAt: p.CreatedAt,
		})
	}
	return resp
}

// handleRunCycle handles POST /api/v1/cycles/run.
// A cycle skipped because another run holds the lock answers 409.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycles == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Cycle runner not configured")
		return
	}

	var req handlers.RunCycleRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	cmd := command.RunCycleCommand{
		Trigger:       "api",
		CorrelationID: middleware.GetReqID(r.Context()),
	}
	if req.Now != nil {
		cmd.Now = *req.Now
	}

	result, err := s.deps.Cycles.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if result.Skipped {
		writeJSONErrorWithDetails(w, r, http.StatusConflict, "cycle_in_progress",
			"Another matching cycle is running", result.RunID)
		return
	}

	writeJSON(w, r, http.StatusOK, newCycleResponse(result))
}

// handleLastCycle handles GET /api/v1/cycles/last.
func (s *Server) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.CycleStatus == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Cycle status not configured")
		return
	}

	last, err := s.deps.CycleStatus.Last(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if last == nil {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "No cycle has completed yet")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"run_id":          last.AggregateId,
		"completed_at":    last.Timestamp,
		"pool_size":       last.PoolSize,
		"matches_created": last.MatchesCreated,
		"error_count":     last.ErrorCount,
		"duration_ms":     last.Duration.Milliseconds(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecomputeStats handles POST /api/v1/stats/recompute[?user_id=].
func (s *Server) handleRecomputeStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Stats tracker not configured")
		return
	}

	result, err := s.deps.Stats.Handle(r.Context(), command.RecomputeStatsCommand{
		UserID: r.URL.Query().Get("user_id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	data := map[string]interface{}{
		"users":       result.Users,
		"updated":     result.Updated,
		"failures":    result.Failures,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Stats != nil {
		data["stats"] = map[string]interface{}{
			"total_matches":          result.Stats.TotalMatches,
			"successful_matches":     result.Stats.SuccessfulMatches,
			"avg_messages_per_match": result.Stats.AvgMessagesPerMatch,
		}
	}
	writeJSON(w, r, http.StatusOK, data)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleCompatibility handles GET /api/v1/compatibility?user_a=&user_b=.
func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scores == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Scoring not configured")
		return
	}

	params := handlers.CompatibilityParams{
		UserA: r.URL.Query().Get("user_a"),
		UserB: r.URL.Query().Get("user_b"),
	}
	if err := s.validator.Struct("Compatibility", params); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.Scores.Handle(r.Context(), query.ScorePairQuery{
		UserAID: params.UserA,
		UserBID: params.UserB,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListJobs handles GET /api/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	jobs := s.deps.Jobs.ListJobs()
	writeJSONWithMeta(w, r, http.StatusOK, jobs, &ResponseMeta{TotalCount: len(jobs)})
}

// handleRunJob handles POST /api/v1/jobs/{name}/run.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	name := chi.URLParam(r, "name")
	result, err := s.deps.Jobs.RunNow(r.Context(), name)
	if err != nil && result == nil {
		s.writeDomainError(w, r, err)
		return
	}

	// The job ran but failed; the result carries the error.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, r, status, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// FeatureResponse is one feature flag as reported by the admin API.
type FeatureResponse struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Enabled        bool   `json:"enabled"`
	RolloutPercent int    `json:"rollout_percent"`
}

// handleListFeatures handles GET /api/v1/features.
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	if s.deps.Features == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Feature flags not configured")
		return
	}

	all := s.deps.Features.GetAllFeatures()
	features := make([]FeatureResponse, 0, len(all))
	for _, f := range all {
		features = append(features, FeatureResponse{
			Name:           f.Name,
			Description:    f.Description,
			Enabled:        f.Enabled,
			RolloutPercent: f.RolloutPercent,
		})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })

	writeJSONWithMeta(w, r, http.StatusOK, features, &ResponseMeta{TotalCount: len(features)})
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleEngagementWebhook handles POST /api/v1/webhooks/engagement.
// Unknown pairings answer 404 so the chat service can drop the update.
func (s *Server) handleEngagementWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engagement == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Engagement recording not configured")
		return
	}

	payload, err := s.validator.DecodeEngagement(r.Body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.Engagement.Handle(r.Context(), command.RecordEngagementCommand{
		Update:        payload.ToUpdate(time.Now()),
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"pairing_id":        result.Signal.PairingID,
		"message_count":     result.Signal.MessageCount,
		"session_scheduled": result.Signal.SessionScheduled,
		"unmatched":         result.Signal.UnmatchedAt != nil,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeOptionalJSON decodes the body into v; an empty body leaves v untouched.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return shared.WrapError("http", "DecodeBody", shared.ErrInvalidInput, "malformed JSON body", err)
}
