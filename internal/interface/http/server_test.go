package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/application/command"
	"github.com/alem-hub/study-match/internal/application/query"
	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-match/internal/interface/http/handlers"
)

const (
	testAdminKey = "admin-key"
	testSecret   = "hook-secret"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeCycles struct {
	mu     sync.Mutex
	got    []command.RunCycleCommand
	result *command.CycleResult
	err    error
}

func (f *fakeCycles) Handle(_ context.Context, cmd command.RunCycleCommand) (*command.CycleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cmd)
	return f.result, f.err
}

type fakeStatus struct {
	last *shared.CycleCompletedEvent
}

func (f fakeStatus) Last(context.Context) (*shared.CycleCompletedEvent, error) { return f.last, nil }

type fakeEngagement struct {
	got []command.RecordEngagementCommand
	err error
}

func (f *fakeEngagement) Handle(_ context.Context, cmd command.RecordEngagementCommand) (*command.RecordEngagementResult, error) {
	f.got = append(f.got, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return &command.RecordEngagementResult{
		Signal: cmd.Update.ApplyTo(engagement.Signal{}),
	}, nil
}

type fakeScores struct {
	err error
}

func (f fakeScores) Handle(_ context.Context, q query.ScorePairQuery) (*query.ScorePairResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &query.ScorePairResult{
		UserAID:    q.UserAID,
		UserBID:    q.UserBID,
		Breakdown:  matching.ScoreBreakdown{University: 30, Base: 30, Adjusted: 30},
		Threshold:  40,
		WouldMatch: false,
	}, nil
}

type fakeJobs struct {
	running map[string]bool
}

func (f fakeJobs) ListJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "matching_cycle"}, {Name: "recompute_stats"}}
}

func (f fakeJobs) RunNow(_ context.Context, name string) (*scheduler.JobResult, error) {
	switch {
	case f.running[name]:
		return nil, fmt.Errorf("%w: %s", scheduler.ErrJobRunning, name)
	case name == "matching_cycle":
		return &scheduler.JobResult{JobName: name, Success: true, Manual: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, name)
	}
}

type recordedRequest struct {
	method, route string
	code          int
}

type fakeObserver struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeObserver) ObserveHTTPRequest(method, route string, code int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, route, code})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newTestServer(deps Dependencies) *Server {
	cfg := DefaultConfig()
	cfg.AdminAPIKey = testAdminKey
	cfg.WebhookSecret = testSecret
	return NewServer(cfg, deps)
}

func do(t *testing.T, s *Server, method, target, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func admin() map[string]string {
	return map[string]string{handlers.HeaderAPIKey: testAdminKey}
}

func hook() map[string]string {
	return map[string]string{handlers.HeaderWebhookSecret: testSecret}
}

// ─────────────────────────────────────────────────────────────────────────────
// Probes
// ─────────────────────────────────────────────────────────────────────────────

func TestProbes(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	s := newTestServer(Dependencies{Health: checker})

	rec, env := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, _ = do(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, env = do(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Ready)
	assert.False(t, status.Checks["redis"].Healthy)
	assert.True(t, status.Checks["postgres"].Healthy)
}

func TestUnknownRouteAnswersJSON(t *testing.T) {
	s := newTestServer(Dependencies{})

	rec, env := do(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Admin routes
// ─────────────────────────────────────────────────────────────────────────────

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	s := newTestServer(Dependencies{Cycles: &fakeCycles{}})

	rec, env := do(t, s, http.MethodPost, "/api/v1/cycles/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/cycles/run", "", map[string]string{handlers.HeaderAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)
}

func TestAdminRoutesClosedWithoutConfiguredKey(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Cycles: &fakeCycles{}})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/cycles/run", "", map[string]string{"Authorization": "Bearer "})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunCycle(t *testing.T) {
	cycles := &fakeCycles{result: &command.CycleResult{
		RunID:          "run-1",
		PoolSize:       4,
		MatchesCreated: 1,
		Pairings: []*matching.PairingRecord{{
			ID: "p-1", UserAID: "a", UserBID: "b",
			Breakdown: matching.ScoreBreakdown{Adjusted: 70},
		}},
	}}
	observer := &fakeObserver{}
	s := newTestServer(Dependencies{Cycles: cycles, Metrics: observer})

	rec, env := do(t, s, http.MethodPost, "/api/v1/cycles/run", `{"now":"2026-03-01T09:00:00Z"}`, admin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CycleResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, command.CycleOutcomeCompleted, resp.Outcome)
	require.Len(t, resp.Pairings, 1)
	assert.Equal(t, 70, resp.Pairings[0].Breakdown.Adjusted)

	require.Len(t, cycles.got, 1)
	assert.Equal(t, "api", cycles.got[0].Trigger)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), cycles.got[0].Now.UTC())
	assert.NotEmpty(t, cycles.got[0].CorrelationID)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Len(t, observer.requests, 1)
	assert.Equal(t, recordedRequest{http.MethodPost, "/api/v1/cycles/run", http.StatusOK}, observer.requests[0])
}

func TestRunCycle_EmptyBodyUsesWorkerClock(t *testing.T) {
	cycles := &fakeCycles{result: &command.CycleResult{RunID: "run-2"}}
	s := newTestServer(Dependencies{Cycles: cycles})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/cycles/run", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cycles.got, 1)
	assert.True(t, cycles.got[0].Now.IsZero())
}

func TestRunCycle_Errors(t *testing.T) {
	tests := []struct {
		name     string
		cycles   *fakeCycles
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "lock held",
			cycles:   &fakeCycles{result: &command.CycleResult{Skipped: true}},
			wantCode: http.StatusConflict,
			wantErr:  "cycle_in_progress",
		},
		{
			name:     "pool unavailable",
			cycles:   &fakeCycles{result: &command.CycleResult{Aborted: true}, err: shared.ErrPoolUnavailable},
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "service_unavailable",
		},
		{
			name:     "malformed body",
			cycles:   &fakeCycles{},
			body:     `{"now":`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "lock backend failure",
			cycles:   &fakeCycles{err: errors.New("run_cycle: acquire lock: dial tcp: refused")},
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal_server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Dependencies{Cycles: tt.cycles})

			rec, env := do(t, s, http.MethodPost, "/api/v1/cycles/run", tt.body, admin())
			assert.Equal(t, tt.wantCode, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestLastCycle(t *testing.T) {
	s := newTestServer(Dependencies{CycleStatus: fakeStatus{}})
	rec, _ := do(t, s, http.MethodGet, "/api/v1/cycles/last", "", admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	event := shared.NewCycleCompletedEvent("run-9", 10, 4, 1, 2*time.Second)
	s = newTestServer(Dependencies{CycleStatus: fakeStatus{last: &event}})
	rec, env := do(t, s, http.MethodGet, "/api/v1/cycles/last", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "run-9", data["run_id"])
	assert.EqualValues(t, 4, data["matches_created"])
	assert.EqualValues(t, 2000, data["duration_ms"])
}

func TestCompatibility(t *testing.T) {
	s := newTestServer(Dependencies{Scores: fakeScores{}})

	rec, env := do(t, s, http.MethodGet, "/api/v1/compatibility?user_a=u1&user_b=u2", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.ScorePairResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 30, result.Breakdown.Adjusted)
	assert.Equal(t, 40, result.Threshold)

	rec, env = do(t, s, http.MethodGet, "/api/v1/compatibility?user_a=u1", "", admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "user_b: is required")

	rec, env = do(t, s, http.MethodGet, "/api/v1/compatibility?user_a=u1&user_b=u1", "", admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "user_b: must differ")

	s = newTestServer(Dependencies{Scores: fakeScores{err: shared.ErrProfileNotFound}})
	rec, _ = do(t, s, http.MethodGet, "/api/v1/compatibility?user_a=u1&user_b=u2", "", admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs(t *testing.T) {
	s := newTestServer(Dependencies{Jobs: fakeJobs{running: map[string]bool{"recompute_stats": true}}})

	rec, env := do(t, s, http.MethodGet, "/api/v1/jobs", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []scheduler.JobInfo
	require.NoError(t, json.Unmarshal(env.Data, &jobs))
	assert.Len(t, jobs, 2)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/jobs/matching_cycle/run", "", admin())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/jobs/recompute_stats/run", "", admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/jobs/unknown/run", "", admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeatures(t *testing.T) {
	s := newTestServer(Dependencies{})
	rec, _ := do(t, s, http.MethodGet, "/api/v1/features", "", admin())
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	flags := config.LoadFeatureFlags()
	require.NoError(t, flags.SetRolloutPercent(config.FeatureAutoMatching, 25))
	s = newTestServer(Dependencies{Features: flags})

	rec, env := do(t, s, http.MethodGet, "/api/v1/features", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var features []FeatureResponse
	require.NoError(t, json.Unmarshal(env.Data, &features))
	require.NotEmpty(t, features)
	for i := 1; i < len(features); i++ {
		assert.Less(t, features[i-1].Name, features[i].Name)
	}
	for _, f := range features {
		if f.Name == config.FeatureAutoMatching {
			assert.True(t, f.Enabled)
			assert.Equal(t, 25, f.RolloutPercent)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Engagement webhook
// ─────────────────────────────────────────────────────────────────────────────

func TestEngagementWebhook(t *testing.T) {
	recorder := &fakeEngagement{}
	s := newTestServer(Dependencies{Engagement: recorder})

	body := `{"pairing_id":"p-1","kind":"messages","message_delta":3,"occurred_at":"2026-03-02T10:00:00Z"}`
	rec, env := do(t, s, http.MethodPost, "/api/v1/webhooks/engagement", body, hook())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	require.Len(t, recorder.got, 1)
	update := recorder.got[0].Update
	assert.Equal(t, "p-1", update.PairingID)
	assert.Equal(t, engagement.KindMessages, update.Kind)
	assert.Equal(t, 3, update.MessageDelta)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), update.At)
}

func TestEngagementWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		headers  map[string]string
		err      error
		wantCode int
		wantIn   string
	}{
		{
			name:     "missing secret",
			body:     `{"pairing_id":"p-1","kind":"unmatched"}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown kind",
			body:     `{"pairing_id":"p-1","kind":"liked"}`,
			headers:  hook(),
			wantCode: http.StatusBadRequest,
			wantIn:   "kind: must be one of",
		},
		{
			name:     "messages without delta",
			body:     `{"pairing_id":"p-1","kind":"messages"}`,
			headers:  hook(),
			wantCode: http.StatusBadRequest,
			wantIn:   "message_delta",
		},
		{
			name:     "malformed json",
			body:     `{"pairing_id":`,
			headers:  hook(),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown pairing",
			body:     `{"pairing_id":"p-404","kind":"session_scheduled"}`,
			headers:  hook(),
			err:      fmt.Errorf("record_engagement: find pairing: %w", shared.ErrPairingNotFound),
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Dependencies{Engagement: &fakeEngagement{err: tt.err}})

			rec, env := do(t, s, http.MethodPost, "/api/v1/webhooks/engagement", tt.body, tt.headers)
			assert.Equal(t, tt.wantCode, rec.Code)
			require.NotNil(t, env.Error)
			if tt.wantIn != "" {
				assert.Contains(t, env.Error.Details, tt.wantIn)
			}
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestServer(Dependencies{Cycles: panicCycles{}})

	rec, env := do(t, s, http.MethodPost, "/api/v1/cycles/run", "", admin())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", env.Error.Code)
}

type panicCycles struct{}

func (panicCycles) Handle(context.Context, command.RunCycleCommand) (*command.CycleResult, error) {
	panic("boom")
}
