package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

func testPairing() *matching.PairingRecord {
	return &matching.PairingRecord{
		ID:      "5f0c4c1e-7f0a-4b53-9d54-0d7a3a5c2f11",
		UserAID: "alice",
		UserBID: "bob",
		Type:    matching.PairingTypeCycle,
		Status:  matching.PairingStatusActive,
	}
}

func testClient(url string) *Client {
	cfg := DefaultClientConfig(url + "/")
	cfg.APIKey = "secret"
	cfg.Timeout = time.Second
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	return NewClient(cfg)
}

func TestClient_CreateForPairing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/conversations", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body CreateConversationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5f0c4c1e-7f0a-4b53-9d54-0d7a3a5c2f11", body.PairingID)
		assert.Equal(t, []string{"alice", "bob"}, body.Participants)
		assert.Equal(t, "cycle", body.Source)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"conversation_id":"conv-42"}`))
	}))
	defer server.Close()

	id, err := testClient(server.URL).CreateForPairing(context.Background(), testPairing())
	require.NoError(t, err)
	assert.Equal(t, "conv-42", id)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"conversation_id":"conv-7"}`))
	}))
	defer server.Close()

	id, err := testClient(server.URL).CreateForPairing(context.Background(), testPairing())
	require.NoError(t, err)
	assert.Equal(t, "conv-7", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"unknown participant"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).CreateForPairing(context.Background(), testPairing())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Contains(t, err.Error(), "unknown participant")
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestClient_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL).CreateForPairing(context.Background(), testPairing())
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL)
	for i := 0; i < 5; i++ {
		_, _ = client.CreateForPairing(context.Background(), testPairing())
	}

	_, err := client.CreateForPairing(context.Background(), testPairing())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_EmptyConversationID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).CreateForPairing(context.Background(), testPairing())
	assert.ErrorIs(t, err, shared.ErrExternalService)
}

func TestAPIError_Temporary(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 500}).Temporary())
	assert.True(t, (&APIError{StatusCode: 429}).Temporary())
	assert.False(t, (&APIError{StatusCode: 404}).Temporary())
}

func TestNoopService(t *testing.T) {
	id, err := NewNoopService(nil).CreateForPairing(context.Background(), testPairing())
	require.NoError(t, err)
	assert.Empty(t, id)
}
