// Package conversation implements the client for the chat service that opens
// a conversation for every new study pairing.
package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/pkg/circuitbreaker"
	"github.com/alem-hub/study-match/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the conversation service client.
type ClientConfig struct {
	// BaseURL is the conversation service base URL.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

const createPath = "/internal/conversations"

// CreateConversationRequest is the body of the create call.
type CreateConversationRequest struct {
	PairingID    string   `json:"pairing_id"`
	Participants []string `json:"participants"`
	Source       string   `json:"source"`
}

// CreateConversationResponse is the body returned by the service.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("conversation service: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("conversation service: status %d", e.StatusCode)
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements matching.ConversationService over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a new conversation service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultClientConfig("").Timeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	logger := config.Logger.With("component", "conversation_client")

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}

	c.retrier = retry.ConversationRetrier(
		config.MaxRetries+1,
		config.RetryBaseDelay,
		config.RetryMaxDelay,
		func(attempt int, err error, delay time.Duration) {
			logger.Warn("retrying conversation request", "attempt", attempt, "delay", delay, "error", err)
		},
	)
	c.breaker = circuitbreaker.ConversationBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	return c
}

// CreateForPairing opens a conversation for both members of the pairing and
// returns its ID.
func (c *Client) CreateForPairing(ctx context.Context, pairing *matching.PairingRecord) (string, error) {
	body := CreateConversationRequest{
		PairingID:    pairing.ID,
		Participants: []string{pairing.UserAID, pairing.UserBID},
		Source:       string(pairing.Type),
	}

	var result CreateConversationResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, http.MethodPost, createPath, body, &result)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			c.logger.Debug("conversation request rejected", "breaker", c.breaker.Name(), "state", c.breaker.State().String())
			return "", shared.WrapError("conversation", "Create", shared.ErrServiceUnavailable, "conversation service is unavailable", err)
		}
		return "", shared.WrapError("conversation", "Create", shared.ErrExternalService, "conversation service request failed", err)
	}

	if result.ConversationID == "" {
		return "", shared.NewDomainError("conversation", "Create", shared.ErrExternalService, "conversation service returned no id")
	}

	c.logger.Debug("conversation opened",
		"pairing_id", pairing.ID,
		"conversation_id", result.ConversationID,
	)

	return result.ConversationID, nil
}

// doSingleRequest performs one HTTP attempt. Transport errors and 5xx/429
// responses are marked retryable.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &payload) == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		if apiErr.Temporary() {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NO-OP SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// NoopService stands in when no conversation service is configured.
// It only logs the pairing.
type NoopService struct {
	logger *slog.Logger
}

// NewNoopService creates a new NoopService.
func NewNoopService(logger *slog.Logger) *NoopService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopService{logger: logger.With("component", "conversation_noop")}
}

// CreateForPairing implements matching.ConversationService.
func (s *NoopService) CreateForPairing(_ context.Context, pairing *matching.PairingRecord) (string, error) {
	s.logger.Info("conversation service not configured, skipping",
		"pairing_id", pairing.ID,
		"user_a", pairing.UserAID,
		"user_b", pairing.UserBID,
	)
	return "", nil
}
