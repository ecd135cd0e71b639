package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/config"
	"github.com/speaklab/practice-gateway/internal/observability"
	"github.com/speaklab/practice-gateway/internal/resilience"
)

// ErrCredentialUnavailable is the single failure the session sees: the
// distinct causes (transport error, non-success status, missing key) are
// logged but all abort connect the same way.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// Credential is a short-lived model provider key. It is owned by exactly
// one session, never persisted, and discarded on teardown.
type Credential struct {
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"` // seconds; a refresh hint, not enforced
}

// Fetcher obtains a short-lived credential or fails.
type Fetcher interface {
	Fetch(ctx context.Context) (*Credential, error)
}

// Client fetches credentials from the auth endpoint over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewClient creates a credential client for the configured auth endpoint.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		endpoint:   cfg.AuthEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewCircuitBreaker(
			"credential",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.GetLogger().With().Str("component", "credential").Logger(),
	}
}

// Fetch requests a short-lived key. All failure modes collapse to
// ErrCredentialUnavailable; there is no automatic retry — recovery is an
// explicit new connect.
func (c *Client) Fetch(ctx context.Context) (*Credential, error) {
	var cred *Credential

	err := c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to build credential request")
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error().Err(err).Msg("Credential endpoint unreachable")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.logger.Error().Int("status", resp.StatusCode).Msg("Credential endpoint returned non-success status")
			return errors.New("credential endpoint status " + resp.Status)
		}

		var parsed Credential
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			c.logger.Error().Err(err).Msg("Failed to decode credential response")
			return err
		}
		if parsed.Key == "" {
			c.logger.Error().Msg("Credential response missing key")
			return errors.New("credential response missing key")
		}

		cred = &parsed
		return nil
	})

	observability.UpdateCircuitBreakerState("credential", int(c.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("credential")
		return nil, ErrCredentialUnavailable
	}
	return cred, nil
}

// Check probes the endpoint for the readiness handler.
func (c *Client) Check(ctx context.Context) (bool, error) {
	cred, err := c.Fetch(ctx)
	if err != nil {
		return false, err
	}
	return cred.Key != "", nil
}
