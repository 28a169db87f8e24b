package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"github.com/numvend/numvend/internal/utils/httpclient"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
)

// BreakerSnapshotStore persists breaker state transitions so they can
// be read back operationally.
type BreakerSnapshotStore interface {
	Save(ctx context.Context, snapshot models.BreakerSnapshot) error
}

// ClientConfig holds everything the HTTP client needs.
type ClientConfig struct {
	BaseURL     string
	CallTimeout time.Duration
	Retry       RetryPolicy
	Breaker     BreakerConfig
}

// Client is the resilient HTTP client for the upstream verification
// provider. It layers, outermost first: a circuit breaker per endpoint
// group, a bounded retry loop with jittered backoff, bearer-token auth
// with one refresh-and-retry on 401, and a hard per-call timeout.
type Client struct {
	config   ClientConfig
	tokens   *TokenManager
	pool     *httpclient.HTTPClientPool
	breakers *BreakerRegistry
	snaps    BreakerSnapshotStore

	// sleep is injectable so retry tests don't wait out real backoff
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a provider client. snaps may be nil when breaker
// state persistence is not wanted (tests, the sweeper binary).
func NewClient(config ClientConfig, tokens *TokenManager, pool *httpclient.HTTPClientPool, snaps BreakerSnapshotStore) *Client {
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryPolicy()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}

	c := &Client{
		config:   config,
		tokens:   tokens,
		pool:     pool,
		breakers: NewBreakerRegistry(),
		snaps:    snaps,
		sleep:    sleepContext,
	}

	for _, endpoint := range []string{EndpointReserve, EndpointStatus, EndpointCancel} {
		cfg := config.Breaker
		cfg.Endpoint = endpoint
		b := c.breakers.GetOrCreate(cfg)
		b.OnStateChange(c.onBreakerStateChange)
		observability.BreakerState.WithLabelValues(endpoint).Set(0)
	}

	return c
}

// Breakers exposes the registry for the operational state endpoint.
func (c *Client) Breakers() *BreakerRegistry {
	return c.breakers
}

// CreateReservation reserves a number for a verification or rental.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (*Reservation, error) {
	var reservation Reservation
	err := c.do(ctx, EndpointReserve, http.MethodPost, "/v1/reservations", req, &reservation)
	if err != nil {
		return nil, err
	}

	if err := validateAssignedNumber(reservation.PhoneNumber); err != nil {
		logging.Logger.Error("provider returned an invalid phone number",
			zap.String("reservation_id", reservation.ID),
			zap.String("number", observability.MaskPhoneNumber(reservation.PhoneNumber)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrProviderFailure, err)
	}

	return &reservation, nil
}

// GetReservation polls the current state of a reservation.
func (c *Client) GetReservation(ctx context.Context, id string) (*ReservationStatus, error) {
	var status ReservationStatus
	err := c.do(ctx, EndpointStatus, http.MethodGet, "/v1/reservations/"+id, nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelReservation releases a reservation upstream.
func (c *Client) CancelReservation(ctx context.Context, id string) error {
	return c.do(ctx, EndpointCancel, http.MethodDelete, "/v1/reservations/"+id, nil, nil)
}

// callOutcome classifies one attempt for retry and breaker accounting.
type callOutcome struct {
	err       error
	retryable bool
	// breakerFailure marks outcomes that indicate provider trouble
	// (timeouts, 5xx). Rate limiting and auth rejections don't trip
	// the breaker.
	breakerFailure bool
	retryAfter     time.Duration
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out interface{}) error {
	breaker := c.breakers.Get(endpoint)
	logger := logging.Logger.With(
		zap.String("provider_endpoint", endpoint),
		zap.String("method", method),
	)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.config.Retry.MaxAttempts; attempt++ {
		if err := breaker.Allow(); err != nil {
			logger.Warn("provider call rejected by circuit breaker")
			observability.ProviderCallDuration.WithLabelValues(endpoint, "breaker_open").Observe(0)
			return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}

		if attempt > 0 {
			observability.ProviderRetries.WithLabelValues(endpoint).Inc()
		}

		start := time.Now()
		outcome := c.attempt(ctx, method, path, payload, out, true)
		latency := time.Since(start)

		if outcome.err == nil {
			breaker.RecordSuccess()
			observability.ProviderCallDuration.WithLabelValues(endpoint, "success").Observe(latency.Seconds())
			logger.Debug("provider call succeeded",
				zap.Int("attempt", attempt+1),
				zap.Duration("latency", latency))
			return nil
		}

		if outcome.breakerFailure {
			breaker.RecordFailure()
		} else {
			// A 429 or 4xx is not evidence of provider health; it must
			// not count toward closing a half-open breaker.
			breaker.RecordNeutral()
		}
		observability.ProviderCallDuration.WithLabelValues(endpoint, "error").Observe(latency.Seconds())
		logger.Warn("provider call failed",
			zap.Int("attempt", attempt+1),
			zap.Duration("latency", latency),
			zap.Bool("retryable", outcome.retryable),
			zap.Error(outcome.err))

		lastErr = outcome.err
		if !outcome.retryable {
			return outcome.err
		}
		if attempt == c.config.Retry.MaxAttempts-1 {
			break
		}

		if err := c.sleep(ctx, c.config.Retry.Delay(attempt, outcome.retryAfter)); err != nil {
			return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}
	}

	return fmt.Errorf("%w: retry budget exhausted: %v", models.ErrProviderUnavailable, lastErr)
}

// attempt performs a single HTTP exchange. allowTokenRetry permits one
// recursive pass after a token refresh when the provider answers 401.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out interface{}, allowTokenRetry bool) callOutcome {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		unavailable := errors.Is(err, models.ErrProviderUnavailable)
		return callOutcome{err: err, retryable: unavailable, breakerFailure: unavailable}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return callOutcome{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.pool.Get()
	defer c.pool.Put(client)

	resp, err := client.Do(req)
	if err != nil {
		// Timeouts and transport errors count against the breaker
		return callOutcome{
			err:            fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err),
			retryable:      true,
			breakerFailure: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return callOutcome{
			err:            fmt.Errorf("%w: reading response: %v", models.ErrProviderUnavailable, err),
			retryable:      true,
			breakerFailure: true,
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return callOutcome{err: fmt.Errorf("%w: decoding response: %v", models.ErrProviderFailure, err)}
			}
		}
		return callOutcome{}

	case resp.StatusCode == http.StatusUnauthorized:
		if allowTokenRetry {
			if _, err := c.tokens.Invalidate(ctx); err != nil {
				return callOutcome{err: err}
			}
			return c.attempt(ctx, method, path, payload, out, false)
		}
		return callOutcome{err: fmt.Errorf("%w: status 401 after token refresh", models.ErrProviderAuth)}

	case resp.StatusCode == http.StatusTooManyRequests:
		return callOutcome{
			err:        fmt.Errorf("%w: status 429", models.ErrProviderRateLimited),
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode >= 500:
		return callOutcome{
			err:            fmt.Errorf("%w: status %d", models.ErrProviderUnavailable, resp.StatusCode),
			retryable:      true,
			breakerFailure: true,
		}

	default:
		return callOutcome{err: fmt.Errorf("%w: status %d", models.ErrProviderFailure, resp.StatusCode)}
	}
}

// onBreakerStateChange runs inside the breaker's lock: log, update the
// gauge, and persist the snapshot off-goroutine.
func (c *Client) onBreakerStateChange(endpoint string, from, to BreakerState, failures int) {
	logging.Logger.Warn("provider circuit breaker state changed",
		zap.String("provider_endpoint", endpoint),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_failures", failures))

	observability.BreakerState.WithLabelValues(endpoint).Set(breakerStateGauge(to))

	if c.snaps == nil {
		return
	}
	snapshot := models.BreakerSnapshot{
		Endpoint:            endpoint,
		State:               to.String(),
		ConsecutiveFailures: failures,
		UpdatedAt:           time.Now(),
	}
	if to == BreakerOpen {
		snapshot.LastFailureAt = snapshot.UpdatedAt
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.snaps.Save(ctx, snapshot); err != nil {
			logging.Logger.Warn("failed to persist breaker snapshot",
				zap.String("provider_endpoint", endpoint),
				zap.Error(err))
		}
	}()
}

func breakerStateGauge(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}

// validateAssignedNumber checks that a provider-assigned number is a
// plausible E.164 number.
func validateAssignedNumber(number string) error {
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil {
		return fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return fmt.Errorf("phone number %s is not valid", observability.MaskPhoneNumber(number))
	}
	return nil
}

// parseRetryAfter handles the seconds form of the Retry-After header.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
