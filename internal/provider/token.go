package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/redisclient"
	"github.com/numvend/numvend/internal/utils/httpclient"
	"go.uber.org/zap"
)

// TokenCache stores a bearer token until shortly before it expires.
type TokenCache interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string, ttl time.Duration)
	Delete(ctx context.Context)
}

// RedisTokenCache shares the provider token across instances.
type RedisTokenCache struct {
	redis *redisclient.Client
	key   string
}

// NewRedisTokenCache creates a Redis-backed token cache.
func NewRedisTokenCache(redis *redisclient.Client) *RedisTokenCache {
	return &RedisTokenCache{redis: redis, key: "provider:token"}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, bool) {
	token, err := c.redis.Get(ctx, c.key).Result()
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) {
	if err := c.redis.Set(ctx, c.key, token, ttl).Err(); err != nil {
		logging.Logger.Warn("failed to cache provider token", zap.Error(err))
	}
}

func (c *RedisTokenCache) Delete(ctx context.Context) {
	if err := c.redis.Del(ctx, c.key).Err(); err != nil {
		logging.Logger.Warn("failed to drop cached provider token", zap.Error(err))
	}
}

// MemoryTokenCache is the in-process fallback when Redis is not
// configured (tests, the sweeper binary).
type MemoryTokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryTokenCache creates an in-memory token cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || c.now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = c.now().Add(ttl)
}

func (c *MemoryTokenCache) Delete(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// TokenManager exchanges the long-lived API key for short-lived bearer
// tokens via POST /v1/tokens. Tokens are cached with a TTL of 90% of
// their lifetime, so a token is refreshed once no more than 10% of its
// lifetime remains.
type TokenManager struct {
	baseURL string
	apiKey  string
	cache   TokenCache
	pool    *httpclient.HTTPClientPool
	// single-flight: one refresh at a time per process
	mu sync.Mutex
}

// NewTokenManager creates a token manager.
func NewTokenManager(baseURL, apiKey string, cache TokenCache, pool *httpclient.HTTPClientPool) *TokenManager {
	return &TokenManager{
		baseURL: baseURL,
		apiKey:  apiKey,
		cache:   cache,
		pool:    pool,
	}
}

// Token returns a valid bearer token, fetching a fresh one if the
// cached token is missing or close to expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cache.Get(ctx); ok {
		return token, nil
	}
	return m.refresh(ctx)
}

// Invalidate drops the cached token and fetches a new one. Used for
// the single refresh-and-retry pass after a 401.
func (m *TokenManager) Invalidate(ctx context.Context) (string, error) {
	m.cache.Delete(ctx)
	return m.refresh(ctx)
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have refreshed while we waited
	if token, ok := m.cache.Get(ctx); ok {
		return token, nil
	}

	payload, err := json.Marshal(map[string]string{"api_key": m.apiKey})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/tokens", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	client := m.pool.Get()
	defer m.pool.Put(client)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: token request rejected with status %d", models.ErrProviderAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", fmt.Errorf("%w: token request failed with status %d", models.ErrProviderFailure, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Token == "" || tr.ExpiresIn <= 0 {
		return "", fmt.Errorf("%w: token response missing token or expiry", models.ErrProviderFailure)
	}

	// Cache for 90% of the lifetime so refresh happens before expiry
	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	m.cache.Set(ctx, tr.Token, lifetime*9/10)

	logging.Logger.Debug("provider token refreshed",
		zap.Duration("lifetime", lifetime))

	return tr.Token, nil
}
