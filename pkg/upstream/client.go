// Package upstream fetches the live payload behind an external-API export.
package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/cache"
	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
	"github.com/ekaya-inc/ekaya-datahub/pkg/retry"
)

const (
	// DefaultTimeout bounds a single upstream attempt.
	DefaultTimeout = 15 * time.Second
	// MaxResponseBytes caps the upstream body read into memory.
	MaxResponseBytes = 10 << 20
)

var (
	// ErrResponseTooLarge is returned for bodies over MaxResponseBytes.
	ErrResponseTooLarge = errors.New("upstream response too large")
	// ErrInvalidResponse is returned when a successful response is not JSON.
	ErrInvalidResponse = errors.New("upstream response is not valid JSON")
)

// Request describes one upstream fetch.
type Request struct {
	URL string
	// Authorization is the full header value, e.g. "Bearer <secret>". Empty sends none.
	Authorization string
	// Fields projects objects (or arrays of objects) to these keys. Empty keeps everything.
	Fields []string
}

// Client fetches JSON from external APIs with retry and an optional cache.
type Client struct {
	httpClient *http.Client
	retry      *retry.Config
	cache      cache.Store
	cacheTTL   time.Duration
	breakers   *breakers
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker replaces the default per-host circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakers = newBreakers(cfg) }
}

// WithCache caches raw upstream bodies for ttl.
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// NewClient creates an upstream client.
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      retry.DefaultConfig(),
		breakers:   newBreakers(DefaultBreakerConfig()),
		logger:     logger.Named("upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the decoded upstream JSON, projected to req.Fields.
func (c *Client) Fetch(ctx context.Context, req Request) (any, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	data, err := c.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return Project(data, req.Fields), nil
}

// load serves from the cache when possible. Only bodies that decode are cached.
func (c *Client) load(ctx context.Context, req Request) (any, error) {
	key := cacheKey(req)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("Upstream cache read failed", zap.Error(err))
		case ok:
			var data any
			if err := json.Unmarshal(cached, &data); err == nil {
				return data, nil
			}
			c.logger.Warn("Discarding undecodable cached upstream body", zap.String("url", logging.SanitizeURL(req.URL)))
		}
	}

	body, err := c.body(ctx, req)
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: failed to parse upstream response: %v", ErrInvalidResponse, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			c.logger.Warn("Upstream cache write failed", zap.Error(err))
		}
	}
	return data, nil
}

func (c *Client) body(ctx context.Context, req Request) ([]byte, error) {
	cb := c.breakers.forHost(hostOf(req.URL))
	if err := cb.allow(); err != nil {
		return nil, err
	}
	body, err := retry.DoIfRetryableWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.do(ctx, req)
	})
	if err != nil {
		// Client errors say nothing about the host's health.
		if retry.IsRetryable(err) {
			cb.failure()
			if cb.State() == CircuitOpen {
				c.logger.Warn("Upstream circuit opened",
					zap.String("host", hostOf(req.URL)),
					zap.Error(err))
			}
		}
		return nil, err
	}
	cb.success()
	return body, nil
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if len(body) > MaxResponseBytes {
		c.logger.Warn("Upstream response exceeds size limit",
			zap.String("url", logging.SanitizeURL(req.URL)),
			zap.Int("limit_bytes", MaxResponseBytes))
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Upstream returned error",
			zap.String("url", logging.SanitizeURL(req.URL)),
			zap.Int("status", resp.StatusCode))
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: logging.TruncateString(string(body), 200)}
	}
	return body, nil
}

// Project keeps only fields on an object, or on each object of an array.
// Other values, and any value when fields is empty, pass through.
func Project(data any, fields []string) any {
	if len(fields) == 0 {
		return data
	}
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			if val, ok := v[f]; ok {
				out[f] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = Project(el, fields)
		}
		return out
	}
	return data
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid upstream url: %v", apperrors.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: upstream url scheme %q not allowed", apperrors.ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: upstream url missing host", apperrors.ErrInvalidInput)
	}
	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}

// cacheKey hashes the URL together with the credential so cached bodies are
// never served across credentials.
func cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.URL + "\n" + req.Authorization))
	return "upstream:" + hex.EncodeToString(sum[:])
}
