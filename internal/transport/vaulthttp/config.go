package vaulthttp

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/stream"
)

// Operation names. Timeouts, metrics and errors are keyed by them.
const (
	OpGet    = "get"
	OpPost   = "post"
	OpPut    = "put"
	OpDelete = "delete"
	OpSearch = "search"
	OpStatus = "status"
)

// RetryConfig is an exponential backoff policy. MaxAttempts counts the first try.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// RateLimitConfig caps outbound requests. RPS <= 0 disables the limiter.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Config holds vault client settings.
type Config struct {
	BaseURL            string
	AuthToken          string
	Timeouts           map[string]time.Duration
	DefaultTimeout     time.Duration
	Retry              RetryConfig
	Cache              CacheConfig
	RateLimit          RateLimitConfig
	Breaker            BreakerConfig
	Stream             stream.Config
	InsecureSkipVerify bool
}

// DefaultConfig returns production defaults for a local vault.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://127.0.0.1:27124",
		DefaultTimeout: 10 * time.Second,
		Timeouts: map[string]time.Duration{
			OpSearch: 15 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
		},
		Cache:     CacheConfig{TTL: 5 * time.Minute, MaxEntries: 1000},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 10},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			FailureRatio:     0.5,
			Window:           time.Minute,
			Cooldown:         30 * time.Second,
		},
		Stream: stream.DefaultConfig(),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSharedCache enables a second cache tier.
func WithSharedCache(s SharedCache) Option {
	return func(c *Client) { c.shared = s }
}

// WithClock injects the time source used by the breaker and the cache.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}
