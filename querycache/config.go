package querycache

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/metrics"
)

// Config controls staleness and cancellation.
type Config struct {
	// StaleTime is how long a successful entry is served before EnsureFetched
	// refetches it. Zero or less means entries only go stale through Invalidate.
	StaleTime time.Duration `yaml:"stale_time"`

	// AbortOnLastUnsubscribe cancels an outstanding fetch once the last
	// subscriber of its key goes away.
	AbortOnLastUnsubscribe bool `yaml:"abort_on_last_unsubscribe"`

	// Store sizes the detail store used by Detail.
	Store cache.Config `yaml:"store"`
}

// DefaultConfig returns the defaults used by New.
func DefaultConfig() Config {
	return Config{
		StaleTime:              5 * time.Minute,
		AbortOnLastUnsubscribe: true,
		Store:                  cache.DefaultConfig(),
	}
}

// Validate checks the store settings.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid query cache configuration")
	}
	return nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Cache) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for staleness and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMetrics records fetch, dedup and invalidation counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithDetailStore replaces the sturdyc-backed detail store.
func WithDetailStore(store cache.CacheService) Option {
	return func(c *Cache) {
		c.details = store
	}
}
