package di

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/agenda"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/fetcher"
	"github.com/goliatone/go-query-cache/internal/metrics"
	"github.com/goliatone/go-query-cache/mutation"
	"github.com/goliatone/go-query-cache/pkg/config"
	"github.com/goliatone/go-query-cache/posts"
	"github.com/goliatone/go-query-cache/querycache"
)

// Container owns the session-wide singletons: one fetcher, one query cache and
// one mutation cache, plus the services built on them. Reset is the logout hook.
type Container struct {
	config config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	environments *fetcher.Environments
	client       *fetcher.Client
	queries      *querycache.Cache
	mutations    *mutation.Cache
	posts        *posts.Service
}

// Option customizes a Container.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	registry *prometheus.Registry
	fetcher  []fetcher.Option
}

// WithLogger overrides the logger built from the logging configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock shared by the caches.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithFetcherOption forwards opt to the fetcher. It may be repeated.
func WithFetcherOption(opt fetcher.Option) Option {
	return func(o *options) {
		o.fetcher = append(o.fetcher, opt)
	}
}

// NewContainer validates cfg and wires every component.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := cfg.Logging.Build()
		if err != nil {
			return nil, err
		}
		logger = built
	}

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry)

	envs, err := cfg.BaseURLs()
	if err != nil {
		return nil, err
	}

	fetcherOpts := []fetcher.Option{
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithLogger(logger.Named("fetcher")),
		fetcher.WithMetrics(m),
	}
	fetcherOpts = append(fetcherOpts, o.fetcher...)
	client := fetcher.New(envs, fetcherOpts...)

	queries, err := querycache.New(
		querycache.WithConfig(cfg.QueryCache()),
		querycache.WithLogger(logger.Named("queries")),
		querycache.WithClock(o.clock),
		querycache.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	mutations := mutation.New(queries,
		mutation.WithLogger(logger.Named("mutations")),
		mutation.WithClock(o.clock),
		mutation.WithMetrics(m),
	)

	svc := posts.NewService(posts.NewAPI(client), queries, mutations,
		posts.WithPageSize(cfg.PageSize),
		posts.WithLogger(logger.Named("posts")),
	)

	logger.Debug("container ready",
		zap.String("environment", envs.Active()),
		zap.String("base_url", envs.BaseURL()),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Container{
		config:       cfg,
		logger:       logger,
		clock:        o.clock,
		registry:     registry,
		metrics:      m,
		environments: envs,
		client:       client,
		queries:      queries,
		mutations:    mutations,
		posts:        svc,
	}, nil
}

// NewContainerWithDefaults creates a container from config.Default.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Registry returns the registry holding the cache metrics.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

// Environments returns the switchable base URL set.
func (c *Container) Environments() *fetcher.Environments { return c.environments }

// Client returns the shared fetcher.
func (c *Container) Client() *fetcher.Client { return c.client }

// Queries returns the session query cache.
func (c *Container) Queries() *querycache.Cache { return c.queries }

// Mutations returns the session mutation cache.
func (c *Container) Mutations() *mutation.Cache { return c.mutations }

// Posts returns the posts service.
func (c *Container) Posts() *posts.Service { return c.posts }

// Agenda builds the month-paged agenda query of calendarID served by the
// active environment.
func (c *Container) Agenda(calendarID string, start time.Time, horizon int) cache.Operation {
	return agenda.Query(calendarID, agenda.HTTPSource{Client: c.client, CalendarID: calendarID}, start, horizon)
}

// SwitchEnvironment points the fetcher at another configured environment and
// drops every cached result, since they belong to the previous backend.
func (c *Container) SwitchEnvironment(name string) error {
	if err := c.environments.Switch(name); err != nil {
		return err
	}
	c.Reset()
	c.logger.Info("environment switched",
		zap.String("environment", name),
		zap.String("base_url", c.environments.BaseURL()),
	)
	return nil
}

// Reset drops all query and mutation state and aborts outstanding fetches.
func (c *Container) Reset() {
	c.queries.Reset()
	c.mutations.Reset()
}

// Close flushes the logger.
func (c *Container) Close() error {
	_ = c.logger.Sync()
	return nil
}
