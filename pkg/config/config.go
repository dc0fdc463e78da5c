// Package config loads the client configuration: API environments, request
// timeout, paging, staleness, detail store sizing and logging.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/fetcher"
	"github.com/goliatone/go-query-cache/querycache"
)

// Config is the root configuration document.
type Config struct {
	Environments           map[string]string `yaml:"environments"`
	ActiveEnvironment      string            `yaml:"active_environment"`
	Timeout                time.Duration     `yaml:"timeout"`
	PageSize               int               `yaml:"page_size"`
	StaleTime              time.Duration     `yaml:"stale_time"`
	AbortOnLastUnsubscribe bool              `yaml:"abort_on_last_unsubscribe"`
	Store                  cache.Config      `yaml:"store"`
	Logging                Logging           `yaml:"logging"`
}

// Logging selects the zap logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environments: map[string]string{
			"production": "https://jsonplaceholder.typicode.com",
			"local":      "http://localhost:3000",
		},
		ActiveEnvironment:      "production",
		Timeout:                fetcher.DefaultTimeout,
		PageSize:               10,
		StaleTime:              5 * time.Minute,
		AbortOnLastUnsubscribe: true,
		Store:                  cache.DefaultConfig(),
		Logging:                Logging{Level: "info"},
	}
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryNotFound, fmt.Sprintf("read config %s", path)).
			WithTextCode("CONFIG_NOT_READABLE")
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected. An environments map in data replaces the default one.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var probe struct {
		Environments map[string]string `yaml:"environments"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Config{}, decodeError(err)
	}
	if probe.Environments != nil {
		cfg.Environments = nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, decodeError(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode config").
		WithTextCode("INVALID_CONFIG_SYNTAX")
}

// Validate checks every field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Environments,
			validation.Required,
			validation.Each(validation.Required, is.URL),
		),
		validation.Field(&c.ActiveEnvironment,
			validation.Required,
			validation.By(c.knownEnvironment),
		),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&c.Logging),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration").WithTextCode("INVALID_CONFIG")
	}

	if err := c.Store.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid store configuration")
	}
	return nil
}

// Validate checks the logging level.
func (l Logging) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

func (c Config) knownEnvironment(value any) error {
	name, _ := value.(string)
	if _, ok := c.Environments[name]; !ok {
		return validation.NewError("validation_unknown_environment", "must name one of the configured environments")
	}
	return nil
}

// BaseURLs returns the switchable environment set.
func (c Config) BaseURLs() (*fetcher.Environments, error) {
	return fetcher.NewEnvironments(c.Environments, c.ActiveEnvironment)
}

// QueryCache returns the query cache settings.
func (c Config) QueryCache() querycache.Config {
	return querycache.Config{
		StaleTime:              c.StaleTime,
		AbortOnLastUnsubscribe: c.AbortOnLastUnsubscribe,
		Store:                  c.Store,
	}
}

// Build returns the logger described by l.
func (l Logging) Build() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if l.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "parse log level")
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
