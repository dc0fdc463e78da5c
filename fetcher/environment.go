package fetcher

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// ErrUnknownEnvironment is returned when switching to an environment that was never configured.
var ErrUnknownEnvironment = goerrors.New("unknown environment", goerrors.CategoryBadInput).
	WithTextCode("UNKNOWN_ENVIRONMENT")

// BaseURLSource yields the base URL for the next request. The client asks for it
// on every call so a switch takes effect between requests.
type BaseURLSource interface {
	BaseURL() string
}

// StaticBaseURL is a BaseURLSource that never changes.
type StaticBaseURL string

// BaseURL returns s.
func (s StaticBaseURL) BaseURL() string { return string(s) }

// Environments holds named API endpoints with one active at a time.
type Environments struct {
	mu        sync.RWMutex
	endpoints map[string]string
	active    string
}

// NewEnvironments copies endpoints and activates active.
func NewEnvironments(endpoints map[string]string, active string) (*Environments, error) {
	if len(endpoints) == 0 {
		return nil, goerrors.New("at least one environment is required", goerrors.CategoryValidation).
			WithTextCode("NO_ENVIRONMENTS")
	}

	copied := make(map[string]string, len(endpoints))
	for name, url := range endpoints {
		copied[name] = strings.TrimRight(url, "/")
	}

	env := &Environments{endpoints: copied}
	if err := env.Switch(active); err != nil {
		return nil, err
	}
	return env, nil
}

// BaseURL returns the active endpoint.
func (e *Environments) BaseURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.endpoints[e.active]
}

// Active returns the active environment name.
func (e *Environments) Active() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Names lists the configured environments in lexical order.
func (e *Environments) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.endpoints))
	for name := range e.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Switch activates name. Requests already in flight keep the URL they started with.
func (e *Environments) Switch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.endpoints[name]; !ok {
		return fmt.Errorf("environment %q: %w", name, ErrUnknownEnvironment)
	}
	e.active = name
	return nil
}
