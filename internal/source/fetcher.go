// Package source retrieves raw record containers by locator.
package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

// Fetcher returns the bytes behind a locator. Transient failures are
// *ingesterr.ServiceFailure; malformed or unknown locators are
// *ingesterr.ConfigurationFailure.
type Fetcher interface {
	Get(ctx context.Context, locator string) ([]byte, error)
}

// Router dispatches on the locator scheme.
type Router struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{fetchers: make(map[string]Fetcher)}
}

// Register binds f to each scheme, replacing any earlier binding.
func (r *Router) Register(f Fetcher, schemes ...string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.fetchers[s] = f
	}
	return r
}

func (r *Router) Get(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, ingesterr.NewConfigurationFailure("invalid locator", "locator", err)
	}
	r.mu.RLock()
	f, ok := r.fetchers[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, ingesterr.NewConfigurationFailure(fmt.Sprintf("no source registered for scheme %q", loc.Scheme), "locator", nil)
	}
	return f.Get(ctx, locator)
}
