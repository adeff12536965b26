// Package resolver turns human-readable key values into unique remote item
// identifiers. Lookups are memoized per (field, value) pair, negative results
// included, so a run issues at most one search per distinct pair.
package resolver

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// Searcher is the search capability of the item-tracking service.
type Searcher interface {
	Search(ctx context.Context, contains string) (*tracker.SearchResult, error)
}

// Resolver resolves key values with a memoizing cache.
type Resolver struct {
	searcher Searcher
	cache    *Cache
	group    singleflight.Group
	queries  atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache makes the resolver use c instead of a fresh cache.
func WithCache(c *Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// New returns a resolver backed by searcher.
func New(searcher Searcher, opts ...Option) *Resolver {
	r := &Resolver{
		searcher: searcher,
		cache:    NewCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the outcome of looking up value in field. Exactly one
// matching record resolves; zero or several matches do not. Concurrent calls
// for the same pair share a single search.
func (r *Resolver) Resolve(ctx context.Context, field, value string) Outcome {
	if o, ok := r.cache.Get(field, value); ok {
		return o
	}

	v, _, _ := r.group.Do(cacheKey(field, value), func() (any, error) {
		// Another caller may have finished the lookup while we waited.
		if o, ok := r.cache.Get(field, value); ok {
			return o, nil
		}
		o := r.lookup(ctx, field, value)
		r.cache.Set(field, value, o)
		return o, nil
	})
	return v.(Outcome)
}

// Queries returns the number of searches issued so far.
func (r *Resolver) Queries() int64 {
	return r.queries.Load()
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

func (r *Resolver) lookup(ctx context.Context, field, value string) Outcome {
	o := Outcome{Field: field, Value: value}
	logger := logging.FromContext(ctx).With().
		Str("field", field).
		Str("value", value).
		Logger()

	if value == "" {
		o.Reason = errors.ReasonEmptyKey
		logger.Debug().Str("reason", string(o.Reason)).Msg("Skipping lookup of empty key")
		return o
	}

	r.queries.Add(1)
	result, err := r.searcher.Search(ctx, tracker.ContainsExpression(field, value))
	if err != nil {
		o.Reason = errors.ReasonLookupFailed
		o.Cause = err
		logger.Warn().Err(err).Str("reason", string(o.Reason)).Msg("Lookup failed")
		return o
	}

	o.Matches = result.Total
	switch {
	case result.Total > 1:
		o.Reason = errors.ReasonAmbiguous
		logger.Info().Str("reason", string(o.Reason)).Int("matches", o.Matches).Msg("Multiple matching items")
	case len(result.Records) == 1:
		o.ID = result.Records[0].IDString()
		o.Reason = errors.ReasonResolved
		logger.Debug().Str("item_id", o.ID).Msg("Resolved")
	default:
		o.Reason = errors.ReasonNotFound
		logger.Info().Str("reason", string(o.Reason)).Msg("No matching item")
	}
	return o
}
