package resolver

import (
	"github.com/patrickmn/go-cache"

	"github.com/agentstation/itemtype/pkg/errors"
)

// Outcome is the memoized result of one (field, value) lookup.
type Outcome struct {
	Field   string                  `json:"field" yaml:"field"`
	Value   string                  `json:"value" yaml:"value"`
	ID      string                  `json:"id,omitempty" yaml:"id,omitempty"`
	Reason  errors.ResolutionReason `json:"reason" yaml:"reason"`
	Matches int                     `json:"matches" yaml:"matches"`
	// Cause is set when the lookup itself failed.
	Cause error `json:"-" yaml:"-"`
}

// OK returns the identifier and whether the lookup resolved to exactly one record.
func (o Outcome) OK() (string, bool) {
	return o.ID, o.Reason == errors.ReasonResolved
}

// Err returns nil for a resolved outcome and a *errors.ResolutionError otherwise.
func (o Outcome) Err() error {
	if o.Reason == errors.ReasonResolved {
		return nil
	}
	return errors.NewResolutionError(o.Field, o.Value, o.Reason, o.Matches, o.Cause)
}

// Cache maps (field, value) pairs to outcomes for the lifetime of one run.
// Entries never expire and are never evicted. Safe for concurrent use.
type Cache struct {
	store *cache.Cache
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	// A zero cleanup interval disables the janitor goroutine.
	return &Cache{store: cache.New(cache.NoExpiration, 0)}
}

// Get returns the cached outcome for (field, value).
func (c *Cache) Get(field, value string) (Outcome, bool) {
	v, ok := c.store.Get(cacheKey(field, value))
	if !ok {
		return Outcome{}, false
	}
	return v.(Outcome), true
}

// Set stores the outcome for (field, value).
func (c *Cache) Set(field, value string, o Outcome) {
	c.store.Set(cacheKey(field, value), o, cache.NoExpiration)
}

// Len returns the number of cached pairs.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Outcomes returns a copy of every cached outcome.
func (c *Cache) Outcomes() []Outcome {
	items := c.store.Items()
	out := make([]Outcome, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(Outcome))
	}
	return out
}

// cacheKey joins field and value with a NUL so distinct pairs never collide.
func cacheKey(field, value string) string {
	return field + "\x00" + value
}
