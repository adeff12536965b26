package resolver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/pkg/errors"
)

// fakeSearcher answers searches from a table keyed by contains expression.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]tracker.Record
	fail    map[string]error
	calls   map[string]int
	delay   time.Duration
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		results: make(map[string][]tracker.Record),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeSearcher) add(field, value string, ids ...int64) {
	records := make([]tracker.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, tracker.Record{ID: id})
	}
	f.results[tracker.ContainsExpression(field, value)] = records
}

func (f *fakeSearcher) Search(_ context.Context, contains string) (*tracker.SearchResult, error) {
	f.mu.Lock()
	f.calls[contains]++
	err := f.fail[contains]
	records := f.results[contains]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	return &tracker.SearchResult{Records: records, Total: len(records)}, nil
}

func (f *fakeSearcher) callCount(field, value string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tracker.ContainsExpression(field, value)]
}

func TestResolve(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.add("documentKey", "REQ-1", 42)
	searcher.add("documentKey", "DUP", 1, 2, 3)
	searcher.fail[tracker.ContainsExpression("documentKey", "BOOM")] = errors.NewAPIError("jama", 500, "down")

	tests := []struct {
		name    string
		value   string
		reason  errors.ResolutionReason
		id      string
		matches int
		is      error
	}{
		{name: "exactly one match", value: "REQ-1", reason: errors.ReasonResolved, id: "42", matches: 1},
		{name: "no match", value: "REQ-404", reason: errors.ReasonNotFound, is: errors.ErrNotFound},
		{name: "several matches", value: "DUP", reason: errors.ReasonAmbiguous, matches: 3, is: errors.ErrAmbiguous},
		{name: "empty key", value: "", reason: errors.ReasonEmptyKey, is: errors.ErrNotFound},
		{name: "search failure", value: "BOOM", reason: errors.ReasonLookupFailed, is: errors.ErrServiceUnavailable},
	}

	r := New(searcher)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := r.Resolve(context.Background(), "documentKey", tt.value)
			assert.Equal(t, tt.reason, o.Reason)
			assert.Equal(t, tt.matches, o.Matches)

			id, ok := o.OK()
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.reason == errors.ReasonResolved, ok)

			if tt.is == nil {
				assert.NoError(t, o.Err())
				return
			}
			var resErr *errors.ResolutionError
			require.ErrorAs(t, o.Err(), &resErr)
			assert.Equal(t, tt.reason, resErr.Reason)
			assert.ErrorIs(t, o.Err(), tt.is)
		})
	}
}

func TestResolveMemoizes(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.add("documentKey", "REQ-1", 42)
	searcher.add("documentKey", "DUP", 1, 2)
	r := New(searcher)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.Resolve(ctx, "documentKey", "REQ-1")
		r.Resolve(ctx, "documentKey", "DUP")
		r.Resolve(ctx, "documentKey", "MISSING")
		r.Resolve(ctx, "documentKey", "")
	}

	assert.Equal(t, 1, searcher.callCount("documentKey", "REQ-1"))
	assert.Equal(t, 1, searcher.callCount("documentKey", "DUP"), "ambiguous results are cached")
	assert.Equal(t, 1, searcher.callCount("documentKey", "MISSING"), "negative results are cached")
	assert.Equal(t, 0, searcher.callCount("documentKey", ""), "empty keys never query")
	assert.EqualValues(t, 3, r.Queries())
	assert.Equal(t, 4, r.Cache().Len())
}

func TestResolveCachesFailures(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.fail[tracker.ContainsExpression("name", "x")] = fmt.Errorf("connection reset")
	r := New(searcher)

	first := r.Resolve(context.Background(), "name", "x")
	second := r.Resolve(context.Background(), "name", "x")

	assert.Equal(t, errors.ReasonLookupFailed, first.Reason)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, searcher.callCount("name", "x"))
}

func TestResolveDistinguishesFields(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.add("documentKey", "A", 1)
	searcher.add("name", "A", 2)
	r := New(searcher)

	a := r.Resolve(context.Background(), "documentKey", "A")
	b := r.Resolve(context.Background(), "name", "A")

	assert.Equal(t, "1", a.ID)
	assert.Equal(t, "2", b.ID)
	assert.EqualValues(t, 2, r.Queries())
}

func TestResolveConcurrentSingleQuery(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.add("documentKey", "REQ-1", 42)
	searcher.delay = 20 * time.Millisecond
	r := New(searcher)

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = r.Resolve(context.Background(), "documentKey", "REQ-1").OK()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "42", id)
	}
	assert.Equal(t, 1, searcher.callCount("documentKey", "REQ-1"))
	assert.EqualValues(t, 1, r.Queries())
}

func TestWithCacheIsolatesRuns(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.add("documentKey", "REQ-1", 42)

	shared := NewCache()
	New(searcher, WithCache(shared)).Resolve(context.Background(), "documentKey", "REQ-1")
	New(searcher, WithCache(shared)).Resolve(context.Background(), "documentKey", "REQ-1")
	assert.Equal(t, 1, searcher.callCount("documentKey", "REQ-1"))

	New(searcher).Resolve(context.Background(), "documentKey", "REQ-1")
	assert.Equal(t, 2, searcher.callCount("documentKey", "REQ-1"), "a fresh resolver starts with an empty cache")
}

func TestCacheKeyDoesNotCollide(t *testing.T) {
	c := NewCache()
	c.Set("a:b", "c", Outcome{ID: "1", Reason: errors.ReasonResolved})
	c.Set("a", "b:c", Outcome{ID: "2", Reason: errors.ReasonResolved})

	first, ok := c.Get("a:b", "c")
	require.True(t, ok)
	second, ok := c.Get("a", "b:c")
	require.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, c.Outcomes(), 2)
}
