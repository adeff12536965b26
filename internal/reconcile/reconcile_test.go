package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/internal/patch"
	"github.com/agentstation/itemtype/internal/resolver"
	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// fakeService is both the search and the update side of the service.
type fakeService struct {
	mu       sync.Mutex
	index    map[string][]int64
	searches []string
	patches  []string
	ops      []tracker.Operation
	failOn   map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{index: make(map[string][]int64), failOn: make(map[string]bool)}
}

func (f *fakeService) add(field, value string, ids ...int64) {
	f.index[tracker.ContainsExpression(field, value)] = ids
}

func (f *fakeService) Search(_ context.Context, contains string) (*tracker.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, contains)
	var records []tracker.Record
	for _, id := range f.index[contains] {
		records = append(records, tracker.Record{ID: id})
	}
	return &tracker.SearchResult{Records: records, Total: len(records)}, nil
}

func (f *fakeService) PatchItem(_ context.Context, id string, ops []tracker.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, id)
	f.ops = append(f.ops, ops...)
	if f.failOn[id] {
		return errors.NewAPIError("jama", 400, "rejected")
	}
	return nil
}

// countingResolver counts calls.
type countingResolver struct {
	calls int
}

func (c *countingResolver) Resolve(context.Context, string, string) resolver.Outcome {
	c.calls++
	return resolver.Outcome{Reason: errors.ReasonNotFound}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lookupSettings(path string) config.Settings {
	return config.Settings{
		CSVFilePath:          path,
		DestinationField:     "itemType",
		SourceHeader:         "Source",
		DestinationHeader:    "Destination",
		SourceFieldName:      "documentKey",
		DestinationFieldName: "documentKey",
	}
}

func TestRunDirectMode(t *testing.T) {
	path := writeCSV(t, "Source,Destination\n42,99\n7,\n8,80\n")
	settings := lookupSettings(path)
	settings.UsingDirectIdentifiers = true
	settings.SourceFieldName, settings.DestinationFieldName = "", ""

	svc := newFakeService()
	res := &countingResolver{}
	result, err := New(settings, res, patch.NewExecutor(svc), WithRunID("run-1")).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.calls, "direct mode never resolves")
	assert.Empty(t, svc.searches)
	assert.Equal(t, ModeDirect, result.Mode)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 3, result.RowsRead)
	assert.Equal(t, []string{"99", "80"}, svc.patches)
	assert.Equal(t, tracker.Operation{Op: "add", Path: "/fields/itemType", Value: "42"}, svc.ops[0])

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, Skip{
		Row:     1,
		Side:    SideDestination,
		Key:     "",
		Reason:  errors.ReasonEmptyKey,
		Message: "destination has an empty key",
	}, result.Skipped[0])
}

func TestRunLookupMode(t *testing.T) {
	path := writeCSV(t, "Source,Destination\nREQ-1,SYS-1\nREQ-1,SYS-2\nREQ-DUP,SYS-1\nREQ-1,SYS-404\nREQ-404,SYS-1\n")
	svc := newFakeService()
	svc.add("documentKey", "REQ-1", 42)
	svc.add("documentKey", "REQ-DUP", 1, 2)
	svc.add("documentKey", "SYS-1", 99)
	svc.add("documentKey", "SYS-2", 100)

	res := resolver.New(svc)
	result, err := New(lookupSettings(path), res, patch.NewExecutor(svc)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeLookup, result.Mode)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 5, result.RowsRead)

	require.Len(t, result.Requests, 2)
	assert.Equal(t, "99", result.Requests[0].TargetID)
	assert.Equal(t, "42", result.Requests[0].Operation.Value)
	assert.Equal(t, "100", result.Requests[1].TargetID)
	assert.Equal(t, []string{"99", "100"}, svc.patches)

	require.Len(t, result.Skipped, 3)
	assert.Equal(t, errors.ReasonAmbiguous, result.Skipped[0].Reason)
	assert.Equal(t, SideSource, result.Skipped[0].Side)
	assert.Equal(t, 2, result.Skipped[0].Matches)
	assert.Equal(t, errors.ReasonNotFound, result.Skipped[1].Reason)
	assert.Equal(t, SideDestination, result.Skipped[1].Side)
	assert.Equal(t, "SYS-404", result.Skipped[1].Key)
	assert.Equal(t, errors.ReasonNotFound, result.Skipped[2].Reason)
	assert.Equal(t, SideSource, result.Skipped[2].Side)

	// REQ-1, SYS-1, SYS-2, REQ-DUP, SYS-404, REQ-404: one search each
	assert.Len(t, svc.searches, 6)
	assert.EqualValues(t, 6, result.Queries)
	assert.Equal(t, 2, result.Report.Succeeded)
}

func TestRunUnresolvedSourceSkipsDestinationLookup(t *testing.T) {
	path := writeCSV(t, "Source,Destination\nMISSING,SYS-1\n")
	svc := newFakeService()
	svc.add("documentKey", "SYS-1", 99)

	result, err := New(lookupSettings(path), resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{`documentKey:"MISSING"`}, svc.searches)
	assert.Empty(t, result.Requests)
	assert.Empty(t, svc.patches)
}

func TestRunMissingColumnMakesNoRemoteCalls(t *testing.T) {
	path := writeCSV(t, "Source,Target\nREQ-1,SYS-1\n")
	svc := newFakeService()

	result, err := New(lookupSettings(path), resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())

	assert.Nil(t, result)
	assert.True(t, errors.IsConfigError(err))
	assert.Empty(t, svc.searches)
	assert.Empty(t, svc.patches)
}

func TestRunFatalErrors(t *testing.T) {
	svc := newFakeService()

	t.Run("missing file", func(t *testing.T) {
		settings := lookupSettings(filepath.Join(t.TempDir(), "missing.csv"))
		_, err := New(settings, resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())
		var ioErr *errors.IOError
		assert.ErrorAs(t, err, &ioErr)
	})

	t.Run("invalid settings", func(t *testing.T) {
		settings := lookupSettings(writeCSV(t, "Source,Destination\n"))
		settings.SourceFieldName = ""
		_, err := New(settings, resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("lookup mode without resolver", func(t *testing.T) {
		settings := lookupSettings(writeCSV(t, "Source,Destination\n"))
		_, err := New(settings, nil, patch.NewExecutor(svc)).Run(context.Background())
		assert.True(t, errors.IsConfigError(err))
	})

	assert.Empty(t, svc.searches)
	assert.Empty(t, svc.patches)
}

func TestRunPatchFailureDoesNotAbort(t *testing.T) {
	path := writeCSV(t, "Source,Destination\n1,10\n2,20\n3,30\n")
	settings := lookupSettings(path)
	settings.UsingDirectIdentifiers = true

	svc := newFakeService()
	svc.failOn["20"] = true

	result, err := New(settings, nil, patch.NewExecutor(svc)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"10", "20", "30"}, svc.patches)
	assert.Equal(t, 3, result.Report.Attempted)
	assert.Equal(t, 2, result.Report.Succeeded)
	require.Len(t, result.Report.Failures, 1)
	assert.Equal(t, "20", result.Report.Failures[0].TargetID)
	assert.Equal(t, 1, result.Report.Failures[0].Row)
}

func TestRunRerunProducesSamePatches(t *testing.T) {
	path := writeCSV(t, "Source,Destination\nREQ-1,SYS-1\nREQ-2,SYS-2\n")
	svc := newFakeService()
	svc.add("documentKey", "REQ-1", 1)
	svc.add("documentKey", "REQ-2", 2)
	svc.add("documentKey", "SYS-1", 10)
	svc.add("documentKey", "SYS-2", 20)

	first, err := New(lookupSettings(path), resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())
	require.NoError(t, err)
	second, err := New(lookupSettings(path), resolver.New(svc), patch.NewExecutor(svc)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Requests, second.Requests)
	assert.Equal(t, []string{"10", "20", "10", "20"}, svc.patches)
	assert.Equal(t, svc.ops[:2], svc.ops[2:])
}

func TestRunConcurrentKeepsRowOrder(t *testing.T) {
	content := "Source,Destination\n"
	svc := newFakeService()
	for i := 0; i < 20; i++ {
		src, dst := "S"+string(rune('A'+i)), "D"+string(rune('A'+i))
		content += src + "," + dst + "\n"
		svc.add("documentKey", src, int64(i))
		svc.add("documentKey", dst, int64(100+i))
	}
	path := writeCSV(t, content)

	result, err := New(lookupSettings(path), resolver.New(svc), patch.NewExecutor(svc), WithConcurrency(8)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Requests, 20)
	for i, req := range result.Requests {
		assert.Equal(t, i, req.Row)
	}
	assert.Len(t, svc.searches, 40)
}

func TestRunDryRun(t *testing.T) {
	path := writeCSV(t, "Source,Destination\n1,10\n")
	settings := lookupSettings(path)
	settings.UsingDirectIdentifiers = true

	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)
	svc := newFakeService()

	result, err := New(settings, nil, patch.NewExecutor(svc), WithDryRun(true), WithRunID("dry")).Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Len(t, result.Requests, 1)
	assert.Zero(t, result.Report.Attempted)
	assert.Empty(t, svc.patches)
	tl.AssertContains(t, "Would update item")
	tl.AssertContains(t, `"run_id":"dry"`)
}

func TestWithConcurrencyBounds(t *testing.T) {
	assert.Equal(t, 1, New(config.Settings{}, nil, nil, WithConcurrency(0)).concurrency)
	assert.Equal(t, 16, New(config.Settings{}, nil, nil, WithConcurrency(1000)).concurrency)
}

// failingSearch fails every search for one expression.
type failingSearch struct {
	*fakeService
	fail string
}

func (f failingSearch) Search(ctx context.Context, contains string) (*tracker.SearchResult, error) {
	if contains == f.fail {
		return nil, errors.NewAPIError("jama", 503, "maintenance")
	}
	return f.fakeService.Search(ctx, contains)
}

func TestRunLogsSkipsByReason(t *testing.T) {
	path := writeCSV(t, "Source,Destination\nREQ-DUP,SYS-1\nREQ-ERR,SYS-1\n")
	svc := newFakeService()
	svc.add("documentKey", "REQ-DUP", 1, 2)
	svc.add("documentKey", "SYS-1", 99)
	searcher := failingSearch{fakeService: svc, fail: tracker.ContainsExpression("documentKey", "REQ-ERR")}

	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	result, err := New(lookupSettings(path), resolver.New(searcher), patch.NewExecutor(svc)).Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Skipped, 2)

	var skips []map[string]any
	for _, e := range tl.Entries() {
		if e["message"] == "Skipping row" {
			skips = append(skips, e)
		}
	}
	require.Len(t, skips, 2)

	assert.Equal(t, "warn", skips[0]["level"])
	assert.EqualValues(t, 0, skips[0]["row"])
	assert.Equal(t, "ambiguous", skips[0]["reason"])
	assert.EqualValues(t, 2, skips[0]["matches"])

	assert.Equal(t, "error", skips[1]["level"])
	assert.EqualValues(t, 1, skips[1]["row"])
	assert.Equal(t, "lookup_failed", skips[1]["reason"])
	assert.Contains(t, skips[1]["error"], "maintenance")
}
