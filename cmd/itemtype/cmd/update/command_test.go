package update

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/pkg/errors"
)

type fakeTracker struct {
	mu       sync.Mutex
	ids      map[string][]int64
	searches int
	patched  []string
}

func (f *fakeTracker) Search(_ context.Context, contains string) (*tracker.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	var records []tracker.Record
	for _, id := range f.ids[contains] {
		records = append(records, tracker.Record{ID: id})
	}
	return &tracker.SearchResult{Records: records, Total: len(records)}, nil
}

func (f *fakeTracker) PatchItem(_ context.Context, id string, _ []tracker.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, id)
	return nil
}

func newMock(t *testing.T, csv string, direct bool, tr *fakeTracker) *appcontext.Mock {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	return &appcontext.Mock{
		LoadConfigFunc: func(string) (*config.Config, error) {
			return &config.Config{Settings: config.Settings{
				CSVFilePath:            path,
				DestinationField:       "item_of_type",
				SourceHeader:           "Source",
				DestinationHeader:      "Destination",
				UsingDirectIdentifiers: direct,
				SourceFieldName:        "documentKey",
				DestinationFieldName:   "documentKey",
			}}, nil
		},
		TrackerFunc: func(*config.Config) (appcontext.Tracker, error) {
			return tr, nil
		},
		OutputFormatFunc: func() string { return "json" },
	}
}

func TestExecuteLookup(t *testing.T) {
	tr := &fakeTracker{ids: map[string][]int64{
		`documentKey:"REQ-1"`: {42},
		`documentKey:"SYS-1"`: {99},
	}}
	app := newMock(t, "Source,Destination\nREQ-1,SYS-1\nREQ-2,SYS-1\n", false, tr)

	err := Execute(context.Background(), app, "", &Flags{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"99"}, tr.patched)
	assert.Equal(t, 3, tr.searches)

	var result map[string]any
	require.NoError(t, json.Unmarshal(app.Out.Bytes(), &result))
	assert.Equal(t, "lookup", result["mode"])
	assert.Len(t, result["skipped"], 1)
}

func TestExecuteDryRun(t *testing.T) {
	tr := &fakeTracker{}
	app := newMock(t, "Source,Destination\n1,2\n", true, tr)

	err := Execute(context.Background(), app, "", &Flags{DryRun: true, Concurrency: 1})
	require.NoError(t, err)
	assert.Empty(t, tr.patched)
	assert.Zero(t, tr.searches)
}

func TestExecuteErrors(t *testing.T) {
	t.Run("concurrency out of range", func(t *testing.T) {
		err := Execute(context.Background(), &appcontext.Mock{}, "", &Flags{Concurrency: 0})
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("config error stops before any call", func(t *testing.T) {
		tr := &fakeTracker{}
		app := &appcontext.Mock{
			LoadConfigFunc: func(string) (*config.Config, error) {
				return nil, errors.NewConfigError("settings", "missing required keys", nil)
			},
			TrackerFunc: func(*config.Config) (appcontext.Tracker, error) {
				t.Fatal("tracker must not be created")
				return tr, nil
			},
		}
		err := Execute(context.Background(), app, "", &Flags{Concurrency: 1})
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("missing column", func(t *testing.T) {
		tr := &fakeTracker{}
		app := newMock(t, "Src,Dst\n1,2\n", false, tr)
		err := Execute(context.Background(), app, "", &Flags{Concurrency: 1})
		assert.True(t, errors.IsConfigError(err))
		assert.Zero(t, tr.searches)
		assert.Empty(t, tr.patched)
	})
}

func TestNewCommand(t *testing.T) {
	tr := &fakeTracker{}
	app := newMock(t, "Source,Destination\n1,2\n", true, tr)

	cmd := NewCommand(app)
	cmd.SetArgs([]string{"--concurrency", "2"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, []string{"2"}, tr.patched)
}
