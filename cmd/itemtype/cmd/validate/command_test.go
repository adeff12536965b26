package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/pkg/errors"
)

func mockWithCSV(t *testing.T, csv string) *appcontext.Mock {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	return &appcontext.Mock{
		LoadConfigFunc: func(string) (*config.Config, error) {
			return &config.Config{Settings: config.Settings{
				CSVFilePath:       path,
				SourceHeader:      "Source",
				DestinationHeader: "Destination",
			}}, nil
		},
		TrackerFunc: func(*config.Config) (appcontext.Tracker, error) {
			t.Fatal("validate must not contact the service")
			return nil, nil
		},
		OutputFormatFunc: func() string { return "json" },
	}
}

func TestExecute(t *testing.T) {
	app := mockWithCSV(t, "Source,Destination\nREQ-1,SYS-1\n,SYS-2\n")

	require.NoError(t, Execute(context.Background(), app, ""))
	assert.JSONEq(t, `[
		{"row": 0, "source_key": "REQ-1", "destination_key": "SYS-1"},
		{"row": 1, "source_key": "", "destination_key": "SYS-2"}
	]`, app.Out.String())
}

func TestExecuteMissingColumn(t *testing.T) {
	app := mockWithCSV(t, "Source,Target\n1,2\n")

	err := Execute(context.Background(), app, "")
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), `"Destination"`)
}

func TestNewCommandPassesConfigArg(t *testing.T) {
	var got string
	app := mockWithCSV(t, "Source,Destination\n")
	load := app.LoadConfigFunc
	app.LoadConfigFunc = func(path string) (*config.Config, error) {
		got = path
		return load(path)
	}

	cmd := NewCommand(app)
	cmd.SetArgs([]string{"prod.ini"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "prod.ini", got)
}
