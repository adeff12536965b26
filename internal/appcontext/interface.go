// Package appcontext provides the shared application context interface
// used by all commands. Commands accept this interface rather than the
// concrete App so they can be tested with Mock.
package appcontext

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/internal/tracker"
)

// Tracker is the part of the item-tracking service client commands use.
type Tracker interface {
	Search(ctx context.Context, contains string) (*tracker.SearchResult, error)
	PatchItem(ctx context.Context, id string, ops []tracker.Operation) error
}

// Interface defines the application context commands need.
type Interface interface {
	// LoadConfig loads the run configuration. An empty path falls back to
	// the --config flag and then to config.ini.
	LoadConfig(path string) (*config.Config, error)

	// Tracker returns a service client for cfg.
	Tracker(cfg *config.Config) (Tracker, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml, wide).
	OutputFormat() string

	// Stdout is where command output is written.
	Stdout() io.Writer

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
