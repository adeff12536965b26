// Package constants provides shared constants used throughout the itemtype codebase.
// This includes timeouts, limits, file permissions, and the REST paths of the
// item-tracking service.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to the item-tracking service
	DefaultHTTPTimeout = 30 * time.Second

	// TokenExpiryMargin is subtracted from an OAuth token lifetime so it is refreshed before it lapses
	TokenExpiryMargin = 30 * time.Second

	// ShutdownTimeout bounds cleanup after a failed command
	ShutdownTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// SearchPageSize is the number of records requested per search. Only the
	// total count matters for uniqueness, so a small page is enough.
	SearchPageSize = 20

	// DefaultConcurrency is the default number of identifier lookups in flight
	DefaultConcurrency = 1

	// MaxConcurrency caps the --concurrency flag
	MaxConcurrency = 16

	// MaxErrorBodyLength truncates service error bodies copied into errors
	MaxErrorBodyLength = 512
)

// REST paths of the item-tracking service, relative to the base URL.
const (
	// RESTPrefix is the versioned REST root
	RESTPrefix = "/rest/latest"

	// AbstractItemsPath is the search endpoint
	AbstractItemsPath = RESTPrefix + "/abstractitems"

	// ItemsPath is the item endpoint; the item id is appended
	ItemsPath = RESTPrefix + "/items"

	// OAuthTokenPath issues client-credentials tokens
	OAuthTokenPath = "/rest/oauth/token"
)

// Config defaults
const (
	// DefaultConfigFile is used when no config path is given
	DefaultConfigFile = "config.ini"

	// EnvPrefix prefixes environment overrides (ITEMTYPE_SCRIPT_SETTINGS_CSV_FILE_PATH)
	EnvPrefix = "ITEMTYPE"

	// LogFilePrefix names files written under --log-dir
	LogFilePrefix = "itemtype_"

	// LogFileTimeFormat is the timestamp layout of log file names
	LogFileTimeFormat = "2006-01-02 15_04_05"
)
