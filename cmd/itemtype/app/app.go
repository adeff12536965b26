// Package app provides the application context and dependency management
// for the itemtype CLI. It centralizes configuration, logging and the
// construction of service clients.
package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/config"
	"github.com/agentstation/itemtype/internal/tracker"
	"github.com/agentstation/itemtype/internal/transport"
	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// App represents the itemtype application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	stdout io.Writer

	// Open --log-dir file, closed on Shutdown.
	mu      sync.Mutex
	logFile *os.File

	// Overrides the tracker built from config (useful for testing).
	tracker appcontext.Tracker
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		stdout:  os.Stdout,
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = cfg

	logger := NewLogger(cfg, nil)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the --format value.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Stdout returns the writer for command output.
func (a *App) Stdout() io.Writer {
	return a.stdout
}

// LoadConfig loads the run configuration from path, the --config flag, or
// config.ini, in that order.
func (a *App) LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = a.config.ConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Str("config", cfg.Path).
		Str("url", cfg.Client.URL).
		Bool("oauth", cfg.Client.OAuth).
		Bool("using_api_id", cfg.Settings.UsingDirectIdentifiers).
		Msg("Loaded configuration")
	return cfg, nil
}

// Tracker returns a service client for cfg using basic or OAuth
// client-credentials authentication.
func (a *App) Tracker(cfg *config.Config) (appcontext.Tracker, error) {
	if a.tracker != nil {
		return a.tracker, nil
	}
	if cfg == nil {
		return nil, errors.NewConfigError("client", "no configuration loaded", nil)
	}

	timeout := cfg.Client.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	var auth transport.Authenticator
	if cfg.Client.OAuth {
		auth = &transport.ClientCredentials{
			TokenURL:     cfg.Client.URL + constants.OAuthTokenPath,
			ClientID:     cfg.Client.UserID,
			ClientSecret: cfg.Client.UserSecret,
			HTTP:         httpClient,
		}
	} else {
		auth = &transport.BasicAuth{
			Username: cfg.Client.UserID,
			Password: cfg.Client.UserSecret,
		}
	}

	return tracker.New(cfg.Client.URL, transport.NewWithHTTPClient(auth, httpClient)), nil
}

// Shutdown releases resources held by the application.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	if err != nil {
		return errors.WrapIO("close", "log file", err)
	}
	return nil
}

// openLogFile opens a new file under --log-dir, closing any previous one.
func (a *App) openLogFile(dir string) (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
	f, err := logging.OpenLogFile(dir, time.Now())
	if err != nil {
		return nil, errors.WrapIO("open", dir, err)
	}
	a.logFile = f
	return f, nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(cfg *Config) Option {
	return func(a *App) error {
		a.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStdout redirects command output.
func WithStdout(w io.Writer) Option {
	return func(a *App) error {
		a.stdout = w
		return nil
	}
}

// WithTracker sets the service client (useful for testing).
func WithTracker(t appcontext.Tracker) Option {
	return func(a *App) error {
		a.tracker = t
		return nil
	}
}
