package appcontext

import (
	"bytes"
	"io"

	"github.com/rs/zerolog"

	"github.com/agentstation/itemtype/internal/config"
)

// Mock provides a mock implementation of Interface for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
type Mock struct {
	LoadConfigFunc   func(path string) (*config.Config, error)
	TrackerFunc      func(cfg *config.Config) (Tracker, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string

	// Out collects command output when StdoutFunc is nil.
	Out        bytes.Buffer
	StdoutFunc func() io.Writer
}

// LoadConfig returns a config using the mock function or an empty config.
func (m *Mock) LoadConfig(path string) (*config.Config, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(path)
	}
	return &config.Config{Path: path}, nil
}

// Tracker returns a tracker using the mock function or nil.
func (m *Mock) Tracker(cfg *config.Config) (Tracker, error) {
	if m.TrackerFunc != nil {
		return m.TrackerFunc(cfg)
	}
	return nil, nil
}

// Logger returns a logger using the mock function or a nop logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns the output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Stdout returns the writer using the mock function or Out.
func (m *Mock) Stdout() io.Writer {
	if m.StdoutFunc != nil {
		return m.StdoutFunc()
	}
	return &m.Out
}

// Version returns the version using the mock function or "test".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "test"
}

// Commit returns "test".
func (m *Mock) Commit() string { return "test" }

// Date returns "test".
func (m *Mock) Date() string { return "test" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }

// Ensure Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
