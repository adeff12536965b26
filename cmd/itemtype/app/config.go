package app

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds the CLI configuration: global flags plus logging settings
// read from the environment. The run configuration itself lives in the
// config.ini file and is loaded per command by internal/config.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
	LogDir    string
}

// LoadConfig loads CLI configuration in order of precedence:
// 1. Command-line flags (applied later by UpdateFromFlags)
// 2. Environment variables
// 3. .env files
// 4. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	return &Config{
		Verbose:    cast.ToBool(os.Getenv("VERBOSE")),
		Quiet:      cast.ToBool(os.Getenv("QUIET")),
		NoColor:    os.Getenv("NO_COLOR") != "",
		Format:     os.Getenv("ITEMTYPE_FORMAT"),
		ConfigFile: os.Getenv("ITEMTYPE_CONFIG"),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
		LogDir:    os.Getenv("ITEMTYPE_LOG_DIR"),
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// Flag values take precedence over env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel, logDir, configFile string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if logDir != "" {
		c.LogDir = logDir
	}
	if configFile != "" {
		c.ConfigFile = configFile
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env; the process environment overrides both.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
