package app

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/itemtype/internal/cmd/output"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// Execute runs the itemtype CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "itemtype",
		Short:   "Stamp item-of-type relationships from a CSV onto tracker items",
		Version: a.version,
		Long: `itemtype reads (source, destination) pairs from a CSV file and, for each
row, sets a field on the destination item to the source item's id.

Keys are either item ids (using_api_id = true) or values of a searchable
field such as documentKey, resolved with one search per distinct value.
Rows whose keys match zero or several items are skipped and reported.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "diagnostics",
		Title: "Diagnostic Commands:",
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.config.ConfigFile, "config", a.config.ConfigFile, "config file (default is config.ini)")
	flags.BoolVarP(&a.config.Verbose, "verbose", "v", a.config.Verbose, "verbose output (shortcut for --log-level=debug)")
	flags.BoolVarP(&a.config.Quiet, "quiet", "q", a.config.Quiet, "minimal output (shortcut for --log-level=warn)")
	flags.BoolVar(&a.config.NoColor, "no-color", a.config.NoColor, "disable colored output")
	flags.StringVarP(&a.config.Format, "format", "o", a.config.Format, "output format: table, json, yaml, wide")
	flags.StringVar(&a.config.LogLevel, "log-level", a.config.LogLevel, "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.StringVar(&a.config.LogDir, "log-dir", a.config.LogDir, "also write JSON logs to a timestamped file in this directory")

	rootCmd.SetVersionTemplate("itemtype {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")
	logDir := mustGetString(cmd, "log-dir")
	configFile := mustGetString(cmd, "config")

	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel, logDir, configFile)

	parsed, err := output.ParseFormat(a.config.Format)
	if err != nil {
		return err
	}
	if parsed == "" {
		parsed = output.DetectFormat("")
	}
	a.config.Format = string(parsed)

	var tee io.Writer
	if a.config.LogDir != "" {
		f, err := a.openLogFile(a.config.LogDir)
		if err != nil {
			return err
		}
		tee = f
	}

	logger := NewLogger(a.config, tee)
	a.logger = &logger
	logging.SetDefault(logger)

	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
	return nil
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // Ignoring write error since we're exiting anyway
		_, _ = io.WriteString(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage formats a fatal error, with a hint for the common causes.
func errorMessage(err error) string {
	msg := "Error: " + err.Error() + "\n"
	switch {
	case errors.IsUnauthorized(err):
		msg += "Hint: check client_settings.user_id, user_secret and oauth in the config file.\n"
	case errors.IsValidationError(err):
		msg += "Hint: run 'itemtype validate' to check the config file and CSV.\n"
	}
	return msg
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
