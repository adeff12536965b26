// Package validate provides the validate command. It checks the
// configuration and the CSV without contacting the service.
package validate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/cmd/output"
	"github.com/agentstation/itemtype/internal/rows"
)

// NewCommand creates the validate command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "validate [config]",
		GroupID: "diagnostics",
		Short:   "Check the configuration and CSV columns without contacting the service",
		Args:    cobra.MaximumNArgs(1),
		Example: `  itemtype validate
  itemtype validate prod.ini -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return Execute(cmd.Context(), app, path)
		},
	}
}

// Execute loads the configuration, extracts the rows and prints them.
func Execute(_ context.Context, app appcontext.Interface, path string) error {
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return err
	}

	s := cfg.Settings
	extracted, err := rows.Extract(s.CSVFilePath, s.SourceHeader, s.DestinationHeader)
	if err != nil {
		return err
	}

	empty := 0
	for _, r := range extracted {
		if r.SourceKey == "" || r.DestinationKey == "" {
			empty++
		}
	}
	app.Logger().Info().
		Str("config", cfg.Path).
		Str("file", s.CSVFilePath).
		Int("rows", len(extracted)).
		Int("rows_with_empty_keys", empty).
		Bool("using_api_id", s.UsingDirectIdentifiers).
		Msg("Configuration and CSV are valid")

	return output.WriteRows(app.Stdout(), output.Format(app.OutputFormat()), extracted)
}
