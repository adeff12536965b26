// Package update provides the update command, the full reconciliation run.
package update

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/cmd/output"
	"github.com/agentstation/itemtype/internal/patch"
	"github.com/agentstation/itemtype/internal/reconcile"
	"github.com/agentstation/itemtype/internal/resolver"
	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
	"github.com/agentstation/itemtype/pkg/logging"
)

// Flags holds update-specific flags.
type Flags struct {
	DryRun      bool
	Concurrency int
}

// NewCommand creates the update command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "update [config]",
		GroupID: "core",
		Short:   "Set the item-of-type field for every row of the CSV",
		Args:    cobra.MaximumNArgs(1),
		Long: `Update reads the CSV named in the configuration and, for each row, sets
the configured field of the destination item to the source item's id.

In lookup mode each distinct key is searched once; rows whose key matches no
item, or more than one, are skipped. A failed update is reported and the run
continues with the next item.`,
		Example: `  itemtype update                        # Use ./config.ini
  itemtype update prod.ini               # Use another config file
  itemtype update --dry-run -o wide      # Show the updates without sending them
  itemtype update --concurrency 4        # Resolve up to 4 rows at once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return Execute(cmd.Context(), app, path, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "resolve and build updates without sending them")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", constants.DefaultConcurrency, "rows resolved in parallel (max 16)")

	return cmd
}

// Execute runs the update.
func Execute(ctx context.Context, app appcontext.Interface, path string, flags *Flags) error {
	if flags.Concurrency < 1 || flags.Concurrency > constants.MaxConcurrency {
		return errors.NewValidationError("concurrency", flags.Concurrency, "must be between 1 and 16")
	}
	ctx = logging.WithLogger(ctx, app.Logger())

	cfg, err := app.LoadConfig(path)
	if err != nil {
		return err
	}

	client, err := app.Tracker(cfg)
	if err != nil {
		return err
	}

	var res reconcile.Resolver
	if !cfg.Settings.UsingDirectIdentifiers {
		res = resolver.New(client)
	}

	runner := reconcile.New(cfg.Settings, res, patch.NewExecutor(client),
		reconcile.WithConcurrency(flags.Concurrency),
		reconcile.WithDryRun(flags.DryRun),
	)

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	return output.WriteResult(app.Stdout(), output.Format(app.OutputFormat()), result)
}
