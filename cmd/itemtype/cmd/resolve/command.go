// Package resolve provides the resolve command, a single key lookup.
package resolve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/itemtype/internal/appcontext"
	"github.com/agentstation/itemtype/internal/cmd/output"
	"github.com/agentstation/itemtype/internal/resolver"
	"github.com/agentstation/itemtype/pkg/logging"
)

// NewCommand creates the resolve command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <field> <value>",
		GroupID: "diagnostics",
		Short:   "Look up the item id for one key value",
		Long: `Resolve searches for items whose field contains exactly the given value
and prints the outcome the update command would use: the item id when one
item matches, otherwise not_found or ambiguous.`,
		Args: cobra.ExactArgs(2),
		Example: `  itemtype resolve documentKey REQ-12
  itemtype resolve name "Brake pedal" --config prod.ini -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Execute(cmd.Context(), app, args[0], args[1])
		},
	}
}

// Execute resolves value in field and prints the outcome. An unresolved
// key is reported, not returned as an error; a failed search is an error.
func Execute(ctx context.Context, app appcontext.Interface, field, value string) error {
	ctx = logging.WithLogger(ctx, app.Logger())

	cfg, err := app.LoadConfig("")
	if err != nil {
		return err
	}
	client, err := app.Tracker(cfg)
	if err != nil {
		return err
	}

	outcome := resolver.New(client).Resolve(ctx, field, value)
	if outcome.Cause != nil {
		return outcome.Err()
	}
	return output.WriteOutcome(app.Stdout(), output.Format(app.OutputFormat()), outcome)
}
