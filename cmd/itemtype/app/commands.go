package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/itemtype/cmd/itemtype/cmd/resolve"
	"github.com/agentstation/itemtype/cmd/itemtype/cmd/update"
	"github.com/agentstation/itemtype/cmd/itemtype/cmd/validate"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(update.NewCommand(a))
	rootCmd.AddCommand(validate.NewCommand(a))
	rootCmd.AddCommand(resolve.NewCommand(a))
	rootCmd.AddCommand(a.NewVersionCommand())
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, err := fmt.Fprintf(w,
				"itemtype version %s\ncommit: %s\nbuilt: %s\nbuilt by: %s\ngo version: %s\nplatform: %s/%s\n",
				a.version, a.commit, a.date, a.builtBy,
				runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
