package cli

import (
	"github.com/spf13/cobra"
)

// AddShortcuts adds shortcut commands to the root command.
// Shortcuts provide convenient aliases for commonly-used operations.
func AddShortcuts(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newListShortcut("stations", "st"))
	rootCmd.AddCommand(newListShortcut("wallets", "wl"))
	rootCmd.AddCommand(newListShortcut("transactions", "tx"))
}

// newListShortcut creates a shortcut for 'list <resource>'.
func newListShortcut(resource, alias string) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:     resource,
		Aliases: []string{alias},
		Short:   "List " + resource + " (shortcut for 'list " + resource + "')",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			return listResource(cmd.Context(), cfg, client, resource, cmd.OutOrStdout(), opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}
