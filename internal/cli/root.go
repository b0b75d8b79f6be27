// Package cli wires Cobra subcommands to application dependencies; it is a
// thin controller with no business logic.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "streambind",
		Short:         "Channel binding and message dispatch runtime",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}
