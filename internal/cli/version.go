package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memohai/streambind/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "streambind %s\n", version.GetInfo())
		},
	}
}
