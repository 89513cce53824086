package cmd

import (
	"github.com/spf13/cobra"
)

// initRepoCmd checks out the source tree from a manifest repository and
// installs its Python dependencies. The underlying tasks run strictly in
// sequence; a failure stops the remainder.
var initRepoCmd = &cobra.Command{
	Use:   "init-repo <manifest-url>",
	Short: "Initialize the source repository and install its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newBuilder().InitRepo(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(initRepoCmd)
}
