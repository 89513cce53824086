package cmd

import (
	"github.com/spf13/cobra"
)

// pristine forces a from-scratch build regardless of incremental state.
var pristine bool

// buildCmd compiles the selected project for the selected board. With no
// board selected it prompts inline instead of failing.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the selected project for the selected board",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newBuilder().Build(cmd.Context(), pristine)
	},
}

// flashCmd programs the current build output onto the attached board.
var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Flash the current build output onto the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newBuilder().Flash(cmd.Context())
	},
}

// cleanCmd removes the generated build tree under the workspace.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the build output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newBuilder().Clean()
	},
}

func init() {
	buildCmd.Flags().BoolVarP(&pristine, "pristine", "p", false, "Build from scratch, discarding incremental state")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(cleanCmd)
}
