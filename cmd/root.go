package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"setup-board/internal/builder"
	"setup-board/internal/config"
	"setup-board/internal/logger"
	"setup-board/internal/platform"
)

// debug flag indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// workspace is the workspace root every command operates against.
// Configuration, project discovery, and build output live under it.
var workspace string

// rootCmd is the base command for the CLI tool `setup-board`.
// It sets up the root-level CLI structure and provides global flags.
var rootCmd = &cobra.Command{
	Use:   "setup-board",
	Short: "Embedded toolchain setup and build tool",

	SilenceUsage:  true,
	SilenceErrors: true,

	// PersistentPreRun is a hook that runs before any subcommand.
	// Here, we initialize the logger based on the debug flag.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug) // Set up logging (verbose if --debug is true)
	},
}

// Execute initializes flags and starts the command execution.
// It's the entry point for the CLI when invoked by the user.
func Execute() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace root directory")

	if err := rootCmd.Execute(); err != nil {
		logger.Error("[ERROR] %v\n", err)
		os.Exit(1)
	}
}

// store returns the config store for the selected workspace.
func store() *config.Store {
	return config.NewStore(workspace)
}

// newBuilder wires the orchestrator for the selected workspace, using the
// shell strategy of the detected host.
func newBuilder() *builder.Builder {
	host := platform.Detect("")
	return &builder.Builder{
		Runner:    host.Runner,
		Store:     store(),
		Workspace: workspace,
	}
}
