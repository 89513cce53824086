package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"setup-board/internal/cache"
	"setup-board/internal/installer"
	"setup-board/internal/logger"
	"setup-board/internal/manifest"
	"setup-board/internal/platform"
)

// fresh discards the tools directory and resume record before provisioning.
var fresh bool

// toolsDir overrides the default toolchain install location.
var toolsDir string

// manifestPath overrides the embedded artifact manifest.
var manifestPath string

// setupCmd provisions the complete toolchain: prerequisite checks, a Python
// virtualenv, the manifest artifacts for this platform/architecture, the
// build tool, and the resulting execution environment persisted to the
// workspace config.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the embedded toolchain for this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		host := platform.Detect(toolsDir)

		m := manifest.Default()
		if manifestPath != "" {
			var err error
			m, err = manifest.LoadFile(manifestPath)
			if err != nil {
				return err
			}
		}

		// Interrupt requests are observed between pipeline steps; the step
		// in flight always runs to completion.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline := &installer.Pipeline{
			Host:     host,
			Manifest: m,
			Fetcher:  cache.New(host.CacheDir()),
			Store:    store(),
			Fresh:    fresh,
			Progress: func(pct int, step string) {
				logger.Info("[INFO] [%3d%%] %s\n", pct, step)
			},
		}
		return pipeline.Provision(ctx)
	},
}

func init() {
	setupCmd.Flags().BoolVar(&fresh, "fresh", false, "Discard the tools directory and provision from scratch")
	setupCmd.Flags().StringVar(&toolsDir, "tools-dir", "", "Toolchain install directory (default ~/.setup-board/tools)")
	setupCmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to a custom artifact manifest")
	rootCmd.AddCommand(setupCmd)
}
