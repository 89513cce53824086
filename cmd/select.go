package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"setup-board/internal/builder"
	"setup-board/internal/config"
	"setup-board/internal/logger"
	"setup-board/internal/project"
)

// projectCmd selects the active project. With a path argument the directory
// is validated directly; without one the workspace is scanned and the
// candidates offered for selection.
var projectCmd = &cobra.Command{
	Use:   "project [path]",
	Short: "Select the project to build",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var chosen string
		if len(args) == 1 {
			chosen = args[0]
			if !project.IsProject(chosen) {
				return fmt.Errorf("%s does not contain a %s declaring a project", chosen, project.BuildFile)
			}
		} else {
			candidates, err := project.Discover(workspace)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return fmt.Errorf("no projects found under %s", workspace)
			}
			chosen, err = builder.Choose(os.Stdin, "project", candidates)
			if err != nil {
				return err
			}
		}

		abs, err := filepath.Abs(chosen)
		if err != nil {
			return err
		}
		s := store()
		cfg := s.Load()
		cfg.Project = abs
		if err := s.Save(cfg); err != nil {
			return err
		}
		logger.Info("[INFO] Project set to %s\n", abs)
		return nil
	},
}

// boardCmd selects the target board, by argument or interactively from the
// fixed board list.
var boardCmd = &cobra.Command{
	Use:   "board [name]",
	Short: "Select the target board",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var chosen string
		if len(args) == 1 {
			chosen = args[0]
			if !config.ValidBoard(chosen) {
				return fmt.Errorf("unknown board %q; supported: %s", chosen, strings.Join(config.Boards(), ", "))
			}
		} else {
			var err error
			chosen, err = builder.SelectBoard(os.Stdin)
			if err != nil {
				return err
			}
		}

		s := store()
		cfg := s.Load()
		cfg.Board = chosen
		if err := s.Save(cfg); err != nil {
			return err
		}
		logger.Info("[INFO] Board set to %s\n", chosen)
		return nil
	},
}

// portCmd will select the serial port used for monitoring.
// TODO: enumerate serial devices per platform and persist the selection.
var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Select the COM port for the board monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Warn("[WARN] COM port selection is not implemented yet.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(portCmd)
}
