// Package builder runs build, flash, and clean operations against the
// selected project and board, using the environment produced by
// provisioning. It is the only consumer of the workspace config at steady
// state.
package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"setup-board/internal/config"
	"setup-board/internal/logger"
	"setup-board/internal/shell"
)

// ErrNotProvisioned gates every operation: nothing external runs until the
// provisioning pipeline has produced an environment.
var ErrNotProvisioned = fmt.Errorf("no toolchain environment; run `setup-board setup` first")

// ErrNoProject gates build until a project has been selected.
var ErrNoProject = fmt.Errorf("no project selected; run `setup-board project` first")

// Builder orchestrates the external build tool over the stored config.
type Builder struct {
	Runner    shell.Runner
	Store     *config.Store
	Workspace string

	// Input is the terminal for the inline board prompt; nil means stdin.
	Input io.Reader
}

// Build runs the build tool for the selected board and project. A missing
// board triggers inline selection instead of failing; a missing environment
// or project fails with guidance. pristine forces a from-scratch build.
func (b *Builder) Build(ctx context.Context, pristine bool) error {
	cfg := b.Store.Load()
	if !cfg.Provisioned() {
		return ErrNotProvisioned
	}
	if !cfg.HasProject() {
		return ErrNoProject
	}
	if !cfg.HasBoard() {
		in := b.Input
		if in == nil {
			in = os.Stdin
		}
		board, err := SelectBoard(in)
		if err != nil {
			return err
		}
		cfg.Board = board
		if err := b.Store.Save(cfg); err != nil {
			return err
		}
	}

	cmd := fmt.Sprintf("west build -b %s", cfg.Board)
	if pristine {
		cmd += " -p always"
	}
	cmd += " " + b.Runner.Quote(cfg.Project)

	res, err := b.Runner.Run(ctx, cmd, shell.Options{Env: cfg.Env, Dir: b.Workspace})
	if err != nil {
		logger.Error("[ERROR] Build failed for %s:\n%s\n", cfg.Board, failureDetail(err, res))
		return fmt.Errorf("build for %s: %w", cfg.Board, err)
	}
	logger.Info("[INFO] Build complete for %s\n", cfg.Board)
	return nil
}

// Flash programs the current build output onto the attached board.
func (b *Builder) Flash(ctx context.Context) error {
	cfg := b.Store.Load()
	if !cfg.Provisioned() {
		return ErrNotProvisioned
	}

	res, err := b.Runner.Run(ctx, "west flash", shell.Options{Env: cfg.Env, Dir: b.Workspace})
	if err != nil {
		logger.Error("[ERROR] Flash failed:\n%s\n", failureDetail(err, res))
		return fmt.Errorf("flash: %w", err)
	}
	logger.Info("[INFO] Flash complete\n")
	return nil
}

// Clean removes the generated build tree. With no board selected there is
// nothing meaningfully built, so the call is a logged no-op rather than an
// error that would block later commands.
func (b *Builder) Clean() error {
	cfg := b.Store.Load()
	if !cfg.Provisioned() {
		return ErrNotProvisioned
	}
	if !cfg.HasBoard() {
		logger.Warn("[WARN] No board selected; nothing to clean.\n")
		return nil
	}

	buildDir := filepath.Join(b.Workspace, "build")
	if err := os.RemoveAll(buildDir); err != nil {
		return fmt.Errorf("remove %s: %w", buildDir, err)
	}
	logger.Info("[INFO] Removed %s\n", buildDir)
	return nil
}

// InitRepo checks out the source tree and installs its Python dependencies.
// The three external tasks run strictly in sequence; each is awaited to
// completion before the next starts.
func (b *Builder) InitRepo(ctx context.Context, url string) error {
	cfg := b.Store.Load()
	if !cfg.Provisioned() {
		return ErrNotProvisioned
	}

	tasks := []string{
		"west init -m " + b.Runner.Quote(url),
		"west update",
		"pip install -r " + b.Runner.Quote(filepath.Join("zephyr", "scripts", "requirements.txt")),
	}
	for _, task := range tasks {
		logger.Info("[INFO] Running %s\n", task)
		res, err := b.Runner.Run(ctx, task, shell.Options{Env: cfg.Env, Dir: b.Workspace})
		if err != nil {
			logger.Error("[ERROR] %s failed:\n%s\n", task, failureDetail(err, res))
			return fmt.Errorf("init-repo: %s: %w", task, err)
		}
	}
	logger.Info("[INFO] Repository initialized\n")
	return nil
}

// Choose prints a numbered list of options and reads a selection from in,
// accepted by number or by exact name. It backs every interactive selection
// prompt in the tool.
func Choose(in io.Reader, what string, options []string) (string, error) {
	logger.Info("[INFO] Choose a %s:\n", what)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s selection: %w", what, err)
	}
	choice := strings.TrimSpace(line)

	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(options) {
			return "", fmt.Errorf("%s selection %d out of range", what, n)
		}
		return options[n-1], nil
	}
	for _, opt := range options {
		if opt == choice {
			return choice, nil
		}
	}
	return "", fmt.Errorf("unknown %s %q", what, choice)
}

// SelectBoard offers the supported boards for selection. Shared by the
// inline build prompt and the board selection command.
func SelectBoard(in io.Reader) (string, error) {
	return Choose(in, "target board", config.Boards())
}

// failureDetail extracts the most useful text from a failed command: the
// captured stderr when present, otherwise stdout, otherwise the error.
func failureDetail(err error, res *shell.Result) string {
	var exitErr *shell.ExitError
	if errors.As(err, &exitErr) {
		if strings.TrimSpace(exitErr.Stderr) != "" {
			return exitErr.Stderr
		}
		if strings.TrimSpace(exitErr.Stdout) != "" {
			return exitErr.Stdout
		}
	}
	if res != nil && strings.TrimSpace(res.Stderr) != "" {
		return res.Stderr
	}
	return err.Error()
}
