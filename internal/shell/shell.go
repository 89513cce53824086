// Package shell runs external commands through a per-platform shell strategy
// selected once at startup. Every invocation is synchronous: the caller
// suspends until the process exits and receives its captured output.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"setup-board/internal/environ"
	"setup-board/internal/logger"
)

// Options carries the explicit execution context for one command.
// The spawned process inherits nothing from the host beyond what Env names.
type Options struct {
	Env environ.Env // Full environment for the child process
	Dir string      // Working directory; empty means the caller's
}

// Result holds the captured output of a completed command.
type Result struct {
	Stdout string
	Stderr string
}

// ExitError reports a command that spawned but exited non-zero, or failed to
// spawn at all. Captured output is retained so callers can surface detail.
type ExitError struct {
	Command string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes a single shell command line.
type Runner interface {
	Run(ctx context.Context, command string, opts Options) (*Result, error)

	// Quote escapes one argument, typically a path, so the shell passes it
	// through literally when embedded in a Run command line.
	Quote(arg string) string
}

// New selects the shell strategy for the given platform identifier
// ("win32", "darwin", "linux"). Prerequisite checks and provisioning steps
// run on every platform; only the shell wrapping differs.
func New(platform string) Runner {
	if platform == "win32" {
		return windowsRunner{}
	}
	return posixRunner{}
}

// posixRunner wraps the command line in `bash -c`, matching how toolchain
// setup scripts expect to be invoked on darwin and linux.
type posixRunner struct{}

func (posixRunner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	return run(ctx, exec.CommandContext(ctx, "bash", "-c", command), command, opts)
}

// Quote single-quotes the argument. Inside single quotes bash expands
// nothing, so embedded spaces, dollar signs, and backslashes survive intact;
// an embedded single quote is closed, escaped, and reopened.
func (posixRunner) Quote(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// windowsRunner wraps the command line in `cmd /C` so builtins and .bat
// shims resolve the same way they would in a developer prompt.
type windowsRunner struct{}

func (windowsRunner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	return run(ctx, exec.CommandContext(ctx, "cmd", "/C", command), command, opts)
}

// Quote double-quotes the argument for cmd.exe, which treats $ and backslash
// literally. cmd has no escape for an embedded double quote; tool and
// workspace paths never carry one.
func (windowsRunner) Quote(arg string) string {
	return `"` + arg + `"`
}

// run executes a prepared command with captured stdout/stderr.
// The full command line is logged at debug level before execution,
// and the first line of any failure output at debug level after.
func run(ctx context.Context, cmd *exec.Cmd, command string, opts Options) (*Result, error) {
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env.Slice()
	}
	cmd.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("[DEBUG] Running command: %s\n", command)
	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		logger.Debug("[DEBUG] Command failed: %s: %v (%s)\n", command, err, firstLine(res.Stderr))
		return res, &ExitError{Command: command, Stdout: res.Stdout, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
