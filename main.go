package main

import (
	"setup-board/cmd" // Import the cmd package which contains the CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line argument parsing and execution.
//
// This design cleanly separates the CLI interface (cmd package) from main,
// allowing easier testing, extension, and reuse of the CLI commands.
//
// The setup-board project is a toolchain provisioner for embedded (Zephyr-style)
// development that:
//   - Provisions a complete cross-compilation toolchain onto the developer machine,
//     driven by a platform/architecture manifest of downloadable artifacts
//     (compiler, device tree compiler, build generator, support tools)
//   - Verifies cached and freshly downloaded artifacts against their declared
//     MD5 digests before accepting them
//   - Accumulates an execution environment (PATH plus toolchain variables) as
//     artifacts are installed, and persists it as the workspace configuration
//   - Tracks provisioning progress in a small JSON record so an interrupted run
//     can resume without repeating completed disk work
//   - Orchestrates source checkout, build, flash, and clean operations against
//     a selected project and target board using the stored environment
//
// Error handling strategy:
//   - Any failure during provisioning aborts the run immediately; nothing is
//     retried automatically and the reason is reported to the user
//   - Commands invoked before provisioning or selection has happened fail with
//     guidance rather than partial behavior
//
// Integration points:
//   - Downloads artifacts over HTTP into a local cache directory and extracts
//     zip/7z/tar archives natively
//   - Runs external tools (git, python, pip, west) through a per-platform shell
//     strategy selected once at startup
func main() {
	cmd.Execute()
}
