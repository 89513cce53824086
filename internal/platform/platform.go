// Package platform builds the host context once at startup. Every component
// that needs the platform identifier, CPU architecture, tool directory, or
// shell runner receives this struct explicitly; there is no ambient global.
package platform

import (
	"os"
	"path/filepath"
	"runtime"

	"setup-board/internal/shell"
)

// Host describes the machine being provisioned.
type Host struct {
	OS       string       // Manifest platform key: "win32", "darwin", or "linux"
	Arch     string       // Manifest architecture key: "x64" or "arm64"
	ToolsDir string       // Root directory for installed toolchain artifacts
	Runner   shell.Runner // Shell strategy for this platform
}

// Detect builds the Host for the current process. toolsDir may be empty, in
// which case the default under the user home directory is used.
func Detect(toolsDir string) Host {
	osName := manifestOS(runtime.GOOS)
	if toolsDir == "" {
		toolsDir = DefaultToolsDir()
	}
	return Host{
		OS:       osName,
		Arch:     manifestArch(runtime.GOARCH),
		ToolsDir: toolsDir,
		Runner:   shell.New(osName),
	}
}

// DefaultToolsDir returns ~/.setup-board/tools, falling back to a relative
// directory when the home directory cannot be determined.
func DefaultToolsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".setup-board", "tools")
	}
	return filepath.Join(home, ".setup-board", "tools")
}

// CacheDir returns the artifact download cache for this host.
func (h Host) CacheDir() string {
	return filepath.Join(h.ToolsDir, "cache")
}

// PythonCommand returns the interpreter command used for prerequisite checks
// and virtualenv creation. Windows python.org installers register "python";
// everywhere else the unambiguous name is "python3".
func (h Host) PythonCommand() string {
	if h.OS == "win32" {
		return "python"
	}
	return "python3"
}

// VenvBinDir returns the executable directory of a virtualenv rooted at dir.
func (h Host) VenvBinDir(dir string) string {
	if h.OS == "win32" {
		return filepath.Join(dir, "Scripts")
	}
	return filepath.Join(dir, "bin")
}

// manifestOS maps a GOOS value onto the manifest's platform keys, which
// follow the host editor convention (win32/darwin/linux).
func manifestOS(goos string) string {
	if goos == "windows" {
		return "win32"
	}
	return goos
}

// manifestArch maps a GOARCH value onto the manifest's architecture keys.
func manifestArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	default:
		return goarch
	}
}
