package platform

import (
	"path/filepath"
	"testing"
)

// TestManifestOSMapping verifies GOOS values map onto manifest platform keys.
func TestManifestOSMapping(t *testing.T) {
	cases := map[string]string{
		"windows": "win32",
		"darwin":  "darwin",
		"linux":   "linux",
	}
	for goos, want := range cases {
		if got := manifestOS(goos); got != want {
			t.Errorf("manifestOS(%q) = %q, want %q", goos, got, want)
		}
	}
}

// TestManifestArchMapping verifies GOARCH values map onto manifest arch keys.
func TestManifestArchMapping(t *testing.T) {
	cases := map[string]string{
		"amd64": "x64",
		"386":   "ia32",
		"arm64": "arm64",
	}
	for goarch, want := range cases {
		if got := manifestArch(goarch); got != want {
			t.Errorf("manifestArch(%q) = %q, want %q", goarch, got, want)
		}
	}
}

// TestPythonCommand verifies the interpreter name differs only on win32.
func TestPythonCommand(t *testing.T) {
	if got := (Host{OS: "win32"}).PythonCommand(); got != "python" {
		t.Errorf("win32 PythonCommand = %q, want python", got)
	}
	if got := (Host{OS: "linux"}).PythonCommand(); got != "python3" {
		t.Errorf("linux PythonCommand = %q, want python3", got)
	}
}

// TestVenvBinDir verifies the virtualenv layout per platform.
func TestVenvBinDir(t *testing.T) {
	if got := (Host{OS: "win32"}).VenvBinDir("venv"); got != filepath.Join("venv", "Scripts") {
		t.Errorf("win32 VenvBinDir = %q", got)
	}
	if got := (Host{OS: "darwin"}).VenvBinDir("venv"); got != filepath.Join("venv", "bin") {
		t.Errorf("darwin VenvBinDir = %q", got)
	}
}

// TestDetectToolsDirOverride verifies an explicit tools dir is kept as given.
func TestDetectToolsDirOverride(t *testing.T) {
	h := Detect("/opt/toolchain")
	if h.ToolsDir != "/opt/toolchain" {
		t.Fatalf("ToolsDir = %q, want /opt/toolchain", h.ToolsDir)
	}
	if h.Runner == nil {
		t.Fatal("Detect left Runner nil")
	}
	if h.CacheDir() != filepath.Join("/opt/toolchain", "cache") {
		t.Fatalf("CacheDir = %q", h.CacheDir())
	}
}
