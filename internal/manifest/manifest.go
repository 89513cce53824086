// Package manifest defines the artifact manifest and its platform/arch
// resolution. The manifest is static structured data keyed by platform name;
// a copy covering the supported platforms ships embedded in the binary.
package manifest

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var embedded []byte

// Download describes one installable artifact: a toolchain component,
// interpreter runtime, or support tool.
type Download struct {
	Name     string `yaml:"name"`             // Logical artifact name; also its directory under the tools dir
	URL      string `yaml:"url"`              // Source URL; the extension decides the materialization policy
	MD5      string `yaml:"md5"`              // Hex digest verified before a cached or fresh artifact is accepted
	Suffix   string `yaml:"suffix,omitempty"` // Optional path segment to the executables, e.g. "bin"
	Filename string `yaml:"filename"`         // Cache filename for the download
}

// Entry lists the downloads for one supported CPU architecture of a platform.
// Download order is significant: later artifacts may expect earlier ones to
// already be on the search path.
type Entry struct {
	Arch      string     `yaml:"arch"`
	Downloads []Download `yaml:"downloads"`
}

// Manifest maps a platform name (win32, darwin, linux) to its entries.
type Manifest map[string][]Entry

// UnsupportedPlatformError reports a platform absent from the manifest.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("platform %q is not supported by the toolchain manifest", e.Platform)
}

// UnsupportedArchError reports a platform present in the manifest but with no
// entry for the requested CPU architecture.
type UnsupportedArchError struct {
	Platform string
	Arch     string
}

func (e *UnsupportedArchError) Error() string {
	return fmt.Sprintf("architecture %q is not supported on %s", e.Arch, e.Platform)
}

// Load parses a manifest from r.
func Load(r io.Reader) (Manifest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var wrapper struct {
		Platforms Manifest `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(wrapper.Platforms) == 0 {
		return nil, fmt.Errorf("manifest declares no platforms")
	}
	return wrapper.Platforms, nil
}

// LoadFile parses a manifest from a file on disk.
func LoadFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the manifest embedded in the binary.
func Default() Manifest {
	var wrapper struct {
		Platforms Manifest `yaml:"platforms"`
	}
	// The embedded copy is validated by tests; a parse failure here is a
	// build defect, not a runtime condition.
	if err := yaml.Unmarshal(embedded, &wrapper); err != nil {
		panic("embedded manifest is invalid: " + err.Error())
	}
	return wrapper.Platforms
}

// Resolve returns the ordered download list for the given platform and
// architecture. The architecture scan covers every entry before failing so
// the error genuinely means "no match", not "stopped early".
func Resolve(m Manifest, platform, arch string) ([]Download, error) {
	entries, ok := m[platform]
	if !ok {
		return nil, &UnsupportedPlatformError{Platform: platform}
	}
	for _, entry := range entries {
		if entry.Arch == arch {
			return entry.Downloads, nil
		}
	}
	return nil, &UnsupportedArchError{Platform: platform, Arch: arch}
}
