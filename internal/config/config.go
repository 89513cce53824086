// Package config persists the workspace configuration: the selected board,
// the selected project, and the execution environment produced by
// provisioning. Every later command reads this record and refuses to run
// when its required fields are absent.
package config

import (
	"encoding/json" // For JSON encoding and decoding of the config file
	"fmt"
	"os" // For file system operations like reading and writing files
	"path/filepath"

	"setup-board/internal/environ"
	"setup-board/internal/logger"
)

// FileName is the config record's name under the workspace root.
const FileName = ".setup-board.json"

// Config is the persisted workspace record. Env is populated once by
// provisioning and is a superset of the host environment from then on;
// Board and Project are set by their selection commands.
type Config struct {
	Board   string      `json:"board,omitempty"`   // Selected target board, one of Boards()
	Project string      `json:"project,omitempty"` // Selected project directory path
	Env     environ.Env `json:"env,omitempty"`     // Execution environment from provisioning
}

// Provisioned reports whether the provisioning pipeline has completed at
// least once. The check is an explicit presence test on Env, not a
// whole-record comparison.
func (c *Config) Provisioned() bool { return len(c.Env) > 0 }

// HasBoard reports whether a target board has been selected.
func (c *Config) HasBoard() bool { return c.Board != "" }

// HasProject reports whether a project has been selected.
func (c *Config) HasProject() bool { return c.Project != "" }

// Store reads and writes the config record for one workspace.
type Store struct {
	Path string
}

// NewStore returns the store for the given workspace root.
func NewStore(workspace string) *Store {
	return &Store{Path: filepath.Join(workspace, FileName)}
}

// Load reads the persisted config. A missing or unreadable file yields an
// empty config rather than an error, matching first-use behavior.
func (s *Store) Load() *Config {
	file, err := os.ReadFile(s.Path)
	if err != nil {
		return &Config{Env: environ.Env{}}
	}

	var cfg Config
	_ = json.Unmarshal(file, &cfg)

	// Defensive: keep Env non-nil so presence checks and mutation are safe.
	if cfg.Env == nil {
		cfg.Env = environ.Env{}
	}
	return &cfg
}

// Save writes the config as indented JSON. Failures are logged and returned,
// so a caller mid-pipeline aborts instead of finishing with no record on
// disk.
func (s *Store) Save(cfg *Config) error {
	file, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		logger.Error("[ERROR] Failed to marshal config: %v\n", err)
		return fmt.Errorf("marshal config: %w", err)
	}

	logger.Debug("[DEBUG] Writing config to %s:\n%s\n", s.Path, string(file))

	if err := os.WriteFile(s.Path, file, 0644); err != nil {
		logger.Error("[ERROR] Failed to write config file %s: %v\n", s.Path, err)
		return fmt.Errorf("write config file %s: %w", s.Path, err)
	}
	return nil
}

// boards is the fixed set of supported target boards.
var boards = []string{
	"nrf52840dk_nrf52840",
	"nrf5340dk_nrf5340_cpuapp",
	"nucleo_f401re",
	"stm32f4_disco",
	"esp32_devkitc_wroom",
	"qemu_cortex_m3",
}

// Boards returns the fixed, ordered set of supported target boards.
func Boards() []string {
	out := make([]string, len(boards))
	copy(out, boards)
	return out
}

// ValidBoard reports whether name is one of the supported boards.
func ValidBoard(name string) bool {
	for _, b := range boards {
		if b == name {
			return true
		}
	}
	return false
}
