package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"setup-board/internal/config"
	"setup-board/internal/environ"
	"setup-board/internal/logger"
	"setup-board/internal/manifest"
	"setup-board/internal/platform"
	"setup-board/internal/shell"
)

// VenvDir is the virtualenv's subpath under the tools directory.
const VenvDir = ".venv"

// progressFile records the last completed provisioning step under the tools
// directory, allowing an interrupted run to resume without repeating disk
// work that already succeeded.
const progressFile = "progress.json"

// toolchainVariant is the value advertised to the build system. The
// compiler's location is derived from the resolved manifest downloads.
const toolchainVariant = "gnuarmemb"

// compilerPrefix identifies the manifest entry that supplies the cross
// compiler, used to derive the toolchain path variable.
const compilerPrefix = "gcc"

// Pipeline provisions the toolchain: prerequisite checks, virtualenv,
// manifest resolution, artifact installation, build tool install, and
// persistence of the accumulated environment. Steps run strictly in
// sequence; the first failure aborts the run with its reason.
type Pipeline struct {
	Host     platform.Host
	Manifest manifest.Manifest
	Fetcher  Fetcher
	Store    *config.Store

	// Progress, when non-nil, receives advisory percentage ticks with the
	// name of the step about to run.
	Progress func(pct int, step string)

	// Fresh discards the tools directory and the resume record before
	// provisioning, forcing a from-scratch run.
	Fresh bool
}

// runState is the mutable state threaded through the steps of one run.
type runState struct {
	env       environ.Env
	downloads []manifest.Download
	resumeAt  int // index of the first step whose disk work may be incomplete
}

// step pairs a named pipeline stage with its progress milestone. diskOnly
// marks steps whose effect is purely on disk and can therefore be skipped on
// resume when the record and the disk agree; probes and environment
// mutations always re-run.
type step struct {
	name     string
	pct      int
	diskOnly bool
	run      func(ctx context.Context, st *runState) error
}

func (p *Pipeline) steps() []step {
	return []step{
		{"tools directory", 5, true, p.ensureToolsDir},
		{"git check", 10, false, p.checkGit},
		{"python check", 15, false, p.checkPython},
		{"pip bootstrap", 20, false, p.ensurePip},
		{"virtualenv tool", 25, false, p.installVirtualenvTool},
		{"virtualenv", 30, true, p.createVirtualenv},
		{"virtualenv activation", 35, false, p.activateVirtualenv},
		{"manifest resolution", 40, false, p.resolveManifest},
		{"toolchain artifacts", 45, true, p.installArtifacts},
		{"build tool", 85, true, p.installBuildTool},
		{"toolchain variables", 90, false, p.setToolchainVariables},
		{"configuration", 95, false, p.persist},
	}
}

// Provision runs the pipeline to completion. Cancellation is observed
// between steps only: the step in flight always runs to completion, and no
// completed step is undone.
func (p *Pipeline) Provision(ctx context.Context) error {
	if p.Fresh {
		logger.Info("[INFO] Fresh setup requested. Removing %s\n", p.Host.ToolsDir)
		if err := os.RemoveAll(p.Host.ToolsDir); err != nil {
			return fmt.Errorf("clear tools directory: %w", err)
		}
	}

	steps := p.steps()
	st := &runState{env: environ.FromHost(), resumeAt: 0}
	if last := p.loadRecord(); last != "" {
		for i, s := range steps {
			if s.name == last {
				st.resumeAt = i + 1
				logger.Info("[INFO] Resuming setup after %q\n", last)
				break
			}
		}
	}

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("setup cancelled before %s: %w", s.name, err)
		}
		p.report(s.pct, s.name)

		if s.diskOnly && i < st.resumeAt && p.diskAgrees(s.name, st) {
			logger.Debug("[DEBUG] Skipping completed step %q\n", s.name)
			// Environment contributions of skipped steps are replayed by
			// the non-diskOnly steps that follow them.
			if s.name == "toolchain artifacts" {
				p.replayArtifactPaths(st)
			}
			continue
		}

		if err := s.run(ctx, st); err != nil {
			return fmt.Errorf("%s failed: %w", s.name, err)
		}
		p.saveRecord(s.name)
	}

	p.report(100, "complete")
	logger.Info("[INFO] Toolchain setup complete. Tools installed under %s\n", p.Host.ToolsDir)
	return nil
}

func (p *Pipeline) report(pct int, name string) {
	if p.Progress != nil {
		p.Progress(pct, name)
	}
}

// --- steps ---

func (p *Pipeline) ensureToolsDir(ctx context.Context, st *runState) error {
	// Idempotent: an existing directory is not an error.
	return os.MkdirAll(p.Host.ToolsDir, 0755)
}

func (p *Pipeline) checkGit(ctx context.Context, st *runState) error {
	if _, err := p.Host.Runner.Run(ctx, "git --version", shell.Options{Env: st.env}); err != nil {
		return fmt.Errorf("git was not found; install git and run setup again: %w", err)
	}
	return nil
}

func (p *Pipeline) checkPython(ctx context.Context, st *runState) error {
	py := p.Host.PythonCommand()
	res, err := p.Host.Runner.Run(ctx, py+" --version", shell.Options{Env: st.env})
	if err != nil {
		return fmt.Errorf("%s was not found; install Python 3 and run setup again: %w", py, err)
	}
	// Some interpreters print the version banner on stderr.
	if !strings.Contains(res.Stdout+res.Stderr, "Python 3") {
		return fmt.Errorf("%s is not a Python 3 interpreter: %q", py, strings.TrimSpace(res.Stdout+res.Stderr))
	}
	return nil
}

func (p *Pipeline) ensurePip(ctx context.Context, st *runState) error {
	py := p.Host.PythonCommand()
	if _, err := p.Host.Runner.Run(ctx, py+" -m ensurepip --default-pip", shell.Options{Env: st.env}); err != nil {
		return fmt.Errorf("pip bootstrap failed: %w", err)
	}
	return nil
}

func (p *Pipeline) installVirtualenvTool(ctx context.Context, st *runState) error {
	py := p.Host.PythonCommand()
	if _, err := p.Host.Runner.Run(ctx, py+" -m pip install virtualenv", shell.Options{Env: st.env}); err != nil {
		return fmt.Errorf("virtualenv install failed: %w", err)
	}
	return nil
}

func (p *Pipeline) createVirtualenv(ctx context.Context, st *runState) error {
	py := p.Host.PythonCommand()
	venv := filepath.Join(p.Host.ToolsDir, VenvDir)
	cmd := fmt.Sprintf("%s -m virtualenv %s", py, p.Host.Runner.Quote(venv))
	if _, err := p.Host.Runner.Run(ctx, cmd, shell.Options{Env: st.env}); err != nil {
		return fmt.Errorf("virtualenv creation at %s failed: %w", venv, err)
	}
	return nil
}

func (p *Pipeline) activateVirtualenv(ctx context.Context, st *runState) error {
	// No activation script is sourced; putting the virtualenv's executable
	// directory first on the path is sufficient and shell-independent.
	st.env.PrependPath(p.Host.VenvBinDir(filepath.Join(p.Host.ToolsDir, VenvDir)))
	return nil
}

func (p *Pipeline) resolveManifest(ctx context.Context, st *runState) error {
	downloads, err := manifest.Resolve(p.Manifest, p.Host.OS, p.Host.Arch)
	if err != nil {
		return err
	}
	st.downloads = downloads
	return nil
}

func (p *Pipeline) installArtifacts(ctx context.Context, st *runState) error {
	for _, d := range st.downloads {
		logger.Info("[INFO] Installing %s...\n", d.Name)
		if err := InstallArtifact(ctx, d, p.Host.ToolsDir, p.Fetcher, st.env, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) installBuildTool(ctx context.Context, st *runState) error {
	// pip resolves from the virtualenv, which is first on the path by now.
	if _, err := p.Host.Runner.Run(ctx, "pip install west", shell.Options{Env: st.env}); err != nil {
		return fmt.Errorf("build tool install failed: %w", err)
	}
	return nil
}

func (p *Pipeline) setToolchainVariables(ctx context.Context, st *runState) error {
	st.env.Set("ZEPHYR_TOOLCHAIN_VARIANT", toolchainVariant)
	st.env.Set("GNUARMEMB_TOOLCHAIN_PATH", p.toolchainPath(st))
	return nil
}

// toolchainPath derives the compiler's install location from the resolved
// downloads, falling back to the conventional name when the manifest names
// no compiler (custom manifests may install one out of band).
func (p *Pipeline) toolchainPath(st *runState) string {
	for _, d := range st.downloads {
		if strings.HasPrefix(d.Name, compilerPrefix) {
			return DestDir(d, p.Host.ToolsDir)
		}
	}
	return filepath.Join(p.Host.ToolsDir, "gcc-arm-none-eabi")
}

func (p *Pipeline) persist(ctx context.Context, st *runState) error {
	// Board and project selections survive re-provisioning; only the
	// environment is replaced.
	cfg := p.Store.Load()
	cfg.Env = st.env
	return p.Store.Save(cfg)
}

// --- resume record ---

type progressRecord struct {
	LastCompleted string `json:"last_completed_step"`
}

func (p *Pipeline) loadRecord() string {
	raw, err := os.ReadFile(filepath.Join(p.Host.ToolsDir, progressFile))
	if err != nil {
		return ""
	}
	var rec progressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ""
	}
	return rec.LastCompleted
}

func (p *Pipeline) saveRecord(name string) {
	raw, err := json.Marshal(progressRecord{LastCompleted: name})
	if err != nil {
		return
	}
	path := filepath.Join(p.Host.ToolsDir, progressFile)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		logger.Debug("[DEBUG] Failed to write resume record %s: %v\n", path, err)
	}
}

// diskAgrees checks that a recorded step's on-disk effect is still present,
// so a resume never trusts the record over reality.
func (p *Pipeline) diskAgrees(name string, st *runState) bool {
	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
	switch name {
	case "tools directory":
		return exists(p.Host.ToolsDir)
	case "virtualenv":
		return exists(filepath.Join(p.Host.ToolsDir, VenvDir))
	case "toolchain artifacts":
		for _, d := range st.downloads {
			if !exists(DestDir(d, p.Host.ToolsDir)) {
				return false
			}
		}
		return len(st.downloads) > 0
	case "build tool":
		// The build tool lives inside the virtualenv; presence of the venv
		// executable directory is the best cheap signal.
		return exists(p.Host.VenvBinDir(filepath.Join(p.Host.ToolsDir, VenvDir)))
	default:
		return false
	}
}

// replayArtifactPaths re-applies the path contributions of already-installed
// artifacts. Materialization is skippable on resume but the accumulated
// environment only exists in memory and must always be rebuilt.
func (p *Pipeline) replayArtifactPaths(st *runState) {
	for _, d := range st.downloads {
		st.env.PrependPath(BinDir(d, p.Host.ToolsDir))
	}
}
