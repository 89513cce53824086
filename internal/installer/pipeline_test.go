package installer_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"setup-board/internal/cache"
	"setup-board/internal/config"
	"setup-board/internal/installer"
	"setup-board/internal/manifest"
	"setup-board/internal/platform"
	"setup-board/internal/shell"
)

// fakeRunner records shell invocations and fails on demand. Version probes
// for python answer with a Python 3 banner.
type fakeRunner struct {
	commands []string
	failOn   string
}

func (f *fakeRunner) Run(ctx context.Context, command string, opts shell.Options) (*shell.Result, error) {
	f.commands = append(f.commands, command)
	if f.failOn != "" && strings.HasPrefix(command, f.failOn) {
		return nil, &shell.ExitError{Command: command, Stderr: "command not found", Err: errors.New("exit status 127")}
	}
	if strings.HasPrefix(command, "python") && strings.HasSuffix(command, "--version") {
		return &shell.Result{Stdout: "Python 3.11.4\n"}, nil
	}
	return &shell.Result{}, nil
}

func (f *fakeRunner) Quote(arg string) string { return "'" + arg + "'" }

func (f *fakeRunner) ran(prefix string) bool {
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// tarGzBytes builds an in-memory tar.gz with a single executable file.
func tarGzBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	hdr := &tar.Header{Name: name, Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// zipBytes builds an in-memory zip with a single executable file.
func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func md5Hex(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

type countingHandler struct {
	body []byte
	hits int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hits++
	w.Write(h.body)
}

// testPipeline wires a pipeline over a fake runner and a real cache backed
// by the given artifact server.
func testPipeline(t *testing.T, runner shell.Runner, m manifest.Manifest, arch string) (*installer.Pipeline, *config.Store, string) {
	t.Helper()
	toolsDir := filepath.Join(t.TempDir(), "tools")
	workspace := t.TempDir()
	host := platform.Host{OS: "linux", Arch: arch, ToolsDir: toolsDir, Runner: runner}
	store := config.NewStore(workspace)
	return &installer.Pipeline{
		Host:     host,
		Manifest: m,
		Fetcher:  cache.New(filepath.Join(toolsDir, "cache")),
		Store:    store,
	}, store, toolsDir
}

func gccManifest(url string, body []byte) manifest.Manifest {
	return manifest.Manifest{
		"linux": []manifest.Entry{{
			Arch: "x64",
			Downloads: []manifest.Download{{
				Name:     "gcc",
				URL:      url + "/gcc.tar.gz",
				MD5:      md5Hex(body),
				Filename: "gcc.tar.gz",
			}},
		}},
	}
}

// artifactServer serves one body per URL path, counting total requests.
type artifactServer struct {
	bodies map[string][]byte
	hits   int
}

func (s *artifactServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits++
	body, ok := s.bodies[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(body)
}

// TestProvisionEndToEnd runs the full pipeline against one tar.gz artifact:
// exactly one extraction into <toolsDir>/gcc, <toolsDir>/gcc prepended to
// the path, environment persisted, all external steps invoked in order.
func TestProvisionEndToEnd(t *testing.T) {
	body := tarGzBytes(t, "arm-none-eabi-gcc", "#!elf")
	h := &countingHandler{body: body}
	srv := httptest.NewServer(h)
	defer srv.Close()

	runner := &fakeRunner{}
	p, store, toolsDir := testPipeline(t, runner, gccManifest(srv.URL, body), "x64")

	var milestones []int
	p.Progress = func(pct int, step string) { milestones = append(milestones, pct) }

	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// Artifact materialized by extraction into its destination.
	if _, err := os.Stat(filepath.Join(toolsDir, "gcc", "arm-none-eabi-gcc")); err != nil {
		t.Fatalf("extracted toolchain binary missing: %v", err)
	}
	if h.hits != 1 {
		t.Errorf("artifact downloaded %d times, want 1", h.hits)
	}

	// Every external step ran.
	for _, prefix := range []string{"git --version", "python3 --version", "python3 -m ensurepip", "python3 -m pip install virtualenv", "python3 -m virtualenv", "pip install west"} {
		if !runner.ran(prefix) {
			t.Errorf("external step %q never ran; commands: %v", prefix, runner.commands)
		}
	}

	// Persisted environment: artifact dir first, then the virtualenv, then
	// the host path; toolchain variables set.
	cfg := store.Load()
	if !cfg.Provisioned() {
		t.Fatal("config not provisioned after successful run")
	}
	paths := cfg.Env.PathList()
	if len(paths) < 2 || paths[0] != filepath.Join(toolsDir, "gcc") {
		t.Errorf("PATH[0] = %v, want %s first", paths, filepath.Join(toolsDir, "gcc"))
	}
	venvBin := filepath.Join(toolsDir, installer.VenvDir, "bin")
	if paths[1] != venvBin {
		t.Errorf("PATH[1] = %q, want virtualenv bin %q", paths[1], venvBin)
	}
	if cfg.Env.Get("ZEPHYR_TOOLCHAIN_VARIANT") != "gnuarmemb" {
		t.Errorf("toolchain variant = %q", cfg.Env.Get("ZEPHYR_TOOLCHAIN_VARIANT"))
	}
	if cfg.Env.Get("GNUARMEMB_TOOLCHAIN_PATH") != filepath.Join(toolsDir, "gcc") {
		t.Errorf("toolchain path = %q", cfg.Env.Get("GNUARMEMB_TOOLCHAIN_PATH"))
	}

	// Board/project remain unset; provisioning only populates the env.
	if cfg.HasBoard() || cfg.HasProject() {
		t.Errorf("provisioning set selection fields: %+v", cfg)
	}

	// Advisory progress ticked up to completion.
	if len(milestones) == 0 || milestones[len(milestones)-1] != 100 {
		t.Errorf("progress milestones = %v, want trailing 100", milestones)
	}
}

// TestProvisionMultipleArtifactsPathOrder verifies a manifest with several
// downloads, with and without suffix values, leaves each artifact's
// executable directory on the path exactly once, most recently installed
// first, and that a resumed run rebuilds the same order.
func TestProvisionMultipleArtifactsPathOrder(t *testing.T) {
	gcc := tarGzBytes(t, "bin/arm-none-eabi-gcc", "#!elf")
	dtc := tarGzBytes(t, "dtc", "#!elf")
	ninja := zipBytes(t, "ninja", "#!elf")
	h := &artifactServer{bodies: map[string][]byte{
		"/gcc.tar.gz": gcc,
		"/dtc.tar.gz": dtc,
		"/ninja.zip":  ninja,
	}}
	srv := httptest.NewServer(h)

	m := manifest.Manifest{
		"linux": []manifest.Entry{{
			Arch: "x64",
			Downloads: []manifest.Download{
				{Name: "gcc", URL: srv.URL + "/gcc.tar.gz", MD5: md5Hex(gcc), Suffix: "bin", Filename: "gcc.tar.gz"},
				{Name: "dtc", URL: srv.URL + "/dtc.tar.gz", MD5: md5Hex(dtc), Filename: "dtc.tar.gz"},
				{Name: "ninja", URL: srv.URL + "/ninja.zip", MD5: md5Hex(ninja), Filename: "ninja.zip"},
			},
		}},
	}
	runner := &fakeRunner{}
	p, store, toolsDir := testPipeline(t, runner, m, "x64")

	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if h.hits != 3 {
		t.Errorf("server hits = %d, want 3", h.hits)
	}

	// Manifest order is gcc, dtc, ninja; each install prepends, so the
	// most recent lands first. The suffix only shifts gcc's entry.
	want := []string{
		filepath.Join(toolsDir, "ninja"),
		filepath.Join(toolsDir, "dtc"),
		filepath.Join(toolsDir, "gcc", "bin"),
	}
	assertPathOrder := func(when string) {
		t.Helper()
		paths := store.Load().Env.PathList()
		if len(paths) < len(want) {
			t.Fatalf("%s: PATH = %v, want %v leading", when, paths, want)
		}
		for i, dir := range want {
			if paths[i] != dir {
				t.Errorf("%s: PATH[%d] = %q, want %q", when, i, paths[i], dir)
			}
		}
		for _, dir := range want {
			count := 0
			for _, got := range paths {
				if got == dir {
					count++
				}
			}
			if count != 1 {
				t.Errorf("%s: %q on PATH %d times, want exactly once", when, dir, count)
			}
		}
	}
	assertPathOrder("first run")

	srv.Close() // any further download attempt now fails
	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("resumed Provision: %v", err)
	}
	if h.hits != 3 {
		t.Errorf("server hits after resume = %d, want 3", h.hits)
	}
	assertPathOrder("resumed run")
}

// TestProvisionFailsWhenPersistFails verifies a run whose final config write
// fails is reported as a failure rather than a success with no record on
// disk.
func TestProvisionFailsWhenPersistFails(t *testing.T) {
	body := tarGzBytes(t, "arm-none-eabi-gcc", "#!elf")
	h := &countingHandler{body: body}
	srv := httptest.NewServer(h)
	defer srv.Close()

	runner := &fakeRunner{}
	p, store, _ := testPipeline(t, runner, gccManifest(srv.URL, body), "x64")

	// Occupy the config path with a directory so the final write must fail.
	if err := os.MkdirAll(store.Path, 0755); err != nil {
		t.Fatal(err)
	}

	err := p.Provision(context.Background())
	if err == nil {
		t.Fatal("Provision reported success with no config written")
	}
	if !strings.Contains(err.Error(), "configuration") {
		t.Errorf("error = %v, want the failing step named", err)
	}
	if store.Load().Provisioned() {
		t.Error("config reports provisioned despite failed write")
	}
}

// TestProvisionAbortsOnMissingPrerequisite verifies a failed git probe
// aborts the run before any download and leaves the config unprovisioned.
func TestProvisionAbortsOnMissingPrerequisite(t *testing.T) {
	body := tarGzBytes(t, "arm-none-eabi-gcc", "#!elf")
	h := &countingHandler{body: body}
	srv := httptest.NewServer(h)
	defer srv.Close()

	runner := &fakeRunner{failOn: "git"}
	p, store, _ := testPipeline(t, runner, gccManifest(srv.URL, body), "x64")

	err := p.Provision(context.Background())
	if err == nil {
		t.Fatal("expected abort from missing git")
	}
	var exitErr *shell.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("error chain lacks the command failure: %v", err)
	}
	if h.hits != 0 {
		t.Errorf("aborted run downloaded %d artifacts, want 0", h.hits)
	}
	if store.Load().Provisioned() {
		t.Error("aborted run persisted an environment")
	}
}

// TestProvisionUnsupportedArch verifies resolution failure aborts before any
// artifact install and names the architecture.
func TestProvisionUnsupportedArch(t *testing.T) {
	body := tarGzBytes(t, "arm-none-eabi-gcc", "#!elf")
	h := &countingHandler{body: body}
	srv := httptest.NewServer(h)
	defer srv.Close()

	runner := &fakeRunner{}
	p, _, _ := testPipeline(t, runner, gccManifest(srv.URL, body), "riscv64")

	err := p.Provision(context.Background())
	var aerr *manifest.UnsupportedArchError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *UnsupportedArchError", err)
	}
	if h.hits != 0 {
		t.Errorf("resolution failure still downloaded %d artifacts", h.hits)
	}
}

// TestProvisionResume verifies a second run needs no network: the warm cache
// and the resume record cover the disk work, and the rebuilt environment
// carries each artifact path exactly once.
func TestProvisionResume(t *testing.T) {
	body := tarGzBytes(t, "arm-none-eabi-gcc", "#!elf")
	h := &countingHandler{body: body}
	srv := httptest.NewServer(h)

	runner := &fakeRunner{}
	p, store, toolsDir := testPipeline(t, runner, gccManifest(srv.URL, body), "x64")

	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	srv.Close() // any further download attempt now fails

	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("second Provision: %v", err)
	}
	if h.hits != 1 {
		t.Errorf("server hits = %d, want 1 across both runs", h.hits)
	}

	gccDir := filepath.Join(toolsDir, "gcc")
	count := 0
	for _, dir := range store.Load().Env.PathList() {
		if dir == gccDir {
			count++
		}
	}
	if count != 1 {
		t.Errorf("artifact dir on PATH %d times, want exactly once", count)
	}
}

// TestProvisionCancelled verifies cancellation is observed between steps:
// a pre-cancelled context runs nothing.
func TestProvisionCancelled(t *testing.T) {
	runner := &fakeRunner{}
	p, _, _ := testPipeline(t, runner, manifest.Manifest{}, "x64")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Provision(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(runner.commands) != 0 {
		t.Errorf("cancelled run still executed: %v", runner.commands)
	}
}
