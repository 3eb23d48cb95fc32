package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	full := filepath.Join(dir, DirName)
	if err := os.MkdirAll(full, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(full, FileName), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load with no files: %v", err)
	}
	if cfg.Debounce != "" || cfg.Workers != nil || len(cfg.Engines) != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_GlobalOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "debounce: 250ms\nworkers: 2\n")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce != "250ms" {
		t.Fatalf("expected debounce 250ms, got %q", cfg.Debounce)
	}
	if cfg.Workers == nil || *cfg.Workers != 2 {
		t.Fatalf("expected Workers 2, got %v", cfg.Workers)
	}
}

func TestLoad_LocalOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := t.TempDir()

	writeConfig(t, home, `debounce: 2s
workers: 8
log_level: debug
engines:
  - name: trivy
    command: trivy
`)
	writeConfig(t, root, `debounce: 300ms
engines:
  - name: semgrep
    command: semgrep
    args: ["--json", "{path}"]
    timeout: 30s
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce != "300ms" {
		t.Fatalf("expected local debounce to win, got %q", cfg.Debounce)
	}
	if cfg.Workers == nil || *cfg.Workers != 8 {
		t.Fatalf("expected global workers to survive, got %v", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected global log level to survive, got %q", cfg.LogLevel)
	}
	if len(cfg.Engines) != 1 || cfg.Engines[0].Name != "semgrep" || cfg.Engines[0].Args[1] != "{path}" {
		t.Fatalf("expected local engine list to replace global, got %+v", cfg.Engines)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	writeConfig(t, root, "workers: [unclosed\n")

	_, err := Load(root)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "load local config") {
		t.Fatalf("expected error to name the layer, got %v", err)
	}
}

func TestLoad_WhitespaceOnlyFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	writeConfig(t, root, "  \n\t\n")

	if _, err := Load(root); err != nil {
		t.Fatalf("expected whitespace file to be treated as empty, got %v", err)
	}
}

func TestLoad_SymlinkedConfigIsRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "elsewhere.yaml")
	if err := os.WriteFile(target, []byte("workers: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, DirName, FileName)); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(root); err == nil {
		t.Fatal("expected symlinked config to be rejected")
	}
}

func TestMerge_NilPointersSafe(t *testing.T) {
	two := 2
	got := merge(Config{Workers: &two}, Config{})
	if got.Workers == nil || *got.Workers != 2 {
		t.Fatalf("expected unset override to keep base, got %v", got.Workers)
	}
}

func TestResolve_Defaults(t *testing.T) {
	r, err := Config{}.Resolve("/work")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Debounce != DefaultDebounce || r.Workers != runtime.NumCPU() || r.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	if r.LedgerDir != filepath.Join("/work", DirName) {
		t.Fatalf("expected ledger dir under root, got %q", r.LedgerDir)
	}
}

func TestResolve_Values(t *testing.T) {
	three, zero := 3, 0
	debug := true
	abs := filepath.Join(t.TempDir(), "ledger")
	r, err := Config{
		Debounce:      "150ms",
		Workers:       &three,
		EngineWorkers: &zero,
		LogLevel:      " WARN ",
		Debug:         &debug,
		LedgerDir:     abs,
		Engines:       []EngineConfig{{Name: "kics", Command: "kics", Timeout: "45s"}},
	}.Resolve("/work")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Debounce != 150*time.Millisecond || r.Workers != 3 || r.EngineWorkers != 0 || !r.Debug {
		t.Fatalf("unexpected resolved values: %+v", r)
	}
	if r.LogLevel != "warn" || r.LedgerDir != abs {
		t.Fatalf("unexpected log level or ledger dir: %+v", r)
	}
	if len(r.Engines) != 1 || r.Engines[0].TimeoutDuration != 45*time.Second {
		t.Fatalf("unexpected engines: %+v", r.Engines)
	}
}

func TestResolve_Invalid(t *testing.T) {
	neg := -1
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "bad debounce", cfg: Config{Debounce: "soon"}, want: "debounce"},
		{name: "zero debounce", cfg: Config{Debounce: "0s"}, want: "positive"},
		{name: "workers", cfg: Config{Workers: &neg}, want: "workers must be >= 1"},
		{name: "engine workers", cfg: Config{EngineWorkers: &neg}, want: "engine_workers"},
		{name: "engine command", cfg: Config{Engines: []EngineConfig{{Name: "x"}}}, want: "command is required"},
		{name: "engine timeout", cfg: Config{Engines: []EngineConfig{{Name: "x", Command: "x", Timeout: "forever"}}}, want: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Resolve("/work")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
