package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// isolate points every XDG directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Scan.Parallel {
		t.Error("Scan.Parallel = false, want true")
	}
	if cfg.Scan.ComputeSizes {
		t.Error("Scan.ComputeSizes = true, want false")
	}
	if !cfg.Metadata.Enabled {
		t.Error("Metadata.Enabled = false, want true")
	}
	if cfg.Metadata.Concurrency != DefaultMetadataConcurrency {
		t.Errorf("Metadata.Concurrency = %d, want %d", cfg.Metadata.Concurrency, DefaultMetadataConcurrency)
	}
	if cfg.Metadata.Timeout != DefaultMetadataTimeout {
		t.Errorf("Metadata.Timeout = %v, want %v", cfg.Metadata.Timeout, DefaultMetadataTimeout)
	}
	if cfg.Metadata.TTL != 0 {
		t.Errorf("Metadata.TTL = %v, want 0", cfg.Metadata.TTL)
	}
	if cfg.Metadata.Language != DefaultLanguage {
		t.Errorf("Metadata.Language = %q, want %q", cfg.Metadata.Language, DefaultLanguage)
	}

	wantStore := filepath.Join(dir, "config", "PrefixHQ", "games.json")
	if cfg.Store.Path != wantStore {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, wantStore)
	}
	wantCovers := filepath.Join(dir, "cache", "prefixhq", "covers")
	if cfg.Cache.CoversDir != wantCovers {
		t.Errorf("Cache.CoversDir = %q, want %q", cfg.Cache.CoversDir, wantCovers)
	}
	wantJournal := filepath.Join(dir, "data", "prefixhq", "journal")
	if cfg.Journal.Path != wantJournal {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, wantJournal)
	}

	ignore := cfg.IgnoreSet()
	if len(ignore) != len(DefaultIgnoreAppIDs) || ignore[1] != types.AppID(228980) {
		t.Errorf("IgnoreSet() = %v, want %v", ignore, DefaultIgnoreAppIDs)
	}
	if cfg.Output.Format != DefaultFormat {
		t.Errorf("Output.Format = %q, want %q", cfg.Output.Format, DefaultFormat)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `
steam:
  extra_libraries:
    - ~/Games/SteamLibrary
  ignore_appids: [228980]
scan:
  parallel: false
  compute_sizes: true
metadata:
  concurrency: 2
  timeout: 3s
  ttl: 720h
  steamgriddb_api_key: secret
output:
  format: json
`
	if err := os.WriteFile(ConfigPath(), []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scan.Parallel {
		t.Error("Scan.Parallel = true, want false")
	}
	if !cfg.Scan.ComputeSizes {
		t.Error("Scan.ComputeSizes = false, want true")
	}
	if cfg.Metadata.Concurrency != 2 {
		t.Errorf("Metadata.Concurrency = %d, want 2", cfg.Metadata.Concurrency)
	}
	if cfg.Metadata.Timeout != 3*time.Second {
		t.Errorf("Metadata.Timeout = %v, want 3s", cfg.Metadata.Timeout)
	}
	if cfg.Metadata.TTL != 30*24*time.Hour {
		t.Errorf("Metadata.TTL = %v, want 720h", cfg.Metadata.TTL)
	}
	if cfg.Metadata.SteamGridDBAPIKey != "secret" {
		t.Errorf("Metadata.SteamGridDBAPIKey = %q", cfg.Metadata.SteamGridDBAPIKey)
	}
	if len(cfg.Steam.IgnoreAppIDs) != 1 {
		t.Errorf("IgnoreAppIDs = %v, want [228980]", cfg.Steam.IgnoreAppIDs)
	}
	want := filepath.Join(dir, "Games", "SteamLibrary")
	if len(cfg.Steam.ExtraLibraries) != 1 || cfg.Steam.ExtraLibraries[0] != want {
		t.Errorf("ExtraLibraries = %v, want [%s]", cfg.Steam.ExtraLibraries, want)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %q, want json", cfg.Output.Format)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("PREFIXHQ_METADATA_ENABLED", "false")
	t.Setenv("PREFIXHQ_SCAN_SIZE_WORKERS", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metadata.Enabled {
		t.Error("Metadata.Enabled = true, want false from environment")
	}
	if cfg.Scan.SizeWorkers != 9 {
		t.Errorf("Scan.SizeWorkers = %d, want 9", cfg.Scan.SizeWorkers)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(), []byte("scan: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != ConfigPath() {
		t.Errorf("path = %q, want %q", path, ConfigPath())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.Contains(string(data), "ignore_appids: [0, 228980, 1070560, 1391110, 1628350]") {
		t.Errorf("default config missing ignore list:\n%s", data)
	}

	// The written file must load back to the defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}
	if cfg.Metadata.Timeout != DefaultMetadataTimeout {
		t.Errorf("Metadata.Timeout = %v, want %v", cfg.Metadata.Timeout, DefaultMetadataTimeout)
	}

	// A second call leaves the user's edits alone.
	if err := os.WriteFile(path, []byte("scan:\n  parallel: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "scan:\n  parallel: false\n" {
		t.Errorf("WriteDefault overwrote an existing file")
	}
}

func TestLoggingConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	lc := cfg.LoggingConfig()
	if lc.Rotation.MaxSize != 10_000_000 {
		t.Errorf("Rotation.MaxSize = %d, want 10000000", lc.Rotation.MaxSize)
	}
	if lc.Path == "" {
		t.Error("Path is empty, want default log path")
	}
	if lc.Components["watcher"] != "warn" {
		t.Errorf("Components[watcher] = %q, want warn", lc.Components["watcher"])
	}

	cfg.Logging.Rotation.MaxSize = "huge"
	if got := cfg.LoggingConfig().Rotation.MaxSize; got != 10*1024*1024 {
		t.Errorf("invalid max_size fell back to %d", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{in: "~/games", want: filepath.Join(home, "games")},
		{in: "/abs/path", want: "/abs/path"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("output:\n  format: csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Output.Format != "csv" {
		t.Errorf("Output.Format = %q, want csv", cfg.Output.Format)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile() of a missing explicit file should fail")
	}
}
