package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"curator/internal/config"
)

func TestLoadDefaultConfigUsesEnvTMDBKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "curator")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "media") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.TMDB.APIKey != "test-key" {
		t.Fatalf("expected TMDB key from env, got %q", cfg.TMDB.APIKey)
	}
	if cfg.Workflow.MaxRepairAttempts != 3 {
		t.Fatalf("unexpected repair attempts default: %d", cfg.Workflow.MaxRepairAttempts)
	}
	if cfg.Workflow.ScanInterval != 300 {
		t.Fatalf("unexpected scan interval default: %d", cfg.Workflow.ScanInterval)
	}
	if cfg.Workflow.RebuildMode {
		t.Fatal("expected rebuild mode disabled by default")
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Jellyfin.Enabled {
		t.Fatal("expected Jellyfin disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.LibraryDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "catalog.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "curator.toml")

	type payload struct {
		Paths struct {
			LibraryDir string `toml:"library_dir"`
		} `toml:"paths"`
		Source struct {
			Root     string `toml:"root"`
			LinkRoot string `toml:"link_root"`
		} `toml:"source"`
		TMDB struct {
			APIKey string `toml:"api_key"`
		} `toml:"tmdb"`
		Workflow struct {
			Workers           int `toml:"workers"`
			MaxRepairAttempts int `toml:"max_repair_attempts"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.LibraryDir = filepath.Join(tempDir, "library")
	custom.Source.Root = filepath.Join(tempDir, "mount")
	custom.Source.LinkRoot = "/zurg/"
	custom.TMDB.APIKey = "abc123"
	custom.Workflow.Workers = 8
	custom.Workflow.MaxRepairAttempts = 5

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.TMDB.APIKey != "abc123" {
		t.Fatalf("unexpected api key: %q", cfg.TMDB.APIKey)
	}
	if cfg.Source.LinkRoot != "/zurg" {
		t.Fatalf("expected trailing slash trimmed from link root, got %q", cfg.Source.LinkRoot)
	}
	if cfg.Workflow.Workers != 8 || cfg.Workflow.MaxRepairAttempts != 5 {
		t.Fatalf("unexpected workflow config: %+v", cfg.Workflow)
	}
}

func TestEnvironmentOverridesWorkflow(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "key")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REBUILD_MODE", "true")
	t.Setenv("SCAN_INTERVAL_SECS", "60")
	t.Setenv("MAX_REPAIR_ATTEMPTS", "7")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Workflow.RebuildMode {
		t.Fatal("expected rebuild mode enabled from environment")
	}
	if cfg.Workflow.ScanInterval != 60 {
		t.Fatalf("unexpected scan interval: %d", cfg.Workflow.ScanInterval)
	}
	if cfg.Workflow.MaxRepairAttempts != 7 {
		t.Fatalf("unexpected repair attempts: %d", cfg.Workflow.MaxRepairAttempts)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TMDB_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv never overrides variables that are already present.
	t.Setenv("TMDB_API_KEY", "")
	os.Unsetenv("TMDB_API_KEY")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TMDB.APIKey != "from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.TMDB.APIKey)
	}
}

func TestValidateRejectsMissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LibraryDir = "/library"
	cfg.Source.Root = "/mount"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "tmdb.api_key") {
		t.Fatalf("expected api key validation error, got %v", err)
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	base := config.Default()
	base.TMDB.APIKey = "key"
	base.Paths.LibraryDir = "/library"
	base.Source.Root = "/mount"

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold", func(c *config.Config) { c.Identification.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"attempts", func(c *config.Config) { c.Workflow.MaxRepairAttempts = 0 }, "max_repair_attempts"},
		{"interval", func(c *config.Config) { c.Workflow.ScanInterval = 0 }, "scan_interval"},
		{"same roots", func(c *config.Config) { c.Source.Root = c.Paths.LibraryDir }, "must differ"},
		{"jellyfin", func(c *config.Config) { c.Jellyfin.Enabled = true; c.Jellyfin.APIKey = "" }, "jellyfin.api_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "key")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Library.FilmsDir != "films" || cfg.Library.ShowsDir != "shows" {
		t.Fatalf("unexpected library dirs: %+v", cfg.Library)
	}
}
