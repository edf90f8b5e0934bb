package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	tmdbServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/movie" && strings.EqualFold(r.URL.Query().Get("query"), "heat"):
			_, _ = w.Write([]byte(`{"results":[{"id":949,"title":"Heat","release_date":"1995-12-15","popularity":30}]}`))
		case r.URL.Path == "/movie/949":
			_, _ = w.Write([]byte(`{"id":949,"title":"Heat","release_date":"1995-12-15"}`))
		default:
			_, _ = w.Write([]byte(`{"results":[]}`))
		}
	}))
	t.Cleanup(tmdbServer.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithTMDBBaseURL(tmdbServer.URL))
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "curator.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) heatPath() string {
	return filepath.Join(e.cfg.Source.Root, "films", "Heat.1995.1080p.BluRay", "Heat.1995.1080p.BluRay.mkv")
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
library_dir = %q
state_dir = %q
log_dir = %q

[source]
root = %q
watch = false

[tmdb]
api_key = %q
base_url = %q
request_interval_ms = 0

[api]
bind = ""

[logging]
level = "error"
format = "json"
`,
		cfg.Paths.LibraryDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Source.Root,
		cfg.TMDB.APIKey,
		cfg.TMDB.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
