package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/api"
	"curator/internal/testsupport"
)

const heatTarget = "films/Heat (1995) [id=949]/Heat (1995) [id=949].mkv"

func TestScanMapsAndViewsReport(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteVideo(t, env.heatPath(), 64)

	out, _, err := runCLI(t, []string{"scan"}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Mapped")

	link := filepath.Join(env.cfg.Paths.LibraryDir, filepath.FromSlash(heatTarget))
	dest, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected link after scan: %v", err)
	}
	if dest != env.heatPath() {
		t.Fatalf("link points to %q", dest)
	}

	out, _, err = runCLI(t, []string{"entries", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var entries []api.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode entries: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].State != "mapped" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	out, _, err = runCLI(t, []string{"titles"}, env.configPath)
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	requireContains(t, out, "Heat")

	out, _, err = runCLI(t, []string{"mappings"}, env.configPath)
	if err != nil {
		t.Fatalf("mappings: %v", err)
	}
	requireContains(t, out, heatTarget)

	out, _, err = runCLI(t, []string{"collisions"}, env.configPath)
	if err != nil {
		t.Fatalf("collisions: %v", err)
	}
	requireContains(t, out, "No collisions")
}

func TestMappingDeleteThenResolve(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteVideo(t, env.heatPath(), 64)
	if _, _, err := runCLI(t, []string{"scan"}, env.configPath); err != nil {
		t.Fatalf("scan: %v", err)
	}
	link := filepath.Join(env.cfg.Paths.LibraryDir, filepath.FromSlash(heatTarget))

	out, _, err := runCLI(t, []string{"mappings", "delete", env.heatPath()}, env.configPath)
	if err != nil {
		t.Fatalf("mappings delete: %v", err)
	}
	requireContains(t, out, "Deleted mapping")
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("expected link removed after delete, got %v", err)
	}

	out, _, err = runCLI(t, []string{"entries", "--manual"}, env.configPath)
	if err != nil {
		t.Fatalf("entries --manual: %v", err)
	}
	requireContains(t, out, "Heat.1995")

	out, _, err = runCLI(t, []string{"resolve", env.heatPath(), "949", "--kind", "film"}, env.configPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	requireContains(t, out, heatTarget)
	if _, err := os.Readlink(link); err != nil {
		t.Fatalf("expected link restored after resolve: %v", err)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"resolve", "/nope.mkv", "abc"}, env.configPath); err == nil {
		t.Fatal("expected error for non-numeric external id")
	}
	if _, _, err := runCLI(t, []string{"resolve", "/nope.mkv", "949", "--kind", "opera"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	_, _, err := runCLI(t, []string{"resolve", "/nope.mkv", "949"}, env.configPath)
	if err == nil {
		t.Fatal("expected not found error")
	}
	requireContains(t, err.Error(), "curator entries")
}

func TestRebuildAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteVideo(t, env.heatPath(), 64)
	if _, _, err := runCLI(t, []string{"scan"}, env.configPath); err != nil {
		t.Fatalf("scan: %v", err)
	}
	link := filepath.Join(env.cfg.Paths.LibraryDir, filepath.FromSlash(heatTarget))
	if err := os.Remove(link); err != nil {
		t.Fatalf("remove link: %v", err)
	}

	out, _, err := runCLI(t, []string{"rebuild"}, env.configPath)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	requireContains(t, out, "Rebuild complete: 1 created")

	out, _, err = runCLI(t, []string{"status", "--no-checks"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "mapped")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}
