package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/catalog"
	"curator/internal/daemonrun"
	"curator/internal/media"
	"curator/internal/source"
	"curator/internal/testsupport"
)

func TestRunRebuildModeCreatesLinksAndExits(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRebuildMode(true))
	cfg.Logging.Level = "error"
	sourcePath := filepath.Join(cfg.Source.Root, "films", "Heat.1995", "Heat.1995.mkv")
	testsupport.WriteVideo(t, sourcePath, 32)

	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedEntries(t, store, source.Entry{Path: sourcePath, DisplayName: "Heat.1995", ContentHash: "heat", KindHint: media.KindFilm})
	identity := testsupport.MustIdentity(t, store, catalog.IdentityInput{ExternalID: 949, Kind: media.KindFilm, Title: "Heat", Year: 1995})
	mapping, err := store.UpsertMapping(context.Background(), catalog.MappingInput{SourcePath: sourcePath, Identity: identity, Confidence: 1})
	if err != nil {
		t.Fatalf("UpsertMapping: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	link := filepath.Join(cfg.Paths.LibraryDir, filepath.FromSlash(mapping.TargetPath))
	dest, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected link at %s: %v", link, err)
	}
	if dest != sourcePath {
		t.Fatalf("link points to %q, want %q", dest, sourcePath)
	}
	if _, err := os.Stat(cfg.LinkStatePath()); err != nil {
		t.Fatalf("expected link state to be persisted: %v", err)
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := daemonrun.Open(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
