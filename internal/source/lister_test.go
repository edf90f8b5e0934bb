package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/services"
	"curator/internal/source"
	"curator/internal/testsupport"
)

func TestFSListerEnumeratesItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := cfg.Source.Root

	testsupport.WriteRelease(t, filepath.Join(root, "films"), "The.Dark.Knight.2008.1080p.BluRay.x264-GRP", 64, "sample.mkv")
	testsupport.WriteVideo(t, filepath.Join(root, "shows", "Doctor.Who.2005.S01.1080p", "Season 1", "Doctor.Who.2005.S01E01.mkv"), 32)
	testsupport.WriteVideo(t, filepath.Join(root, "shows", "Doctor.Who.2005.S01.1080p", "notes.nfo"), 4)
	testsupport.WriteVideo(t, filepath.Join(root, "Alien.mkv"), 16)
	testsupport.WriteVideo(t, filepath.Join(root, ".hidden.mkv"), 16)
	testsupport.WriteVideo(t, filepath.Join(root, "Partial.mkv.part"), 16)

	lister := source.NewFSLister(cfg, logging.NewNop())
	entries, err := lister.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}

	alien := entries[0]
	if alien.DisplayName != "Alien" || alien.FallbackName != "" || alien.KindHint != media.KindUnknown {
		t.Fatalf("unexpected root-level entry: %+v", alien)
	}

	knight := entries[1]
	if knight.DisplayName != "The.Dark.Knight.2008.1080p.BluRay.x264-GRP" {
		t.Fatalf("unexpected display name %q", knight.DisplayName)
	}
	if knight.FallbackName != "The.Dark.Knight.2008.1080p.BluRay.x264-GRP" {
		t.Fatalf("unexpected fallback name %q", knight.FallbackName)
	}
	if knight.KindHint != media.KindFilm {
		t.Fatalf("expected film hint, got %q", knight.KindHint)
	}
	if knight.QualityScore <= 0 {
		t.Fatalf("expected positive quality score, got %d", knight.QualityScore)
	}

	episode := entries[2]
	if episode.KindHint != media.KindSeries {
		t.Fatalf("expected series hint, got %q", episode.KindHint)
	}
	if episode.FallbackName != "Season 1/Doctor.Who.2005.S01E01" {
		t.Fatalf("unexpected episode fallback %q", episode.FallbackName)
	}
	if episode.ContentHash != source.ContentHash("Doctor.Who.2005.S01E01.mkv", 32) {
		t.Fatalf("unexpected content hash %q", episode.ContentHash)
	}
}

func TestFSListerIsDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, name := range []string{"b", "a", "c"} {
		testsupport.WriteVideo(t, filepath.Join(cfg.Source.Root, "Item "+name, "file.mkv"), 8)
	}
	lister := source.NewFSLister(cfg, logging.NewNop())
	first, err := lister.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	second, err := lister.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 entries, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("listing differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[0].DisplayName != "Item a" {
		t.Fatalf("expected sorted output, got %q first", first[0].DisplayName)
	}
}

func TestFSListerMinimumSize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.MinFileSizeMB = 1
	testsupport.WriteVideo(t, filepath.Join(cfg.Source.Root, "Small", "small.mkv"), 1024)
	testsupport.WriteVideo(t, filepath.Join(cfg.Source.Root, "Large", "large.mkv"), 2*1024*1024)

	entries, err := source.NewFSLister(cfg, logging.NewNop()).List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].DisplayName != "Large" {
		t.Fatalf("expected only the large entry, got %+v", entries)
	}
}

func TestFSListerMissingRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.RemoveAll(cfg.Source.Root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	_, err := source.NewFSLister(cfg, logging.NewNop()).List(context.Background())
	if !errors.Is(err, services.ErrFilesystem) {
		t.Fatalf("expected ErrFilesystem, got %v", err)
	}
}
