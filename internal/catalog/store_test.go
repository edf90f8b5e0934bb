package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"curator/internal/catalog"
	"curator/internal/media"
	"curator/internal/services"
	"curator/internal/source"
	"curator/internal/testsupport"
)

func entryAt(root, name string) source.Entry {
	path := filepath.Join(root, name, name+".mkv")
	return source.Entry{
		Path:        path,
		DisplayName: name,
		ContentHash: source.ContentHash(name+".mkv", 100),
	}
}

func knightIdentity(t *testing.T, store *catalog.Store) catalog.Identity {
	t.Helper()
	return testsupport.MustIdentity(t, store, catalog.IdentityInput{ExternalID: 155, Kind: media.KindFilm, Title: "The Dark Knight", Year: 2008})
}

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth returned error: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", health.SchemaVersion)
	}
	if store.Path() != cfg.DatabasePath() {
		t.Fatalf("expected database at %s, got %s", cfg.DatabasePath(), store.Path())
	}

	store.Close()
	reopened, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	reopened.Close()
}

func TestSyncSourcesLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	root := cfg.Source.Root

	first := testsupport.SeedEntries(t, store, entryAt(root, "A"), entryAt(root, "B"))
	if first.Added != 2 || first.Archived != 0 || first.Seen != 2 {
		t.Fatalf("unexpected first sync: %+v", first)
	}

	renamed := entryAt(root, "B")
	renamed.DisplayName = "B renamed"
	second := testsupport.SeedEntries(t, store, entryAt(root, "A"), renamed)
	if second.Added != 0 || second.Updated != 1 || second.Archived != 0 {
		t.Fatalf("unexpected second sync: %+v", second)
	}

	third := testsupport.SeedEntries(t, store, entryAt(root, "A"))
	if third.Archived != 1 {
		t.Fatalf("expected one archived entry, got %+v", third)
	}
	archived, err := store.GetEntry(ctx, entryAt(root, "B").Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if !archived.Archived || archived.DisplayName != "B renamed" {
		t.Fatalf("unexpected archived entry: %+v", archived)
	}

	fourth := testsupport.SeedEntries(t, store, entryAt(root, "A"), entryAt(root, "B"))
	if fourth.Resurfaced != 1 {
		t.Fatalf("expected resurfaced count, got %+v", fourth)
	}
	archived, err = store.GetEntry(ctx, strconv.FormatInt(archived.ID, 10))
	if err != nil {
		t.Fatalf("GetEntry by id returned error: %v", err)
	}
	if !archived.Archived {
		t.Fatal("archived entry must never be reactivated")
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending returned error: %v", err)
	}
	if len(pending) != 1 || pending[0].DisplayName != "A" {
		t.Fatalf("expected only A pending, got %+v", pending)
	}
}

func TestSyncSourcesWithoutArchival(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntries(t, store, entryAt(cfg.Source.Root, "A"))
	result, err := store.SyncSources(ctx, nil, catalog.WithoutArchival())
	if err != nil {
		t.Fatalf("SyncSources returned error: %v", err)
	}
	if result.Archived != 0 {
		t.Fatalf("expected no archival, got %+v", result)
	}
	active, err := store.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount returned error: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected 1 active entry, got %d", active)
	}
}

func TestRecordFailureRoutesToManual(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	entry := entryAt(cfg.Source.Root, "Alien")
	testsupport.SeedEntries(t, store, entry)

	cause := fmt.Errorf("%w: two candidates", services.ErrAmbiguousMatch)
	for attempt := 1; attempt <= 3; attempt++ {
		if err := store.MarkResolving(ctx, entry.Path); err != nil {
			t.Fatalf("MarkResolving returned error: %v", err)
		}
		updated, err := store.RecordFailure(ctx, entry.Path, "", cause, 3)
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if updated.RepairAttempts != attempt {
			t.Fatalf("attempt %d: expected repair attempts %d, got %d", attempt, attempt, updated.RepairAttempts)
		}
		wantState := catalog.StateRetryable
		if attempt == 3 {
			wantState = catalog.StateManual
		}
		if updated.State != wantState {
			t.Fatalf("attempt %d: expected state %s, got %s", attempt, wantState, updated.State)
		}
		if updated.LastErrorKind != services.KindAmbiguous {
			t.Fatalf("expected ambiguous kind, got %q", updated.LastErrorKind)
		}
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending returned error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("manual entries must not be pending, got %+v", pending)
	}
	if err := store.MarkResolving(ctx, entry.Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected manual entry to refuse resolving, got %v", err)
	}

	reset, err := store.ResetEntry(ctx, entry.Path)
	if err != nil {
		t.Fatalf("ResetEntry returned error: %v", err)
	}
	if reset.State != catalog.StateNew || reset.Manual || reset.RepairAttempts != 0 {
		t.Fatalf("unexpected reset entry: %+v", reset)
	}
}

func TestRecordFailureInfrastructureNotCounted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	entry := entryAt(cfg.Source.Root, "Alien")
	testsupport.SeedEntries(t, store, entry)

	cause := services.Wrap(services.ErrFilesystem, "organizer", "link", "", errors.New("EIO"))
	updated, err := store.RecordFailure(ctx, entry.Path, "", cause, 1)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if updated.RepairAttempts != 0 || updated.Manual {
		t.Fatalf("filesystem failures must not count, got %+v", updated)
	}
	if !updated.Pending() {
		t.Fatalf("entry should remain pending, got state %s", updated.State)
	}
}

func TestUpsertMappingIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	entry := entryAt(cfg.Source.Root, "The.Dark.Knight.2008.1080p")
	testsupport.SeedEntries(t, store, entry)
	identity := knightIdentity(t, store)

	input := catalog.MappingInput{SourcePath: entry.Path, Identity: identity, Confidence: 1}
	mapping, err := store.UpsertMapping(ctx, input)
	if err != nil {
		t.Fatalf("UpsertMapping returned error: %v", err)
	}
	want := "films/The Dark Knight (2008) [id=155]/The Dark Knight (2008) [id=155].mkv"
	if mapping.TargetPath != want {
		t.Fatalf("unexpected target %q", mapping.TargetPath)
	}
	revision, err := store.Revision(ctx)
	if err != nil {
		t.Fatalf("Revision returned error: %v", err)
	}

	again, err := store.UpsertMapping(ctx, input)
	if err != nil {
		t.Fatalf("second UpsertMapping returned error: %v", err)
	}
	if again.ID != mapping.ID || !again.UpdatedAt.Equal(mapping.UpdatedAt) {
		t.Fatalf("identical upsert rewrote the mapping: %+v vs %+v", again, mapping)
	}
	after, err := store.Revision(ctx)
	if err != nil {
		t.Fatalf("Revision returned error: %v", err)
	}
	if after != revision {
		t.Fatalf("identical upsert bumped revision %d -> %d", revision, after)
	}

	stored, err := store.GetEntry(ctx, entry.Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if stored.State != catalog.StateMapped || stored.ConfidenceScore != 1 {
		t.Fatalf("unexpected entry after mapping: %+v", stored)
	}
}

func TestUpsertMappingCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	first := entryAt(cfg.Source.Root, "The.Dark.Knight.2008.1080p")
	second := entryAt(cfg.Source.Root, "The.Dark.Knight.2008.2160p")
	testsupport.SeedEntries(t, store, first, second)
	identity := knightIdentity(t, store)

	if _, err := store.UpsertMapping(ctx, catalog.MappingInput{SourcePath: first.Path, Identity: identity, Confidence: 0.9}); err != nil {
		t.Fatalf("UpsertMapping returned error: %v", err)
	}
	_, err := store.UpsertMapping(ctx, catalog.MappingInput{SourcePath: second.Path, Identity: identity, Confidence: 0.9})
	var collision *catalog.CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected CollisionError, got %v", err)
	}
	if collision.ExistingSourcePath != first.Path || collision.SourcePath != second.Path {
		t.Fatalf("unexpected collision detail: %+v", collision)
	}
	if services.FailureKind(err) != services.KindCollision {
		t.Fatalf("expected collision kind, got %q", services.FailureKind(err))
	}
	if _, err := store.ListBySource(ctx, second.Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("collision must not write a mapping, got %v", err)
	}

	parked, err := store.RecordFailure(ctx, second.Path, "", err, 3)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if parked.State != catalog.StateCollision || parked.RepairAttempts != 0 {
		t.Fatalf("unexpected collision entry: %+v", parked)
	}
}

func TestUpsertMappingReleasesArchivedTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	old := entryAt(cfg.Source.Root, "Old")
	replacement := entryAt(cfg.Source.Root, "New")
	testsupport.SeedEntries(t, store, old)
	identity := knightIdentity(t, store)
	if _, err := store.UpsertMapping(ctx, catalog.MappingInput{SourcePath: old.Path, Identity: identity, Confidence: 1}); err != nil {
		t.Fatalf("UpsertMapping returned error: %v", err)
	}

	testsupport.SeedEntries(t, store, replacement)
	reusable, ok, err := store.FindReusableMapping(ctx, old.ContentHash, replacement.Path)
	if err != nil || !ok {
		t.Fatalf("FindReusableMapping = %v, %v", ok, err)
	}
	if reusable.Identity.ExternalID != 155 {
		t.Fatalf("unexpected reusable identity %+v", reusable.Identity)
	}

	mapping, err := store.UpsertMapping(ctx, catalog.MappingInput{SourcePath: replacement.Path, Identity: reusable.Identity, Confidence: 1})
	if err != nil {
		t.Fatalf("UpsertMapping over archived owner returned error: %v", err)
	}
	released, err := store.ListBySource(ctx, old.Path)
	if err != nil {
		t.Fatalf("ListBySource returned error: %v", err)
	}
	if released.TargetPath != "" || released.Active() {
		t.Fatalf("expected archived mapping to release its target, got %+v", released)
	}
	if mapping.TargetPath == "" || !mapping.Active() {
		t.Fatalf("expected active replacement mapping, got %+v", mapping)
	}
}

func TestManualResolve(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	entry := entryAt(cfg.Source.Root, "Alien")
	testsupport.SeedEntries(t, store, entry)
	for i := 0; i < 3; i++ {
		if _, err := store.RecordFailure(ctx, entry.Path, services.KindAmbiguous, services.ErrAmbiguousMatch, 3); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
	}
	alien := testsupport.MustIdentity(t, store, catalog.IdentityInput{ExternalID: 348, Kind: media.KindFilm, Title: "Alien", Year: 1979})

	stored, err := store.GetEntry(ctx, entry.Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	mapping, err := store.ManualResolve(ctx, strconv.FormatInt(stored.ID, 10), alien, 0, 0)
	if err != nil {
		t.Fatalf("ManualResolve returned error: %v", err)
	}
	if !mapping.ManualOverride || mapping.Identity.ExternalID != 348 {
		t.Fatalf("unexpected manual mapping: %+v", mapping)
	}
	revision, _ := store.Revision(ctx)

	again, err := store.ManualResolve(ctx, entry.Path, alien, 0, 0)
	if err != nil {
		t.Fatalf("repeated ManualResolve returned error: %v", err)
	}
	if again.ID != mapping.ID {
		t.Fatalf("expected same mapping, got %+v", again)
	}
	if after, _ := store.Revision(ctx); after != revision {
		t.Fatalf("repeated ManualResolve bumped revision %d -> %d", revision, after)
	}

	resolved, err := store.GetEntry(ctx, entry.Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if resolved.Manual || resolved.State != catalog.StateMapped || resolved.RepairAttempts != 0 {
		t.Fatalf("unexpected resolved entry: %+v", resolved)
	}

	if _, err := store.ManualResolve(ctx, "/does/not/exist", alien, 0, 0); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertIdentityConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, err := store.UpsertIdentity(ctx, catalog.IdentityInput{ExternalID: 57243, Kind: media.KindSeries, Title: "Doctor Who", Year: 2005})
			ids[i], errs[i] = identity.ID, err
		}(i)
	}
	wg.Wait()
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d: UpsertIdentity returned error: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected one identity row, got ids %v", ids)
		}
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Identities != 1 {
		t.Fatalf("expected 1 identity, got %d", stats.Identities)
	}
}

func TestLookupCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	identity := knightIdentity(t, store)

	if _, found, err := store.CachedLookup(ctx, "film|thedarkknight|2008"); err != nil || found {
		t.Fatalf("expected empty cache, got found=%v err=%v", found, err)
	}
	if err := store.StoreLookup(ctx, "film|thedarkknight|2008", identity.ID, 0.98761); err != nil {
		t.Fatalf("StoreLookup returned error: %v", err)
	}
	hit, found, err := store.CachedLookup(ctx, "film|thedarkknight|2008")
	if err != nil || !found {
		t.Fatalf("CachedLookup = %v, %v", found, err)
	}
	if hit.ExternalID != 155 || hit.Score != 0.9876 {
		t.Fatalf("unexpected hit %+v", hit)
	}

	found2, ok, err := store.FindIdentity(ctx, 155, media.KindUnknown)
	if err != nil || !ok || found2.ID != identity.ID {
		t.Fatalf("FindIdentity = %+v, %v, %v", found2, ok, err)
	}
}

func TestViewsAndDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	who := testsupport.MustIdentity(t, store, catalog.IdentityInput{ExternalID: 57243, Kind: media.KindSeries, Title: "Doctor Who", Year: 2005})

	var entries []source.Entry
	for _, ep := range []struct{ season, episode int }{{1, 1}, {1, 2}, {2, 1}} {
		entries = append(entries, entryAt(cfg.Source.Root, fmt.Sprintf("Doctor.Who.S%02dE%02d", ep.season, ep.episode)))
	}
	testsupport.SeedEntries(t, store, entries...)
	for i, ep := range []struct{ season, episode int }{{1, 1}, {1, 2}, {2, 1}} {
		if _, err := store.UpsertMapping(ctx, catalog.MappingInput{SourcePath: entries[i].Path, Identity: who, Season: ep.season, Episode: ep.episode, Confidence: 0.95}); err != nil {
			t.Fatalf("UpsertMapping returned error: %v", err)
		}
	}

	titles, err := store.ListTitles(ctx)
	if err != nil {
		t.Fatalf("ListTitles returned error: %v", err)
	}
	if len(titles) != 1 || titles[0].Mappings != 3 || titles[0].Seasons != 2 {
		t.Fatalf("unexpected titles %+v", titles)
	}
	seasons, err := store.ListSeasons(ctx, who.ID)
	if err != nil {
		t.Fatalf("ListSeasons returned error: %v", err)
	}
	if len(seasons) != 2 || seasons[0].Episodes != 2 || seasons[1].Season != 2 {
		t.Fatalf("unexpected seasons %+v", seasons)
	}

	manual := false
	mapped, err := store.ListEntries(ctx, catalog.EntryFilter{Manual: &manual, States: []catalog.State{catalog.StateMapped}})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(mapped) != 3 {
		t.Fatalf("expected 3 mapped entries, got %d", len(mapped))
	}

	if err := store.DeleteMapping(ctx, entries[0].Path); err != nil {
		t.Fatalf("DeleteMapping returned error: %v", err)
	}
	if err := store.DeleteMapping(ctx, entries[0].Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	deleted, err := store.GetEntry(ctx, entries[0].Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if deleted.State != catalog.StateManual || !deleted.Manual {
		t.Fatalf("expected deleted mapping entry to be parked manual, got %+v", deleted)
	}
	all, err := store.ListAllMappings(ctx)
	if err != nil {
		t.Fatalf("ListAllMappings returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 mappings after delete, got %d", len(all))
	}
}

func TestMarkResolvingOnlyMovesPendingEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	entry := entryAt(cfg.Source.Root, "Alien")
	testsupport.SeedEntries(t, store, entry)

	if err := store.MarkResolving(ctx, entry.Path); err != nil {
		t.Fatalf("MarkResolving returned error: %v", err)
	}
	alien := testsupport.MustIdentity(t, store, catalog.IdentityInput{ExternalID: 348, Kind: media.KindFilm, Title: "Alien", Year: 1979})
	if _, err := store.ManualResolve(ctx, entry.Path, alien, 0, 0); err != nil {
		t.Fatalf("ManualResolve returned error: %v", err)
	}

	if err := store.MarkResolving(ctx, entry.Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected mapped entry to be left alone, got %v", err)
	}
	stored, err := store.GetEntry(ctx, entry.Path)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if stored.State != catalog.StateMapped || stored.RepairAttempts != 0 {
		t.Fatalf("mapped entry changed: %+v", stored)
	}
}
