package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curator/internal/catalog"
	"curator/internal/identification"
	"curator/internal/media"
	"curator/internal/services"
	"curator/internal/testsupport"
	"curator/internal/workflow"
)

func TestRunCycleReconcilesLibrary(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxRepairAttempts(2))
	h.writeSources(t)

	first := h.runCycle(t)
	if first.Listed != 3 || first.Added != 3 || first.Attempted != 3 {
		t.Fatalf("unexpected first cycle counts: %+v", first)
	}
	if first.Mapped != 2 || first.Failed != 1 || first.Manual != 0 {
		t.Fatalf("unexpected first cycle outcomes: %+v", first)
	}
	if first.LinksCreated != 2 || first.CycleID == "" {
		t.Fatalf("unexpected first cycle links: %+v", first)
	}
	assertLink(t, h.link(knightTarget), h.knightPath())
	assertLink(t, h.link(doctorTarget), h.doctorPath())

	alien := h.entry(t, h.alienPath())
	if alien.State != catalog.StateRetryable || alien.RepairAttempts != 1 || alien.LastErrorKind != services.KindAmbiguous {
		t.Fatalf("unexpected alien entry after first cycle: %+v", alien)
	}

	second := h.runCycle(t)
	if second.Attempted != 1 || second.Manual != 1 {
		t.Fatalf("expected alien routed to manual, got %+v", second)
	}
	if !second.LinksSkipped {
		t.Fatalf("expected unchanged mappings to skip the link sync")
	}
	alien = h.entry(t, h.alienPath())
	if alien.State != catalog.StateManual || !alien.Manual {
		t.Fatalf("expected manual entry, got %+v", alien)
	}

	third := h.runCycle(t)
	if third.Attempted != 0 {
		t.Fatalf("manual entries must not be retried automatically: %+v", third)
	}
	if calls := h.provider.searches.Load(); calls != 3 {
		t.Fatalf("expected 3 provider searches, got %d", calls)
	}
}

func TestManualResolveMapsEntry(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxRepairAttempts(1))
	h.writeSources(t)
	h.runCycle(t)

	result, err := h.manager.ManualResolve(context.Background(), workflow.ManualRequest{
		Ref:        h.alienPath(),
		ExternalID: 348,
		Kind:       media.KindFilm,
	})
	if err != nil {
		t.Fatalf("ManualResolve: %v", err)
	}
	if result.Mapping.TargetPath != alienTarget || !result.Mapping.ManualOverride {
		t.Fatalf("unexpected mapping %+v", result.Mapping)
	}
	if result.Links.Created != 1 {
		t.Fatalf("expected link created by manual resolve, got %+v", result.Links)
	}
	assertLink(t, h.link(alienTarget), h.alienPath())

	alien := h.entry(t, h.alienPath())
	if alien.State != catalog.StateMapped || alien.Manual || alien.RepairAttempts != 0 {
		t.Fatalf("unexpected entry after manual resolve: %+v", alien)
	}

	again, err := h.manager.ManualResolve(context.Background(), workflow.ManualRequest{Ref: h.alienPath(), ExternalID: 348})
	if err != nil {
		t.Fatalf("repeat ManualResolve: %v", err)
	}
	if again.Mapping.ID != result.Mapping.ID || again.Links.Changed() {
		t.Fatalf("repeat manual resolve should be a no-op: %+v", again)
	}
	if lookups := h.provider.lookups.Load(); lookups != 1 {
		t.Fatalf("expected stored identity reused, provider lookups=%d", lookups)
	}
}

func TestManualResolveErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.writeSources(t)
	h.runCycle(t)
	ctx := context.Background()

	_, err := h.manager.ManualResolve(ctx, workflow.ManualRequest{Ref: "/nowhere.mkv", ExternalID: 348})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = h.manager.ManualResolve(ctx, workflow.ManualRequest{Ref: h.alienPath(), ExternalID: 57243, Kind: media.KindSeries})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for series without episode, got %v", err)
	}

	_, err = h.manager.ManualResolve(ctx, workflow.ManualRequest{Ref: h.alienPath(), ExternalID: 155})
	var collision *catalog.CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected collision, got %v", err)
	}
	if collision.ExistingSourcePath != h.knightPath() {
		t.Fatalf("unexpected collision owner %q", collision.ExistingSourcePath)
	}

	_, err = h.manager.ManualResolve(ctx, workflow.ManualRequest{Ref: h.alienPath(), ExternalID: 0})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
}

func TestRunCycleRecordsCollision(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithWorkers(1))
	dir := filepath.Join(h.cfg.Source.Root, "films", "The Dark Knight (2008)")
	first := filepath.Join(dir, "a.mkv")
	second := filepath.Join(dir, "b.mkv")
	testsupport.WriteVideo(t, first, 10)
	testsupport.WriteVideo(t, second, 20)

	report := h.runCycle(t)
	if report.Mapped != 1 || report.Collisions != 1 {
		t.Fatalf("expected one mapping and one collision, got %+v", report)
	}
	entry := h.entry(t, second)
	if entry.State != catalog.StateCollision || entry.RepairAttempts != 0 {
		t.Fatalf("collision must not consume repair budget: %+v", entry)
	}
	assertLink(t, h.link(knightTarget), first)

	again := h.runCycle(t)
	if again.Attempted != 0 {
		t.Fatalf("collision entries wait for the operator, got %+v", again)
	}
}

func TestRunCycleReusesArchivedIdentity(t *testing.T) {
	h := newHarness(t, nil)
	oldPath := filepath.Join(h.cfg.Source.Root, "films", "The Dark Knight (2008)", "knight.mkv")
	testsupport.WriteVideo(t, oldPath, 64)
	h.runCycle(t)

	newPath := filepath.Join(h.cfg.Source.Root, "films", "incoming", "knight.mkv")
	testsupport.WriteVideo(t, newPath, 64)
	if err := os.RemoveAll(filepath.Dir(oldPath)); err != nil {
		t.Fatalf("remove old copy: %v", err)
	}

	report := h.runCycle(t)
	if report.Archived != 1 || report.Reused != 1 || report.Mapped != 1 {
		t.Fatalf("expected archived copy reused, got %+v", report)
	}
	if calls := h.provider.searches.Load(); calls != 1 {
		t.Fatalf("reuse must not call the provider, searches=%d", calls)
	}
	assertLink(t, h.link(knightTarget), newPath)
}

func TestRunCycleMountDownGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.writeSources(t)
	h.runCycle(t)

	if err := os.RemoveAll(h.cfg.Source.Root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	if err := os.MkdirAll(h.cfg.Source.Root, 0o755); err != nil {
		t.Fatalf("recreate root: %v", err)
	}

	report := h.runCycle(t)
	if !report.ArchivalSuppressed || report.Archived != 0 {
		t.Fatalf("empty listing must not archive entries: %+v", report)
	}
	if _, err := os.Lstat(h.link(knightTarget)); err != nil {
		t.Fatalf("links must survive a suspect listing: %v", err)
	}

	h.cfg.Workflow.ArchiveOnEmptyListing = true
	report = h.runCycle(t)
	if report.Archived != 3 || report.LinksRemoved != 2 {
		t.Fatalf("expected archival when allowed, got %+v", report)
	}
}

func TestRunCycleListingFailure(t *testing.T) {
	h := newHarness(t, nil)
	if err := os.RemoveAll(h.cfg.Source.Root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	report, err := h.manager.RunCycle(context.Background())
	if !errors.Is(err, services.ErrFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
	if report.Error == "" || h.manager.Status().LastError == "" {
		t.Fatalf("expected failure recorded in report and status")
	}
}

func TestRunCycleSkipsWhenInProgress(t *testing.T) {
	lister := newBlockingLister()
	h := newHarness(t, lister)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.manager.RunCycle(ctx)
		done <- err
	}()
	<-lister.started

	if _, err := h.manager.RunCycle(context.Background()); !errors.Is(err, workflow.ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	if !h.manager.Status().Running {
		t.Fatalf("expected status to report a running cycle")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled cycle, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not stop after cancellation")
	}
}

func TestRebuildPreemptsCycle(t *testing.T) {
	lister := newBlockingLister()
	h := newHarness(t, lister)

	done := make(chan error, 1)
	go func() {
		_, err := h.manager.RunCycle(context.Background())
		done <- err
	}()
	<-lister.started

	if _, err := h.manager.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected preempted cycle to be cancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cycle was not preempted")
	}
}

func TestRebuildUsesOnlyPersistedMappings(t *testing.T) {
	h := newHarness(t, nil)
	h.writeSources(t)
	h.runCycle(t)
	searches := h.provider.searches.Load()

	if err := os.RemoveAll(h.cfg.Paths.LibraryDir); err != nil {
		t.Fatalf("remove library: %v", err)
	}
	if err := os.MkdirAll(h.cfg.Paths.LibraryDir, 0o755); err != nil {
		t.Fatalf("recreate library: %v", err)
	}

	report, err := h.manager.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("expected 2 links recreated, got %+v", report)
	}
	assertLink(t, h.link(knightTarget), h.knightPath())
	assertLink(t, h.link(doctorTarget), h.doctorPath())
	if h.provider.searches.Load() != searches || h.provider.lookups.Load() != 0 {
		t.Fatalf("rebuild must not call the provider")
	}
}

func TestRetryResetsEntry(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxRepairAttempts(1))
	h.writeSources(t)
	h.runCycle(t)
	ctx := context.Background()

	entry, err := h.manager.Retry(ctx, h.alienPath())
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if entry.State != catalog.StateNew || entry.Manual || entry.RepairAttempts != 0 {
		t.Fatalf("unexpected entry after retry: %+v", entry)
	}

	if _, err := h.manager.Retry(ctx, h.knightPath()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error retrying a mapped entry, got %v", err)
	}
	if _, err := h.manager.Retry(ctx, "999"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunCycleIdempotentOverUnchangedListing(t *testing.T) {
	h := newHarness(t, nil)
	testsupport.WriteVideo(t, h.knightPath(), 64)
	testsupport.WriteVideo(t, h.doctorPath(), 32)
	ctx := context.Background()

	first := h.runCycle(t)
	if first.Mapped != 2 || first.LinksCreated != 2 {
		t.Fatalf("unexpected first cycle: %+v", first)
	}
	revision, err := h.store.Revision(ctx)
	if err != nil {
		t.Fatalf("Revision: %v", err)
	}
	searches := h.provider.searches.Load()

	second := h.runCycle(t)
	if second.Attempted != 0 || second.Added != 0 || second.Archived != 0 {
		t.Fatalf("unchanged listing should do no work: %+v", second)
	}
	if !second.LinksSkipped || second.LinksCreated+second.LinksReplaced+second.LinksRemoved != 0 {
		t.Fatalf("unchanged listing should not touch links: %+v", second)
	}
	after, err := h.store.Revision(ctx)
	if err != nil {
		t.Fatalf("Revision: %v", err)
	}
	if after != revision {
		t.Fatalf("revision moved from %d to %d", revision, after)
	}
	if h.provider.searches.Load() != searches {
		t.Fatalf("unchanged listing must not call the provider")
	}
}

// resolvingStore runs an operator resolution right after the pending list is
// read, so the cycle works from a stale snapshot.
type resolvingStore struct {
	*catalog.Store
	once    sync.Once
	resolve func(ctx context.Context) error
	err     error
}

func (s *resolvingStore) ListPending(ctx context.Context) ([]catalog.Entry, error) {
	pending, err := s.Store.ListPending(ctx)
	if err == nil {
		s.once.Do(func() { s.err = s.resolve(ctx) })
	}
	return pending, err
}

func TestRunCycleSkipsEntryResolvedAfterListing(t *testing.T) {
	h := newHarness(t, nil)
	h.writeSources(t)
	alien := testsupport.MustIdentity(t, h.store, catalog.IdentityInput{ExternalID: 348, Kind: media.KindFilm, Title: "Alien", Year: 1979})

	racing := &resolvingStore{resolve: func(ctx context.Context) error {
		_, err := h.store.ManualResolve(ctx, h.alienPath(), alien, 0, 0)
		return err
	}}
	manager := h.newManager(nil, h.provider, func(store *catalog.Store) workflow.Store {
		racing.Store = store
		return racing
	})

	report, err := manager.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if racing.err != nil {
		t.Fatalf("ManualResolve: %v", racing.err)
	}
	if report.Attempted != 3 || report.Mapped != 2 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	entry := h.entry(t, h.alienPath())
	if entry.State != catalog.StateMapped || entry.Manual || entry.RepairAttempts != 0 {
		t.Fatalf("operator resolution was undone: %+v", entry)
	}
	mapping, err := h.store.ListBySource(context.Background(), h.alienPath())
	if err != nil {
		t.Fatalf("ListBySource: %v", err)
	}
	if !mapping.ManualOverride || mapping.TargetPath != alienTarget {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
	assertLink(t, h.link(alienTarget), h.alienPath())
	if calls := h.provider.searches.Load(); calls != 2 {
		t.Fatalf("resolved entry must not reach the provider, searches=%d", calls)
	}
}

// unavailableProvider fails every call the way an unreachable TMDB does.
type unavailableProvider struct {
	searches atomic.Int64
}

func (p *unavailableProvider) Search(context.Context, string, media.Kind, int) ([]identification.Candidate, error) {
	p.searches.Add(1)
	return nil, services.Wrap(services.ErrProviderUnavailable, "tmdb", "search", "", errors.New("connection refused"))
}

func (p *unavailableProvider) Lookup(context.Context, int64, media.Kind) (identification.Candidate, error) {
	return identification.Candidate{}, services.ErrProviderUnavailable
}

func TestRunCycleRoutesProviderOutageToManual(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxRepairAttempts(2))
	h.writeSources(t)
	provider := &unavailableProvider{}
	manager := h.newManager(nil, provider, nil)
	ctx := context.Background()

	first, err := manager.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if first.Attempted != 3 || first.Failed != 3 || first.Mapped != 0 || first.Manual != 0 {
		t.Fatalf("unexpected first cycle: %+v", first)
	}
	for _, path := range []string{h.knightPath(), h.doctorPath(), h.alienPath()} {
		entry := h.entry(t, path)
		if entry.State != catalog.StateRetryable || entry.RepairAttempts != 1 || entry.LastErrorKind != services.KindProvider {
			t.Fatalf("unexpected entry after outage: %+v", entry)
		}
	}

	second, err := manager.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if second.Attempted != 3 || second.Manual != 3 {
		t.Fatalf("expected every entry parked at the threshold, got %+v", second)
	}
	if entry := h.entry(t, h.knightPath()); entry.State != catalog.StateManual || !entry.Manual || entry.RepairAttempts != 2 {
		t.Fatalf("unexpected manual entry: %+v", entry)
	}

	third, err := manager.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if third.Attempted != 0 {
		t.Fatalf("manual entries must not be retried automatically: %+v", third)
	}
	if calls := provider.searches.Load(); calls != 6 {
		t.Fatalf("expected 6 provider searches, got %d", calls)
	}
}

func TestRunCycleRoutesParseFailureToManual(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxRepairAttempts(1))
	path := filepath.Join(h.cfg.Source.Root, "video.mkv")
	testsupport.WriteVideo(t, path, 16)

	report := h.runCycle(t)
	if report.Attempted != 1 || report.Manual != 1 || report.Failed != 1 || report.Mapped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	entry := h.entry(t, path)
	if entry.State != catalog.StateManual || entry.RepairAttempts != 1 || entry.LastErrorKind != services.KindParse {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if calls := h.provider.searches.Load(); calls != 0 {
		t.Fatalf("unparseable names must not reach the provider, searches=%d", calls)
	}
}

// stallingProvider blocks every search until its context is cancelled.
type stallingProvider struct {
	once    sync.Once
	started chan struct{}
}

func (p *stallingProvider) Search(ctx context.Context, _ string, _ media.Kind, _ int) ([]identification.Candidate, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *stallingProvider) Lookup(ctx context.Context, _ int64, _ media.Kind) (identification.Candidate, error) {
	<-ctx.Done()
	return identification.Candidate{}, ctx.Err()
}

func TestRunCycleCancelledDuringResolution(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithWorkers(1))
	testsupport.WriteVideo(t, h.knightPath(), 64)
	provider := &stallingProvider{started: make(chan struct{})}
	manager := h.newManager(nil, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := manager.RunCycle(ctx)
		done <- err
	}()
	<-provider.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled cycle, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not stop after cancellation")
	}

	entry := h.entry(t, h.knightPath())
	if entry.State != catalog.StateResolving || entry.RepairAttempts != 0 || entry.LastErrorKind != "" {
		t.Fatalf("cancellation must not record a failure: %+v", entry)
	}
	if _, err := h.store.ListBySource(context.Background(), h.knightPath()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no mapping after cancellation, got %v", err)
	}
	if _, err := os.Lstat(h.link(knightTarget)); !os.IsNotExist(err) {
		t.Fatalf("expected no link after cancellation, got %v", err)
	}

	report := h.runCycle(t)
	if report.Attempted != 1 || report.Mapped != 1 {
		t.Fatalf("interrupted entry should resolve next cycle: %+v", report)
	}
	assertLink(t, h.link(knightTarget), h.knightPath())
}
