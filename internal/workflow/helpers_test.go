package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/identification"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/organizer"
	"curator/internal/services"
	"curator/internal/source"
	"curator/internal/testsupport"
	"curator/internal/workflow"
)

const (
	knightTarget = "films/The Dark Knight (2008) [id=155]/The Dark Knight (2008) [id=155].mkv"
	doctorTarget = "shows/Doctor Who (2005) [id=57243]/Season 01/Doctor Who (2005) S01E01.mkv"
	alienTarget  = "films/Alien (1979) [id=348]/Alien (1979) [id=348].mkv"
)

type fakeProvider struct {
	mu         sync.Mutex
	candidates map[string][]identification.Candidate
	searches   atomic.Int64
	lookups    atomic.Int64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{candidates: map[string][]identification.Candidate{
		"the dark knight": {
			{ExternalID: 155, Kind: media.KindFilm, Title: "The Dark Knight", Year: 2008, MatchScore: 1, Rank: 1},
		},
		"doctor who": {
			{ExternalID: 57243, Kind: media.KindSeries, Title: "Doctor Who", Year: 2005, MatchScore: 1, Rank: 1},
		},
		"alien": {
			{ExternalID: 348, Kind: media.KindFilm, Title: "Alien", Year: 1979, MatchScore: 1, Rank: 1},
			{ExternalID: 1126, Kind: media.KindFilm, Title: "Alien", Year: 2023, MatchScore: 1, Rank: 2},
		},
	}}
}

func (f *fakeProvider) Search(_ context.Context, title string, _ media.Kind, _ int) ([]identification.Candidate, error) {
	f.searches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates[strings.ToLower(title)], nil
}

func (f *fakeProvider) Lookup(_ context.Context, externalID int64, kind media.Kind) (identification.Candidate, error) {
	f.lookups.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.candidates {
		for _, c := range list {
			if c.ExternalID == externalID && (!kind.Valid() || c.Kind == kind) {
				return c, nil
			}
		}
	}
	return identification.Candidate{}, services.ErrNotFound
}

type harness struct {
	cfg      *config.Config
	store    *catalog.Store
	provider *fakeProvider
	manager  *workflow.Manager
}

func newHarness(t *testing.T, lister source.Lister, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{cfg: cfg, store: testsupport.MustOpenStore(t, cfg), provider: newFakeProvider()}
	h.manager = h.newManager(lister, h.provider, nil)
	return h
}

// newManager builds a manager over the harness store and config. A nil wrap
// hands the catalog to the manager directly.
func (h *harness) newManager(lister source.Lister, provider identification.Provider, wrap func(*catalog.Store) workflow.Store) *workflow.Manager {
	logger := logging.NewNop()
	if lister == nil {
		lister = source.NewFSLister(h.cfg, logger)
	}
	var store workflow.Store = h.store
	if wrap != nil {
		store = wrap(h.store)
	}
	resolver := identification.NewResolver(provider, h.store, logger)
	synchronizer := organizer.NewSynchronizer(h.cfg, h.store, organizer.LoadLinkState(h.cfg.LinkStatePath(), logger), logger)
	return workflow.NewManager(h.cfg, store, lister, nameparse.New(), resolver, synchronizer, logger)
}

func (h *harness) knightPath() string {
	return filepath.Join(h.cfg.Source.Root, "films", "The.Dark.Knight.2008.1080p.BluRay.x264-GRP", "The.Dark.Knight.2008.1080p.BluRay.x264-GRP.mkv")
}

func (h *harness) doctorPath() string {
	return filepath.Join(h.cfg.Source.Root, "shows", "Doctor.Who.2005.S01.1080p", "Season 1", "Doctor.Who.2005.S01E01.mkv")
}

func (h *harness) alienPath() string {
	return filepath.Join(h.cfg.Source.Root, "Alien.mkv")
}

func (h *harness) writeSources(t *testing.T) {
	t.Helper()
	testsupport.WriteVideo(t, h.knightPath(), 64)
	testsupport.WriteVideo(t, h.doctorPath(), 32)
	testsupport.WriteVideo(t, h.alienPath(), 16)
}

func (h *harness) link(target string) string {
	return filepath.Join(h.cfg.Paths.LibraryDir, filepath.FromSlash(target))
}

func (h *harness) runCycle(t *testing.T) workflow.CycleReport {
	t.Helper()
	report, err := h.manager.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return report
}

func (h *harness) entry(t *testing.T, path string) catalog.Entry {
	t.Helper()
	entry, err := h.store.GetEntry(context.Background(), path)
	if err != nil {
		t.Fatalf("GetEntry(%s): %v", path, err)
	}
	return entry
}

func assertLink(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.Readlink(path)
	if err != nil {
		t.Fatalf("readlink %s: %v", path, err)
	}
	if got != want {
		t.Fatalf("link %s points to %q, want %q", path, got, want)
	}
}

// blockingLister blocks every List call until its context is cancelled.
type blockingLister struct {
	once    sync.Once
	started chan struct{}
}

func newBlockingLister() *blockingLister {
	return &blockingLister{started: make(chan struct{})}
}

func (b *blockingLister) List(ctx context.Context) ([]source.Entry, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}
