package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/organizer"
	"curator/internal/services/jellyfin"
	"curator/internal/source"
)

// ErrCycleInProgress is returned when a cycle is requested while another is
// still running.
var ErrCycleInProgress = errors.New("scan cycle already in progress")

// Store is the catalog surface the manager drives.
type Store interface {
	SyncSources(ctx context.Context, entries []source.Entry, opts ...catalog.SyncOption) (catalog.SyncResult, error)
	ActiveCount(ctx context.Context) (int, error)
	ListPending(ctx context.Context) ([]catalog.Entry, error)
	MarkResolving(ctx context.Context, path string) error
	RecordFailure(ctx context.Context, path, kind string, cause error, threshold int) (catalog.Entry, error)
	ResetEntry(ctx context.Context, ref string) (catalog.Entry, error)
	GetEntry(ctx context.Context, ref string) (catalog.Entry, error)
	UpsertMapping(ctx context.Context, in catalog.MappingInput) (catalog.Mapping, error)
	FindReusableMapping(ctx context.Context, contentHash, excludePath string) (catalog.Mapping, bool, error)
	FindIdentity(ctx context.Context, externalID int64, kind media.Kind) (catalog.Identity, bool, error)
	ManualResolve(ctx context.Context, ref string, identity catalog.Identity, season, episode int) (catalog.Mapping, error)
}

// Resolver maps parsed names to canonical identities.
type Resolver interface {
	Resolve(ctx context.Context, parsed nameparse.Result) (catalog.Identity, float64, error)
	Lookup(ctx context.Context, externalID int64, kind media.Kind) (catalog.Identity, error)
}

// Synchronizer applies mappings to the library tree.
type Synchronizer interface {
	Sync(ctx context.Context) (organizer.Report, error)
	Rebuild(ctx context.Context) (organizer.Report, error)
}

// Manager coordinates scan cycles, rebuilds and operator overrides.
type Manager struct {
	cfg          *config.Config
	store        Store
	lister       source.Lister
	parser       nameparse.Strategy
	resolver     Resolver
	synchronizer Synchronizer
	refresher    jellyfin.Service
	refreshOn    bool
	logger       *slog.Logger

	workers   int
	threshold int
	locks     *pathLocks

	// guard is held for the whole of a cycle or rebuild.
	guard sync.Mutex

	mu          sync.RWMutex
	cycleCancel context.CancelFunc
	running     bool
	lastReport  *CycleReport
	lastErr     error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithRefresher replaces the media-server refresher.
func WithRefresher(refresher jellyfin.Service) ManagerOption {
	return func(m *Manager) {
		if refresher != nil {
			m.refresher = refresher
			m.refreshOn = true
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store Store, lister source.Lister, parser nameparse.Strategy, resolver Resolver, synchronizer Synchronizer, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		lister:       lister,
		parser:       parser,
		resolver:     resolver,
		synchronizer: synchronizer,
		refresher:    jellyfin.NewConfiguredService(cfg),
		refreshOn:    cfg.Jellyfin.Enabled,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		workers:      cfg.Workflow.Workers,
		threshold:    cfg.Workflow.MaxRepairAttempts,
		locks:        newPathLocks(),
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
