package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/organizer"
	"curator/internal/workflow"
)

const defaultDebounce = 2 * time.Second

// Catalog is the read side of the store the daemon exposes over HTTP.
type Catalog interface {
	ListEntries(ctx context.Context, filter catalog.EntryFilter) ([]catalog.Entry, error)
	ListTitles(ctx context.Context) ([]catalog.TitleSummary, error)
	ListSeasons(ctx context.Context, canonicalID int64) ([]catalog.SeasonSummary, error)
	ListAllMappings(ctx context.Context) ([]catalog.Mapping, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	Path() string
}

// Reconciler drives reconciliation cycles and operator actions.
type Reconciler interface {
	RunCycle(ctx context.Context) (workflow.CycleReport, error)
	Rebuild(ctx context.Context) (organizer.Report, error)
	ManualResolve(ctx context.Context, req workflow.ManualRequest) (workflow.ManualResult, error)
	Retry(ctx context.Context, ref string) (catalog.Entry, error)
	Status() workflow.StatusSummary
}

// Daemon coordinates the scan loop and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    Catalog
	workflow Reconciler

	lockPath string
	lock     *flock.Flock

	interval time.Duration
	debounce time.Duration
	trigger  chan string
	watch    bool

	api     *apiServer
	watcher *sourceWatcher

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Stats        *catalog.Stats
	DatabasePath string
	LockFilePath string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithDebounce overrides the trigger debounce window.
func WithDebounce(d time.Duration) Option {
	return func(daemon *Daemon) {
		if d > 0 {
			daemon.debounce = d
		}
	}
}

// WithScanInterval overrides the ticker period.
func WithScanInterval(d time.Duration) Option {
	return func(daemon *Daemon) {
		if d > 0 {
			daemon.interval = d
		}
	}
}

// WithoutWatcher disables the filesystem watcher regardless of configuration.
func WithoutWatcher() Option {
	return func(daemon *Daemon) {
		daemon.watch = false
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store Catalog, logger *slog.Logger, wf Reconciler, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Workflow.ScanInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		interval: interval,
		debounce: defaultDebounce,
		trigger:  make(chan string, 1),
		watch:    cfg.Source.Watch,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg.API.Bind, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the scan loop, the watcher and
// the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another curator daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	if d.watch {
		watcher, err := newSourceWatcher(d.cfg, d.Trigger, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "source watcher unavailable", "watcher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes are picked up on the scan interval only"),
				logging.String(logging.FieldErrorHint, "the source mount may not support inotify; set source.watch = false to silence"),
			)
		} else {
			d.watcher = watcher
			go watcher.run(runCtx)
		}
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(runCtx)

	d.logger.Info("curator daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("scan_interval", d.interval),
		logging.Bool("watch", d.watcher != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	<-d.done
	d.api.stop()
	if d.watcher != nil {
		d.watcher.close()
		d.watcher = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.cancel = nil
	d.running.Store(false)
	d.logger.Info("curator daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Trigger asks the loop to run a cycle after the debounce window. Triggers
// arriving while one is already pending are coalesced.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.trigger <- reason:
	default:
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Stats = &stats
	} else {
		d.logger.Debug("stats unavailable", logging.Error(err))
	}
	return status
}

// LockHeld reports whether any process currently holds the daemon lock at
// path. It is used by the CLI to report daemon presence.
func LockHeld(path string) (bool, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
