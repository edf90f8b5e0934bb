package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/identification"
	"curator/internal/identification/tmdb"
	"curator/internal/logging"
	"curator/internal/nameparse"
	"curator/internal/organizer"
	"curator/internal/source"
	"curator/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Rebuild performs a single link rebuild and exits instead of looping.
	Rebuild bool
}

// Runtime bundles the wired components shared by the daemon and the
// one-shot CLI commands.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *catalog.Store
	Lister       *source.FSLister
	Resolver     *identification.Resolver
	Synchronizer *organizer.Synchronizer
	Manager      *workflow.Manager
}

// Open wires the catalog, provider, resolver, synchronizer and workflow
// manager for cfg. Callers must Close the runtime.
func Open(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("tmdb client: %w", err)
	}
	provider := identification.NewTMDBProvider(client, time.Duration(cfg.TMDB.RequestIntervalMS)*time.Millisecond)
	resolver := identification.NewResolver(provider, store, logger,
		identification.WithPolicy(cfg.Identification.ConfidenceThreshold, cfg.Identification.AmbiguityMargin),
	)

	lister := source.NewFSLister(cfg, logger)
	state := organizer.LoadLinkState(cfg.LinkStatePath(), logger)
	synchronizer := organizer.NewSynchronizer(cfg, store, state, logger)
	manager := workflow.NewManager(cfg, store, lister, nameparse.New(), resolver, synchronizer, logger)

	return &Runtime{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Lister:       lister,
		Resolver:     resolver,
		Synchronizer: synchronizer,
		Manager:      manager,
	}, nil
}

// Close releases the catalog handle.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Run starts the curator daemon runtime loop, or performs a one-shot rebuild
// when requested through opts or the rebuild toggle.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := Open(cfg, logger)
	if err != nil {
		logger.Error("runtime initialization failed", logging.Error(err))
		return err
	}
	defer rt.Close()

	logger.Info("curator starting",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("source_root", cfg.Source.Root),
		logging.String("library_dir", cfg.Paths.LibraryDir),
		logging.String("database", rt.Store.Path()),
		logging.Bool("tmdb_key_present", strings.TrimSpace(cfg.TMDB.APIKey) != ""),
		logging.Bool("jellyfin_enabled", cfg.Jellyfin.Enabled),
		logging.Bool("watch", cfg.Source.Watch),
	)

	if opts.Rebuild || cfg.Workflow.RebuildMode {
		return runRebuild(signalCtx, rt)
	}

	d, err := daemon.New(cfg, rt.Store, logger, rt.Manager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("curator daemon shutting down")
	return nil
}

func runRebuild(ctx context.Context, rt *Runtime) error {
	report, err := rt.Manager.Rebuild(ctx)
	if err != nil {
		logging.ErrorWithContext(rt.Logger, "rebuild failed", "rebuild_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library_dir permissions and the catalog database"),
		)
		return err
	}
	rt.Logger.Info("rebuild mode complete; exiting",
		logging.String(logging.FieldEventType, "rebuild_mode_complete"),
		logging.Int("created", report.Created),
		logging.Int("removed", report.Removed),
		logging.Int("dangling", len(report.Dangling)),
	)
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:         level,
		Format:        cfg.Logging.Format,
		FilePath:      cfg.LogPath(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxBackups:    cfg.Logging.MaxBackups,
		RetentionDays: cfg.Logging.RetentionDays,
		Development:   opts.Development,
	})
}
