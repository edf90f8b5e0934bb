package organizer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/services"
)

// MappingLister is the read side of the catalog the synchronizer needs.
type MappingLister interface {
	ListAllMappings(ctx context.Context) ([]catalog.Mapping, error)
	Revision(ctx context.Context) (int64, error)
}

// Report summarizes one Sync or Rebuild.
type Report struct {
	Created   int
	Replaced  int
	Removed   int
	Unchanged int
	Dangling  []string
	Conflicts []string
	Failed    []string

	Revision     int64
	Skipped      bool
	FilmsChanged bool
	ShowsChanged bool
	Duration     time.Duration
}

// Changed reports whether any link was written or removed.
func (r Report) Changed() bool {
	return r.Created+r.Replaced+r.Removed > 0
}

// Synchronizer keeps the library symlink tree equal to the set implied by
// active mappings.
type Synchronizer struct {
	store       MappingLister
	state       *LinkState
	layout      catalog.Layout
	libraryDir  string
	sourceRoot  string
	linkRoot    string
	verifyEvery int
	logger      *slog.Logger

	mu    sync.Mutex
	syncs int
}

type desiredLink struct {
	target string
	dest   string
	source string
}

// NewSynchronizer constructs a Synchronizer from cfg.
func NewSynchronizer(cfg *config.Config, store MappingLister, state *LinkState, logger *slog.Logger) *Synchronizer {
	if state == nil {
		state = LoadLinkState("", logger)
	}
	return &Synchronizer{
		store:       store,
		state:       state,
		layout:      catalog.NewLayout(cfg),
		libraryDir:  cfg.Paths.LibraryDir,
		sourceRoot:  strings.TrimRight(cfg.Source.Root, "/"),
		linkRoot:    strings.TrimRight(cfg.Source.LinkRoot, "/"),
		verifyEvery: cfg.Workflow.VerifyEvery,
		logger:      logging.NewComponentLogger(logger, "organizer"),
	}
}

// LinkDest maps a source path to the destination written into the link,
// rewriting the source root to the configured link root.
func (s *Synchronizer) LinkDest(sourcePath string) string {
	if s.linkRoot == "" || s.sourceRoot == "" {
		return sourcePath
	}
	if sourcePath == s.sourceRoot {
		return s.linkRoot
	}
	if strings.HasPrefix(sourcePath, s.sourceRoot+"/") {
		return s.linkRoot + sourcePath[len(s.sourceRoot):]
	}
	return sourcePath
}

// Sync applies mapping changes since the last sync. When the store revision
// matches the snapshot nothing is read, except on every verifyEvery-th call
// which inspects every link on disk.
func (s *Synchronizer) Sync(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	logger := logging.WithContext(ctx, s.logger)
	if err := s.checkLibrary(); err != nil {
		return Report{}, err
	}

	revision, err := s.store.Revision(ctx)
	if err != nil {
		return Report{}, err
	}
	s.syncs++
	verify := s.verifyEvery > 0 && s.syncs%s.verifyEvery == 0
	if !verify && s.state.Revision() == revision {
		logger.Debug("link sync skipped; store unchanged",
			logging.Int64("revision", revision),
			logging.String(logging.FieldEventType, "link_sync_skipped"),
		)
		return Report{Revision: revision, Skipped: true, Duration: time.Since(started)}, nil
	}

	desired, retired, err := s.desired(ctx)
	if err != nil {
		return Report{}, err
	}
	// An unsynced snapshot cannot name the links it forgot, so archived
	// mappings are checked on disk until a sync completes.
	sweepRetired := verify || s.state.Revision() == unsyncedRevision

	report := Report{Revision: revision}
	for _, link := range desired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !verify {
			if cached, ok := s.state.Lookup(link.target); ok && cached == link.dest {
				report.Unchanged++
				continue
			}
		}
		if err := s.apply(link, &report, logger); err != nil {
			return report, err
		}
	}

	wanted := make(map[string]struct{}, len(desired))
	for _, link := range desired {
		wanted[link.target] = struct{}{}
	}
	for _, target := range s.state.Targets() {
		if _, ok := wanted[target]; ok {
			continue
		}
		if err := s.remove(target, &report, logger); err != nil {
			return report, err
		}
	}
	if sweepRetired {
		for _, link := range retired {
			if _, ok := wanted[link.target]; ok {
				continue
			}
			if !linkPointsTo(s.fullPath(link.target), link.dest) {
				continue
			}
			if err := s.remove(link.target, &report, logger); err != nil {
				return report, err
			}
		}
	}

	if err := s.state.Save(revision); err != nil {
		logger.Warn("link state not saved; next sync re-inspects links",
			logging.Error(err),
			logging.String(logging.FieldEventType, "link_state_save_failed"),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "extra filesystem checks next cycle"),
		)
	}
	report.Duration = time.Since(started)
	s.logReport(logger, "link sync complete", "link_sync_complete", report, verify)
	return report, nil
}

// Rebuild recreates the whole tree from persisted mappings. Stray symlinks
// under the library sections are removed, regular files are never touched,
// and every desired link is written whether or not its source still exists.
func (s *Synchronizer) Rebuild(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	logger := logging.WithContext(ctx, s.logger)
	if err := s.checkLibrary(); err != nil {
		return Report{}, err
	}

	revision, err := s.store.Revision(ctx)
	if err != nil {
		return Report{}, err
	}
	desired, _, err := s.desired(ctx)
	if err != nil {
		return Report{}, err
	}
	s.state.Reset()

	wanted := make(map[string]string, len(desired))
	for _, link := range desired {
		wanted[link.target] = link.dest
	}

	report := Report{Revision: revision}
	for _, section := range []string{s.layout.FilmsDir, s.layout.ShowsDir} {
		if err := s.sweepSection(ctx, section, wanted, &report, logger); err != nil {
			return report, err
		}
	}

	for _, link := range desired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.apply(link, &report, logger); err != nil {
			return report, err
		}
	}

	if err := s.state.Save(revision); err != nil {
		logger.Warn("link state not saved after rebuild",
			logging.Error(err),
			logging.String(logging.FieldEventType, "link_state_save_failed"),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "next sync re-inspects links"),
		)
	}
	report.Duration = time.Since(started)
	s.logReport(logger, "link rebuild complete", "link_rebuild_complete", report, true)
	return report, nil
}

// desired splits the mapping set into links to keep and links of archived
// mappings that must not exist.
func (s *Synchronizer) desired(ctx context.Context) (links, retired []desiredLink, err error) {
	mappings, err := s.store.ListAllMappings(ctx)
	if err != nil {
		return nil, nil, err
	}
	links = make([]desiredLink, 0, len(mappings))
	for _, m := range mappings {
		link := desiredLink{target: m.TargetPath, dest: s.LinkDest(m.SourcePath), source: m.SourcePath}
		if !m.Active() {
			if m.TargetPath != "" {
				retired = append(retired, link)
			}
			continue
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].target < links[j].target })
	return links, retired, nil
}

func (s *Synchronizer) apply(link desiredLink, report *Report, logger *slog.Logger) error {
	full := s.fullPath(link.target)
	outcome, err := ensureLink(full, link.dest)
	if err != nil {
		if isLibraryUnavailable(err) {
			return services.Wrap(services.ErrFilesystem, "organizer", "link", "library unavailable", err)
		}
		report.Failed = append(report.Failed, link.target)
		logger.Warn("link write failed; retried next sync",
			logging.String(logging.FieldTargetPath, link.target),
			logging.String(logging.FieldSourcePath, link.source),
			logging.Error(err),
			logging.String(logging.FieldEventType, "link_write_failed"),
			logging.String(logging.FieldErrorHint, "check library_dir permissions"),
			logging.String(logging.FieldImpact, "title missing from media server until fixed"),
		)
		return nil
	}

	switch outcome {
	case linkConflict:
		report.Conflicts = append(report.Conflicts, link.target)
		logger.Warn("library path occupied by a regular file; left untouched",
			logging.String(logging.FieldTargetPath, link.target),
			logging.String(logging.FieldSourcePath, link.source),
			logging.String(logging.FieldEventType, "link_conflict"),
			logging.String(logging.FieldErrorHint, "move the file out of the library so the link can be written"),
		)
		return nil
	case linkCreated:
		report.Created++
		s.markSection(link.target, report)
	case linkReplaced:
		report.Replaced++
		s.markSection(link.target, report)
	default:
		report.Unchanged++
	}
	s.state.Set(link.target, link.dest)

	if sourceMissing(link.source) {
		report.Dangling = append(report.Dangling, link.target)
		logger.Warn("link destination missing on source mount",
			logging.String(logging.FieldTargetPath, link.target),
			logging.String(logging.FieldSourcePath, link.source),
			logging.String(logging.FieldEventType, "link_dangling"),
			logging.String(logging.FieldErrorHint, "check the source mount; the link is kept until the entry is archived"),
		)
	}
	return nil
}

func (s *Synchronizer) remove(target string, report *Report, logger *slog.Logger) error {
	full := s.fullPath(target)
	removed, err := removeLink(full)
	if err != nil {
		if isLibraryUnavailable(err) {
			return services.Wrap(services.ErrFilesystem, "organizer", "unlink", "library unavailable", err)
		}
		report.Failed = append(report.Failed, target)
		logger.Warn("stale link not removed",
			logging.String(logging.FieldTargetPath, target),
			logging.Error(err),
			logging.String(logging.FieldEventType, "link_remove_failed"),
			logging.String(logging.FieldErrorHint, "check library_dir permissions"),
		)
		return nil
	}
	s.state.Delete(target)
	if removed {
		report.Removed++
		s.markSection(target, report)
		pruneEmptyParents(filepath.Dir(full), s.libraryDir)
		logger.Info("removed stale link",
			logging.String(logging.FieldTargetPath, target),
			logging.String(logging.FieldEventType, "link_removed"),
		)
	}
	return nil
}

// sweepSection removes symlinks under one library section that are not
// wanted or point elsewhere, then prunes empty directories.
func (s *Synchronizer) sweepSection(ctx context.Context, section string, wanted map[string]string, report *Report, logger *slog.Logger) error {
	root := filepath.Join(s.libraryDir, filepath.FromSlash(section))
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(s.libraryDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := wanted[rel]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		report.Removed++
		s.markSection(rel, report)
		logger.Debug("removed stray link", logging.String(logging.FieldTargetPath, rel))
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrFilesystem, "organizer", "sweep", section, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
	return nil
}

func (s *Synchronizer) checkLibrary() error {
	info, err := os.Stat(s.libraryDir)
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "organizer", "check library", s.libraryDir, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrFilesystem, "organizer", "check library", s.libraryDir+" is not a directory", nil)
	}
	return nil
}

func (s *Synchronizer) fullPath(target string) string {
	return filepath.Join(s.libraryDir, filepath.FromSlash(target))
}

func (s *Synchronizer) markSection(target string, report *Report) {
	switch s.layout.Section(target) {
	case media.KindFilm:
		report.FilmsChanged = true
	case media.KindSeries:
		report.ShowsChanged = true
	}
}

func (s *Synchronizer) logReport(logger *slog.Logger, msg, event string, report Report, verify bool) {
	level := slog.LevelDebug
	if report.Changed() || len(report.Dangling) > 0 || len(report.Conflicts) > 0 {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, msg,
		logging.String(logging.FieldEventType, event),
		logging.Int64("revision", report.Revision),
		logging.Int("created", report.Created),
		logging.Int("replaced", report.Replaced),
		logging.Int("removed", report.Removed),
		logging.Int("unchanged", report.Unchanged),
		logging.Int("dangling", len(report.Dangling)),
		logging.Int("conflicts", len(report.Conflicts)),
		logging.Bool("verify", verify),
		logging.Duration("duration", report.Duration),
	)
}
