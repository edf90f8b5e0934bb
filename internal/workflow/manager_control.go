package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/organizer"
	"curator/internal/services"
)

// ManualRequest is an operator override for one entry. Season and Episode
// are taken from the entry's names when Episode is zero.
type ManualRequest struct {
	Ref        string     `json:"ref"`
	ExternalID int64      `json:"external_id"`
	Kind       media.Kind `json:"kind,omitempty"`
	Season     int        `json:"season,omitempty"`
	Episode    int        `json:"episode,omitempty"`
}

// ManualResult reports the mapping written by ManualResolve and the link sync
// that followed it.
type ManualResult struct {
	Mapping catalog.Mapping  `json:"mapping"`
	Links   organizer.Report `json:"links"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool         `json:"running"`
	LastError  string       `json:"lastError,omitempty"`
	LastReport *CycleReport `json:"lastReport,omitempty"`
}

// Rebuild cancels any running cycle, waits for it, then recreates the link
// tree from persisted mappings. It never calls the parser or resolver.
func (m *Manager) Rebuild(ctx context.Context) (organizer.Report, error) {
	m.mu.RLock()
	cancel := m.cycleCancel
	m.mu.RUnlock()
	if cancel != nil {
		m.logger.Info("cancelling running cycle for rebuild",
			logging.String(logging.FieldEventType, "cycle_preempted"),
		)
		cancel()
	}
	m.guard.Lock()
	defer m.guard.Unlock()

	logger := logging.WithContext(ctx, m.logger)
	links, err := m.synchronizer.Rebuild(ctx)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "rebuild failed", "rebuild_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library_dir is mounted and writable"),
		)
		return links, err
	}
	logger.Info("rebuild complete",
		logging.String(logging.FieldEventType, "rebuild_completed"),
		logging.Int("created", links.Created),
		logging.Int("removed", links.Removed),
		logging.Int("dangling", len(links.Dangling)),
		logging.Int("conflicts", len(links.Conflicts)),
	)
	if links.Changed() {
		m.refresh(ctx, logger, links.FilmsChanged, links.ShowsChanged)
	}
	return links, nil
}

// ManualResolve maps an entry to an operator chosen identity. The identity
// is read from the store when known and fetched from the provider otherwise.
func (m *Manager) ManualResolve(ctx context.Context, req ManualRequest) (ManualResult, error) {
	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		return ManualResult{}, services.Wrap(services.ErrValidation, "workflow", "manual resolve", "entry reference is required", nil)
	}
	if req.ExternalID <= 0 {
		return ManualResult{}, services.Wrap(services.ErrValidation, "workflow", "manual resolve", "external id must be positive", nil)
	}
	if req.Episode < 0 || req.Season < 0 {
		return ManualResult{}, services.Wrap(services.ErrValidation, "workflow", "manual resolve", "season and episode must not be negative", nil)
	}

	entry, err := m.store.GetEntry(ctx, ref)
	if err != nil {
		return ManualResult{}, err
	}
	release := m.locks.acquire(entry.Path)
	defer release()

	ctx = services.WithSourcePath(ctx, entry.Path)
	logger := logging.WithContext(ctx, m.logger)

	identity, err := m.manualIdentity(ctx, req)
	if err != nil {
		return ManualResult{}, err
	}

	season, episode := req.Season, req.Episode
	if identity.Kind == media.KindSeries && episode == 0 {
		season, episode, err = m.episodeFromNames(entry)
		if err != nil {
			return ManualResult{}, err
		}
	}

	mapping, err := m.store.ManualResolve(ctx, entry.Path, identity, season, episode)
	if err != nil {
		var collision *catalog.CollisionError
		if errors.As(err, &collision) {
			logging.WarnWithContext(logger, "manual resolution collides with another source", "manual_collision",
				logging.String(logging.FieldTargetPath, collision.TargetPath),
				logging.String("existing_source", collision.ExistingSourcePath),
				logging.String(logging.FieldErrorKind, services.KindCollision),
				logging.String(logging.FieldErrorHint, "delete or re-resolve the existing mapping first"),
			)
		}
		return ManualResult{}, err
	}
	logger.Info("entry resolved manually",
		logging.String(logging.FieldEventType, "manual_resolved"),
		logging.String(logging.FieldTargetPath, mapping.TargetPath),
		logging.Int64(logging.FieldExternalID, identity.ExternalID),
	)

	result := ManualResult{Mapping: mapping}
	links, err := m.synchronizer.Sync(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "link sync after manual resolution failed", "link_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library_dir; the next cycle retries the link"),
			logging.String(logging.FieldImpact, "mapping saved but not yet linked"),
		)
		return result, nil
	}
	result.Links = links
	if links.Changed() {
		m.refresh(ctx, logger, links.FilmsChanged, links.ShowsChanged)
	}
	return result, nil
}

func (m *Manager) manualIdentity(ctx context.Context, req ManualRequest) (catalog.Identity, error) {
	var kind media.Kind
	if strings.TrimSpace(string(req.Kind)) != "" {
		parsed, err := media.ParseKind(string(req.Kind))
		if err != nil {
			return catalog.Identity{}, services.Wrap(services.ErrValidation, "workflow", "manual resolve", err.Error(), nil)
		}
		kind = parsed
	}
	identity, found, err := m.store.FindIdentity(ctx, req.ExternalID, kind)
	if err != nil {
		return catalog.Identity{}, err
	}
	if found {
		return identity, nil
	}
	return m.resolver.Lookup(ctx, req.ExternalID, kind)
}

func (m *Manager) episodeFromNames(entry catalog.Entry) (int, int, error) {
	parsed, err := m.parser.Parse(nameparse.Input{
		Name:         entry.DisplayName,
		FallbackName: entry.FallbackName,
		KindHint:     media.KindSeries,
	})
	if err != nil || parsed.Episode <= 0 {
		return 0, 0, services.Wrap(services.ErrValidation, "workflow", "manual resolve",
			fmt.Sprintf("series mapping for %s needs --season and --episode", entry.Path), nil)
	}
	return parsed.Season, parsed.Episode, nil
}

// Retry returns a manual, collision or retryable entry to the new state.
func (m *Manager) Retry(ctx context.Context, ref string) (catalog.Entry, error) {
	entry, err := m.store.GetEntry(ctx, strings.TrimSpace(ref))
	if err != nil {
		return catalog.Entry{}, err
	}
	release := m.locks.acquire(entry.Path)
	defer release()

	entry, err = m.store.ResetEntry(ctx, entry.Path)
	if err != nil {
		return catalog.Entry{}, err
	}
	m.logger.Info("entry reset for retry",
		logging.String(logging.FieldSourcePath, entry.Path),
		logging.String(logging.FieldEventType, "entry_reset"),
	)
	return entry, nil
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastReport != nil {
		snapshot := *m.lastReport
		summary.LastReport = &snapshot
	}
	return summary
}

func (m *Manager) beginCycle(cancel context.CancelFunc) {
	m.mu.Lock()
	m.cycleCancel = cancel
	m.running = true
	m.mu.Unlock()
}

func (m *Manager) endCycle(report CycleReport, err error) {
	m.mu.Lock()
	m.cycleCancel = nil
	m.running = false
	m.lastReport = &report
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
