package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/nameparse"
	"curator/internal/services"
)

// RunCycle performs one scan cycle. It returns ErrCycleInProgress without
// waiting when another cycle or a rebuild holds the guard.
func (m *Manager) RunCycle(ctx context.Context) (CycleReport, error) {
	if !m.guard.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer m.guard.Unlock()

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.beginCycle(cancel)

	report := CycleReport{CycleID: uuid.NewString(), StartedAt: time.Now().UTC()}
	cycleCtx = services.WithCycleID(cycleCtx, report.CycleID)
	logger := logging.WithContext(cycleCtx, m.logger)

	err := m.runCycle(cycleCtx, logger, &report)
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
	}
	m.endCycle(report, err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("scan cycle cancelled",
				logging.String(logging.FieldEventType, "scan_cycle_cancelled"),
				logging.Duration("duration", report.Duration),
			)
		} else {
			logging.ErrorWithContext(logger, "scan cycle failed", "scan_cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the source mount, library dir and catalog database"),
			)
		}
		return report, err
	}

	level := slog.LevelDebug
	if report.Added+report.Archived+report.Attempted+report.LinksCreated+report.LinksRemoved > 0 {
		level = slog.LevelInfo
	}
	logger.Log(cycleCtx, level, "scan cycle complete",
		logging.String(logging.FieldEventType, "scan_cycle_completed"),
		logging.Int("listed", report.Listed),
		logging.Int("added", report.Added),
		logging.Int("archived", report.Archived),
		logging.Int("attempted", report.Attempted),
		logging.Int("mapped", report.Mapped),
		logging.Int("failed", report.Failed),
		logging.Int("manual", report.Manual),
		logging.Int("collisions", report.Collisions),
		logging.Int("links_created", report.LinksCreated),
		logging.Int("links_removed", report.LinksRemoved),
		logging.Int("links_dangling", report.LinksDangling),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

func (m *Manager) runCycle(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	entries, err := m.lister.List(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, services.ErrFilesystem) {
			err = services.Wrap(services.ErrFilesystem, "workflow", "list sources", "", err)
		}
		return err
	}
	report.Listed = len(entries)

	var opts []catalog.SyncOption
	if len(entries) == 0 && !m.cfg.Workflow.ArchiveOnEmptyListing {
		active, err := m.store.ActiveCount(ctx)
		if err != nil {
			return err
		}
		if active > 0 {
			opts = append(opts, catalog.WithoutArchival())
			report.ArchivalSuppressed = true
			logging.WarnWithContext(logger, "source listing empty; archival suppressed", "archival_suppressed",
				logging.Int("active_entries", active),
				logging.String(logging.FieldErrorHint, "check that the source mount is up; set workflow.archive_on_empty_listing to allow"),
				logging.String(logging.FieldImpact, "entries stay active until a non-empty listing is seen"),
			)
		}
	}

	synced, err := m.store.SyncSources(ctx, entries, opts...)
	if err != nil {
		return err
	}
	report.Added = synced.Added
	report.Updated = synced.Updated
	report.Archived = synced.Archived
	report.Resurfaced = synced.Resurfaced
	if synced.Resurfaced > 0 {
		logger.Info("archived paths reappeared and stay archived",
			logging.Int("resurfaced", synced.Resurfaced),
			logging.String(logging.FieldEventType, "entries_resurfaced"),
		)
	}

	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return err
	}
	report.Attempted = len(pending)

	outcomes := newTally()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.workers)
	for _, entry := range pending {
		group.Go(func() error {
			o, err := m.processEntry(groupCtx, entry)
			if err != nil {
				return err
			}
			outcomes.add(o)
			return nil
		})
	}
	err = group.Wait()
	outcomes.applyTo(report)
	if err != nil {
		return err
	}

	links, err := m.synchronizer.Sync(ctx)
	if err != nil {
		return err
	}
	report.applyLinks(links)
	if links.Changed() {
		report.Refreshed = m.refresh(ctx, logger, links.FilmsChanged, links.ShowsChanged)
	}
	return nil
}

// processEntry resolves one pending entry under its path lock. Only context
// cancellation is returned as an error; every other failure is routed into
// the store and reported as an outcome.
func (m *Manager) processEntry(ctx context.Context, entry catalog.Entry) (outcome, error) {
	release := m.locks.acquire(entry.Path)
	defer release()

	if err := ctx.Err(); err != nil {
		return outcomeDeferred, err
	}
	ctx = services.WithSourcePath(ctx, entry.Path)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.MarkResolving(ctx, entry.Path); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Resolved, parked or archived since the pending list was read.
			logger.Debug("entry no longer pending; skipped",
				logging.String(logging.FieldEventType, "entry_skipped"),
			)
			return outcomeSkipped, nil
		}
		return m.routeFailure(ctx, logger, entry, err)
	}

	mapping, reused, err := m.resolveEntry(ctx, logger, entry)
	if err != nil {
		return m.routeFailure(ctx, logger, entry, err)
	}

	logger.Info("entry mapped",
		logging.String(logging.FieldEventType, "entry_mapped"),
		logging.String(logging.FieldTargetPath, mapping.TargetPath),
		logging.Int64(logging.FieldExternalID, mapping.Identity.ExternalID),
		logging.Float64("confidence", mapping.ConfidenceScore),
		logging.Bool("reused", reused),
	)
	if reused {
		return outcomeReused, nil
	}
	return outcomeMapped, nil
}

func (m *Manager) resolveEntry(ctx context.Context, logger *slog.Logger, entry catalog.Entry) (catalog.Mapping, bool, error) {
	previous, found, err := m.store.FindReusableMapping(ctx, entry.ContentHash, entry.Path)
	if err != nil {
		return catalog.Mapping{}, false, err
	}
	if found {
		logger.Debug("reusing identity of archived copy",
			logging.String("previous_source", previous.SourcePath),
			logging.String(logging.FieldEventType, "identity_reused"),
		)
		mapping, err := m.store.UpsertMapping(ctx, catalog.MappingInput{
			SourcePath: entry.Path,
			Identity:   previous.Identity,
			Season:     previous.Season,
			Episode:    previous.Episode,
			EpisodeEnd: previous.EpisodeEnd,
			Confidence: previous.ConfidenceScore,
		})
		return mapping, true, err
	}

	parsed, err := m.parser.Parse(nameparse.Input{
		Name:         entry.DisplayName,
		FallbackName: entry.FallbackName,
		KindHint:     entry.KindHint,
	})
	if err != nil {
		return catalog.Mapping{}, false, err
	}

	identity, score, err := m.resolver.Resolve(ctx, parsed)
	if err != nil {
		return catalog.Mapping{}, false, err
	}

	mapping, err := m.store.UpsertMapping(ctx, catalog.MappingInput{
		SourcePath: entry.Path,
		Identity:   identity,
		Season:     parsed.Season,
		Episode:    parsed.Episode,
		EpisodeEnd: parsed.EpisodeEnd,
		Confidence: score,
	})
	return mapping, false, err
}

func (m *Manager) routeFailure(ctx context.Context, logger *slog.Logger, entry catalog.Entry, cause error) (outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcomeDeferred, ctxErr
	}
	kind := services.FailureKind(cause)

	updated, err := m.store.RecordFailure(ctx, entry.Path, kind, cause, m.threshold)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record resolution failure", "failure_record_failed",
			logging.Error(err),
			logging.String("cause", cause.Error()),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
		return outcomeDeferred, nil
	}

	var collision *catalog.CollisionError
	switch {
	case errors.As(cause, &collision):
		logging.WarnWithContext(logger, "target already owned by another source", "mapping_collision",
			logging.String(logging.FieldTargetPath, collision.TargetPath),
			logging.String("existing_source", collision.ExistingSourcePath),
			logging.Int("quality_score", entry.QualityScore),
			logging.String(logging.FieldErrorKind, services.KindCollision),
			logging.String(logging.FieldErrorHint, "resolve one of the sources to a different identity or delete the other mapping"),
			logging.String(logging.FieldImpact, "entry is not linked until the collision is resolved"),
		)
		return outcomeCollision, nil
	case updated.State == catalog.StateManual:
		logging.WarnWithContext(logger, "entry needs manual resolution", "entry_manual",
			logging.Error(cause),
			logging.Int("repair_attempts", updated.RepairAttempts),
			logging.String(logging.FieldErrorHint, "run curator resolve <ref> <external-id>"),
			logging.String(logging.FieldImpact, "entry is not retried automatically"),
		)
		return outcomeManual, nil
	case services.CountsTowardManual(cause):
		logger.Info("entry not resolved; will retry",
			logging.Error(cause),
			logging.String(logging.FieldErrorKind, kind),
			logging.Int("repair_attempts", updated.RepairAttempts),
			logging.String(logging.FieldEventType, "entry_retryable"),
		)
		return outcomeRetryable, nil
	default:
		logging.WarnWithContext(logger, "entry deferred by infrastructure failure", "entry_deferred",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check the catalog database and source mount"),
			logging.String(logging.FieldImpact, "entry retried next cycle without consuming its repair budget"),
		)
		return outcomeDeferred, nil
	}
}

func (m *Manager) refresh(ctx context.Context, logger *slog.Logger, films, shows bool) bool {
	if !m.refreshOn || m.refresher == nil {
		return false
	}
	if err := m.refresher.Refresh(ctx, films, shows); err != nil {
		logging.WarnWithContext(logger, "media server refresh failed", "jellyfin_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check jellyfin.url and jellyfin.api_key"),
			logging.String(logging.FieldImpact, "new titles appear after the server's own scan"),
		)
		return false
	}
	return true
}
