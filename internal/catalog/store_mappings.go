package catalog

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"curator/internal/media"
	"curator/internal/services"
)

// UpsertMapping converges the mapping for one source entry in a single
// transaction. The target path is derived from the identity. When another
// active entry already owns the target a *CollisionError is returned and
// nothing is written. An identical existing mapping produces no mapping
// write. On success the entry is marked mapped with a fresh repair budget.
func (s *Store) UpsertMapping(ctx context.Context, in MappingInput) (Mapping, error) {
	if in.Identity.ID <= 0 {
		return Mapping{}, invalid("upsert mapping", "identity must be persisted first")
	}
	target, err := s.layout.TargetPath(in.Identity, in.Season, in.Episode, in.EpisodeEnd, in.SourcePath)
	if err != nil {
		return Mapping{}, err
	}

	var mapping Mapping
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		mapping, err = upsertMappingTx(ctx, tx, in, target)
		return err
	})
	if err != nil {
		return Mapping{}, classifyWriteError("upsert mapping", in.SourcePath, err)
	}
	return mapping, nil
}

func upsertMappingTx(ctx context.Context, tx *sql.Tx, in MappingInput, target string) (Mapping, error) {
	entry, err := getEntryTx(ctx, tx, in.SourcePath)
	if err != nil {
		return Mapping{}, err
	}

	owner, err := targetOwner(ctx, tx, target)
	if err != nil {
		return Mapping{}, err
	}
	if owner.found && owner.sourcePath != in.SourcePath {
		if !owner.archived {
			return Mapping{}, &CollisionError{
				TargetPath:         target,
				SourcePath:         in.SourcePath,
				ExistingSourcePath: owner.sourcePath,
			}
		}
		// An archived owner keeps its history row but gives up the target.
		if _, err := tx.ExecContext(ctx,
			`UPDATE media_mappings SET target_path = NULL, updated_at = ? WHERE id = ?`,
			timestamp(time.Now()), owner.mappingID,
		); err != nil {
			return Mapping{}, err
		}
	}

	existing, found, err := mappingBySource(ctx, tx, in.SourcePath)
	if err != nil {
		return Mapping{}, err
	}
	if found && existing.ManualOverride && !in.Manual {
		return existing, markMappedTx(ctx, tx, entry, existing.ConfidenceScore)
	}

	confidence := roundScore(in.Confidence)
	if found && sameMapping(existing, in, target, confidence) {
		return existing, markMappedTx(ctx, tx, entry, confidence)
	}

	season, episode, episodeEnd := episodeColumns(in.Identity.Kind, in.Season, in.Episode, in.EpisodeEnd)
	now := timestamp(time.Now())
	if _, err := tx.ExecContext(ctx, `INSERT INTO media_mappings (
            source_path, target_path, canonical_id, season, episode, episode_end,
            confidence_score, manual_override, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source_path) DO UPDATE SET
            target_path = excluded.target_path,
            canonical_id = excluded.canonical_id,
            season = excluded.season,
            episode = excluded.episode,
            episode_end = excluded.episode_end,
            confidence_score = excluded.confidence_score,
            manual_override = excluded.manual_override,
            updated_at = excluded.updated_at`,
		in.SourcePath, target, in.Identity.ID, season, episode, episodeEnd,
		confidence, boolToInt(in.Manual), now, now,
	); err != nil {
		return Mapping{}, err
	}
	if err := markMappedTx(ctx, tx, entry, confidence); err != nil {
		return Mapping{}, err
	}
	mapping, _, err := mappingBySource(ctx, tx, in.SourcePath)
	return mapping, err
}

func markMappedTx(ctx context.Context, tx *sql.Tx, entry Entry, confidence float64) error {
	if entry.State == StateMapped && !entry.Manual && entry.RepairAttempts == 0 &&
		entry.LastError == "" && entry.ConfidenceScore == confidence {
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE source_entries SET
            state = ?, manual = 0, repair_attempts = 0, confidence_score = ?,
            last_error = NULL, last_error_kind = NULL, updated_at = ?
        WHERE id = ?`,
		StateMapped, confidence, timestamp(time.Now()), entry.ID,
	)
	return err
}

func sameMapping(existing Mapping, in MappingInput, target string, confidence float64) bool {
	season, episode, episodeEnd := in.Season, in.Episode, in.EpisodeEnd
	if in.Identity.Kind != media.KindSeries {
		season, episode, episodeEnd = 0, 0, 0
	}
	if episodeEnd <= episode {
		episodeEnd = 0
	}
	return existing.TargetPath == target &&
		existing.CanonicalID == in.Identity.ID &&
		existing.Season == season &&
		existing.Episode == episode &&
		existing.EpisodeEnd == episodeEnd &&
		existing.ConfidenceScore == confidence &&
		existing.ManualOverride == in.Manual
}

// roundScore keeps stored scores stable across float formatting.
func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

type ownerInfo struct {
	found      bool
	mappingID  int64
	sourcePath string
	archived   bool
}

func targetOwner(ctx context.Context, tx *sql.Tx, target string) (ownerInfo, error) {
	var (
		info     ownerInfo
		archived int
	)
	err := tx.QueryRowContext(ctx, `SELECT m.id, m.source_path, COALESCE(se.archived, 0)
        FROM media_mappings m LEFT JOIN source_entries se ON se.path = m.source_path
        WHERE m.target_path = ?`, target).Scan(&info.mappingID, &info.sourcePath, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return ownerInfo{}, nil
	}
	if err != nil {
		return ownerInfo{}, err
	}
	info.found = true
	info.archived = archived != 0
	return info, nil
}

func mappingBySource(ctx context.Context, q queryRower, sourcePath string) (Mapping, bool, error) {
	row := q.QueryRowContext(ctx, "SELECT "+mappingColumns+" "+mappingFrom+" WHERE m.source_path = ?", sourcePath)
	mapping, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, err
	}
	return mapping, true, nil
}

// ManualResolve overwrites the mapping for ref with an operator chosen
// identity. Repeating the same request is a no-op.
func (s *Store) ManualResolve(ctx context.Context, ref string, identity Identity, season, episode int) (Mapping, error) {
	entry, err := s.GetEntry(ctx, ref)
	if err != nil {
		return Mapping{}, err
	}
	return s.UpsertMapping(ctx, MappingInput{
		SourcePath: entry.Path,
		Identity:   identity,
		Season:     season,
		Episode:    episode,
		Confidence: 1,
		Manual:     true,
	})
}

// ListAllMappings returns every mapping with its identity and the archived
// flag of its source entry, ordered by target path.
func (s *Store) ListAllMappings(ctx context.Context) ([]Mapping, error) {
	mappings, err := s.queryMappings(ctx, "SELECT "+mappingColumns+" "+mappingFrom+" ORDER BY m.target_path, m.source_path")
	if err != nil {
		return nil, persistenceError("list mappings", "", err)
	}
	return mappings, nil
}

// ListBySource returns the mapping for one source path.
func (s *Store) ListBySource(ctx context.Context, sourcePath string) (Mapping, error) {
	mapping, found, err := mappingBySource(ctx, s.db, sourcePath)
	if err != nil {
		return Mapping{}, persistenceError("get mapping", sourcePath, err)
	}
	if !found {
		return Mapping{}, notFound("get mapping", sourcePath)
	}
	return mapping, nil
}

// FindReusableMapping returns the mapping of an archived entry with the
// same content hash, so a re-acquired file can inherit its identity.
func (s *Store) FindReusableMapping(ctx context.Context, contentHash, excludePath string) (Mapping, bool, error) {
	if contentHash == "" {
		return Mapping{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+mappingColumns+" "+mappingFrom+`
        WHERE se.content_hash = ? AND se.archived = 1 AND se.path <> ?
        ORDER BY m.manual_override DESC, m.updated_at DESC LIMIT 1`, contentHash, excludePath)
	mapping, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, persistenceError("find reusable mapping", contentHash, err)
	}
	return mapping, true, nil
}

// DeleteMapping removes the mapping for sourcePath. The entry is parked in
// manual so the deleted mapping is not recreated automatically.
func (s *Store) DeleteMapping(ctx context.Context, sourcePath string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM media_mappings WHERE source_path = ?`, sourcePath)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFound("delete mapping", sourcePath)
		}
		_, err = tx.ExecContext(ctx, `UPDATE source_entries SET
                state = ?, manual = 1, last_error = ?, last_error_kind = NULL, updated_at = ?
            WHERE path = ? AND archived = 0`,
			StateManual, "mapping deleted by operator", timestamp(time.Now()), sourcePath,
		)
		return err
	})
	if err != nil {
		return classifyWriteError("delete mapping", sourcePath, err)
	}
	return nil
}

func (s *Store) queryMappings(ctx context.Context, query string, args ...any) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mappings []Mapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}

// classifyWriteError passes typed and already classified errors through and
// tags everything else as a persistence failure.
func classifyWriteError(operation, subject string, err error) error {
	var collision *CollisionError
	switch {
	case errors.As(err, &collision):
		return collision
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrValidation):
		return err
	default:
		return persistenceError(operation, subject, err)
	}
}
