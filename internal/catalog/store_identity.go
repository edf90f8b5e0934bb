package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"curator/internal/media"
)

// UpsertIdentity returns the identity row for (external id, kind), creating
// it on first sight. Existing rows are reused unchanged, so concurrent
// resolvers converge on one row.
func (s *Store) UpsertIdentity(ctx context.Context, input IdentityInput) (Identity, error) {
	if input.ExternalID <= 0 {
		return Identity{}, invalid("upsert identity", "external id must be positive")
	}
	if !input.Kind.Valid() {
		return Identity{}, invalid("upsert identity", "kind must be film or series")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Identity{}, invalid("upsert identity", "title is required")
	}

	var identity Identity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO canonical_identities (external_id, kind, title, year, created_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(external_id, kind) DO NOTHING`,
			input.ExternalID, string(input.Kind), title, input.Year, timestamp(time.Now()),
		); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, "SELECT "+identityColumns+" FROM canonical_identities WHERE external_id = ? AND kind = ?",
			input.ExternalID, string(input.Kind))
		var err error
		identity, err = scanIdentity(row)
		return err
	})
	if err != nil {
		return Identity{}, persistenceError("upsert identity", title, err)
	}
	return identity, nil
}

// FindIdentity looks up a stored identity by external id. With an unknown
// kind a film is preferred over a series.
func (s *Store) FindIdentity(ctx context.Context, externalID int64, kind media.Kind) (Identity, bool, error) {
	query := "SELECT " + identityColumns + " FROM canonical_identities WHERE external_id = ?"
	args := []any{externalID}
	if kind.Valid() {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY CASE kind WHEN 'film' THEN 0 ELSE 1 END LIMIT 1"
	identity, err := scanIdentity(s.db.QueryRowContext(ensureContext(ctx), query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, persistenceError("find identity", "", err)
	}
	return identity, true, nil
}

// CachedLookup returns the persisted positive result for key.
func (s *Store) CachedLookup(ctx context.Context, key string) (LookupHit, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT ci.id, ci.external_id, ci.kind, ci.title, ci.year, ci.created_at, lc.score
        FROM lookup_cache lc JOIN canonical_identities ci ON ci.id = lc.canonical_id
        WHERE lc.lookup_key = ?`, key)
	var (
		hit        LookupHit
		kind       string
		createdRaw string
	)
	err := row.Scan(&hit.ID, &hit.ExternalID, &kind, &hit.Title, &hit.Year, &createdRaw, &hit.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return LookupHit{}, false, nil
	}
	if err != nil {
		return LookupHit{}, false, persistenceError("cached lookup", key, err)
	}
	hit.Kind = media.Kind(kind)
	hit.CreatedAt = parseTimeOrZero(createdRaw)
	return hit, true, nil
}

// StoreLookup persists a positive lookup result.
func (s *Store) StoreLookup(ctx context.Context, key string, canonicalID int64, score float64) error {
	_, err := s.execWithRetry(ctx, `INSERT INTO lookup_cache (lookup_key, canonical_id, score, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(lookup_key) DO UPDATE SET canonical_id = excluded.canonical_id, score = excluded.score`,
		key, canonicalID, roundScore(score), timestamp(time.Now()),
	)
	if err != nil {
		return persistenceError("store lookup", key, err)
	}
	return nil
}
