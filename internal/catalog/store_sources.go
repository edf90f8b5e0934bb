package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"curator/internal/services"
	"curator/internal/source"
)

// SyncOption adjusts SyncSources.
type SyncOption func(*syncOptions)

type syncOptions struct {
	archiveUnseen bool
}

// WithoutArchival records sightings but leaves unseen entries untouched.
// Used when the listing is suspect, such as an empty listing from a mount
// that may be down.
func WithoutArchival() SyncOption {
	return func(o *syncOptions) {
		o.archiveUnseen = false
	}
}

type knownEntry struct {
	id           int64
	archived     bool
	displayName  string
	fallbackName string
	providerID   string
	contentHash  string
	kindHint     string
	qualityScore int
}

func (k knownEntry) differs(e source.Entry) bool {
	return k.displayName != e.DisplayName ||
		k.fallbackName != e.FallbackName ||
		k.providerID != e.ProviderID ||
		k.contentHash != e.ContentHash ||
		k.kindHint != string(e.KindHint) ||
		k.qualityScore != e.QualityScore
}

// SyncSources reconciles the entry table against a complete listing in one
// transaction. New paths are inserted, seen paths refreshed, and unseen
// active paths archived. Archived paths are never reactivated; a resurfaced
// archived path is counted but stays archived.
func (s *Store) SyncSources(ctx context.Context, entries []source.Entry, opts ...SyncOption) (SyncResult, error) {
	options := syncOptions{archiveUnseen: true}
	for _, opt := range opts {
		opt(&options)
	}

	var result SyncResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = SyncResult{}
		known, err := loadKnownEntries(ctx, tx)
		if err != nil {
			return err
		}
		now := timestamp(time.Now())

		insert, err := tx.PrepareContext(ctx, `INSERT INTO source_entries (
            path, display_name, fallback_name, provider_id, content_hash, kind_hint,
            quality_score, state, first_seen_at, last_seen_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insert.Close()

		refresh, err := tx.PrepareContext(ctx, `UPDATE source_entries SET
            display_name = ?, fallback_name = ?, provider_id = ?, content_hash = ?,
            kind_hint = ?, quality_score = ?, last_seen_at = ?, updated_at = ?
        WHERE id = ?`)
		if err != nil {
			return err
		}
		defer refresh.Close()

		touch, err := tx.PrepareContext(ctx, `UPDATE source_entries SET last_seen_at = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer touch.Close()

		seen := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			if entry.Path == "" {
				continue
			}
			if _, dup := seen[entry.Path]; dup {
				continue
			}
			seen[entry.Path] = struct{}{}
			result.Seen++

			existing, ok := known[entry.Path]
			switch {
			case !ok:
				if _, err := insert.ExecContext(ctx,
					entry.Path, entry.DisplayName, entry.FallbackName, entry.ProviderID, entry.ContentHash,
					string(entry.KindHint), entry.QualityScore, StateNew, now, now, now,
				); err != nil {
					return fmt.Errorf("insert %s: %w", entry.Path, err)
				}
				result.Added++
			case existing.differs(entry):
				if _, err := refresh.ExecContext(ctx,
					entry.DisplayName, entry.FallbackName, entry.ProviderID, entry.ContentHash,
					string(entry.KindHint), entry.QualityScore, now, now, existing.id,
				); err != nil {
					return fmt.Errorf("refresh %s: %w", entry.Path, err)
				}
				result.Updated++
			default:
				if _, err := touch.ExecContext(ctx, now, existing.id); err != nil {
					return fmt.Errorf("touch %s: %w", entry.Path, err)
				}
			}
			if ok && existing.archived {
				result.Resurfaced++
			}
		}

		if !options.archiveUnseen {
			return nil
		}
		archive, err := tx.PrepareContext(ctx, `UPDATE source_entries SET archived = 1, updated_at = ? WHERE id = ? AND archived = 0`)
		if err != nil {
			return err
		}
		defer archive.Close()
		for path, existing := range known {
			if existing.archived {
				continue
			}
			if _, ok := seen[path]; ok {
				continue
			}
			if _, err := archive.ExecContext(ctx, now, existing.id); err != nil {
				return fmt.Errorf("archive %s: %w", path, err)
			}
			result.Archived++
		}
		return nil
	})
	if err != nil {
		return SyncResult{}, persistenceError("sync sources", fmt.Sprintf("%d entries", len(entries)), err)
	}
	return result, nil
}

func loadKnownEntries(ctx context.Context, tx *sql.Tx) (map[string]knownEntry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, path, archived, display_name, fallback_name, provider_id, content_hash, kind_hint, quality_score FROM source_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	known := make(map[string]knownEntry)
	for rows.Next() {
		var (
			path     string
			archived int
			entry    knownEntry
		)
		if err := rows.Scan(&entry.id, &path, &archived, &entry.displayName, &entry.fallbackName,
			&entry.providerID, &entry.contentHash, &entry.kindHint, &entry.qualityScore); err != nil {
			return nil, err
		}
		entry.archived = archived != 0
		known[path] = entry
	}
	return known, rows.Err()
}

// ListPending returns active entries awaiting automatic resolution, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]Entry, error) {
	states := make([]any, 0, len(pendingStates))
	for _, state := range pendingStates {
		states = append(states, string(state))
	}
	query := fmt.Sprintf(`SELECT %s FROM source_entries
        WHERE archived = 0 AND manual = 0 AND state IN (%s)
        ORDER BY id`, entryColumns, makePlaceholders(len(states)))
	entries, err := s.queryEntries(ctx, query, states...)
	if err != nil {
		return nil, persistenceError("list pending", "", err)
	}
	return entries, nil
}

// ActiveCount returns the number of non-archived entries.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM source_entries WHERE archived = 0`).Scan(&count); err != nil {
		return 0, persistenceError("count active", "", err)
	}
	return count, nil
}

// MarkResolving moves an active pending entry into the resolving state. An
// entry mapped, parked or archived since the pending list was read is left
// alone and reported as not found.
func (s *Store) MarkResolving(ctx context.Context, path string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE source_entries SET state = ?, updated_at = ?
		 WHERE path = ? AND archived = 0 AND manual = 0 AND state IN (?, ?, ?)`,
		StateResolving, timestamp(time.Now()), path,
		StateNew, StateResolving, StateRetryable,
	)
	if err != nil {
		return persistenceError("mark resolving", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("mark resolving", path)
	}
	return nil
}

// RecordFailure stores a failed resolution. Identity and provider failures
// consume the repair budget and move the entry to manual once attempts reach
// threshold. Collisions park the entry without counting. Anything else only
// records the error and leaves the entry pending.
func (s *Store) RecordFailure(ctx context.Context, path, kind string, cause error, threshold int) (Entry, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if kind == "" {
		kind = services.FailureKind(cause)
	}
	now := timestamp(time.Now())

	var entry Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = getEntryTx(ctx, tx, path)
		if err != nil {
			return err
		}
		state := entry.State
		attempts := entry.RepairAttempts
		manual := entry.Manual
		switch {
		case kind == services.KindCollision:
			state = StateCollision
		case countsTowardManual(kind):
			attempts++
			if threshold > 0 && attempts >= threshold {
				state = StateManual
				manual = true
			} else {
				state = StateRetryable
			}
		case state == StateResolving:
			state = StateRetryable
		}
		if _, err := tx.ExecContext(ctx, `UPDATE source_entries SET
                state = ?, repair_attempts = ?, manual = ?, last_error = ?, last_error_kind = ?, updated_at = ?
            WHERE id = ?`,
			state, attempts, boolToInt(manual), nullableString(message), nullableString(kind), now, entry.ID,
		); err != nil {
			return err
		}
		entry.State = state
		entry.RepairAttempts = attempts
		entry.Manual = manual
		entry.LastError = message
		entry.LastErrorKind = kind
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, persistenceError("record failure", path, err)
	}
	return entry, nil
}

func countsTowardManual(kind string) bool {
	switch kind {
	case services.KindParse, services.KindAmbiguous, services.KindProvider:
		return true
	default:
		return false
	}
}

// ResetEntry returns a manual, collision, or retryable entry to the new
// state with a fresh repair budget.
func (s *Store) ResetEntry(ctx context.Context, ref string) (Entry, error) {
	var entry Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = getEntryTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		if entry.Archived {
			return invalid("reset entry", fmt.Sprintf("%s is archived", entry.Path))
		}
		if entry.State == StateMapped {
			return invalid("reset entry", fmt.Sprintf("%s is already mapped; use resolve to change it", entry.Path))
		}
		if _, err := tx.ExecContext(ctx, `UPDATE source_entries SET
                state = ?, manual = 0, repair_attempts = 0, last_error = NULL, last_error_kind = NULL, updated_at = ?
            WHERE id = ?`, StateNew, timestamp(time.Now()), entry.ID); err != nil {
			return err
		}
		entry.State = StateNew
		entry.Manual = false
		entry.RepairAttempts = 0
		entry.LastError = ""
		entry.LastErrorKind = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
			return Entry{}, err
		}
		return Entry{}, persistenceError("reset entry", ref, err)
	}
	return entry, nil
}

// GetEntry fetches an entry by numeric id or by path.
func (s *Store) GetEntry(ctx context.Context, ref string) (Entry, error) {
	entry, err := getEntryTx(ctx, s.db, ref)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, persistenceError("get entry", ref, err)
	}
	return entry, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntryTx(ctx context.Context, q queryRower, ref string) (Entry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Entry{}, notFound("get entry", "empty reference")
	}
	column := "path"
	var arg any = ref
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		column = "id"
		arg = id
	}
	row := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM source_entries WHERE %s = ?", entryColumns, column), arg)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, notFound("get entry", ref)
	}
	return entry, err
}

// ListEntries returns entries matching filter ordered by path.
func (s *Store) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Archived != nil {
		clauses = append(clauses, "archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}
	if filter.Manual != nil {
		clauses = append(clauses, "manual = ?")
		args = append(args, boolToInt(*filter.Manual))
	}
	if len(filter.States) > 0 {
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", makePlaceholders(len(filter.States))))
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	query := "SELECT " + entryColumns + " FROM source_entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY path"
	entries, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("list entries", "", err)
	}
	return entries, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
