package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Revision returns the store revision. It changes whenever a mapping is
// written or an entry is archived, so an unchanged revision means the
// desired link set is unchanged.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var revision int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM store_meta WHERE key = 'revision'`).Scan(&revision)
	if err != nil {
		return 0, persistenceError("revision", "", err)
	}
	return revision, nil
}

// Stats returns counts for operator output.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByState: make(map[State]int, len(allStates))}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1), SUM(archived), SUM(manual) FROM source_entries GROUP BY state`)
	if err != nil {
		return Stats{}, persistenceError("stats", "entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state            string
			count            int
			archived, manual sql.NullInt64
		)
		if err := rows.Scan(&state, &count, &archived, &manual); err != nil {
			return Stats{}, persistenceError("stats", "scan", err)
		}
		stats.ByState[State(state)] = count
		stats.Entries += count
		stats.Archived += int(archived.Int64)
		stats.Manual += int(manual.Int64)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, persistenceError("stats", "iterate", err)
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM media_mappings`, &stats.Mappings},
		{`SELECT COUNT(1) FROM canonical_identities`, &stats.Identities},
		{`SELECT COUNT(1) FROM lookup_cache`, &stats.Lookups},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, persistenceError("stats", "counts", err)
		}
	}

	stats.Revision, err = s.Revision(ctx)
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the catalog database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("catalog database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat catalog database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("catalog database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("catalog database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping catalog database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	for _, table := range expectedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if _, ok := present["schema_version"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("read schema version: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
