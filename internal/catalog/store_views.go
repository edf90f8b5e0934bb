package catalog

import (
	"context"

	"curator/internal/media"
)

// ListTitles returns every identity that has at least one mapping, with the
// number of mapped files and distinct seasons.
func (s *Store) ListTitles(ctx context.Context) ([]TitleSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT ci.id, ci.external_id, ci.kind, ci.title, ci.year, ci.created_at,
            COUNT(m.id), COUNT(DISTINCT m.season)
        FROM canonical_identities ci
        JOIN media_mappings m ON m.canonical_id = ci.id
        GROUP BY ci.id
        ORDER BY ci.title COLLATE NOCASE, ci.year, ci.id`)
	if err != nil {
		return nil, persistenceError("list titles", "", err)
	}
	defer rows.Close()

	var titles []TitleSummary
	for rows.Next() {
		var (
			summary    TitleSummary
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&summary.ID, &summary.ExternalID, &kind, &summary.Title, &summary.Year, &createdRaw,
			&summary.Mappings, &summary.Seasons); err != nil {
			return nil, persistenceError("list titles", "scan", err)
		}
		summary.Kind = media.Kind(kind)
		summary.CreatedAt = parseTimeOrZero(createdRaw)
		titles = append(titles, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list titles", "iterate", err)
	}
	return titles, nil
}

// ListSeasons groups the mappings of one identity by season.
func (s *Store) ListSeasons(ctx context.Context, canonicalID int64) ([]SeasonSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT season, COUNT(1)
        FROM media_mappings
        WHERE canonical_id = ? AND season IS NOT NULL
        GROUP BY season
        ORDER BY season`, canonicalID)
	if err != nil {
		return nil, persistenceError("list seasons", "", err)
	}
	defer rows.Close()

	var seasons []SeasonSummary
	for rows.Next() {
		var summary SeasonSummary
		if err := rows.Scan(&summary.Season, &summary.Episodes); err != nil {
			return nil, persistenceError("list seasons", "scan", err)
		}
		seasons = append(seasons, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list seasons", "iterate", err)
	}
	return seasons, nil
}
