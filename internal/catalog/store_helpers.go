package catalog

import (
	"database/sql"
	"errors"
	"time"

	"curator/internal/media"
)

const entryColumns = "id, path, display_name, fallback_name, provider_id, content_hash, kind_hint, confidence_score, quality_score, archived, manual, repair_attempts, state, last_error, last_error_kind, first_seen_at, last_seen_at, updated_at"

const mappingColumns = `m.id, m.source_path, m.target_path, m.canonical_id, m.season, m.episode, m.episode_end,
    m.confidence_score, m.manual_override, m.created_at, m.updated_at,
    ci.id, ci.external_id, ci.kind, ci.title, ci.year, ci.created_at,
    COALESCE(se.archived, 0)`

const mappingFrom = `FROM media_mappings m
    JOIN canonical_identities ci ON ci.id = m.canonical_id
    LEFT JOIN source_entries se ON se.path = m.source_path`

const identityColumns = "id, external_id, kind, title, year, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (Entry, error) {
	var (
		entry         Entry
		kindHint      string
		state         string
		archived      int
		manual        int
		lastError     sql.NullString
		lastErrorKind sql.NullString
		firstSeenRaw  string
		lastSeenRaw   string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Path,
		&entry.DisplayName,
		&entry.FallbackName,
		&entry.ProviderID,
		&entry.ContentHash,
		&kindHint,
		&entry.ConfidenceScore,
		&entry.QualityScore,
		&archived,
		&manual,
		&entry.RepairAttempts,
		&state,
		&lastError,
		&lastErrorKind,
		&firstSeenRaw,
		&lastSeenRaw,
		&updatedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.KindHint = media.Kind(kindHint)
	entry.State = State(state)
	entry.Archived = archived != 0
	entry.Manual = manual != 0
	entry.LastError = lastError.String
	entry.LastErrorKind = lastErrorKind.String
	entry.FirstSeenAt = parseTimeOrZero(firstSeenRaw)
	entry.LastSeenAt = parseTimeOrZero(lastSeenRaw)
	entry.UpdatedAt = parseTimeOrZero(updatedRaw)
	return entry, nil
}

func scanIdentity(scanner rowScanner) (Identity, error) {
	var (
		identity   Identity
		kind       string
		createdRaw string
	)
	if err := scanner.Scan(&identity.ID, &identity.ExternalID, &kind, &identity.Title, &identity.Year, &createdRaw); err != nil {
		return Identity{}, err
	}
	identity.Kind = media.Kind(kind)
	identity.CreatedAt = parseTimeOrZero(createdRaw)
	return identity, nil
}

func scanMapping(scanner rowScanner) (Mapping, error) {
	var (
		mapping            Mapping
		target             sql.NullString
		season             sql.NullInt64
		episode            sql.NullInt64
		episodeEnd         sql.NullInt64
		manual             int
		createdRaw         string
		updatedRaw         string
		identityKind       string
		identityCreatedRaw string
		archived           int
	)
	if err := scanner.Scan(
		&mapping.ID,
		&mapping.SourcePath,
		&target,
		&mapping.CanonicalID,
		&season,
		&episode,
		&episodeEnd,
		&mapping.ConfidenceScore,
		&manual,
		&createdRaw,
		&updatedRaw,
		&mapping.Identity.ID,
		&mapping.Identity.ExternalID,
		&identityKind,
		&mapping.Identity.Title,
		&mapping.Identity.Year,
		&identityCreatedRaw,
		&archived,
	); err != nil {
		return Mapping{}, err
	}
	mapping.TargetPath = target.String
	mapping.Season = int(season.Int64)
	mapping.Episode = int(episode.Int64)
	mapping.EpisodeEnd = int(episodeEnd.Int64)
	mapping.ManualOverride = manual != 0
	mapping.CreatedAt = parseTimeOrZero(createdRaw)
	mapping.UpdatedAt = parseTimeOrZero(updatedRaw)
	mapping.Identity.Kind = media.Kind(identityKind)
	mapping.Identity.CreatedAt = parseTimeOrZero(identityCreatedRaw)
	mapping.Archived = archived != 0
	return mapping, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// episodeColumns returns the nullable season/episode values for kind.
func episodeColumns(kind media.Kind, season, episode, episodeEnd int) (any, any, any) {
	if kind != media.KindSeries {
		return nil, nil, nil
	}
	var end any
	if episodeEnd > episode {
		end = episodeEnd
	}
	return season, episode, end
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseTimeOrZero(value string) time.Time {
	t, err := parseTimeString(value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
