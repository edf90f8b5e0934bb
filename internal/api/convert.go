package api

import (
	"errors"
	"net/http"
	"time"

	"curator/internal/catalog"
	"curator/internal/media"
	"curator/internal/organizer"
	"curator/internal/services"
)

// FromEntry converts a catalog entry to its API representation.
func FromEntry(entry catalog.Entry) Entry {
	return Entry{
		ID:              entry.ID,
		Path:            entry.Path,
		DisplayName:     entry.DisplayName,
		FallbackName:    entry.FallbackName,
		KindHint:        string(entry.KindHint),
		State:           string(entry.State),
		Archived:        entry.Archived,
		Manual:          entry.Manual,
		RepairAttempts:  entry.RepairAttempts,
		ConfidenceScore: entry.ConfidenceScore,
		QualityScore:    entry.QualityScore,
		LastError:       entry.LastError,
		LastErrorKind:   entry.LastErrorKind,
		FirstSeenAt:     formatTime(entry.FirstSeenAt),
		LastSeenAt:      formatTime(entry.LastSeenAt),
		UpdatedAt:       formatTime(entry.UpdatedAt),
	}
}

// FromEntries converts a slice of entries. It never returns nil so JSON
// output is always an array.
func FromEntries(entries []catalog.Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromIdentity converts a canonical identity.
func FromIdentity(identity catalog.Identity) Identity {
	return Identity{
		ID:         identity.ID,
		ExternalID: identity.ExternalID,
		Kind:       string(identity.Kind),
		Title:      identity.Title,
		Year:       identity.Year,
	}
}

// FromMapping converts a mapping. Episode fields are set only for series.
func FromMapping(mapping catalog.Mapping) Mapping {
	dto := Mapping{
		ID:              mapping.ID,
		SourcePath:      mapping.SourcePath,
		TargetPath:      mapping.TargetPath,
		Identity:        FromIdentity(mapping.Identity),
		ConfidenceScore: mapping.ConfidenceScore,
		ManualOverride:  mapping.ManualOverride,
		Archived:        mapping.Archived,
		UpdatedAt:       formatTime(mapping.UpdatedAt),
	}
	if mapping.Identity.Kind == media.KindSeries {
		season, episode := mapping.Season, mapping.Episode
		dto.Season = &season
		dto.Episode = &episode
		if mapping.EpisodeEnd > 0 {
			end := mapping.EpisodeEnd
			dto.EpisodeEnd = &end
		}
	}
	return dto
}

// FromMappings converts a slice of mappings.
func FromMappings(mappings []catalog.Mapping) []Mapping {
	out := make([]Mapping, 0, len(mappings))
	for _, mapping := range mappings {
		out = append(out, FromMapping(mapping))
	}
	return out
}

// FromTitles converts the distinct-titles view.
func FromTitles(titles []catalog.TitleSummary) []Title {
	out := make([]Title, 0, len(titles))
	for _, title := range titles {
		out = append(out, Title{Identity: FromIdentity(title.Identity), Mappings: title.Mappings, Seasons: title.Seasons})
	}
	return out
}

// FromSeasons converts the per-title season view.
func FromSeasons(seasons []catalog.SeasonSummary) []Season {
	out := make([]Season, 0, len(seasons))
	for _, season := range seasons {
		out = append(out, Season{Season: season.Season, Episodes: season.Episodes})
	}
	return out
}

// FromStats converts catalog counters.
func FromStats(stats catalog.Stats) Stats {
	byState := make(map[string]int, len(stats.ByState))
	for state, count := range stats.ByState {
		byState[string(state)] = count
	}
	return Stats{
		ByState:    byState,
		Entries:    stats.Entries,
		Archived:   stats.Archived,
		Manual:     stats.Manual,
		Mappings:   stats.Mappings,
		Identities: stats.Identities,
		Lookups:    stats.Lookups,
		Revision:   stats.Revision,
	}
}

// FromLinkReport converts a synchronizer report.
func FromLinkReport(report organizer.Report) LinkReport {
	return LinkReport{
		Created:   report.Created,
		Replaced:  report.Replaced,
		Removed:   report.Removed,
		Unchanged: report.Unchanged,
		Dangling:  report.Dangling,
		Conflicts: report.Conflicts,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		Revision:  report.Revision,
	}
}

// StatusCode maps an error onto the HTTP status the operator API returns.
func StatusCode(err error) int {
	var collision *catalog.CollisionError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &collision):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrParseFailure):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrProviderUnavailable), errors.Is(err, services.ErrAmbiguousMatch):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrFilesystem):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error body for err.
func FromError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{}
	}
	resp := ErrorResponse{Error: err.Error(), Kind: services.FailureKind(err)}
	var collision *catalog.CollisionError
	if errors.As(err, &collision) {
		resp.Collision = &Collision{
			TargetPath:         collision.TargetPath,
			SourcePath:         collision.SourcePath,
			ExistingSourcePath: collision.ExistingSourcePath,
		}
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
