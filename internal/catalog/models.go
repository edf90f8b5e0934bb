package catalog

import (
	"fmt"
	"strings"
	"time"

	"curator/internal/media"
	"curator/internal/services"
)

// State is the resolution lifecycle of a source entry.
type State string

const (
	StateNew       State = "new"
	StateResolving State = "resolving"
	StateMapped    State = "mapped"
	StateManual    State = "manual"
	StateRetryable State = "retryable"
	StateCollision State = "collision"
)

var allStates = []State{
	StateNew,
	StateResolving,
	StateMapped,
	StateManual,
	StateRetryable,
	StateCollision,
}

var pendingStates = []State{StateNew, StateResolving, StateRetryable}

// ParseState validates a user supplied state name.
func ParseState(value string) (State, error) {
	candidate := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == candidate {
			return state, nil
		}
	}
	names := make([]string, 0, len(allStates))
	for _, state := range allStates {
		names = append(names, string(state))
	}
	return "", fmt.Errorf("%w: unknown state %q (want one of %s)", services.ErrValidation, value, strings.Join(names, ", "))
}

// AllStates returns every entry state in lifecycle order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// Entry is one item seen on the source mount.
type Entry struct {
	ID              int64
	Path            string
	DisplayName     string
	FallbackName    string
	ProviderID      string
	ContentHash     string
	KindHint        media.Kind
	ConfidenceScore float64
	QualityScore    int
	Archived        bool
	Manual          bool
	RepairAttempts  int
	State           State
	LastError       string
	LastErrorKind   string
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	UpdatedAt       time.Time
}

// Pending reports whether the entry is eligible for automatic resolution.
func (e Entry) Pending() bool {
	if e.Archived || e.Manual {
		return false
	}
	for _, state := range pendingStates {
		if e.State == state {
			return true
		}
	}
	return false
}

// Identity is a canonical title in the external catalog.
type Identity struct {
	ID         int64
	ExternalID int64
	Kind       media.Kind
	Title      string
	Year       int
	CreatedAt  time.Time
}

// IdentityInput carries the provider fields for UpsertIdentity.
type IdentityInput struct {
	ExternalID int64
	Kind       media.Kind
	Title      string
	Year       int
}

// LookupHit is a persisted positive lookup.
type LookupHit struct {
	Identity
	Score float64
}

// Mapping binds a source path to an identity and its library target.
// A mapping whose TargetPath is empty was released to a newer source.
type Mapping struct {
	ID              int64
	SourcePath      string
	TargetPath      string
	CanonicalID     int64
	Season          int
	Episode         int
	EpisodeEnd      int
	ConfidenceScore float64
	ManualOverride  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Identity Identity
	Archived bool
}

// Active reports whether the mapping should appear in the library.
func (m Mapping) Active() bool {
	return !m.Archived && m.TargetPath != ""
}

// MappingInput describes the mapping UpsertMapping should converge on.
type MappingInput struct {
	SourcePath string
	Identity   Identity
	Season     int
	Episode    int
	EpisodeEnd int
	Confidence float64
	Manual     bool
}

// SyncResult summarizes one SyncSources call.
type SyncResult struct {
	Seen       int
	Added      int
	Updated    int
	Archived   int
	Resurfaced int
}

// EntryFilter narrows ListEntries. Nil pointers mean "any".
type EntryFilter struct {
	Archived *bool
	Manual   *bool
	States   []State
}

// TitleSummary is one row of the distinct-titles view.
type TitleSummary struct {
	Identity
	Mappings int
	Seasons  int
}

// SeasonSummary is one row of the per-title season view.
type SeasonSummary struct {
	Season   int
	Episodes int
}

// Stats aggregates store state for operator output.
type Stats struct {
	ByState    map[State]int
	Entries    int
	Archived   int
	Manual     int
	Mappings   int
	Identities int
	Lookups    int
	Revision   int64
}

// DatabaseHealth describes the catalog database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	Error            string
}
