package api

import "curator/internal/workflow"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Entry describes a source entry in a transport-friendly format.
type Entry struct {
	ID              int64   `json:"id"`
	Path            string  `json:"path"`
	DisplayName     string  `json:"displayName"`
	FallbackName    string  `json:"fallbackName,omitempty"`
	KindHint        string  `json:"kindHint,omitempty"`
	State           string  `json:"state"`
	Archived        bool    `json:"archived"`
	Manual          bool    `json:"manual"`
	RepairAttempts  int     `json:"repairAttempts"`
	ConfidenceScore float64 `json:"confidenceScore,omitempty"`
	QualityScore    int     `json:"qualityScore"`
	LastError       string  `json:"lastError,omitempty"`
	LastErrorKind   string  `json:"lastErrorKind,omitempty"`
	FirstSeenAt     string  `json:"firstSeenAt,omitempty"`
	LastSeenAt      string  `json:"lastSeenAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// Identity is a canonical title.
type Identity struct {
	ID         int64  `json:"id"`
	ExternalID int64  `json:"externalId"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
}

// Mapping binds a source path to a library target.
type Mapping struct {
	ID              int64    `json:"id"`
	SourcePath      string   `json:"sourcePath"`
	TargetPath      string   `json:"targetPath,omitempty"`
	Identity        Identity `json:"identity"`
	Season          *int     `json:"season,omitempty"`
	Episode         *int     `json:"episode,omitempty"`
	EpisodeEnd      *int     `json:"episodeEnd,omitempty"`
	ConfidenceScore float64  `json:"confidenceScore"`
	ManualOverride  bool     `json:"manualOverride"`
	Archived        bool     `json:"archived"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

// Title is one row of the distinct-titles view.
type Title struct {
	Identity
	Mappings int `json:"mappings"`
	Seasons  int `json:"seasons"`
}

// Season is one row of the per-title season view.
type Season struct {
	Season   int `json:"season"`
	Episodes int `json:"episodes"`
}

// Stats aggregates catalog counters.
type Stats struct {
	ByState    map[string]int `json:"byState"`
	Entries    int            `json:"entries"`
	Archived   int            `json:"archived"`
	Manual     int            `json:"manual"`
	Mappings   int            `json:"mappings"`
	Identities int            `json:"identities"`
	Lookups    int            `json:"lookups"`
	Revision   int64          `json:"revision"`
}

// LinkReport summarizes a link sync or rebuild.
type LinkReport struct {
	Created   int      `json:"created"`
	Replaced  int      `json:"replaced"`
	Removed   int      `json:"removed"`
	Unchanged int      `json:"unchanged"`
	Dangling  []string `json:"dangling,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Skipped   bool     `json:"skipped,omitempty"`
	Revision  int64    `json:"revision"`
}

// ResolveRequest is the body of POST /api/resolve.
type ResolveRequest struct {
	Ref        string `json:"ref"`
	ExternalID int64  `json:"external_id"`
	Kind       string `json:"kind,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`
}

// RetryRequest is the body of POST /api/entries/retry.
type RetryRequest struct {
	Ref string `json:"ref"`
}

// ResolveResponse reports a manual resolution.
type ResolveResponse struct {
	Mapping Mapping    `json:"mapping"`
	Links   LinkReport `json:"links"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	DatabasePath string                 `json:"databasePath"`
	LockFilePath string                 `json:"lockFilePath"`
	LockHeld     bool                   `json:"lockHeld"`
	Stats        *Stats                 `json:"stats,omitempty"`
	Workflow     workflow.StatusSummary `json:"workflow"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Kind      string     `json:"kind,omitempty"`
	Collision *Collision `json:"collision,omitempty"`
}

// Collision details a target already owned by another source.
type Collision struct {
	TargetPath         string `json:"targetPath"`
	SourcePath         string `json:"sourcePath"`
	ExistingSourcePath string `json:"existingSourcePath"`
}
