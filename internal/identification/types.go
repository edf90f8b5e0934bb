package identification

import (
	"context"

	"curator/internal/catalog"
	"curator/internal/media"
)

// Candidate is one provider match for a parsed name. MatchScore is the
// provider's own relevance signal normalized to [0, 1]; Rank is the
// provider's result position.
type Candidate struct {
	ExternalID int64
	Kind       media.Kind
	Title      string
	Year       int
	MatchScore float64
	Rank       int
}

// Provider searches the external metadata catalog.
type Provider interface {
	Search(ctx context.Context, title string, kind media.Kind, year int) ([]Candidate, error)
	Lookup(ctx context.Context, externalID int64, kind media.Kind) (Candidate, error)
}

// IdentityStore persists canonical identities and positive lookup results.
type IdentityStore interface {
	UpsertIdentity(ctx context.Context, input catalog.IdentityInput) (catalog.Identity, error)
	CachedLookup(ctx context.Context, key string) (catalog.LookupHit, bool, error)
	StoreLookup(ctx context.Context, key string, canonicalID int64, score float64) error
}
