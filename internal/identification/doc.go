// Package identification resolves parsed release names to canonical TMDB
// identities.
//
// The Resolver consults an in-memory cache, then the persisted lookup cache,
// and only then the metadata provider. Concurrent misses on one lookup key
// share a single provider call through singleflight. Candidates are scored
// deterministically from title similarity, year proximity, kind agreement,
// and the provider's own relevance; the top candidate is accepted only when
// it clears the confidence threshold and leads the runner-up by the
// ambiguity margin. Everything else is ErrAmbiguousMatch, never a guess.
//
// TMDBProvider adapts the tmdb client to the Provider interface and keeps
// requests spaced by the configured interval.
package identification
