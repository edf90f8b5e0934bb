// Package tmdb provides the minimal TMDB API client used by the metadata
// resolver.
//
// It authenticates requests and exposes movie and TV search with an optional
// year filter plus movie/TV detail retrieval. HTTP 429 responses are retried
// after the server's Retry-After delay. Options allow tests to supply custom
// HTTP clients without modifying production code.
package tmdb
