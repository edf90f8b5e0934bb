// Package jellyfin triggers media-server library refreshes.
//
// Only the libraries whose section changed are refreshed: films map to the
// "movies" collection type and shows to "tvshows". When Jellyfin is disabled
// or lacks credentials NewConfiguredService returns a no-op.
package jellyfin
