// Package source enumerates the media items exposed by the mounted
// acquisition filesystem.
//
// FSLister walks source.root one item per top-level child, descending into
// the configured films and shows subdirectories so entries carry a kind
// hint. Every video file becomes an Entry with the names the parser needs,
// a cheap content hash, and a release quality score. Output is sorted by
// path so repeated listings of an unchanged mount are identical.
package source
