// Package nameparse turns release-style file and directory names into a
// normalized title, year, kind, and episode position.
//
// Parsing is pure: the same input always yields the same Result. Names that
// carry no usable title fail with ErrParseFailure instead of guessing.
package nameparse
