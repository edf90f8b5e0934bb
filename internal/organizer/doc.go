// Package organizer keeps the library symlink tree in step with the catalog.
//
// The Synchronizer reads active mappings, writes one symlink per target under
// library_dir and removes links whose mapping went away. A LinkState snapshot
// stamped with the store revision lets an unchanged catalog skip the
// filesystem entirely; every verify_every syncs the snapshot is ignored and
// each link is inspected on disk. Rebuild recreates the tree from mappings
// alone and never calls a metadata provider.
//
// Regular files found at a target path are reported as conflicts and left
// alone. Links whose source has vanished are reported as dangling and kept
// until the owning entry is archived.
package organizer
