// Package catalog persists the reconciliation state in SQLite: one row per
// source entry, canonical identities unique on (external id, kind), mappings
// unique on both source and target path, and the persisted lookup cache.
//
// Every write goes through retryOnBusy so concurrent workers ride out
// SQLITE_BUSY. UpsertMapping is a single transaction per entry: a target
// owned by another active entry yields *CollisionError and writes nothing,
// and an identical mapping writes nothing either. Triggers bump the store
// revision on every mapping change and every archival, which lets the
// symlink synchronizer skip work when nothing changed.
//
// Archival is monotonic. Triggers reject any attempt to reactivate an
// archived entry. Schema changes bump schemaVersion in schema.go; an older
// database is rejected with ErrSchemaMismatch.
package catalog
