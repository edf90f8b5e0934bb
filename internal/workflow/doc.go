// Package workflow runs scan cycles over the source mount.
//
// A cycle lists the mount, reconciles the entry table, then resolves every
// pending entry on a bounded worker pool: parse the name, ask the resolver
// for a canonical identity, and upsert the mapping. Failures are routed back
// into the store so identity and provider problems consume a repair budget
// and eventually land in manual review, while collisions and infrastructure
// faults do not. The cycle ends with an incremental link sync and, when
// links changed, a media-server refresh.
//
// Cycles never overlap: a cycle that finds another in flight returns
// ErrCycleInProgress instead of waiting. Rebuild cancels the running cycle
// and takes its place. ManualResolve and the cycle workers share per-path
// locks so operator edits never interleave with automatic resolution of the
// same entry.
package workflow
