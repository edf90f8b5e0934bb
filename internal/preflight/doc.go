// Package preflight provides readiness checks for external services
// and filesystem paths that Curator depends on.
//
// The CLI "curator status" command runs RunAll to display service health,
// and the individual checks (CheckDirectoryAccess, CheckTMDB, CheckJellyfin)
// can be reused by other callers.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
