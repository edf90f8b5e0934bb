// Package main hosts the Curator CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, performs one-shot scans and
// rebuilds, exposes operator overrides (resolve, retry, mapping deletion) and
// renders the catalog views as tables or JSON. When a daemon holds the
// instance lock, mutating commands are forwarded to its HTTP API so they share
// its per-path locks; otherwise they run in-process against the catalog.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
