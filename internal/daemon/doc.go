// Package daemon coordinates the long-running Curator process.
//
// It wires configuration, the catalog store and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances. A
// scan loop runs the reconciliation cycle on a ticker and wakes early on
// debounced triggers fed by the HTTP webhook, the optional fsnotify watcher on
// the source mount and the CLI.
//
// Keep orchestration logic here: reconciliation itself lives in the workflow
// package while the daemon focuses on startup, shutdown, scheduling and the
// operator HTTP surface.
package daemon
