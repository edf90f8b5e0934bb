// Package services defines shared utilities consumed by the reconciliation
// components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp scan cycle IDs, source paths, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the classification
//     that decides whether a failure consumes an entry's repair budget.
//
// Use these helpers when wiring new components so failure routing stays
// uniform: identity problems count toward manual review, infrastructure
// problems retry untouched.
package services
