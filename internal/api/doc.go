// Package api defines wire-format types and converters for the operator HTTP
// interface and the CLI's JSON output. It translates catalog and workflow
// models into transport-friendly DTOs so consumers do not couple to internal
// types.
//
// DTOs use camelCase JSON tags. Enumerations (entry state, media kind) are
// lowercase strings and timestamps are RFC3339 with milliseconds.
//
// StatusCode maps the service error taxonomy onto HTTP status codes; the
// daemon's handlers and the CLI share it so both report the same class of
// failure the same way.
package api
