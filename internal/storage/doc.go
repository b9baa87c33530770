// Package storage persists task run history.
//
// Two drivers are available:
//   - "file": JSON Lines, one record per invocation
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
