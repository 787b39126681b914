// Package storage persists recipients, subscription state, generated plans,
// meal history and webhook dedup keys.
//
// Drivers:
//   - "sqlite": a SQLite file (modernc.org/sqlite, no cgo)
//   - "memory": process-local maps, for tests and dry runs
package storage
