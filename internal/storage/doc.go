// Package storage persists periodic request timing reports.
//
// Drivers:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
package storage
