// Package store provides SQLite-backed storage for instances of declared
// types.
//
// Every hierarchy is stored in one table named after its root type
// (table-per-hierarchy):
//   - id: UUIDv7 row id, assigned on insert
//   - _type: name of the runtime type of the row
//   - one column per stored field of the root or any of its subtypes
//
// Columns a row's runtime type does not declare hold NULL. Computed members
// are never stored; queries reach them through the inliner.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - All reads end with ORDER BY id COLLATE BINARY ASC
//   - UUIDv7 ids sort in insertion order
//
// Schema Identity
//   - The column layout of each table is content-hashed (ir.DomainSchema)
//     and recorded in _calcx_schema
//   - Reopening a database with a different layout for the same table fails
//     instead of silently reading the wrong columns
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
