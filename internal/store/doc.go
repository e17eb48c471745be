// Package store provides SQLite-backed durable storage for document update
// logs.
//
// The store is an append-only log with:
//   - Documents: one row per document GUID, with the replica id that
//     created it and a logical creation sequence
//   - Updates: encoded engine updates in commit order, tagged with the
//     origin of the transaction that produced them
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Reads
// order by seq ASC so that replaying a log yields the same document on
// every run.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
