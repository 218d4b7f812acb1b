// Package store provides SQLite-backed storage for generated datasets and
// recorded runs.
//
// A store holds one dataset:
//   - customers and transactions keyed by their natural ids
//   - security alerts keyed by load order (seq)
//
// and any number of run records, each with per-constraint totals.
//
// # Ordering
//
// Every read is ordered by a key, never by timestamps:
//   - facts stream as customers by id, transactions by id, then alerts by seq
//   - runs list by seq, constraints within a run by name
//
// This makes the dataset fingerprint and every listing reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Decimals (amounts, scores, contributions) are stored as TEXT in plain
// notation so no precision is lost.
package store
