// Package store provides SQLite-backed durable storage for the offline
// data layer.
//
// The store holds two record kinds:
//   - Snapshots: per-key cached copies of remote collections, used as the
//     last-resort read fallback when the remote store is unreachable.
//   - Queue: pending write operations recorded while offline, replayed in
//     FIFO order by the sync engine once connectivity returns.
//
// Queue ordering uses the AUTOINCREMENT rowid - a row enqueued earlier
// always has a smaller id, and every listing orders by id ASC. Rows are
// never updated in place: a replay either succeeds (the row is deleted)
// or fails (the row stays for the next drain pass).
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - MaxOpenConns(1): single writer, preserves queue FIFO integrity
//
// Every failure is wrapped in *UnavailableError so callers can degrade to
// memory-only operation instead of treating the local disk as fatal.
package store
