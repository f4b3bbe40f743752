// Package store provides SQLite-backed durable storage for fieldsync.
//
// The store holds two kinds of state:
//   - Documents: whole JSON values under a fixed key (the aggregate, the
//     session). Writes replace the value; there are no partial updates.
//   - Journal: pending RequestRecords, one row each, append-only.
//
// # Ordering
//
// Journal rows carry a seq INTEGER assigned by the caller from a monotonic
// clock. Every journal read uses ORDER BY seq ASC, so list order always
// equals insertion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Any storage failure is returned to the caller. Losing a journal write
// silently would lose field data.
package store
