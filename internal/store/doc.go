// Package store provides the SQLite-backed local store for offpos.
//
// The store is authoritative on the device. It holds:
//   - orders and order_items: the bills being edited
//   - menu_items and tables: caches of backend catalog data
//   - offline_queue: the durable outbound mutation log
//   - queue_failures, sync_state, audit_logs: bookkeeping
//
// # Write rules
//
// Multi-collection writes go through WithTx. A transaction either commits
// every row it touched or none. Change events for the touched collections
// are published to the events bus only after commit.
//
// Only the lifecycle manager, the outbox and the reconciliation engine
// write. Everything else reads.
//
// # Ordering
//
// Queue entries are read ORDER BY seq ASC. Order items are read ORDER BY
// position ASC, id ASC so line order survives a round trip.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - one open connection, so transactions serialize
package store
