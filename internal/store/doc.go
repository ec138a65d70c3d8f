// Package store provides the SQLite-backed object store behind storekit.
//
// The store keeps the current state of every entity instance in the
// entities table and an append-only log of committed transactions and
// their changes. Every transaction gets a sequence number (its state); a
// snapshot at state n is rebuilt by replaying the log up to n.
//
// # Writes
//
// All writes go through a Tx. Store.Create, Store.Update and Store.Delete
// wrap a single change in its own transaction. The version check of a
// conditional update happens inside the write transaction, so of two
// concurrent updates expecting the same version exactly one succeeds and
// the other gets ErrOptimisticLock.
//
// Transactions are serialized by a commit mutex. Verifier plugins see the
// changes before commit and may reject them with a VerificationError;
// Observer plugins are notified after commit, in sequence order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Field sets are stored as RFC 8785 canonical JSON.
package store
