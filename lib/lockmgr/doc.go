// Package lockmgr implements advisory locks on top of a collection. It
// provides a simple way to coordinate access to shared resources between
// the clients of one store.
//
// Locks are records in a dedicated collection, keyed by the resource name.
// The record carries a randomly generated owner ID that identifies the lock
// holder, plus an optional expiry:
//
//   - Lock Acquisition: A read-check-write inside one transaction creates
//     the lock record only when no unexpired lock exists. The returned
//     owner ID is the caller's proof of ownership.
//
//   - Timeouts: A lock acquired with a TTL expires on its own after that
//     period, preventing deadlocks if a client crashes. An expired lock can
//     be taken over by the next acquirer.
//
//   - Safe Release: ReleaseLock verifies that the requester holds the lock
//     by comparing owner IDs before deleting the record. Releasing a lock
//     that does not exist reports success.
//
// Concurrency: the storage engines perform no write-conflict detection, so
// the lock manager serializes acquire and release internally. All lock
// traffic for one store must therefore go through the same LockManager
// instance; creating several instances over the same collection voids the
// exclusivity guarantee.
package lockmgr
