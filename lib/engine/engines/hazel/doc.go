// Package hazel implements the in-memory storage engine. It provides a
// complete implementation of the engine.Engine interface with a focus on
// concurrent throughput: committed state is partitioned into lock-free
// shards per collection, so readers never block each other or writers.
//
// Key Components:
//
//   - hazelImpl: The central engine structure. It manages the collection
//     registry, the schema version, and the commit mutex that serializes
//     the application of transaction overlays. Key hashing is seeded per
//     instance so shard distribution differs between engines.
//
//   - Transaction overlay: Every transaction buffers its writes in a
//     private overlay (pending puts, pending deletes, a cleared flag).
//     Reads merge the overlay over committed state, which gives
//     read-your-writes inside the transaction and full isolation outside
//     it. On commit the overlay is applied atomically under the commit
//     mutex; on abort it is dropped.
//
//   - Terminal signal: Commit applies asynchronously and reports its
//     outcome on the transaction's Done channel, matching the engine
//     contract. The channel delivers exactly one signal and is then
//     closed.
//
//   - Snapshots: Save/Load serialize the full engine state (collections,
//     specs, schema version) with a small binary header and msgpack
//     payload. Save holds the commit mutex, so snapshots are consistent.
//
// The engine keeps everything in memory and reports no persistence
// feature; use the badgerkv engine when data must survive restarts.
package hazel
