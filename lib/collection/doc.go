// Package collection defines the record model and the high-level interface
// for interacting with one collection of records, together with unified
// error handling for the whole store.
//
// The package focuses on:
//   - A unified interface (ICollection) for record operations across
//     different access paths (embedded manager proxy, RPC client)
//   - A dynamic Record shape with a required identifier field
//   - A structured error system using typed return codes
//   - The msgpack codec used at the engine boundary and on the wire
//
// Key Components:
//
//   - ICollection Interface: The core abstraction defining CRUD, batch,
//     search and stats operations on a collection. Single-record operations
//     report failures as errors; the Try* batch variants degrade to a
//     boolean outcome by design and log the cause instead of returning it.
//     Get-by-id misses are soft: a nil record with a nil error.
//
//   - Error System: A structured error reporting mechanism using typed
//     return codes (RetCode) and descriptive messages, optionally wrapping
//     the underlying cause. This allows applications to make informed
//     decisions based on specific error conditions (collection missing,
//     transaction aborted, invalid identifier, ...) rather than generic
//     errors.
//
//   - Record Codec: EncodeRecord/DecodeRecord serialize records with
//     msgpack, which preserves numeric field types across the storage
//     boundary.
//
// Implementations:
//
//	The manager package provides the local implementation backed by an
//	engine; the rpc/client package provides a remote implementation
//	speaking to a shelf server. The ctesting sub-package provides a
//	conformance suite any implementation must pass.
package collection
