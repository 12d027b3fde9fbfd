// Package engine provides a standardized interface for transaction-capable
// storage engine implementations. It defines the Engine interface that allows
// consistent interaction with various storage backends while abstracting
// implementation details.
//
// The package focuses on:
//   - A unified interface for collection-scoped key-value operations
//   - Transactions with asynchronous terminal signalling
//   - Schema operations restricted to an explicit upgrade path
//   - Feature discovery through capability flags
//
// Key Components:
//
//   - Engine Interface: The core interface that all engine implementations
//     must satisfy. It provides transaction creation (Begin), schema
//     operations (CreateCollection, SchemaVersion, SetSchemaVersion),
//     feature discovery (SupportsFeature) and metadata retrieval (GetInfo).
//
//   - Txn Interface: A single unit of work over one or more collections in
//     a given access mode. A transaction delivers exactly one terminal
//     signal on its Done channel: nil for a completed commit, ErrAborted
//     after an abort, or another error when the engine fails the
//     transaction itself. Operation results and the commit outcome are
//     therefore two independent completion channels; reconciling them is
//     the job of the txn package, not of any engine.
//
//   - Handle Interface: The per-collection operations available inside a
//     transaction (Get, Put, Delete, Clear, Count, Ascend). Values are
//     opaque byte slices; record semantics live in the collection package.
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations advertise through SupportsFeature. This allows the
//     layers above to discover supported operations at runtime, e.g.
//     whether an explicit Abort is available (FeatureAbort) or whether
//     data survives restarts (FeaturePersistent).
//
// Note on Schema Changes:
//
// A collection must exist before a transaction referencing it is created;
// Begin fails fast with ErrCollectionNotFound instead of silently creating
// collections at read time. Creation only happens through CreateCollection
// during the manager's version-upgrade step, and creating an already-present
// collection is a no-op so upgrades never destroy existing data.
//
// Related Packages:
//
// The engines/hazel package provides an in-memory implementation with
// xsync-sharded committed state and buffered per-transaction write overlays.
// The engines/badgerkv package provides a persistent implementation on top
// of BadgerDB. The enginetest package provides a standardized conformance
// suite for any implementation of the Engine interface.
package engine
