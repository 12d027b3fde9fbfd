package engine

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplHazel    Implementation = "hazel"
	ImplBadgerKV Implementation = "badgerkv"
)

// Mode is the access mode of a transaction
type Mode uint8

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "readonly"
	case ModeReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureBegin            Feature = 1 << iota // Support for transactions
	FeatureAbort                                // Support for explicit transaction aborts
	FeatureCreateCollection                     // Support for creating collections after open
	FeatureIndexes                              // Support for secondary index declarations
	FeatureSnapshot                             // Support for Save/Load snapshots
	FeaturePersistent                           // Data survives process restarts
)

func (f Feature) String() string {
	switch f {
	case FeatureBegin:
		return "Begin"
	case FeatureAbort:
		return "Abort"
	case FeatureCreateCollection:
		return "CreateCollection"
	case FeatureIndexes:
		return "Indexes"
	case FeatureSnapshot:
		return "Snapshot"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Schema Types
// --------------------------------------------------------------------------

// IndexSpec declares a secondary index on a collection. Indexes are created
// during the upgrade path only; engines that do not support them ignore the
// declaration (FeatureIndexes reports the difference).
type IndexSpec struct {
	Name   string   `json:"name" msgpack:"name"`
	Fields []string `json:"fields" msgpack:"fields"`
	Unique bool     `json:"unique" msgpack:"unique"`
}

// CollectionSpec declares a named collection. The spec is immutable once the
// physical collection exists: collection and index creation only happens
// during a version-upgrade step, never implicitly at read time.
type CollectionSpec struct {
	Name          string      `json:"name" msgpack:"name"`
	KeyField      string      `json:"key_field" msgpack:"key_field"`
	AutoIncrement bool        `json:"auto_increment" msgpack:"auto_increment"`
	Indexes       []IndexSpec `json:"indexes,omitempty" msgpack:"indexes,omitempty"`
}

// Info holds metadata about an engine instance. It is not guaranteed that
// all fields are filled in or that the information is up-to-date.
type Info struct {
	SizeBytes         int            `json:"size_bytes"`
	EngineType        Implementation `json:"engine_type"`
	SchemaVersion     uint64         `json:"schema_version"`
	Collections       []string       `json:"collections"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrCollectionNotFound is returned when a transaction references a
	// collection that does not exist on the open engine. Engines never
	// create collections implicitly outside the upgrade path.
	ErrCollectionNotFound = errors.New("engine: collection not found")

	// ErrAborted is the terminal signal of a transaction that was aborted,
	// either explicitly or by the engine itself.
	ErrAborted = errors.New("engine: transaction aborted")

	// ErrAbortUnsupported is returned by Abort when the engine cannot
	// abort an in-flight transaction.
	ErrAbortUnsupported = errors.New("engine: abort not supported")

	// ErrTxnClosed is returned for operations on a settled transaction.
	ErrTxnClosed = errors.New("engine: transaction closed")

	// ErrReadOnly is returned for write operations in a read-only transaction.
	ErrReadOnly = errors.New("engine: write in read-only transaction")

	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("engine: closed")
)

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Factory is a function type that creates a new engine. It abstracts engine
// construction from the layers above (manager, rpc server).
type Factory func() (Engine, error)

// Engine is the interface every storage engine implementation must satisfy.
// An engine owns a set of named collections of key-value pairs and executes
// units of work against them inside transactions. Values are opaque bytes;
// all record semantics live in the layers above.
//
// Transactions deliver their terminal outcome asynchronously on Txn.Done.
// The coordination of that signal with the caller's own unit of work is the
// job of the txn package, not of the engine.
type Engine interface {

	// --------------------------------------------------------------------------
	// Transactions
	// --------------------------------------------------------------------------

	// Begin starts a transaction covering the given collections in the given
	// mode. It fails with ErrCollectionNotFound if any referenced collection
	// is absent; it never creates one implicitly.
	Begin(collections []string, mode Mode) (Txn, error)

	// --------------------------------------------------------------------------
	// Schema (upgrade path only)
	// --------------------------------------------------------------------------

	// CreateCollection creates a collection and its declared indexes.
	// Creating an already-present collection is a no-op, not an error:
	// pre-existing collections and indexes are left untouched.
	CreateCollection(spec CollectionSpec) error

	// HasCollection reports whether a collection exists.
	HasCollection(name string) bool

	// Collections returns the names of all existing collections.
	Collections() []string

	// SchemaVersion returns the persisted schema version (0 = never upgraded).
	SchemaVersion() uint64

	// SetSchemaVersion persists a new schema version. Engines must ignore
	// attempts to lower the version so it only increases monotonically.
	SetSchemaVersion(version uint64) error

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using the bitwise OR operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info Info)

	// Close closes the engine.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Transaction Interface
// --------------------------------------------------------------------------

// Txn is a single unit of work against one or more collections.
//
// A transaction produces exactly one terminal signal on the Done channel:
// nil when the commit completed, ErrAborted (possibly wrapped) after an
// abort, or another error when the engine failed the transaction. The
// channel is buffered; the engine never blocks on delivery.
type Txn interface {
	// Collection returns the operation handle for one of the collections
	// the transaction was created over.
	Collection(name string) (Handle, error)

	// Commit asynchronously commits the transaction. The outcome is
	// delivered on Done; Commit itself never blocks on durability.
	Commit()

	// Abort aborts the transaction, discarding all buffered writes.
	// Engines without abort support return ErrAbortUnsupported and leave
	// the transaction as-is.
	Abort() error

	// Done delivers the single terminal signal of the transaction.
	Done() <-chan error
}

// Handle exposes the per-collection operations available inside a
// transaction. The handle is only valid until the transaction settles.
type Handle interface {
	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, found bool, err error)

	// Put inserts or updates a key-value pair.
	Put(key string, value []byte) error

	// Delete removes a key-value pair. Deleting an absent key is a no-op.
	Delete(key string) error

	// Clear removes every pair in the collection.
	Clear() error

	// Count returns the number of pairs in the collection.
	Count() (n int, err error)

	// Ascend iterates all pairs in ascending key order. The callback
	// returns false to stop early. The value slice must not be retained
	// beyond the callback.
	Ascend(fn func(key string, value []byte) bool) error
}

// --------------------------------------------------------------------------
// Snapshot Interface (optional)
// --------------------------------------------------------------------------

// Snapshotter is implemented by engines that support FeatureSnapshot.
type Snapshotter interface {
	// Save persists the current state of the engine to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the engine state from data provided by an io.Reader.
	Load(r io.Reader) (err error)
}
