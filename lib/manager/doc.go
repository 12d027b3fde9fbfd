// Package manager owns the connection to a store and composes the
// transaction coordinator, the collection proxies and the event notifier
// into the public operation set.
//
// Lifecycle: a Manager starts Closed. The first operation (or an explicit
// Open call) moves it through Opening to Open; concurrent first operations
// share one in-flight open attempt instead of opening the engine twice.
// During open, the upgrade path compares the engine's persisted schema
// version with the declared one and creates any missing collections and
// indexes; existing ones are never touched or re-created. Close tears the
// connection down, proxies reopen it on their next use.
//
// Identifier policy: records inserted without an identifier get one
// assigned. Collections whose key set consists purely of integers get the
// next integer above the maximum; anything else gets a timestamp plus a
// random discriminator. Batch inserts share one assigner per transaction,
// so identifiers assigned within a batch are pairwise distinct. An explicit
// identifier decides add-vs-update by an existence check inside the same
// transaction; fully concurrent callers racing on the same explicit
// identifier get last-write-wins semantics.
//
// Events: every mutating operation that commits publishes one event per
// logically affected record (one for the whole operation in the clear
// case), after settlement. Aborted transactions publish nothing.
package manager
