// Package badgerkv implements the persistent storage engine on top of
// badger. Collections are mapped onto badger's flat key space with a short
// prefix scheme (data keys under "c/", schema metadata under "m/"), so one
// badger instance holds any number of collections plus the collection
// registry and schema version.
//
// Transactions buffer their writes in an overlay exactly like the in-memory
// engine and apply them with a badger write batch on commit. The batch
// splits itself across underlying badger transactions, so a large unit of
// work never fails with ErrTxnTooBig. The price is that commit application
// is not atomic under a crash mid-flush; the layers above treat the commit
// signal as the source of truth.
//
// Snapshots reuse badger's native backup stream, which includes the
// metadata keys, so Save/Load round-trips collections and schema version.
package badgerkv
