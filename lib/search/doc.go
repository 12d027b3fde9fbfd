// Package search implements in-memory criteria matching, ordering and
// pagination over materialized record sets.
//
// The package deliberately performs linear scans: results are filtered from
// an already-loaded slice and no secondary indexes are consulted. This is a
// documented limitation, not a defect - the layer targets collection sizes
// where a scan is cheaper than maintaining query machinery.
//
// String matching semantics are an explicit per-call option (Options.Mode):
//
//   - MatchExact: case-insensitive whole-value comparison.
//   - MatchPartial: case-insensitive substring comparison.
//   - MatchAuto (default): criteria containing a separator character are
//     treated as partial matches, unless the value is one of a small set of
//     known status-like tokens (e.g. "in-progress") that are compared
//     exactly. MatchAuto exists for compatibility with callers relying on
//     the historic inferred behavior; new callers should pass an explicit
//     mode.
//
// Non-string criteria compare on the normalized identifier representation
// (see the ident package), so the number 42 and the string "42" are equal
// regardless of which codec produced the record.
package search
