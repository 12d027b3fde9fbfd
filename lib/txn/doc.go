// Package txn implements the transaction coordination protocol: it executes
// a caller-supplied unit of work inside an engine transaction and reconciles
// the two independent, racily-ordered completion channels every host engine
// exposes - "did my operations produce a result" and "did the whole unit of
// work commit" - into a single deterministic outcome.
//
// Neither signal alone is sufficient to settle. Settling on the operation
// result alone is wrong because the commit can still fail or abort,
// invalidating the result; settling on the commit alone is wrong because the
// operation's return value is still needed. The coordinator is therefore a
// small two-flag join:
//
//	pending --operation ok--> wait for commit --commit ok--> resolve
//	pending --commit ok-----> wait for operation result
//	pending --operation err-> request abort --abort signal--> reject(cause)
//	any     --engine error--> reject (recorded operation error wins)
//
// with one short circuit: a failed unit of work triggers an explicit abort
// of the engine transaction rather than racing the commit, and when the
// engine cannot abort the coordinator rejects immediately since no further
// signal will arrive for that path.
//
// The outcome is delivered exactly once. Duplicate or late engine signals
// after settlement are ignored by design: engines may fire more than one
// terminal event in edge cases (e.g. an error event after an abort), and a
// commit signal arriving after a recorded failure must reject with that
// failure, never silently resolve.
//
// The coordinator performs no retries and imposes no timeout; both are the
// caller's responsibility.
package txn
