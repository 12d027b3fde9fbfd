package txn

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
)

// --------------------------------------------------------------------------
// Unit of Work
// --------------------------------------------------------------------------

// Work is the caller-supplied unit of work. It receives the handle of the
// collection the transaction was opened on and returns a value or an error.
// A panic inside the work function is captured and treated as a failure.
type Work func(h engine.Handle) (interface{}, error)

// --------------------------------------------------------------------------
// Join State Machine
// --------------------------------------------------------------------------

// join reconciles the two independent completion channels of a transaction -
// the unit of work's own result and the engine's commit signal - into exactly
// one outcome.
//
// States: pending -> {operation done, commit done} (independent flags) ->
// settled. The promise-equivalent (the outcome channel) is delivered exactly
// once; duplicate or late signals after settlement are ignored, because host
// engines may fire more than one terminal event in edge cases.
type join struct {
	mu         sync.Mutex
	opDone     bool
	commitDone bool
	settled    bool

	result interface{} // recorded unit-of-work result
	opErr  error       // recorded unit-of-work failure

	outcome   chan outcome
	settledCh chan struct{}
}

type outcome struct {
	value interface{}
	err   error
}

func newJoin() *join {
	return &join{
		outcome:   make(chan outcome, 1),
		settledCh: make(chan struct{}),
	}
}

// settle delivers the single outcome. Callers must hold j.mu.
func (j *join) settle(value interface{}, err error) {
	if j.settled {
		return
	}
	j.settled = true
	j.outcome <- outcome{value: value, err: err}
	close(j.settledCh)
}

// operationSucceeded records the unit-of-work result. If the commit signal
// already arrived the transaction settles now, otherwise it waits for it.
func (j *join) operationSucceeded(value interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return
	}
	j.opDone = true
	j.result = value
	if j.commitDone {
		j.settle(value, nil)
	}
}

// operationFailed records the unit-of-work failure. Settlement is deferred
// until the abort signal from the engine is processed (see txnFailed); the
// caller requests the abort.
func (j *join) operationFailed(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return
	}
	j.opDone = true
	j.opErr = err
}

// abortUnavailable settles immediately with the recorded operation error.
// Used when the engine cannot abort: no commit signal will arrive for the
// failure path, so there is nothing to wait for.
func (j *join) abortUnavailable() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return
	}
	if j.opErr == nil {
		// nothing recorded; treat as internal inconsistency
		j.opErr = collection.NewError(collection.RetCInternalError, "abort unavailable without recorded operation error")
	}
	j.settle(nil, j.opErr)
}

// commitCompleted handles the engine's commit-success signal.
func (j *join) commitCompleted() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return
	}
	j.commitDone = true

	if !j.opDone {
		// commit signal arrived first; wait for the operation result
		return
	}
	if j.opErr != nil {
		// a commit must not complete after an explicit abort; never
		// silently resolve over a recorded failure
		j.settle(nil, j.opErr)
		return
	}
	j.settle(j.result, nil)
}

// txnFailed handles the engine's error/abort signal. A recorded operation
// error takes precedence: the abort was requested because of it, and the
// caller must see the original cause rather than the generic abort.
func (j *join) txnFailed(engineErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return
	}
	if j.opErr != nil {
		j.settle(nil, j.opErr)
		return
	}
	if engineErr == nil {
		engineErr = engine.ErrAborted
	}
	j.settle(nil, collection.WrapError(collection.RetCTransactionAborted, "transaction aborted by engine", engineErr))
}

// wait blocks until the single outcome is delivered.
func (j *join) wait() (interface{}, error) {
	o := <-j.outcome
	return o.value, o.err
}

// --------------------------------------------------------------------------
// Coordinator
// --------------------------------------------------------------------------

// Run executes one unit of work against a named collection in the given
// access mode and blocks until both the work and the transactional commit
// have completed (or either has failed). The returned error carries the
// collection error taxonomy:
//
//   - RetCCollectionNotFound when the collection is absent on the engine
//   - RetCTransactionStart when the engine refuses to create the transaction
//   - RetCOperation wrapping whatever the unit of work raised
//   - RetCTransactionAborted when the engine aborts on its own
//
// Run performs no retries; retry policy, if any, is the caller's
// responsibility. There is also no timeout: once the transaction is created
// it runs to completion or failure, and a caller imposing an external
// timeout must accept that the engine transaction may still be in flight
// after it gives up.
func Run(eng engine.Engine, collectionName string, mode engine.Mode, work Work) (interface{}, error) {
	if eng == nil {
		return nil, collection.NewError(collection.RetCConfiguration, "no engine configured")
	}

	// fail fast instead of letting the engine create the collection at
	// read time; creation only happens in the upgrade path
	if !eng.HasCollection(collectionName) {
		return nil, collection.NewError(collection.RetCCollectionNotFound,
			fmt.Sprintf("collection %q does not exist", collectionName))
	}

	tx, err := eng.Begin([]string{collectionName}, mode)
	if err != nil {
		if errors.Is(err, engine.ErrCollectionNotFound) {
			return nil, collection.WrapError(collection.RetCCollectionNotFound,
				fmt.Sprintf("collection %q does not exist", collectionName), err)
		}
		return nil, collection.WrapError(collection.RetCTransactionStart, "engine refused to start transaction", err)
	}

	h, err := tx.Collection(collectionName)
	if err != nil {
		_ = tx.Abort()
		return nil, collection.WrapError(collection.RetCTransactionStart,
			fmt.Sprintf("no handle for collection %q", collectionName), err)
	}

	j := newJoin()

	// channel 1: the unit of work
	go func() {
		value, workErr := runWork(work, h)
		if workErr != nil {
			j.operationFailed(collection.WrapError(collection.RetCOperation, "unit of work failed", workErr))
			if abortErr := tx.Abort(); errors.Is(abortErr, engine.ErrAbortUnsupported) {
				j.abortUnavailable()
			}
			// otherwise the abort signal arrives on Done and settles
			return
		}
		j.operationSucceeded(value)
		tx.Commit()
	}()

	// channel 2: the engine's terminal signal(s)
	go func() {
		for {
			select {
			case sig, ok := <-tx.Done():
				if !ok {
					return
				}
				if sig == nil {
					j.commitCompleted()
				} else {
					j.txnFailed(sig)
				}
			case <-j.settledCh:
				return
			}
		}
	}()

	return j.wait()
}

// runWork invokes the unit of work, converting a panic into an error so a
// misbehaving closure cannot leave the transaction unsettled.
func runWork(work Work, h engine.Handle) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
	}()
	return work(h)
}
