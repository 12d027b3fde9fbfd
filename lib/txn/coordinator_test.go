package txn

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
)

// --------------------------------------------------------------------------
// Join state machine: every signal ordering settles exactly once
// --------------------------------------------------------------------------

// collect drains the outcome with a timeout so a buggy machine that never
// settles fails the test instead of hanging it.
func collect(t *testing.T, j *join) (interface{}, error) {
	t.Helper()
	select {
	case o := <-j.outcome:
		return o.value, o.err
	case <-time.After(time.Second):
		t.Fatal("join never settled")
		return nil, nil
	}
}

func countOutcomes(j *join) int {
	n := 0
	for {
		select {
		case <-j.outcome:
			n++
		default:
			return n
		}
	}
}

func TestJoinOperationThenCommit(t *testing.T) {
	j := newJoin()
	j.operationSucceeded("value")
	j.commitCompleted()

	v, err := collect(t, j)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestJoinCommitThenOperation(t *testing.T) {
	j := newJoin()
	j.commitCompleted()
	j.operationSucceeded("value")

	v, err := collect(t, j)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestJoinOperationAloneDoesNotSettle(t *testing.T) {
	j := newJoin()
	j.operationSucceeded("value")

	select {
	case <-j.outcome:
		t.Fatal("settled before commit signal")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestJoinCommitAloneDoesNotSettle(t *testing.T) {
	j := newJoin()
	j.commitCompleted()

	select {
	case <-j.outcome:
		t.Fatal("settled before operation result")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestJoinOperationErrorThenAbortSignal(t *testing.T) {
	j := newJoin()
	cause := errors.New("boom")
	j.operationFailed(collection.WrapError(collection.RetCOperation, "unit of work failed", cause))
	j.txnFailed(engine.ErrAborted)

	_, err := collect(t, j)
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestJoinCommitAfterRecordedErrorRejects(t *testing.T) {
	// anomaly: commit completes even though the operation failed and an
	// abort was requested - must reject with the recorded error, never
	// silently resolve
	j := newJoin()
	j.operationFailed(collection.NewError(collection.RetCOperation, "unit of work failed"))
	j.commitCompleted()

	_, err := collect(t, j)
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
}

func TestJoinEngineErrorBeforeOperation(t *testing.T) {
	j := newJoin()
	j.txnFailed(errors.New("resource conflict"))

	_, err := collect(t, j)
	require.Error(t, err)
	assert.Equal(t, collection.RetCTransactionAborted, collection.CodeOf(err))
}

func TestJoinEngineErrorWithoutReason(t *testing.T) {
	j := newJoin()
	j.txnFailed(nil)

	_, err := collect(t, j)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAborted)
}

func TestJoinAbortUnavailable(t *testing.T) {
	j := newJoin()
	j.operationFailed(collection.NewError(collection.RetCOperation, "unit of work failed"))
	j.abortUnavailable()

	_, err := collect(t, j)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
}

// TestJoinSettlesExactlyOnce drives every combination of operation outcome
// and engine signal sequence and asserts a single settlement each time.
func TestJoinSettlesExactlyOnce(t *testing.T) {
	type signal func(j *join)

	opOK := func(j *join) { j.operationSucceeded(1) }
	opErr := func(j *join) { j.operationFailed(collection.NewError(collection.RetCOperation, "x")) }
	commit := func(j *join) { j.commitCompleted() }
	fail := func(j *join) { j.txnFailed(errors.New("engine error")) }
	abortNA := func(j *join) { j.abortUnavailable() }

	sequences := [][]signal{
		{opOK, commit},
		{commit, opOK},
		{opOK, commit, commit},
		{opOK, fail},
		{fail, opOK, commit},
		{opOK, commit, fail},
		{opErr, fail},
		{opErr, fail, fail},
		{opErr, commit},
		{opErr, abortNA, fail},
		{opErr, abortNA, commit},
		{fail, fail},
		{fail, commit, opOK},
		{commit, fail, opOK},
		{commit, opErr, fail},
	}

	for i, seq := range sequences {
		t.Run(fmt.Sprintf("sequence_%d", i), func(t *testing.T) {
			j := newJoin()
			for _, s := range seq {
				s(j)
			}
			assert.Equal(t, 1, countOutcomes(j), "exactly one settlement")
		})
	}
}

// --------------------------------------------------------------------------
// Fake engine for Run-level tests
// --------------------------------------------------------------------------

type fakeData map[string][]byte

type fakeEngine struct {
	collections map[string]fakeData

	abortUnsupported bool
	beginErr         error
	// when set, the engine fires this error on Done instead of committing
	spontaneousErr error
	// extra duplicate terminal signals to fire after the first one
	duplicateSignals int
}

func newFakeEngine(names ...string) *fakeEngine {
	e := &fakeEngine{collections: map[string]fakeData{}}
	for _, n := range names {
		e.collections[n] = fakeData{}
	}
	return e
}

func (e *fakeEngine) Begin(collections []string, mode engine.Mode) (engine.Txn, error) {
	if e.beginErr != nil {
		return nil, e.beginErr
	}
	for _, name := range collections {
		if _, ok := e.collections[name]; !ok {
			return nil, engine.ErrCollectionNotFound
		}
	}
	return &fakeTxn{
		eng:     e,
		mode:    mode,
		names:   collections,
		pending: map[string]fakeData{},
		done:    make(chan error, 4),
	}, nil
}

func (e *fakeEngine) CreateCollection(spec engine.CollectionSpec) error {
	if _, ok := e.collections[spec.Name]; !ok {
		e.collections[spec.Name] = fakeData{}
	}
	return nil
}

func (e *fakeEngine) HasCollection(name string) bool { _, ok := e.collections[name]; return ok }
func (e *fakeEngine) Collections() []string {
	out := make([]string, 0, len(e.collections))
	for n := range e.collections {
		out = append(out, n)
	}
	return out
}
func (e *fakeEngine) SchemaVersion() uint64                       { return 1 }
func (e *fakeEngine) SetSchemaVersion(uint64) error               { return nil }
func (e *fakeEngine) SupportsFeature(f engine.Feature) bool       { return !e.abortUnsupported || f&engine.FeatureAbort == 0 }
func (e *fakeEngine) GetInfo() engine.Info                        { return engine.Info{EngineType: "fake"} }
func (e *fakeEngine) Close() error                                { return nil }

type fakeTxn struct {
	eng     *fakeEngine
	mode    engine.Mode
	names   []string
	pending map[string]fakeData
	done    chan error
	settled bool
}

func (t *fakeTxn) Collection(name string) (engine.Handle, error) {
	if !t.eng.HasCollection(name) {
		return nil, engine.ErrCollectionNotFound
	}
	if _, ok := t.pending[name]; !ok {
		t.pending[name] = fakeData{}
	}
	return &fakeHandle{txn: t, name: name}, nil
}

func (t *fakeTxn) fire(err error) {
	if t.settled {
		return
	}
	t.settled = true
	t.done <- err
	for i := 0; i < t.eng.duplicateSignals; i++ {
		t.done <- err
	}
	close(t.done)
}

func (t *fakeTxn) Commit() {
	if t.eng.spontaneousErr != nil {
		t.fire(t.eng.spontaneousErr)
		return
	}
	// apply buffered writes, then signal commit completion
	for name, writes := range t.pending {
		for k, v := range writes {
			if v == nil {
				delete(t.eng.collections[name], k)
			} else {
				t.eng.collections[name][k] = v
			}
		}
	}
	t.fire(nil)
}

func (t *fakeTxn) Abort() error {
	if t.eng.abortUnsupported {
		return engine.ErrAbortUnsupported
	}
	t.pending = map[string]fakeData{}
	t.fire(engine.ErrAborted)
	return nil
}

func (t *fakeTxn) Done() <-chan error { return t.done }

type fakeHandle struct {
	txn  *fakeTxn
	name string
}

func (h *fakeHandle) Get(key string) ([]byte, bool, error) {
	if v, ok := h.txn.pending[h.name][key]; ok {
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	v, ok := h.txn.eng.collections[h.name][key]
	return v, ok, nil
}

func (h *fakeHandle) Put(key string, value []byte) error {
	if h.txn.mode == engine.ModeReadOnly {
		return engine.ErrReadOnly
	}
	h.txn.pending[h.name][key] = value
	return nil
}

func (h *fakeHandle) Delete(key string) error {
	if h.txn.mode == engine.ModeReadOnly {
		return engine.ErrReadOnly
	}
	h.txn.pending[h.name][key] = nil
	return nil
}

func (h *fakeHandle) Clear() error {
	if h.txn.mode == engine.ModeReadOnly {
		return engine.ErrReadOnly
	}
	for k := range h.txn.eng.collections[h.name] {
		h.txn.pending[h.name][k] = nil
	}
	return nil
}

func (h *fakeHandle) Count() (int, error) {
	n := len(h.txn.eng.collections[h.name])
	for k, v := range h.txn.pending[h.name] {
		_, existed := h.txn.eng.collections[h.name][k]
		if v == nil && existed {
			n--
		} else if v != nil && !existed {
			n++
		}
	}
	return n, nil
}

func (h *fakeHandle) Ascend(fn func(key string, value []byte) bool) error {
	for k, v := range h.txn.eng.collections[h.name] {
		if pv, ok := h.txn.pending[h.name][k]; ok {
			if pv == nil {
				continue
			}
			v = pv
		}
		if !fn(k, v) {
			return nil
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Run-level tests
// --------------------------------------------------------------------------

func TestRunCommitsAndReturnsResult(t *testing.T) {
	eng := newFakeEngine("users")

	v, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		if err := h.Put("1", []byte("alice")); err != nil {
			return nil, err
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []byte("alice"), eng.collections["users"]["1"])
}

func TestRunCollectionNotFound(t *testing.T) {
	eng := newFakeEngine("users")

	_, err := Run(eng, "ghosts", engine.ModeReadOnly, func(h engine.Handle) (interface{}, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCCollectionNotFound, collection.CodeOf(err))
}

func TestRunTransactionStartError(t *testing.T) {
	eng := newFakeEngine("users")
	eng.beginErr = errors.New("engine out of handles")

	_, err := Run(eng, "users", engine.ModeReadOnly, func(h engine.Handle) (interface{}, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCTransactionStart, collection.CodeOf(err))
}

func TestRunWorkFailureAbortsAndRejects(t *testing.T) {
	eng := newFakeEngine("users")
	cause := errors.New("validation failed")

	_, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		if err := h.Put("1", []byte("alice")); err != nil {
			return nil, err
		}
		return nil, cause
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
	assert.ErrorIs(t, err, cause)

	// abort semantics: no partial writes visible afterwards
	assert.Empty(t, eng.collections["users"])
}

func TestRunWorkPanicAbortsAndRejects(t *testing.T) {
	eng := newFakeEngine("users")

	_, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		_ = h.Put("1", []byte("alice"))
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
	assert.Empty(t, eng.collections["users"])
}

func TestRunAbortUnsupportedRejectsImmediately(t *testing.T) {
	eng := newFakeEngine("users")
	eng.abortUnsupported = true
	cause := errors.New("nope")

	_, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		return nil, cause
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestRunEngineAbortRejects(t *testing.T) {
	eng := newFakeEngine("users")
	eng.spontaneousErr = errors.New("resource conflict")

	_, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		return "result", nil
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCTransactionAborted, collection.CodeOf(err))
}

func TestRunIgnoresDuplicateEngineSignals(t *testing.T) {
	eng := newFakeEngine("users")
	eng.duplicateSignals = 2

	v, err := Run(eng, "users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRunReadOnlyRejectsWrites(t *testing.T) {
	eng := newFakeEngine("users")

	_, err := Run(eng, "users", engine.ModeReadOnly, func(h engine.Handle) (interface{}, error) {
		return nil, h.Put("1", []byte("x"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrReadOnly)
}

func TestRunNilEngine(t *testing.T) {
	_, err := Run(nil, "users", engine.ModeReadOnly, func(h engine.Handle) (interface{}, error) {
		return nil, nil
	})
	assert.Equal(t, collection.RetCConfiguration, collection.CodeOf(err))
}
