package manager

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/engines/hazel"
)

func testConfig(collections ...string) Config {
	specs := make([]engine.CollectionSpec, len(collections))
	for i, name := range collections {
		specs[i] = engine.CollectionSpec{Name: name, KeyField: "id", AutoIncrement: true}
	}
	return Config{
		Name:        "test-store",
		Version:     1,
		Collections: specs,
		Engine:      hazel.Factory(),
	}
}

func newTestManager(t *testing.T, collections ...string) *Manager {
	t.Helper()
	mgr, err := New(testConfig(collections...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown() })
	return mgr
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

func TestConfigValidation(t *testing.T) {
	base := testConfig("users")

	t.Run("MissingName", func(t *testing.T) {
		cfg := base
		cfg.Name = ""
		_, err := New(cfg)
		assert.Equal(t, collection.RetCConfiguration, collection.CodeOf(err))
	})

	t.Run("MissingEngine", func(t *testing.T) {
		cfg := base
		cfg.Engine = nil
		_, err := New(cfg)
		assert.Equal(t, collection.RetCConfiguration, collection.CodeOf(err))
	})

	t.Run("NoCollections", func(t *testing.T) {
		cfg := base
		cfg.Collections = nil
		_, err := New(cfg)
		assert.Equal(t, collection.RetCConfiguration, collection.CodeOf(err))
	})

	t.Run("DuplicateCollections", func(t *testing.T) {
		cfg := base
		cfg.Collections = append(cfg.Collections, cfg.Collections[0])
		_, err := New(cfg)
		assert.Equal(t, collection.RetCConfiguration, collection.CodeOf(err))
	})

	t.Run("LegacySingleCollection", func(t *testing.T) {
		cfg := base
		cfg.Collections = nil
		cfg.DefaultCollection = "items"
		mgr, err := New(cfg)
		require.NoError(t, err)
		defer mgr.Shutdown()

		col, err := mgr.Default()
		require.NoError(t, err)
		n, err := col.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestLazyOpenSharesOneAttempt(t *testing.T) {
	var opens atomic.Int32
	cfg := testConfig("users")
	cfg.Engine = func() (engine.Engine, error) {
		opens.Add(1)
		return hazel.New(nil), nil
	}
	mgr, err := New(cfg)
	require.NoError(t, err)
	defer mgr.Shutdown()

	col, err := mgr.Collection("users")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := col.Count()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load(), "concurrent first uses must share one open attempt")
}

func TestOpenFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig("users")
	cfg.Engine = func() (engine.Engine, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("disk on fire")
		}
		return hazel.New(nil), nil
	}
	mgr, err := New(cfg)
	require.NoError(t, err)
	defer mgr.Shutdown()

	require.Error(t, mgr.Open())
	require.NoError(t, mgr.Open())
}

func TestCloseAndReopen(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	_, err = col.Save(collection.Record{"id": 1, "name": "Test"})
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	// proxies reopen on next use; the in-memory engine starts empty again
	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpgradeCreatesOnlyMissingCollections(t *testing.T) {
	shared := hazel.New(nil)
	require.NoError(t, shared.CreateCollection(engine.CollectionSpec{Name: "users", KeyField: "id"}))
	require.NoError(t, shared.SetSchemaVersion(1))

	// pre-existing data must survive the upgrade
	tx, err := shared.Begin([]string{"users"}, engine.ModeReadWrite)
	require.NoError(t, err)
	h, err := tx.Collection("users")
	require.NoError(t, err)
	require.NoError(t, h.Put("1", []byte("x")))
	tx.Commit()
	require.NoError(t, <-tx.Done())

	cfg := testConfig("users", "tasks")
	cfg.Version = 2
	cfg.Engine = func() (engine.Engine, error) { return shared, nil }
	mgr, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, mgr.Open())
	assert.True(t, shared.HasCollection("tasks"))
	assert.Equal(t, uint64(2), shared.SchemaVersion())

	col, err := mgr.Collection("users")
	require.NoError(t, err)
	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "upgrade must not touch existing collections")
}

func TestUndeclaredCollection(t *testing.T) {
	mgr := newTestManager(t, "users")
	_, err := mgr.Collection("ghosts")
	assert.Equal(t, collection.RetCCollectionNotFound, collection.CodeOf(err))
}

// --------------------------------------------------------------------------
// Scenarios
// --------------------------------------------------------------------------

// Scenario A: basic save and read back.
func TestSaveThenGet(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	saved, err := col.Save(collection.Record{"id": 1, "name": "Test"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, saved["id"])

	got, err := col.Get(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got["id"])
	assert.Equal(t, "Test", got["name"])

	// a numeric string addresses the same record
	got, err = col.Get("1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Test", got["name"])

	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Scenario B: batch insert without identifiers assigns distinct integers.
func TestAddManyAssignsDistinctIDs(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	recs := make([]collection.Record, 5)
	for i := range recs {
		recs[i] = collection.Record{"n": i}
	}
	inserted, err := col.AddMany(recs)
	require.NoError(t, err)
	require.Len(t, inserted, 5)

	seen := make(map[int64]bool)
	for _, rec := range inserted {
		id, ok := rec["id"].(int64)
		require.True(t, ok, "assigned identifier must be an integer, got %T", rec["id"])
		assert.False(t, seen[id], "identifier %d assigned twice", id)
		seen[id] = true
	}

	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

// Scenario C: batch delete.
func TestDeleteMany(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	recs := make([]collection.Record, 5)
	for i := range recs {
		recs[i] = collection.Record{"n": i}
	}
	_, err = col.AddMany(recs)
	require.NoError(t, err)

	deleted, err := col.DeleteMany([]interface{}{2, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range []int{2, 4} {
		got, err := col.Get(id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

// Scenario D: update miss is a soft nil, update hit returns the merge.
func TestUpdateSemantics(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	got, err := col.Update(42, collection.Record{"name": "nobody"})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = col.Save(collection.Record{"id": 1, "name": "Test", "role": "admin"})
	require.NoError(t, err)

	merged, err := col.Update(1, collection.Record{"name": "Updated"})
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, "Updated", merged["name"])
	assert.Equal(t, "admin", merged["role"], "unmentioned fields survive the merge")
	assert.EqualValues(t, 1, merged["id"])
}

// Scenario E: a failing unit of work aborts; no partial writes are visible.
func TestFailedWorkLeavesNoPartialWrites(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	cause := errors.New("validation failed")
	_, err = mgr.Txn("users", engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		raw, encErr := collection.EncodeRecord(collection.Record{"id": 9, "name": "partial"})
		require.NoError(t, encErr)
		require.NoError(t, h.Put("9", raw))
		return nil, cause
	})
	require.Error(t, err)
	assert.Equal(t, collection.RetCOperation, collection.CodeOf(err))
	assert.ErrorIs(t, err, cause)

	got, err := col.Get(9)
	require.NoError(t, err)
	assert.Nil(t, got)
	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
