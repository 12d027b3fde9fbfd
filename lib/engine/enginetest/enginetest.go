package enginetest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shelfdb/shelf/lib/engine"
)

// RunEngineTests runs the conformance test suite for an engine implementation.
func RunEngineTests(t *testing.T, name string, factory engine.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Collections", func(t *testing.T) {
			testCollections(t, mustCreate(t, factory))
		})

		t.Run("SchemaVersion", func(t *testing.T) {
			testSchemaVersion(t, mustCreate(t, factory))
		})

		t.Run("PutGet", func(t *testing.T) {
			testPutGet(t, mustCreate(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, mustCreate(t, factory))
		})

		t.Run("ClearCount", func(t *testing.T) {
			testClearCount(t, mustCreate(t, factory))
		})

		t.Run("Ascend", func(t *testing.T) {
			testAscend(t, mustCreate(t, factory))
		})

		t.Run("TerminalSignal", func(t *testing.T) {
			testTerminalSignal(t, mustCreate(t, factory))
		})

		t.Run("Abort", func(t *testing.T) {
			testAbort(t, mustCreate(t, factory))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, mustCreate(t, factory))
		})

		t.Run("MissingCollection", func(t *testing.T) {
			testMissingCollection(t, mustCreate(t, factory))
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, mustCreate(t, factory))
		})

		t.Run("ValueCopy", func(t *testing.T) {
			testValueCopy(t, mustCreate(t, factory))
		})

		t.Run("ConcurrentTransactions", func(t *testing.T) {
			testConcurrentTransactions(t, mustCreate(t, factory))
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustCreate(t *testing.T, factory engine.Factory) engine.Engine {
	t.Helper()
	eng, err := factory()
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	return eng
}

func requireFeature(t testing.TB, eng engine.Engine, feature engine.Feature) {
	if !eng.SupportsFeature(feature) {
		t.Skip()
	}
}

// awaitDone waits for the terminal signal of a transaction.
func awaitDone(t *testing.T, tx engine.Txn) error {
	t.Helper()
	select {
	case err := <-tx.Done():
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never delivered a terminal signal")
		return nil
	}
}

// commit runs a write transaction over one collection and waits for the
// commit signal.
func commit(t *testing.T, eng engine.Engine, coll string, fn func(h engine.Handle)) {
	t.Helper()

	tx, err := eng.Begin([]string{coll}, engine.ModeReadWrite)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	h, err := tx.Collection(coll)
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	fn(h)
	tx.Commit()
	if err := awaitDone(t, tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

// read runs a read-only transaction over one collection.
func read(t *testing.T, eng engine.Engine, coll string, fn func(h engine.Handle)) {
	t.Helper()

	tx, err := eng.Begin([]string{coll}, engine.ModeReadOnly)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	h, err := tx.Collection(coll)
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	fn(h)
	tx.Commit()
	if err := awaitDone(t, tx); err != nil {
		t.Fatalf("read-only commit failed: %v", err)
	}
}

func createCollection(t *testing.T, eng engine.Engine, name string) {
	t.Helper()
	if err := eng.CreateCollection(engine.CollectionSpec{Name: name, KeyField: "id"}); err != nil {
		t.Fatalf("CreateCollection(%s) failed: %v", name, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCollections(t *testing.T, eng engine.Engine) {
	defer eng.Close()

	if eng.HasCollection("users") {
		t.Errorf("fresh engine should have no collections")
	}

	createCollection(t, eng, "users")
	createCollection(t, eng, "tasks")

	if !eng.HasCollection("users") || !eng.HasCollection("tasks") {
		t.Errorf("created collections should exist")
	}

	// creating an existing collection is a no-op and must not wipe data
	commit(t, eng, "users", func(h engine.Handle) {
		h.Put("1", []byte("alice"))
	})
	createCollection(t, eng, "users")
	read(t, eng, "users", func(h engine.Handle) {
		if _, found, _ := h.Get("1"); !found {
			t.Errorf("re-creating a collection must not discard its data")
		}
	})

	names := eng.Collections()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "tasks" || names[1] != "users" {
		t.Errorf("expected [tasks users], got %v", names)
	}
}

func testSchemaVersion(t *testing.T, eng engine.Engine) {
	defer eng.Close()

	if v := eng.SchemaVersion(); v != 0 {
		t.Errorf("fresh engine should report schema version 0, got %d", v)
	}

	if err := eng.SetSchemaVersion(3); err != nil {
		t.Fatalf("SetSchemaVersion failed: %v", err)
	}
	if v := eng.SchemaVersion(); v != 3 {
		t.Errorf("expected schema version 3, got %d", v)
	}

	// version only moves forward
	if err := eng.SetSchemaVersion(1); err != nil {
		t.Fatalf("SetSchemaVersion failed: %v", err)
	}
	if v := eng.SchemaVersion(); v != 3 {
		t.Errorf("schema version must not decrease, got %d", v)
	}
}

func testPutGet(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	value1 := []byte("value-1")
	value2 := []byte("value-2")

	commit(t, eng, "users", func(h engine.Handle) {
		if err := h.Put("k", value1); err != nil {
			t.Errorf("Put failed: %v", err)
		}

		// read-your-writes inside the transaction
		got, found, err := h.Get("k")
		if err != nil || !found {
			t.Errorf("expected uncommitted write to be visible in its own transaction")
		}
		if !bytes.Equal(got, value1) {
			t.Errorf("expected %s, got %s", value1, got)
		}
	})

	read(t, eng, "users", func(h engine.Handle) {
		got, found, err := h.Get("k")
		if err != nil {
			t.Errorf("Get failed: %v", err)
		}
		if !found || !bytes.Equal(got, value1) {
			t.Errorf("expected committed value %s, got %s (found=%v)", value1, got, found)
		}

		if _, found, _ := h.Get("missing"); found {
			t.Errorf("expected missing key to return found=false")
		}
	})

	// overwrite
	commit(t, eng, "users", func(h engine.Handle) {
		h.Put("k", value2)
	})
	read(t, eng, "users", func(h engine.Handle) {
		got, _, _ := h.Get("k")
		if !bytes.Equal(got, value2) {
			t.Errorf("expected overwritten value %s, got %s", value2, got)
		}
	})
}

func testDelete(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	commit(t, eng, "users", func(h engine.Handle) {
		h.Put("k", []byte("v"))
	})
	commit(t, eng, "users", func(h engine.Handle) {
		if err := h.Delete("k"); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
		// delete visible in its own transaction
		if _, found, _ := h.Get("k"); found {
			t.Errorf("expected deleted key to be gone inside transaction")
		}
		// deleting an absent key is a no-op
		if err := h.Delete("missing"); err != nil {
			t.Errorf("Delete of absent key should be a no-op, got %v", err)
		}
	})
	read(t, eng, "users", func(h engine.Handle) {
		if _, found, _ := h.Get("k"); found {
			t.Errorf("expected deleted key to be gone after commit")
		}
	})
}

func testClearCount(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	commit(t, eng, "users", func(h engine.Handle) {
		for i := 0; i < 10; i++ {
			h.Put(fmt.Sprintf("key-%02d", i), []byte("v"))
		}
	})
	read(t, eng, "users", func(h engine.Handle) {
		if n, _ := h.Count(); n != 10 {
			t.Errorf("expected count 10, got %d", n)
		}
	})

	commit(t, eng, "users", func(h engine.Handle) {
		if err := h.Clear(); err != nil {
			t.Errorf("Clear failed: %v", err)
		}
		if n, _ := h.Count(); n != 0 {
			t.Errorf("expected count 0 after clear inside transaction, got %d", n)
		}
	})
	read(t, eng, "users", func(h engine.Handle) {
		if n, _ := h.Count(); n != 0 {
			t.Errorf("expected count 0 after committed clear, got %d", n)
		}
	})
}

func testAscend(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	keys := []string{"b", "a", "d", "c"}
	commit(t, eng, "users", func(h engine.Handle) {
		for _, k := range keys {
			h.Put(k, []byte(k))
		}
	})

	read(t, eng, "users", func(h engine.Handle) {
		var got []string
		if err := h.Ascend(func(key string, value []byte) bool {
			got = append(got, key)
			return true
		}); err != nil {
			t.Fatalf("Ascend failed: %v", err)
		}
		want := []string{"a", "b", "c", "d"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("expected ascending key order %v, got %v", want, got)
				break
			}
		}

		// early stop
		n := 0
		h.Ascend(func(key string, value []byte) bool {
			n++
			return n < 2
		})
		if n != 2 {
			t.Errorf("expected iteration to stop after 2 keys, got %d", n)
		}
	})
}

func testTerminalSignal(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	tx, err := eng.Begin([]string{"users"}, engine.ModeReadWrite)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	h, _ := tx.Collection("users")
	h.Put("k", []byte("v"))
	tx.Commit()

	if err := awaitDone(t, tx); err != nil {
		t.Errorf("expected nil terminal signal after commit, got %v", err)
	}

	// channel closes after delivery
	select {
	case _, ok := <-tx.Done():
		if ok {
			t.Errorf("expected Done channel to be closed after the terminal signal")
		}
	case <-time.After(time.Second):
		t.Errorf("Done channel not closed after the terminal signal")
	}

	// operations on a settled transaction fail
	if err := h.Put("k2", []byte("v")); !errors.Is(err, engine.ErrTxnClosed) {
		t.Errorf("expected ErrTxnClosed on settled transaction, got %v", err)
	}
}

func testAbort(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	requireFeature(t, eng, engine.FeatureAbort)
	createCollection(t, eng, "users")

	commit(t, eng, "users", func(h engine.Handle) {
		h.Put("keep", []byte("v"))
	})

	tx, err := eng.Begin([]string{"users"}, engine.ModeReadWrite)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	h, _ := tx.Collection("users")
	h.Put("discard", []byte("v"))
	h.Delete("keep")

	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if err := awaitDone(t, tx); !errors.Is(err, engine.ErrAborted) {
		t.Errorf("expected ErrAborted terminal signal, got %v", err)
	}

	read(t, eng, "users", func(h engine.Handle) {
		if _, found, _ := h.Get("discard"); found {
			t.Errorf("aborted write must not be visible")
		}
		if _, found, _ := h.Get("keep"); !found {
			t.Errorf("aborted delete must not take effect")
		}
	})
}

func testReadOnly(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	read(t, eng, "users", func(h engine.Handle) {
		if err := h.Put("k", []byte("v")); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("expected ErrReadOnly for Put, got %v", err)
		}
		if err := h.Delete("k"); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("expected ErrReadOnly for Delete, got %v", err)
		}
		if err := h.Clear(); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("expected ErrReadOnly for Clear, got %v", err)
		}
	})
}

func testMissingCollection(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	if _, err := eng.Begin([]string{"ghosts"}, engine.ModeReadOnly); !errors.Is(err, engine.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}

	// mixed lists fail as a whole
	if _, err := eng.Begin([]string{"users", "ghosts"}, engine.ModeReadOnly); !errors.Is(err, engine.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound for partially missing list, got %v", err)
	}

	tx, err := eng.Begin([]string{"users"}, engine.ModeReadOnly)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.Collection("ghosts"); err == nil {
		t.Errorf("expected error for handle on uncovered collection")
	}
	tx.Commit()
	awaitDone(t, tx)
}

func testIsolation(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	tx, err := eng.Begin([]string{"users"}, engine.ModeReadWrite)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	h, _ := tx.Collection("users")
	h.Put("k", []byte("uncommitted"))

	// a concurrent reader must not observe the buffered write
	read(t, eng, "users", func(rh engine.Handle) {
		if _, found, _ := rh.Get("k"); found {
			t.Errorf("uncommitted write visible to concurrent reader")
		}
	})

	tx.Commit()
	if err := awaitDone(t, tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	read(t, eng, "users", func(rh engine.Handle) {
		if _, found, _ := rh.Get("k"); !found {
			t.Errorf("committed write not visible")
		}
	})
}

func testValueCopy(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	commit(t, eng, "users", func(h engine.Handle) {
		h.Put("k", []byte("original"))
	})

	read(t, eng, "users", func(h engine.Handle) {
		got, _, _ := h.Get("k")
		got[0] = 'X'
	})
	read(t, eng, "users", func(h engine.Handle) {
		got, _, _ := h.Get("k")
		if !bytes.Equal(got, []byte("original")) {
			t.Errorf("Get must return a copy, stored value was mutated to %s", got)
		}
	})
}

func testConcurrentTransactions(t *testing.T, eng engine.Engine) {
	defer eng.Close()
	createCollection(t, eng, "users")

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tx, err := eng.Begin([]string{"users"}, engine.ModeReadWrite)
				if err != nil {
					t.Errorf("Begin failed: %v", err)
					return
				}
				h, err := tx.Collection("users")
				if err != nil {
					t.Errorf("Collection failed: %v", err)
					return
				}
				if err := h.Put(fmt.Sprintf("w%d-k%d", w, i), []byte("v")); err != nil {
					t.Errorf("Put failed: %v", err)
				}
				tx.Commit()
				select {
				case err := <-tx.Done():
					if err != nil {
						t.Errorf("commit failed: %v", err)
					}
				case <-time.After(5 * time.Second):
					t.Errorf("commit never settled")
					return
				}
			}
		}(w)
	}
	wg.Wait()

	read(t, eng, "users", func(h engine.Handle) {
		if n, _ := h.Count(); n != writers*perWriter {
			t.Errorf("expected %d keys after concurrent writes, got %d", writers*perWriter, n)
		}
	})
}

func testSaveLoad(t *testing.T, factory engine.Factory) {
	source := mustCreate(t, factory)
	defer source.Close()
	requireFeature(t, source, engine.FeatureSnapshot)

	createCollection(t, source, "users")
	commit(t, source, "users", func(h engine.Handle) {
		for i := 0; i < 5; i++ {
			h.Put(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i)))
		}
	})
	if err := source.SetSchemaVersion(2); err != nil {
		t.Fatalf("SetSchemaVersion failed: %v", err)
	}

	var buf bytes.Buffer
	if err := source.(engine.Snapshotter).Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := mustCreate(t, factory)
	defer target.Close()
	if err := target.(engine.Snapshotter).Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if v := target.SchemaVersion(); v != 2 {
		t.Errorf("expected restored schema version 2, got %d", v)
	}
	read(t, target, "users", func(h engine.Handle) {
		if n, _ := h.Count(); n != 5 {
			t.Errorf("expected 5 restored keys, got %d", n)
		}
		got, found, _ := h.Get("k3")
		if !found || !bytes.Equal(got, []byte("v3")) {
			t.Errorf("expected restored value v3, got %s (found=%v)", got, found)
		}
	})
}
