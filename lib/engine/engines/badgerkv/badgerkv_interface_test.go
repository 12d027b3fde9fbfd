package badgerkv

import (
	"testing"
	"time"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/enginetest"
)

func Test(t *testing.T) {
	enginetest.RunEngineTests(t, "BadgerKV", Factory())
}

// TestReopenKeepsData verifies persistence across engine restarts.
func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	eng, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := eng.CreateCollection(engine.CollectionSpec{Name: "users", KeyField: "id"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	tx, err := eng.Begin([]string{"users"}, engine.ModeReadWrite)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	h, _ := tx.Collection("users")
	if err := h.Put("1", []byte("alice")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	tx.Commit()
	select {
	case err := <-tx.Done():
		if err != nil {
			t.Fatalf("commit failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("commit never settled")
	}

	if err := eng.SetSchemaVersion(7); err != nil {
		t.Fatalf("set version failed: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if !reopened.HasCollection("users") {
		t.Errorf("collection registry not restored")
	}
	if v := reopened.SchemaVersion(); v != 7 {
		t.Errorf("expected schema version 7 after reopen, got %d", v)
	}

	tx, err = reopened.Begin([]string{"users"}, engine.ModeReadOnly)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	h, _ = tx.Collection("users")
	got, found, err := h.Get("1")
	if err != nil || !found || string(got) != "alice" {
		t.Errorf("expected restored value alice, got %s (found=%v err=%v)", got, found, err)
	}
	tx.Commit()
	<-tx.Done()
}
