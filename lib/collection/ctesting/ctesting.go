// Package ctesting provides a shared conformance test suite for
// collection.ICollection implementations. The manager's local proxy and the
// RPC client both run the same suite, which keeps embedded and remote access
// behaviorally identical.
package ctesting

import (
	"fmt"
	"testing"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/ident"
	"github.com/shelfdb/shelf/lib/search"
)

// CollectionFactory creates a fresh, empty collection for one test.
type CollectionFactory func(t *testing.T) collection.ICollection

// RunCollectionTests runs the conformance suite against an implementation.
func RunCollectionTests(t *testing.T, name string, factory CollectionFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("AddAndGet", func(t *testing.T) {
			testAddAndGet(t, factory(t))
		})

		t.Run("IdentifierEquivalence", func(t *testing.T) {
			testIdentifierEquivalence(t, factory(t))
		})

		t.Run("RoundTrip", func(t *testing.T) {
			testRoundTrip(t, factory(t))
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("ClearAndCount", func(t *testing.T) {
			testClearAndCount(t, factory(t))
		})

		t.Run("AddManyDistinctIDs", func(t *testing.T) {
			testAddManyDistinctIDs(t, factory(t))
		})

		t.Run("DeleteMany", func(t *testing.T) {
			testDeleteMany(t, factory(t))
		})

		t.Run("GetMany", func(t *testing.T) {
			testGetMany(t, factory(t))
		})

		t.Run("Search", func(t *testing.T) {
			testSearch(t, factory(t))
		})

		t.Run("TryVariants", func(t *testing.T) {
			testTryVariants(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAddAndGet(t *testing.T, col collection.ICollection) {
	rec, err := col.Add(collection.Record{"name": "first"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, ok := rec["id"]; !ok {
		t.Errorf("Add must assign an identifier")
	}

	got, err := col.Get(rec["id"])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got["name"] != "first" {
		t.Errorf("expected stored record, got %v", got)
	}

	got, err = col.Get(424242)
	if err != nil {
		t.Fatalf("Get miss must not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing identifier, got %v", got)
	}
}

func testIdentifierEquivalence(t *testing.T, col collection.ICollection) {
	if _, err := col.Save(collection.Record{"id": 7, "name": "seven"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for _, id := range []interface{}{7, "7", int64(7), 7.0, "007"} {
		got, err := col.Get(id)
		if err != nil {
			t.Fatalf("Get(%v) failed: %v", id, err)
		}
		if got == nil || got["name"] != "seven" {
			t.Errorf("identifier %v (%T) should address the stored record", id, id)
		}
	}
}

func testRoundTrip(t *testing.T, col collection.ICollection) {
	saved, err := col.Save(collection.Record{
		"id":     1,
		"name":   "Test",
		"age":    30,
		"rate":   1.5,
		"active": true,
		"tags":   []interface{}{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := col.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored record")
	}
	if len(got) != len(saved) {
		t.Errorf("field count mismatch: saved %d, got %d", len(saved), len(got))
	}
	if got["name"] != "Test" || got["active"] != true {
		t.Errorf("unexpected field values: %v", got)
	}
	if key, _ := ident.Normalize(got["age"]); key != "30" {
		t.Errorf("expected age 30, got %v", got["age"])
	}
	if rate, ok := got["rate"].(float64); !ok || rate != 1.5 {
		t.Errorf("expected rate 1.5, got %v (%T)", got["rate"], got["rate"])
	}
}

func testUpdate(t *testing.T, col collection.ICollection) {
	got, err := col.Update(1, collection.Record{"name": "nobody"})
	if err != nil {
		t.Fatalf("Update miss must not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for update miss, got %v", got)
	}

	if _, err := col.Save(collection.Record{"id": 1, "name": "a", "keep": "yes"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	merged, err := col.Update(1, collection.Record{"name": "b"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if merged["name"] != "b" || merged["keep"] != "yes" {
		t.Errorf("expected merged record, got %v", merged)
	}
}

func testDelete(t *testing.T, col collection.ICollection) {
	existed, err := col.Delete(1)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if existed {
		t.Errorf("Delete on empty collection must report false")
	}

	if _, err := col.Save(collection.Record{"id": 1, "name": "x"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	existed, err = col.Delete("1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Errorf("Delete must report true for an existing record")
	}
}

func testClearAndCount(t *testing.T, col collection.ICollection) {
	for i := 0; i < 6; i++ {
		if _, err := col.Add(collection.Record{"n": i}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	n, err := col.Count()
	if err != nil || n != 6 {
		t.Errorf("expected count 6, got %d (%v)", n, err)
	}

	if err := col.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	n, err = col.Count()
	if err != nil || n != 0 {
		t.Errorf("expected count 0 after clear, got %d (%v)", n, err)
	}
}

func testAddManyDistinctIDs(t *testing.T, col collection.ICollection) {
	recs := make([]collection.Record, 8)
	for i := range recs {
		recs[i] = collection.Record{"n": i}
	}
	inserted, err := col.AddMany(recs)
	if err != nil {
		t.Fatalf("AddMany failed: %v", err)
	}
	if len(inserted) != len(recs) {
		t.Fatalf("expected %d inserted records, got %d", len(recs), len(inserted))
	}

	seen := make(map[string]bool)
	for _, rec := range inserted {
		key, ok := ident.Normalize(rec["id"])
		if !ok {
			t.Fatalf("assigned identifier %v is not normalizable", rec["id"])
		}
		if seen[key] {
			t.Errorf("identifier %s assigned twice within one batch", key)
		}
		seen[key] = true
	}
}

func testDeleteMany(t *testing.T, col collection.ICollection) {
	for i := 1; i <= 5; i++ {
		if _, err := col.Save(collection.Record{"id": i, "n": i}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	deleted, err := col.DeleteMany([]interface{}{2, 4, 99})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deletions, got %d", deleted)
	}
	n, _ := col.Count()
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func testGetMany(t *testing.T, col collection.ICollection) {
	for i := 1; i <= 3; i++ {
		if _, err := col.Save(collection.Record{"id": i, "name": fmt.Sprintf("u%d", i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	recs, err := col.GetMany([]interface{}{3, 42, 1})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["name"] != "u3" || recs[1]["name"] != "u1" {
		t.Errorf("expected request order [u3 u1], got %v", recs)
	}
}

func testSearch(t *testing.T, col collection.ICollection) {
	_, err := col.AddMany([]collection.Record{
		{"id": 1, "name": "Alpha", "size": 3},
		{"id": 2, "name": "Beta", "size": 1},
		{"id": 3, "name": "Gamma", "size": 2},
	})
	if err != nil {
		t.Fatalf("AddMany failed: %v", err)
	}

	result, err := col.Search(collection.Record{}, search.Options{OrderBy: "size"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Total != 3 || len(result.Items) != 3 {
		t.Fatalf("expected 3 results, got %v", result)
	}
	if result.Items[0]["name"] != "Beta" {
		t.Errorf("expected ordering by size, got %v", result.Items)
	}

	filtered, err := col.Filter(collection.Record{"name": "beta"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Errorf("expected case-insensitive exact match, got %v", filtered)
	}
}

func testTryVariants(t *testing.T, col collection.ICollection) {
	if !col.TryAddMany([]collection.Record{{"n": 1}}) {
		t.Errorf("TryAddMany should succeed for a valid batch")
	}
	if col.TryAddMany([]collection.Record{{"id": struct{}{}}}) {
		t.Errorf("TryAddMany should report false for an invalid batch")
	}
	if col.TryUpdateMany([]collection.Record{{"no": "id"}}) {
		t.Errorf("TryUpdateMany should report false without identifiers")
	}
}
