package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/notify"
	"github.com/shelfdb/shelf/lib/search"
)

func seedUsers(t *testing.T, col collection.ICollection) {
	t.Helper()
	_, err := col.AddMany([]collection.Record{
		{"id": 1, "name": "Alice", "status": "in-progress", "age": 30},
		{"id": 2, "name": "Bob", "status": "done", "age": 25},
		{"id": 3, "name": "Carol", "status": "in-progress", "age": 35},
		{"id": 4, "name": "Dave", "status": "on-hold", "age": 28},
	})
	require.NoError(t, err)
}

func TestAddAssignsIdentifier(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	rec, err := col.Add(collection.Record{"name": "Alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec["id"])

	rec, err = col.Add(collection.Record{"name": "Bob"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec["id"])
}

func TestAddFallsBackToOpaqueIDs(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	// a non-integer identifier in the set switches the policy
	_, err = col.Save(collection.Record{"id": "user-a", "name": "A"})
	require.NoError(t, err)

	rec, err := col.Add(collection.Record{"name": "B"})
	require.NoError(t, err)
	id, ok := rec["id"].(string)
	require.True(t, ok, "expected opaque string identifier, got %T", rec["id"])
	assert.NotEmpty(t, id)

	got, err := col.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "B", got["name"])
}

func TestAddWithExistingIDOverwrites(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	_, err = col.Add(collection.Record{"id": 1, "name": "Alice"})
	require.NoError(t, err)
	_, err = col.Add(collection.Record{"id": "1", "name": "Replaced"})
	require.NoError(t, err)

	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "numeric string and number must collide to the same key")

	got, err := col.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "Replaced", got["name"])
}

func TestInvalidIdentifier(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	_, err = col.Get(struct{}{})
	assert.Equal(t, collection.RetCInvalidIdentifier, collection.CodeOf(err))

	_, err = col.Save(collection.Record{"id": []int{1}, "name": "bad"})
	assert.Equal(t, collection.RetCInvalidIdentifier, collection.CodeOf(err))
}

func TestGetManyPreservesOrderSkipsMisses(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	recs, err := col.GetMany([]interface{}{3, 99, "1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Carol", recs[0]["name"])
	assert.Equal(t, "Alice", recs[1]["name"])
}

func TestUpdateManySkipsMissing(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	updated, err := col.UpdateMany([]collection.Record{
		{"id": 1, "status": "done"},
		{"id": 99, "status": "done"},
		{"id": 4, "status": "done"},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, "Alice", updated[0]["name"])
	assert.Equal(t, "done", updated[0]["status"])
}

func TestClearRemovesEverything(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	require.NoError(t, col.Clear())
	n, err := col.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTryVariantsDegradeToBool(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	assert.True(t, col.TryAddMany([]collection.Record{{"name": "ok"}}))
	assert.False(t, col.TryAddMany([]collection.Record{{"id": struct{}{}}}))
	assert.False(t, col.TryUpdateMany([]collection.Record{{"name": "no id"}}))
	assert.True(t, col.TryDeleteMany([]interface{}{12345}))
	assert.False(t, col.TryDeleteMany([]interface{}{struct{}{}}))
}

// --------------------------------------------------------------------------
// Search, Filter, Stats
// --------------------------------------------------------------------------

func TestSearch(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	// "in-progress" is a status token: exact match despite the separator
	result, err := col.Search(collection.Record{"status": "in-progress"}, search.Options{
		OrderBy:        "age",
		OrderDirection: search.Descending,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Carol", result.Items[0]["name"])
	assert.Equal(t, "Alice", result.Items[1]["name"])

	// pagination
	result, err = col.Search(collection.Record{}, search.Options{
		OrderBy: "age",
		Limit:   2,
		Offset:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Page)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Alice", result.Items[0]["name"])

	// explicit partial match
	result, err = col.Search(collection.Record{"name": "ali"}, search.Options{Mode: search.MatchPartial})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestFilter(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	recs, err := col.Filter(collection.Record{"status": "done"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Bob", recs[0]["name"])
}

func TestStats(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)
	seedUsers(t, col)

	stats, err := col.Stats()
	require.NoError(t, err)
	assert.Equal(t, "users", stats.Collection)
	assert.Equal(t, 4, stats.Count)
	assert.Greater(t, stats.TotalBytes, int64(0))
	assert.Greater(t, stats.AvgBytes, 0)
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordedEvents) handler(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) waitFor(t *testing.T, n int) []notify.Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]notify.Event(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("expected %d events, got %d", n, len(r.events))
	return nil
}

func TestMutationsEmitEvents(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	rec := &recordedEvents{}
	mgr.Subscribe("users", notify.KindAll, rec.handler)

	_, err = col.Add(collection.Record{"id": 1, "name": "Alice"})
	require.NoError(t, err)
	_, err = col.Update(1, collection.Record{"name": "Updated"})
	require.NoError(t, err)
	_, err = col.Delete(1)
	require.NoError(t, err)
	require.NoError(t, col.Clear())

	events := rec.waitFor(t, 4)
	assert.Equal(t, notify.KindAdd, events[0].Kind)
	assert.Equal(t, "Alice", events[0].Data["name"])
	assert.Equal(t, notify.KindUpdate, events[1].Kind)
	assert.Equal(t, notify.KindDelete, events[2].Kind)
	assert.Equal(t, "Alice", events[2].Data["name"], "delete event carries the record as it was")
	assert.Equal(t, notify.KindClear, events[3].Kind)
	for _, e := range events {
		assert.Equal(t, "users", e.Collection)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestBatchEmitsOneEventPerRecord(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	rec := &recordedEvents{}
	mgr.Subscribe("users", notify.KindAdd, rec.handler)

	_, err = col.AddMany([]collection.Record{{"n": 1}, {"n": 2}, {"n": 3}})
	require.NoError(t, err)

	rec.waitFor(t, 3)
}

func TestAbortedOperationEmitsNothing(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	rec := &recordedEvents{}
	mgr.Subscribe("users", notify.KindAll, rec.handler)

	// the invalid identifier fails the batch, so nothing commits
	assert.False(t, col.TryAddMany([]collection.Record{{"n": 1}, {"id": struct{}{}}}))

	time.Sleep(20 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
}

// --------------------------------------------------------------------------
// Update event data for the delete path of Update
// --------------------------------------------------------------------------

func TestUpdateEventCarriesMergedRecord(t *testing.T) {
	mgr := newTestManager(t, "users")
	col, err := mgr.Collection("users")
	require.NoError(t, err)

	rec := &recordedEvents{}
	mgr.Subscribe("users", notify.KindUpdate, rec.handler)

	_, err = col.Save(collection.Record{"id": 1, "name": "Alice", "role": "admin"})
	require.NoError(t, err)
	_, err = col.Update(1, collection.Record{"name": "Updated"})
	require.NoError(t, err)

	events := rec.waitFor(t, 1)
	assert.Equal(t, "Updated", events[0].Data["name"])
	assert.Equal(t, "admin", events[0].Data["role"])
}
