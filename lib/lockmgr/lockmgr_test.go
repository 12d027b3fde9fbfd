package lockmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/engines/hazel"
	"github.com/shelfdb/shelf/lib/manager"
)

func newTestLockManager(t *testing.T) ILockManager {
	t.Helper()
	mgr, err := manager.New(manager.Config{
		Name:        "locks-test",
		Collections: []engine.CollectionSpec{{Name: "locks", KeyField: "id"}},
		Engine:      hazel.Factory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown() })
	return New(mgr, "locks")
}

func TestAcquireAndRelease(t *testing.T) {
	lm := newTestLockManager(t)

	ok, owner, err := lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, owner)

	// second acquire on a held lock fails
	ok, _, err = lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different resource is independent
	ok, _, err = lm.AcquireLock("resource:2", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err := lm.ReleaseLock("resource:1", owner)
	require.NoError(t, err)
	assert.True(t, released)

	ok, _, err = lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)
	assert.True(t, ok, "released lock must be acquirable again")
}

func TestReleaseVerifiesOwnership(t *testing.T) {
	lm := newTestLockManager(t)

	_, owner, err := lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)

	released, err := lm.ReleaseLock("resource:1", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)

	// still held
	ok, _, err := lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err = lm.ReleaseLock("resource:1", owner)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestReleaseMissingLockSucceeds(t *testing.T) {
	lm := newTestLockManager(t)

	released, err := lm.ReleaseLock("never-acquired", "whoever")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	lm := newTestLockManager(t)

	ok, _, err := lm.AcquireLock("resource:1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, owner, err := lm.AcquireLock("resource:1", 0)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable")
	assert.NotEmpty(t, owner)
}

func TestExclusiveUnderContention(t *testing.T) {
	lm := newTestLockManager(t)

	var wg sync.WaitGroup
	wins := 0
	var mu sync.Mutex

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := lm.AcquireLock("contended", 0)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one contender may win the lock")
}
