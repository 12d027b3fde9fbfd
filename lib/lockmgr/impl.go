package lockmgr

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/manager"
)

// Lock record fields
const (
	fieldOwner     = "owner"
	fieldExpiresAt = "expires_at" // unix nanoseconds, 0 = never
)

type lockMgrImpl struct {
	mu   sync.Mutex
	mgr  *manager.Manager
	coll string
}

// New creates a lock manager over a declared collection of the store.
func New(mgr *manager.Manager, collectionName string) ILockManager {
	return &lockMgrImpl{
		mgr:  mgr,
		coll: collectionName,
	}
}

func (lm *lockMgrImpl) AcquireLock(resource string, ttl time.Duration) (bool, string, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ownerID := uuid.NewString()
	now := time.Now()

	acquired, err := lm.mgr.Txn(lm.coll, engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		raw, found, err := h.Get(resource)
		if err != nil {
			return nil, err
		}
		if found {
			rec, err := collection.DecodeRecord(raw)
			if err != nil {
				return nil, err
			}
			if !lockExpired(rec, now) {
				return false, nil
			}
			// expired lock, take it over
		}

		var expiresAt int64
		if ttl > 0 {
			expiresAt = now.Add(ttl).UnixNano()
		}
		encoded, err := collection.EncodeRecord(collection.Record{
			"id":           resource,
			fieldOwner:     ownerID,
			fieldExpiresAt: expiresAt,
		})
		if err != nil {
			return nil, err
		}
		if err := h.Put(resource, encoded); err != nil {
			return nil, err
		}
		return true, nil
	})
	if err != nil {
		return false, "", err
	}
	if !acquired.(bool) {
		return false, "", nil
	}
	return true, ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(resource string, ownerID string) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	released, err := lm.mgr.Txn(lm.coll, engine.ModeReadWrite, func(h engine.Handle) (interface{}, error) {
		raw, found, err := h.Get(resource)
		if err != nil {
			return nil, err
		}
		if !found {
			return true, nil
		}

		rec, err := collection.DecodeRecord(raw)
		if err != nil {
			return nil, err
		}
		if owner, _ := rec[fieldOwner].(string); owner != ownerID {
			// held by someone else; an expired foreign lock is not
			// ours to delete either
			return false, nil
		}
		if err := h.Delete(resource); err != nil {
			return nil, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return released.(bool), nil
}

// lockExpired reports whether a lock record's expiry has passed.
func lockExpired(rec collection.Record, now time.Time) bool {
	expiresAt, ok := asInt64(rec[fieldExpiresAt])
	if !ok || expiresAt == 0 {
		return false
	}
	return now.UnixNano() >= expiresAt
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
