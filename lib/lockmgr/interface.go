package lockmgr

import "time"

// ILockManager defines the interface for an advisory lock provider.
type ILockManager interface {
	// AcquireLock tries to take the lock for a resource. A ttl of zero
	// means the lock never expires on its own. It returns whether the
	// lock was taken and, if so, the owner ID proving ownership.
	AcquireLock(resource string, ttl time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lock for a resource, verifying ownership
	// first. It also reports true when no lock exists.
	ReleaseLock(resource string, ownerID string) (ok bool, err error)
}
