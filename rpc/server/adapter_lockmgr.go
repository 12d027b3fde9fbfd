package server

import (
	"fmt"
	"time"

	"github.com/shelfdb/shelf/rpc/common"
)

// NewLockManagerServerAdapter creates the adapter dispatching lock
// operations onto the target database's lock manager.
func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapterImpl{}
}

type lockMgrServerAdapterImpl struct{}

func (adapter *lockMgrServerAdapterImpl) Handle(req *common.Message, db *Database) (resp *common.Message) {
	// Check for nil database
	if db == nil {
		return common.NewErrorResponse("handler: database is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTLCKAcquire:
		ttl := time.Duration(req.TTLMillis) * time.Millisecond
		ok, ownerID, err := db.Locks.AcquireLock(req.Key, ttl)
		return common.NewAcquireResponse(ok, ownerID, err)
	case common.MsgTLCKRelease:
		ok, err := db.Locks.ReleaseLock(req.Key, req.Owner)
		return common.NewBoolResponse(common.MsgTLCKRelease, ok, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
