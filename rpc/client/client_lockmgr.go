package client

import (
	"time"

	"github.com/shelfdb/shelf/lib/lockmgr"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/transport"
)

// NewRPCLockMgr creates a remote ILockManager bound to one served database.
// The function connects the given transport before returning.
func NewRPCLockMgr(
	dbID uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	l := rpcLockMgr{
		rpcClientAdapter{
			dbID:       dbID,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	return &l, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
}

var _ lockmgr.ILockManager = (*rpcLockMgr)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (l *rpcLockMgr) AcquireLock(resource string, ttl time.Duration) (bool, string, error) {
	req := common.NewAcquireRequest(resource, uint64(ttl/time.Millisecond))
	resp, err := l.invoke(req)
	if err != nil {
		return false, "", err
	}
	return resp.Ok, resp.Owner, nil
}

func (l *rpcLockMgr) ReleaseLock(resource string, ownerID string) (bool, error) {
	req := common.NewReleaseRequest(resource, ownerID)
	resp, err := l.invoke(req)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}
