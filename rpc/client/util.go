package client

import (
	"fmt"

	"github.com/shelfdb/shelf/lib/logger"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/transport"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores all data needed for an implementation of an RPC
// client. Used by the collection and lock manager clients with composition.
type rpcClientAdapter struct {
	dbID       uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and returns the decoded response.
// It checks whether the response is an error response (rebuilding the typed
// error that the server recorded) and whether the response type matches the
// request type.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := a.transport.Send(a.dbID, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc client: failed to deserialize response: %w", err)
	}

	// Check if the response carries an error
	if err := common.WireError(resp); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc client: unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
