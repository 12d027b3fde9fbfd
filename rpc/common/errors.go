package common

import (
	"github.com/shelfdb/shelf/lib/collection"
)

// --------------------------------------------------------------------------
// Error <-> Wire Conversion
// --------------------------------------------------------------------------

// RetCodeOf extracts the return code of an error for transport. Errors that
// carry no code map to RetCInternalError.
func RetCodeOf(err error) uint64 {
	return uint64(collection.CodeOf(err))
}

// WireError rebuilds the typed error of a response message. It returns nil
// when the message carries no error.
func WireError(msg *Message) error {
	if msg.Err == "" && msg.MsgType != MsgTError {
		return nil
	}
	code := collection.RetCode(msg.ErrCode)
	if code == collection.RetCSuccess {
		code = collection.RetCInternalError
	}
	return collection.NewError(code, msg.Err)
}
