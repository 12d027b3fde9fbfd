package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. Records and criteria
// travel as encoded bytes so the wire format stays independent of the chosen
// serializer.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"msg_type"`

	// Routing
	Collection string `json:"collection,omitempty" msgpack:"collection,omitempty"` // Target collection, empty for lock operations

	// Identifier fields (normalized string form)
	Key  string   `json:"key,omitempty" msgpack:"key,omitempty"`   // Used for: Get, Update, Delete, Acquire, Release
	Keys []string `json:"keys,omitempty" msgpack:"keys,omitempty"` // Used for: GetMany, DeleteMany

	// Payload fields
	Value    []byte   `json:"value,omitempty" msgpack:"value,omitempty"`       // Single encoded record or stats blob
	Values   [][]byte `json:"values,omitempty" msgpack:"values,omitempty"`     // Encoded records for batch requests and list responses
	Criteria []byte   `json:"criteria,omitempty" msgpack:"criteria,omitempty"` // Encoded criteria record for Search, Filter

	// Search options
	Limit     int64  `json:"limit,omitempty" msgpack:"limit,omitempty"`
	Offset    int64  `json:"offset,omitempty" msgpack:"offset,omitempty"`
	OrderBy   string `json:"order_by,omitempty" msgpack:"order_by,omitempty"`
	OrderDir  uint8  `json:"order_dir,omitempty" msgpack:"order_dir,omitempty"`
	MatchMode uint8  `json:"match_mode,omitempty" msgpack:"match_mode,omitempty"`

	// Lock fields
	TTLMillis uint64 `json:"ttl_millis,omitempty" msgpack:"ttl_millis,omitempty"` // Used for: Acquire
	Owner     string `json:"owner,omitempty" msgpack:"owner,omitempty"`           // Used for: Acquire (response), Release (request)

	// Response only fields
	Count int64  `json:"count,omitempty" msgpack:"count,omitempty"` // Used for: Count, DeleteMany, Search (total)
	Page  int64  `json:"page,omitempty" msgpack:"page,omitempty"`   // Used for: Search
	Ok    bool   `json:"ok,omitempty" msgpack:"ok,omitempty"`       // Used for: Delete, Acquire, Release responses
	Err   string `json:"err,omitempty" msgpack:"err,omitempty"`     // Empty if no error, otherwise contains the error message
	// ErrCode carries the collection.RetCode of a failed operation so the
	// client can rebuild a typed error.
	ErrCode uint64 `json:"err_code,omitempty" msgpack:"err_code,omitempty"`

	// Meta information
	Meta []byte `json:"meta,omitempty" msgpack:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

// NewRecordRequest creates a request carrying one encoded record
// (Add, Save)
func NewRecordRequest(t MessageType, col string, rec []byte) *Message {
	return &Message{MsgType: t, Collection: col, Value: rec}
}

// NewRecordsRequest creates a request carrying multiple encoded records
// (AddMany, UpdateMany)
func NewRecordsRequest(t MessageType, col string, recs [][]byte) *Message {
	return &Message{MsgType: t, Collection: col, Values: recs}
}

// NewKeyRequest creates a request addressing a single record by key
// (Get, Delete)
func NewKeyRequest(t MessageType, col string, key string) *Message {
	return &Message{MsgType: t, Collection: col, Key: key}
}

// NewKeysRequest creates a request addressing multiple records by key
// (GetMany, DeleteMany)
func NewKeysRequest(t MessageType, col string, keys []string) *Message {
	return &Message{MsgType: t, Collection: col, Keys: keys}
}

// NewUpdateRequest creates an Update request with the changes as an
// encoded record
func NewUpdateRequest(col string, key string, changes []byte) *Message {
	return &Message{MsgType: MsgTColUpdate, Collection: col, Key: key, Value: changes}
}

// NewCollectionRequest creates a request without a payload
// (GetAll, Clear, Count, Stats)
func NewCollectionRequest(t MessageType, col string) *Message {
	return &Message{MsgType: t, Collection: col}
}

// NewSearchRequest creates a Search request with encoded criteria and
// search options. Filter requests use the same shape without options.
func NewSearchRequest(col string, criteria []byte, limit, offset int64, orderBy string, orderDir, matchMode uint8) *Message {
	return &Message{
		MsgType:    MsgTColSearch,
		Collection: col,
		Criteria:   criteria,
		Limit:      limit,
		Offset:     offset,
		OrderBy:    orderBy,
		OrderDir:   orderDir,
		MatchMode:  matchMode,
	}
}

// NewFilterRequest creates a Filter request with encoded criteria
func NewFilterRequest(col string, criteria []byte, matchMode uint8) *Message {
	return &Message{MsgType: MsgTColFilter, Collection: col, Criteria: criteria, MatchMode: matchMode}
}

// NewAcquireRequest creates a lock Acquire request
func NewAcquireRequest(resource string, ttlMillis uint64) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: resource, TTLMillis: ttlMillis}
}

// NewReleaseRequest creates a lock Release request
func NewReleaseRequest(resource string, ownerID string) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: resource, Owner: ownerID}
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// NewAckResponse creates a response carrying only the outcome
// (Clear and the error path of every operation)
func NewAckResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	msg.setErr(err)
	return msg
}

// NewRecordResponse creates a response carrying one encoded record. The ok
// flag distinguishes a soft miss (nil record) from a present record.
func NewRecordResponse(t MessageType, rec []byte, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Value: rec, Ok: ok}
	msg.setErr(err)
	return msg
}

// NewRecordsResponse creates a response carrying multiple encoded records
func NewRecordsResponse(t MessageType, recs [][]byte, err error) *Message {
	msg := &Message{MsgType: t, Values: recs}
	msg.setErr(err)
	return msg
}

// NewCountResponse creates a response carrying a count
// (Count, DeleteMany)
func NewCountResponse(t MessageType, count int64, err error) *Message {
	msg := &Message{MsgType: t, Count: count}
	msg.setErr(err)
	return msg
}

// NewBoolResponse creates a response carrying a boolean outcome
// (Delete, Release)
func NewBoolResponse(t MessageType, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Ok: ok}
	msg.setErr(err)
	return msg
}

// NewSearchResponse creates a Search response with the page of encoded
// records plus the total match count
func NewSearchResponse(recs [][]byte, total, page, limit int64, err error) *Message {
	msg := &Message{MsgType: MsgTColSearch, Values: recs, Count: total, Page: page, Limit: limit}
	msg.setErr(err)
	return msg
}

// NewAcquireResponse creates a lock Acquire response
func NewAcquireResponse(ok bool, ownerID string, err error) *Message {
	msg := &Message{MsgType: MsgTLCKAcquire, Ok: ok, Owner: ownerID}
	msg.setErr(err)
	return msg
}

// NewErrorResponse creates a generic Error response
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// setErr records an error (and its return code if it carries one) on a
// response message.
func (m *Message) setErr(err error) {
	if err == nil {
		return
	}
	m.Err = err.Error()
	m.ErrCode = RetCodeOf(err)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTColAdd:        "add",
	MsgTColSave:       "save",
	MsgTColGet:        "get",
	MsgTColGetMany:    "getMany",
	MsgTColGetAll:     "getAll",
	MsgTColUpdate:     "update",
	MsgTColDelete:     "delete",
	MsgTColClear:      "clear",
	MsgTColCount:      "count",
	MsgTColAddMany:    "addMany",
	MsgTColUpdateMany: "updateMany",
	MsgTColDeleteMany: "deleteMany",
	MsgTColSearch:     "search",
	MsgTColFilter:     "filter",
	MsgTColStats:      "stats",
	MsgTLCKAcquire:    "acquire",
	MsgTLCKRelease:    "release",
	MsgTCustom:        "custom",
}

var msgTypeValues = func() map[string]MessageType {
	m := make(map[string]MessageType, len(msgTypeNames))
	for t, name := range msgTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsLockOp reports whether the message type belongs to the lock manager.
func (t MessageType) IsLockOp() bool {
	return t == MsgTLCKAcquire || t == MsgTLCKRelease
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := msgTypeValues[s]
	if !ok {
		return fmt.Errorf("unknown message type: %s", s)
	}
	*t = v
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ICollection operations

	MsgTColAdd        // Insert a record
	MsgTColSave       // Insert or replace a record
	MsgTColGet        // Fetch a record by identifier
	MsgTColGetMany    // Fetch multiple records by identifier
	MsgTColGetAll     // Fetch every record of a collection
	MsgTColUpdate     // Merge changes into a record
	MsgTColDelete     // Remove a record
	MsgTColClear      // Remove every record of a collection
	MsgTColCount      // Count the records of a collection
	MsgTColAddMany    // Insert multiple records in one transaction
	MsgTColUpdateMany // Merge multiple change sets in one transaction
	MsgTColDeleteMany // Remove multiple records in one transaction
	MsgTColSearch     // Criteria search with ordering and pagination
	MsgTColFilter     // Criteria filter without ordering or pagination
	MsgTColStats      // Record count and size distribution

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// Custom operations

	MsgTCustom // Custom operation type
)
