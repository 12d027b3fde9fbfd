package serializer

import (
	"reflect"
	"testing"

	"github.com/shelfdb/shelf/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Binary":  NewBinarySerializer,
	"Msgpack": NewMsgpackSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Add request
		{
			MsgType:    common.MsgTColAdd,
			Collection: "users",
			Value:      []byte("encoded-record"),
		},

		// Get response with a record
		{
			MsgType: common.MsgTColGet,
			Value:   []byte("encoded-record"),
			Ok:      true,
		},

		// GetMany request
		{
			MsgType:    common.MsgTColGetMany,
			Collection: "users",
			Keys:       []string{"1", "2", "abc-def"},
		},

		// AddMany request with multiple records
		{
			MsgType:    common.MsgTColAddMany,
			Collection: "users",
			Values:     [][]byte{[]byte("rec-1"), []byte("rec-2"), []byte("rec-3")},
		},

		// Search request with all options
		{
			MsgType:    common.MsgTColSearch,
			Collection: "tickets",
			Criteria:   []byte("encoded-criteria"),
			Limit:      25,
			Offset:     50,
			OrderBy:    "created_at",
			OrderDir:   1,
			MatchMode:  2,
		},

		// Search response
		{
			MsgType: common.MsgTColSearch,
			Values:  [][]byte{[]byte("rec-1"), []byte("rec-2")},
			Count:   42,
			Page:    3,
			Limit:   25,
		},

		// Lock acquire round trip
		{
			MsgType:   common.MsgTLCKAcquire,
			Key:       "resource-1",
			TTLMillis: 30000,
		},
		{
			MsgType: common.MsgTLCKAcquire,
			Ok:      true,
			Owner:   "7b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
		},

		// Error response with a return code
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
			ErrCode: 5,
		},

		// Message with meta payload
		{
			MsgType: common.MsgTCustom,
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinaryRejectsTruncatedData tests that the binary deserializer fails
// cleanly instead of panicking on truncated input
func TestBinaryRejectsTruncatedData(t *testing.T) {
	serializer := NewBinarySerializer()

	full, err := serializer.Serialize(common.Message{
		MsgType:    common.MsgTColAddMany,
		Collection: "users",
		Values:     [][]byte{[]byte("rec-1"), []byte("rec-2")},
	})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	for cut := 0; cut < len(full); cut++ {
		var msg common.Message
		if err := serializer.Deserialize(full[:cut], &msg); err == nil {
			t.Errorf("Expected error for input truncated to %d bytes, got none", cut)
		}
	}
}
