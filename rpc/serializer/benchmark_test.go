package serializer

import (
	"testing"

	"github.com/shelfdb/shelf/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"KeyOnly": {
			MsgType:    common.MsgTColGet,
			Collection: "users",
			Key:        "42",
		},
		"SmallRecord": {
			MsgType:    common.MsgTColAdd,
			Collection: "users",
			Value:      []byte("v"),
		},
		"MediumRecord": {
			MsgType:    common.MsgTColAdd,
			Collection: "users",
			Value:      []byte("medium length encoded record for serialization testing"),
		},
		"LargeRecord": {
			MsgType:    common.MsgTColAdd,
			Collection: "users",
			Value:      make([]byte, 1024), // 1KB of data
		},
		"VeryLargeRecord": {
			MsgType:    common.MsgTColAdd,
			Collection: "users",
			Value:      make([]byte, 1024*16), // 16KB of data
		},
		"Batch": {
			MsgType:    common.MsgTColAddMany,
			Collection: "users",
			Values: [][]byte{
				make([]byte, 256), make([]byte, 256),
				make([]byte, 256), make([]byte, 256),
			},
		},
		"SearchRequest": {
			MsgType:    common.MsgTColSearch,
			Collection: "tickets",
			Criteria:   []byte("encoded-criteria-for-benchmarking"),
			Limit:      25,
			Offset:     50,
			OrderBy:    "created_at",
			OrderDir:   1,
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
			ErrCode: 1,
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(msg); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var result common.Message
					if err := serializer.Deserialize(data, &result); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkRoundTrip benchmarks a full serialize/deserialize cycle
func BenchmarkRoundTrip(b *testing.B) {
	msg := benchmarkMessages()["SearchRequest"]

	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			serializer := factory()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					b.Fatalf("Failed to deserialize: %v", err)
				}
			}
		})
	}
}
