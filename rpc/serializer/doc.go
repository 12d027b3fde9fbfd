// Package serializer provides pluggable wire encodings for RPC messages.
// Every implementation encodes the same common.Message structure; client
// and server must agree on the serializer in use.
//
// Available implementations:
//
//   - JSON: human-readable, useful for debugging and curl-level testing
//   - GOB: Go-native binary encoding
//   - Msgpack: compact cross-language encoding, shares the codec of the
//     storage layer
//   - Binary: custom flag-based binary format, the fastest and smallest
//     of the four
//
// The binary format starts with one byte of message type and a 32-bit
// field presence mask; only present fields occupy payload bytes. Strings
// and byte slices are length-prefixed with 32-bit big-endian lengths.
package serializer
