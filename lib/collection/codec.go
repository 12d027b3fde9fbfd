package collection

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Records cross the engine boundary as msgpack bytes. Msgpack keeps numeric
// field types intact (unlike JSON, which would turn every number into a
// float64) and is compact enough to double as the wire format of the RPC
// layer.

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, NewError(RetCInvalidOperation, "cannot encode nil record")
	}
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, WrapError(RetCInternalError, "failed to encode record", err)
	}
	return b, nil
}

// DecodeRecord deserializes a stored record. Loose interface decoding keeps
// dynamic field types predictable: integers come back as int64, floats as
// float64, whatever width they were written with.
func DecodeRecord(b []byte) (Record, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, WrapError(RetCInternalError, fmt.Sprintf("failed to decode record (%d bytes)", len(b)), err)
	}
	return rec, nil
}

// Merge returns a copy of base with every field from changes applied on top.
// Neither input is mutated.
func Merge(base, changes Record) Record {
	merged := make(Record, len(base)+len(changes))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of a record.
func Clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
