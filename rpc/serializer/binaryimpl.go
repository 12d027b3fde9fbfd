package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/shelfdb/shelf/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and payload size
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasCollection uint32 = 1 << iota
	hasKey
	hasKeys
	hasValue
	hasValues
	hasCriteria
	hasLimit
	hasOffset
	hasOrderBy
	hasOrderDir
	hasMatchMode
	hasTTL
	hasOwner
	hasCount
	hasPage
	hasOk
	hasErr
	hasErrCode
	hasMeta
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (s binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer

	// Header: message type + flags. The flags word is fixed up at the end.
	buf.WriteByte(byte(msg.MsgType))
	flagsPos := buf.Len()
	var flags uint32
	writeUint32(&buf, 0)

	if msg.Collection != "" {
		flags |= hasCollection
		writeString(&buf, msg.Collection)
	}
	if msg.Key != "" {
		flags |= hasKey
		writeString(&buf, msg.Key)
	}
	if msg.Keys != nil {
		flags |= hasKeys
		writeUint32(&buf, uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			writeString(&buf, k)
		}
	}
	if msg.Value != nil {
		flags |= hasValue
		writeBytes(&buf, msg.Value)
	}
	if msg.Values != nil {
		flags |= hasValues
		writeUint32(&buf, uint32(len(msg.Values)))
		for _, v := range msg.Values {
			writeBytes(&buf, v)
		}
	}
	if msg.Criteria != nil {
		flags |= hasCriteria
		writeBytes(&buf, msg.Criteria)
	}
	if msg.Limit != 0 {
		flags |= hasLimit
		writeUint64(&buf, uint64(msg.Limit))
	}
	if msg.Offset != 0 {
		flags |= hasOffset
		writeUint64(&buf, uint64(msg.Offset))
	}
	if msg.OrderBy != "" {
		flags |= hasOrderBy
		writeString(&buf, msg.OrderBy)
	}
	if msg.OrderDir != 0 {
		flags |= hasOrderDir
		buf.WriteByte(msg.OrderDir)
	}
	if msg.MatchMode != 0 {
		flags |= hasMatchMode
		buf.WriteByte(msg.MatchMode)
	}
	if msg.TTLMillis != 0 {
		flags |= hasTTL
		writeUint64(&buf, msg.TTLMillis)
	}
	if msg.Owner != "" {
		flags |= hasOwner
		writeString(&buf, msg.Owner)
	}
	if msg.Count != 0 {
		flags |= hasCount
		writeUint64(&buf, uint64(msg.Count))
	}
	if msg.Page != 0 {
		flags |= hasPage
		writeUint64(&buf, uint64(msg.Page))
	}
	if msg.Ok {
		// Presence of the flag is the value, no payload byte needed
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		writeString(&buf, msg.Err)
	}
	if msg.ErrCode != 0 {
		flags |= hasErrCode
		writeUint64(&buf, msg.ErrCode)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		writeBytes(&buf, msg.Meta)
	}

	result := buf.Bytes()
	binary.BigEndian.PutUint32(result[flagsPos:flagsPos+4], flags)
	return result, nil
}

func (s binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 5 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint32(data[1:5])
	r := &reader{data: data, pos: 5}

	if flags&hasCollection != 0 {
		msg.Collection = r.readString()
	}
	if flags&hasKey != 0 {
		msg.Key = r.readString()
	}
	if flags&hasKeys != 0 {
		n := r.readUint32()
		if r.err == nil {
			msg.Keys = make([]string, n)
			for i := range msg.Keys {
				msg.Keys[i] = r.readString()
			}
		}
	}
	if flags&hasValue != 0 {
		msg.Value = r.readBytes()
	}
	if flags&hasValues != 0 {
		n := r.readUint32()
		if r.err == nil {
			msg.Values = make([][]byte, n)
			for i := range msg.Values {
				msg.Values[i] = r.readBytes()
			}
		}
	}
	if flags&hasCriteria != 0 {
		msg.Criteria = r.readBytes()
	}
	if flags&hasLimit != 0 {
		msg.Limit = int64(r.readUint64())
	}
	if flags&hasOffset != 0 {
		msg.Offset = int64(r.readUint64())
	}
	if flags&hasOrderBy != 0 {
		msg.OrderBy = r.readString()
	}
	if flags&hasOrderDir != 0 {
		msg.OrderDir = r.readByte()
	}
	if flags&hasMatchMode != 0 {
		msg.MatchMode = r.readByte()
	}
	if flags&hasTTL != 0 {
		msg.TTLMillis = r.readUint64()
	}
	if flags&hasOwner != 0 {
		msg.Owner = r.readString()
	}
	if flags&hasCount != 0 {
		msg.Count = int64(r.readUint64())
	}
	if flags&hasPage != 0 {
		msg.Page = int64(r.readUint64())
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasErr != 0 {
		msg.Err = r.readString()
	}
	if flags&hasErrCode != 0 {
		msg.ErrCode = r.readUint64()
	}
	if flags&hasMeta != 0 {
		msg.Meta = r.readBytes()
	}

	return r.err
}

// --------------------------------------------------------------------------
// Write Helpers
// --------------------------------------------------------------------------

func writeUint32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	buf.Write(scratch[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

// --------------------------------------------------------------------------
// Read Helpers
// --------------------------------------------------------------------------

// reader tracks a read position and sticks on the first error, so field
// reads can be chained without per-field error checks.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("data too short at offset %d", r.pos)
	}
}

func (r *reader) readByte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.data) {
		r.fail()
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) readUint32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) readUint64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *reader) readString() string {
	n := int(r.readUint32())
	if r.err != nil {
		return ""
	}
	if r.pos+n > len(r.data) {
		r.fail()
		return ""
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}

func (r *reader) readBytes() []byte {
	n := int(r.readUint32())
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.fail()
		return nil
	}
	// Copy out: the source buffer may be reused by the transport
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b
}
