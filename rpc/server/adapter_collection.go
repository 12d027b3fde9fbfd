package server

import (
	"fmt"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/search"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/vmihailenco/msgpack/v5"
)

// NewCollectionServerAdapter creates the adapter dispatching collection
// operations onto the target database.
func NewCollectionServerAdapter() IRPCServerAdapter {
	return &collectionServerAdapterImpl{}
}

type collectionServerAdapterImpl struct{}

func (adapter *collectionServerAdapterImpl) Handle(req *common.Message, db *Database) *common.Message {
	// Check for nil database
	if db == nil {
		return common.NewErrorResponse("handler: database is nil")
	}

	col, err := db.Collection(req.Collection)
	if err != nil {
		return common.NewAckResponse(req.MsgType, err)
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTColAdd, common.MsgTColSave:
		rec, err := collection.DecodeRecord(req.Value)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		var out collection.Record
		if req.MsgType == common.MsgTColAdd {
			out, err = col.Add(rec)
		} else {
			out, err = col.Save(rec)
		}
		return recordResponse(req.MsgType, out, err)

	case common.MsgTColGet:
		rec, err := col.Get(req.Key)
		return recordResponse(req.MsgType, rec, err)

	case common.MsgTColGetMany:
		recs, err := col.GetMany(toIDs(req.Keys))
		return recordsResponse(req.MsgType, recs, err)

	case common.MsgTColGetAll:
		recs, err := col.GetAll()
		return recordsResponse(req.MsgType, recs, err)

	case common.MsgTColUpdate:
		changes, err := collection.DecodeRecord(req.Value)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		rec, err := col.Update(req.Key, changes)
		return recordResponse(req.MsgType, rec, err)

	case common.MsgTColDelete:
		ok, err := col.Delete(req.Key)
		return common.NewBoolResponse(req.MsgType, ok, err)

	case common.MsgTColClear:
		return common.NewAckResponse(req.MsgType, col.Clear())

	case common.MsgTColCount:
		n, err := col.Count()
		return common.NewCountResponse(req.MsgType, int64(n), err)

	case common.MsgTColAddMany:
		recs, err := decodeRecords(req.Values)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		out, err := col.AddMany(recs)
		return recordsResponse(req.MsgType, out, err)

	case common.MsgTColUpdateMany:
		recs, err := decodeRecords(req.Values)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		out, err := col.UpdateMany(recs)
		return recordsResponse(req.MsgType, out, err)

	case common.MsgTColDeleteMany:
		n, err := col.DeleteMany(toIDs(req.Keys))
		return common.NewCountResponse(req.MsgType, int64(n), err)

	case common.MsgTColSearch:
		criteria, err := decodeCriteria(req.Criteria)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		result, err := col.Search(criteria, search.Options{
			Limit:          int(req.Limit),
			Offset:         int(req.Offset),
			OrderBy:        req.OrderBy,
			OrderDirection: search.Direction(req.OrderDir),
			Mode:           search.MatchMode(req.MatchMode),
		})
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		encoded, err := encodeRecords(result.Items)
		return common.NewSearchResponse(encoded, int64(result.Total), int64(result.Page), int64(result.Limit), err)

	case common.MsgTColFilter:
		criteria, err := decodeCriteria(req.Criteria)
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		recs, err := col.Filter(criteria)
		return recordsResponse(req.MsgType, recs, err)

	case common.MsgTColStats:
		stats, err := col.Stats()
		if err != nil {
			return common.NewAckResponse(req.MsgType, err)
		}
		blob, err := msgpack.Marshal(stats)
		return common.NewRecordResponse(req.MsgType, blob, err == nil, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC CollectionAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// recordResponse encodes a single (possibly nil) record into a response.
func recordResponse(t common.MessageType, rec collection.Record, opErr error) *common.Message {
	if opErr != nil || rec == nil {
		return common.NewRecordResponse(t, nil, false, opErr)
	}
	blob, err := collection.EncodeRecord(rec)
	if err != nil {
		return common.NewAckResponse(t, err)
	}
	return common.NewRecordResponse(t, blob, true, nil)
}

// recordsResponse encodes a record slice into a response.
func recordsResponse(t common.MessageType, recs []collection.Record, opErr error) *common.Message {
	if opErr != nil {
		return common.NewRecordsResponse(t, nil, opErr)
	}
	encoded, err := encodeRecords(recs)
	return common.NewRecordsResponse(t, encoded, err)
}

func encodeRecords(recs []collection.Record) ([][]byte, error) {
	out := make([][]byte, len(recs))
	for i, rec := range recs {
		blob, err := collection.EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out[i] = blob
	}
	return out, nil
}

func decodeRecords(blobs [][]byte) ([]collection.Record, error) {
	out := make([]collection.Record, len(blobs))
	for i, blob := range blobs {
		rec, err := collection.DecodeRecord(blob)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// decodeCriteria treats a missing criteria payload as match-all.
func decodeCriteria(blob []byte) (collection.Record, error) {
	if len(blob) == 0 {
		return collection.Record{}, nil
	}
	return collection.DecodeRecord(blob)
}

// toIDs widens normalized string keys to the identifier slice the
// collection interface expects.
func toIDs(keys []string) []interface{} {
	ids := make([]interface{}, len(keys))
	for i, k := range keys {
		ids[i] = k
	}
	return ids
}
