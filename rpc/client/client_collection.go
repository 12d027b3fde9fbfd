package client

import (
	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/ident"
	"github.com/shelfdb/shelf/lib/search"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/transport"
	"github.com/vmihailenco/msgpack/v5"
)

// NewRPCCollection creates a remote ICollection bound to one collection of
// one served database. An empty collection name addresses the database's
// default collection.
// The function connects the given transport before returning.
func NewRPCCollection(
	dbID uint64,
	collectionName string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (collection.ICollection, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	c := rpcCollection{
		rpcClientAdapter: rpcClientAdapter{
			dbID:       dbID,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		name: collectionName,
	}

	return &c, nil
}

type rpcCollection struct {
	rpcClientAdapter
	name string
}

var _ collection.ICollection = (*rpcCollection)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see the collection package in interface.go)
// --------------------------------------------------------------------------

func (c *rpcCollection) Add(rec collection.Record) (collection.Record, error) {
	return c.sendRecord(common.MsgTColAdd, rec)
}

func (c *rpcCollection) Save(rec collection.Record) (collection.Record, error) {
	return c.sendRecord(common.MsgTColSave, rec)
}

func (c *rpcCollection) Get(id interface{}) (collection.Record, error) {
	key, err := c.key(id)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(common.NewKeyRequest(common.MsgTColGet, c.name, key))
	if err != nil {
		return nil, err
	}
	return decodeOptRecord(resp)
}

func (c *rpcCollection) GetMany(ids []interface{}) ([]collection.Record, error) {
	keys, err := c.keys(ids)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(common.NewKeysRequest(common.MsgTColGetMany, c.name, keys))
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Values)
}

func (c *rpcCollection) GetAll() ([]collection.Record, error) {
	resp, err := c.invoke(common.NewCollectionRequest(common.MsgTColGetAll, c.name))
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Values)
}

func (c *rpcCollection) Update(id interface{}, changes collection.Record) (collection.Record, error) {
	key, err := c.key(id)
	if err != nil {
		return nil, err
	}
	blob, err := collection.EncodeRecord(changes)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(common.NewUpdateRequest(c.name, key, blob))
	if err != nil {
		return nil, err
	}
	return decodeOptRecord(resp)
}

func (c *rpcCollection) Delete(id interface{}) (bool, error) {
	key, err := c.key(id)
	if err != nil {
		return false, err
	}
	resp, err := c.invoke(common.NewKeyRequest(common.MsgTColDelete, c.name, key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcCollection) Clear() error {
	_, err := c.invoke(common.NewCollectionRequest(common.MsgTColClear, c.name))
	return err
}

func (c *rpcCollection) Count() (int, error) {
	resp, err := c.invoke(common.NewCollectionRequest(common.MsgTColCount, c.name))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (c *rpcCollection) AddMany(recs []collection.Record) ([]collection.Record, error) {
	return c.sendRecords(common.MsgTColAddMany, recs)
}

func (c *rpcCollection) UpdateMany(recs []collection.Record) ([]collection.Record, error) {
	return c.sendRecords(common.MsgTColUpdateMany, recs)
}

func (c *rpcCollection) DeleteMany(ids []interface{}) (int, error) {
	keys, err := c.keys(ids)
	if err != nil {
		return 0, err
	}
	resp, err := c.invoke(common.NewKeysRequest(common.MsgTColDeleteMany, c.name, keys))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (c *rpcCollection) TryAddMany(recs []collection.Record) bool {
	if _, err := c.AddMany(recs); err != nil {
		Logger.Warningf("TryAddMany on %q failed: %v", c.name, err)
		return false
	}
	return true
}

func (c *rpcCollection) TryUpdateMany(recs []collection.Record) bool {
	if _, err := c.UpdateMany(recs); err != nil {
		Logger.Warningf("TryUpdateMany on %q failed: %v", c.name, err)
		return false
	}
	return true
}

func (c *rpcCollection) TryDeleteMany(ids []interface{}) bool {
	if _, err := c.DeleteMany(ids); err != nil {
		Logger.Warningf("TryDeleteMany on %q failed: %v", c.name, err)
		return false
	}
	return true
}

func (c *rpcCollection) Search(criteria collection.Record, opts search.Options) (search.Result, error) {
	blob, err := encodeCriteria(criteria)
	if err != nil {
		return search.Result{}, err
	}
	resp, err := c.invoke(common.NewSearchRequest(
		c.name, blob,
		int64(opts.Limit), int64(opts.Offset),
		opts.OrderBy, uint8(opts.OrderDirection), uint8(opts.Mode),
	))
	if err != nil {
		return search.Result{}, err
	}
	items, err := decodeRecords(resp.Values)
	if err != nil {
		return search.Result{}, err
	}
	return search.Result{
		Items: items,
		Total: int(resp.Count),
		Page:  int(resp.Page),
		Limit: int(resp.Limit),
	}, nil
}

func (c *rpcCollection) Filter(criteria collection.Record) ([]collection.Record, error) {
	blob, err := encodeCriteria(criteria)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(common.NewFilterRequest(c.name, blob, 0))
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Values)
}

func (c *rpcCollection) Stats() (collection.Stats, error) {
	resp, err := c.invoke(common.NewCollectionRequest(common.MsgTColStats, c.name))
	if err != nil {
		return collection.Stats{}, err
	}
	var stats collection.Stats
	if err := msgpack.Unmarshal(resp.Value, &stats); err != nil {
		return collection.Stats{}, err
	}
	return stats, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// key normalizes an identifier to its wire form.
func (c *rpcCollection) key(id interface{}) (string, error) {
	key, ok := ident.Normalize(id)
	if !ok {
		return "", collection.NewError(collection.RetCInvalidIdentifier,
			"identifier must be a number or a non-empty string")
	}
	return key, nil
}

func (c *rpcCollection) keys(ids []interface{}) ([]string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		key, err := c.key(id)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

func (c *rpcCollection) sendRecord(t common.MessageType, rec collection.Record) (collection.Record, error) {
	blob, err := collection.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(common.NewRecordRequest(t, c.name, blob))
	if err != nil {
		return nil, err
	}
	return decodeOptRecord(resp)
}

func (c *rpcCollection) sendRecords(t common.MessageType, recs []collection.Record) ([]collection.Record, error) {
	blobs := make([][]byte, len(recs))
	for i, rec := range recs {
		blob, err := collection.EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		blobs[i] = blob
	}
	resp, err := c.invoke(common.NewRecordsRequest(t, c.name, blobs))
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Values)
}

// decodeOptRecord decodes the record of a response, honoring the soft-miss
// convention (Ok=false means nil record, no error).
func decodeOptRecord(resp *common.Message) (collection.Record, error) {
	if !resp.Ok || resp.Value == nil {
		return nil, nil
	}
	return collection.DecodeRecord(resp.Value)
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

func encodeCriteria(criteria collection.Record) ([]byte, error) {
	if len(criteria) == 0 {
		return nil, nil
	}
	return collection.EncodeRecord(criteria)
}
