package manager

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/util"
	"github.com/shelfdb/shelf/lib/ident"
	"github.com/shelfdb/shelf/lib/notify"
	"github.com/shelfdb/shelf/lib/search"
	"github.com/shelfdb/shelf/lib/txn"
)

// proxy is the per-collection facade handed out by the manager. It holds no
// state of its own: every operation opens the connection on demand and runs
// through the transaction coordinator.
type proxy struct {
	mgr  *Manager
	spec engine.CollectionSpec
}

var _ collection.ICollection = (*proxy)(nil)

// --------------------------------------------------------------------------
// Plumbing
// --------------------------------------------------------------------------

// eventBuf collects the events of one unit of work. They are published only
// after the transaction settles successfully; an aborted transaction emits
// nothing.
type eventBuf struct {
	events []notify.Event
}

func (b *eventBuf) add(coll string, kind notify.Kind, id string, data collection.Record) {
	b.events = append(b.events, notify.Event{
		Collection: coll,
		Kind:       kind,
		ID:         id,
		Data:       data,
	})
}

// run executes one unit of work and handles metrics and event publication.
func (p *proxy) run(op string, mode engine.Mode, work func(h engine.Handle, ev *eventBuf) (interface{}, error)) (interface{}, error) {
	eng, err := p.mgr.ensureOpen()
	if err != nil {
		return nil, err
	}

	ev := &eventBuf{}
	value, err := txn.Run(eng, p.spec.Name, mode, func(h engine.Handle) (interface{}, error) {
		return work(h, ev)
	})
	if err != nil {
		opErrorsTotal(p.spec.Name, op).Inc()
		return nil, err
	}
	opsTotal(p.spec.Name, op).Inc()

	for _, e := range ev.events {
		p.mgr.notifier.Publish(e)
	}
	return value, nil
}

// key normalizes an identifier, mapping failures to the identifier error
// code before any transaction is started.
func (p *proxy) key(id interface{}) (string, error) {
	key, ok := ident.Normalize(id)
	if !ok {
		return "", collection.NewError(collection.RetCInvalidIdentifier,
			fmt.Sprintf("invalid identifier %v (%T)", id, id))
	}
	return key, nil
}

// fetch reads and decodes one record inside a transaction.
func fetch(h engine.Handle, key string) (collection.Record, bool, error) {
	raw, found, err := h.Get(key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	rec, err := collection.DecodeRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// store encodes and writes one record inside a transaction.
func store(h engine.Handle, key string, rec collection.Record) error {
	raw, err := collection.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return h.Put(key, raw)
}

// --------------------------------------------------------------------------
// Single-Record Operations
// --------------------------------------------------------------------------

func (p *proxy) Add(rec collection.Record) (collection.Record, error) {
	return p.insert("add", rec)
}

func (p *proxy) Save(rec collection.Record) (collection.Record, error) {
	return p.insert("save", rec)
}

// insert is the shared add/save path: assign an identifier when missing,
// then write, with add-vs-update decided by an existence check inside the
// same transaction. Last write wins for fully concurrent callers racing on
// the same explicit identifier.
func (p *proxy) insert(op string, rec collection.Record) (collection.Record, error) {
	if rec == nil {
		return nil, collection.NewError(collection.RetCInvalidOperation, "nil record")
	}

	var explicitKey string
	idValue, hasID := rec[p.spec.KeyField]
	if hasID {
		var err error
		if explicitKey, err = p.key(idValue); err != nil {
			return nil, err
		}
	}

	value, err := p.run(op, engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		stored := collection.Clone(rec)
		key := explicitKey
		if !hasID {
			assigner, err := newIDAssigner(h)
			if err != nil {
				return nil, err
			}
			var idValue interface{}
			key, idValue = assigner.next()
			stored[p.spec.KeyField] = idValue
		}

		_, exists, err := h.Get(key)
		if err != nil {
			return nil, err
		}
		if err := store(h, key, stored); err != nil {
			return nil, err
		}

		kind := notify.KindAdd
		if exists {
			kind = notify.KindUpdate
		}
		ev.add(p.spec.Name, kind, key, stored)
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(collection.Record), nil
}

func (p *proxy) Get(id interface{}) (collection.Record, error) {
	key, err := p.key(id)
	if err != nil {
		return nil, err
	}

	value, err := p.run("get", engine.ModeReadOnly, func(h engine.Handle, _ *eventBuf) (interface{}, error) {
		rec, _, err := fetch(h, key)
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	return value.(collection.Record), nil
}

func (p *proxy) Update(id interface{}, changes collection.Record) (collection.Record, error) {
	key, err := p.key(id)
	if err != nil {
		return nil, err
	}

	value, err := p.run("update", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		base, found, err := fetch(h, key)
		if err != nil {
			return nil, err
		}
		if !found {
			// soft miss, mirrors Get
			return collection.Record(nil), nil
		}

		merged := collection.Merge(base, changes)
		// the identifier field is not updatable
		merged[p.spec.KeyField] = base[p.spec.KeyField]
		if err := store(h, key, merged); err != nil {
			return nil, err
		}
		ev.add(p.spec.Name, notify.KindUpdate, key, merged)
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(collection.Record), nil
}

func (p *proxy) Delete(id interface{}) (bool, error) {
	key, err := p.key(id)
	if err != nil {
		return false, err
	}

	value, err := p.run("delete", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		old, found, err := fetch(h, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return false, nil
		}
		if err := h.Delete(key); err != nil {
			return nil, err
		}
		ev.add(p.spec.Name, notify.KindDelete, key, old)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

func (p *proxy) Clear() error {
	_, err := p.run("clear", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		if err := h.Clear(); err != nil {
			return nil, err
		}
		// one event for the whole operation
		ev.add(p.spec.Name, notify.KindClear, "", nil)
		return nil, nil
	})
	return err
}

func (p *proxy) Count() (int, error) {
	value, err := p.run("count", engine.ModeReadOnly, func(h engine.Handle, _ *eventBuf) (interface{}, error) {
		return h.Count()
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

// --------------------------------------------------------------------------
// Multi-Record Operations
// --------------------------------------------------------------------------

func (p *proxy) GetMany(ids []interface{}) ([]collection.Record, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		key, err := p.key(id)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	value, err := p.run("getMany", engine.ModeReadOnly, func(h engine.Handle, _ *eventBuf) (interface{}, error) {
		recs := make([]collection.Record, 0, len(keys))
		for _, key := range keys {
			rec, found, err := fetch(h, key)
			if err != nil {
				return nil, err
			}
			if found {
				recs = append(recs, rec)
			}
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]collection.Record), nil
}

func (p *proxy) GetAll() ([]collection.Record, error) {
	value, err := p.run("getAll", engine.ModeReadOnly, func(h engine.Handle, _ *eventBuf) (interface{}, error) {
		return readAll(h)
	})
	if err != nil {
		return nil, err
	}
	return value.([]collection.Record), nil
}

func readAll(h engine.Handle) ([]collection.Record, error) {
	var recs []collection.Record
	var decodeErr error
	err := h.Ascend(func(_ string, raw []byte) bool {
		rec, err := collection.DecodeRecord(raw)
		if err != nil {
			decodeErr = err
			return false
		}
		recs = append(recs, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return recs, nil
}

// AddMany inserts all records in one transaction. The identifier assigner
// is shared across the batch, so IDs handed out earlier in the batch are
// visible when later ones are assigned.
func (p *proxy) AddMany(recs []collection.Record) ([]collection.Record, error) {
	explicitKeys := make(map[int]string, len(recs))
	needAssign := false
	for i, rec := range recs {
		if rec == nil {
			return nil, collection.NewError(collection.RetCInvalidOperation,
				fmt.Sprintf("nil record at index %d", i))
		}
		if idValue, ok := rec[p.spec.KeyField]; ok {
			key, err := p.key(idValue)
			if err != nil {
				return nil, err
			}
			explicitKeys[i] = key
		} else {
			needAssign = true
		}
	}

	value, err := p.run("addMany", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		var assigner *idAssigner
		if needAssign {
			var err error
			if assigner, err = newIDAssigner(h); err != nil {
				return nil, err
			}
			// explicit identifiers in the same batch count as used,
			// whatever their position
			for _, key := range explicitKeys {
				assigner.observe(key)
			}
		}

		out := make([]collection.Record, len(recs))
		for i, rec := range recs {
			stored := collection.Clone(rec)
			key, explicit := explicitKeys[i]
			if !explicit {
				var idValue interface{}
				key, idValue = assigner.next()
				stored[p.spec.KeyField] = idValue
			}

			_, exists, err := h.Get(key)
			if err != nil {
				return nil, err
			}
			if err := store(h, key, stored); err != nil {
				return nil, err
			}

			kind := notify.KindAdd
			if exists {
				kind = notify.KindUpdate
			}
			ev.add(p.spec.Name, kind, key, stored)
			out[i] = stored
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]collection.Record), nil
}

func (p *proxy) UpdateMany(recs []collection.Record) ([]collection.Record, error) {
	keys := make([]string, len(recs))
	for i, rec := range recs {
		idValue, ok := rec[p.spec.KeyField]
		if !ok {
			return nil, collection.NewError(collection.RetCInvalidIdentifier,
				fmt.Sprintf("record at index %d has no identifier", i))
		}
		key, err := p.key(idValue)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	value, err := p.run("updateMany", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		var out []collection.Record
		for i, rec := range recs {
			base, found, err := fetch(h, keys[i])
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			merged := collection.Merge(base, rec)
			merged[p.spec.KeyField] = base[p.spec.KeyField]
			if err := store(h, keys[i], merged); err != nil {
				return nil, err
			}
			ev.add(p.spec.Name, notify.KindUpdate, keys[i], merged)
			out = append(out, merged)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]collection.Record), nil
}

func (p *proxy) DeleteMany(ids []interface{}) (int, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		key, err := p.key(id)
		if err != nil {
			return 0, err
		}
		keys[i] = key
	}

	value, err := p.run("deleteMany", engine.ModeReadWrite, func(h engine.Handle, ev *eventBuf) (interface{}, error) {
		deleted := 0
		for _, key := range keys {
			old, found, err := fetch(h, key)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			if err := h.Delete(key); err != nil {
				return nil, err
			}
			ev.add(p.spec.Name, notify.KindDelete, key, old)
			deleted++
		}
		return deleted, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

// --------------------------------------------------------------------------
// Boolean Batch Variants
// --------------------------------------------------------------------------

// The Try variants degrade failures to a boolean outcome. The underlying
// cause is logged, not returned; callers that need it must use the
// error-returning variants.

func (p *proxy) TryAddMany(recs []collection.Record) bool {
	if _, err := p.AddMany(recs); err != nil {
		p.mgr.log.Warningf("TryAddMany on %q failed: %v", p.spec.Name, err)
		return false
	}
	return true
}

func (p *proxy) TryUpdateMany(recs []collection.Record) bool {
	if _, err := p.UpdateMany(recs); err != nil {
		p.mgr.log.Warningf("TryUpdateMany on %q failed: %v", p.spec.Name, err)
		return false
	}
	return true
}

func (p *proxy) TryDeleteMany(ids []interface{}) bool {
	if _, err := p.DeleteMany(ids); err != nil {
		p.mgr.log.Warningf("TryDeleteMany on %q failed: %v", p.spec.Name, err)
		return false
	}
	return true
}

// --------------------------------------------------------------------------
// Search and Statistics
// --------------------------------------------------------------------------

func (p *proxy) Search(criteria collection.Record, opts search.Options) (search.Result, error) {
	items, err := p.GetAll()
	if err != nil {
		return search.Result{}, err
	}
	return search.Apply(items, criteria, opts), nil
}

func (p *proxy) Filter(criteria collection.Record) ([]collection.Record, error) {
	items, err := p.GetAll()
	if err != nil {
		return nil, err
	}
	return search.Filter(items, criteria, search.MatchAuto), nil
}

func (p *proxy) Stats() (collection.Stats, error) {
	value, err := p.run("stats", engine.ModeReadOnly, func(h engine.Handle, _ *eventBuf) (interface{}, error) {
		hist := util.NewSizeHistogram()
		count := 0
		err := h.Ascend(func(_ string, raw []byte) bool {
			hist.AddSample(len(raw))
			count++
			return true
		})
		if err != nil {
			return nil, err
		}

		return collection.Stats{
			Collection:  p.spec.Name,
			Count:       count,
			TotalBytes:  hist.TotalSize(),
			AvgBytes:    hist.AverageSize(),
			MedianBytes: hist.MedianEstimate(),
			P95Bytes:    hist.GetPercentileEstimate(95),
		}, nil
	})
	if err != nil {
		return collection.Stats{}, err
	}
	return value.(collection.Stats), nil
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func opsTotal(coll, op string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shelf_collection_ops_total{collection=%q,op=%q}`, coll, op))
}

func opErrorsTotal(coll, op string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shelf_collection_op_errors_total{collection=%q,op=%q}`, coll, op))
}
