package badgerkv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/logger"
)

// --------------------------------------------------------------------------
// Key Layout
// --------------------------------------------------------------------------

// Data keys:   c/<collection>/<key>
// Meta keys:   m/collections/<name>  (msgpack-encoded CollectionSpec)
//              m/version             (big-endian uint64 schema version)
const (
	dataPrefix     = "c/"
	metaCollPrefix = "m/collections/"
	metaVersionKey = "m/version"
)

func dataKey(coll, key string) []byte {
	return []byte(dataPrefix + coll + "/" + key)
}

func collPrefix(coll string) []byte {
	return []byte(dataPrefix + coll + "/")
}

// --------------------------------------------------------------------------
// Core BadgerKV engine structure
// --------------------------------------------------------------------------

// badgerImpl is the persistent engine backed by badger. The transactional
// overlay mirrors the in-memory engine: writes are buffered per transaction
// and applied with a write batch on commit, so badger's own transaction size
// limits never surface to callers.
type badgerImpl struct {
	db    *badger.DB
	specs *xsync.MapOf[string, engine.CollectionSpec]

	schemaVersion atomic.Uint64
	metaMu        sync.Mutex // serializes schema mutations
	closed        atomic.Bool

	log logger.ILogger
}

// Options configures the engine during initialization
type Options struct {
	Dir      string // Data directory (ignored when InMemory is set)
	InMemory bool   // Keep everything in badger's in-memory mode
}

// New opens (or creates) a badger-backed engine.
//
// Thread-safety: This function is not thread-safe and should only be called
// once per data directory.
func New(opts Options) (engine.Engine, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Dir).WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	b := &badgerImpl{
		db:    db,
		specs: xsync.NewMapOf[string, engine.CollectionSpec](),
		log:   logger.GetLogger("badgerkv"),
	}
	if err := b.loadMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Factory returns an engine.Factory that creates throwaway in-memory
// instances, used by the conformance tests.
func Factory() engine.Factory {
	return func() (engine.Engine, error) {
		return New(Options{InMemory: true})
	}
}

// loadMeta reads the collection registry and schema version from disk.
func (b *badgerImpl) loadMeta() error {
	b.specs.Clear()
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaVersionKey))
		if err == nil {
			err = item.Value(func(val []byte) error {
				if len(val) == 8 {
					b.schemaVersion.Store(binary.BigEndian.Uint64(val))
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(metaCollPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var spec engine.CollectionSpec
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &spec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode collection spec: %w", err)
			}
			b.specs.Store(spec.Name, spec)
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Engine Interface - Transactions
// --------------------------------------------------------------------------

func (b *badgerImpl) Begin(collections []string, mode engine.Mode) (engine.Txn, error) {
	if b.closed.Load() {
		return nil, engine.ErrClosed
	}

	overlays := make(map[string]*txnOverlay, len(collections))
	for _, name := range collections {
		if _, ok := b.specs.Load(name); !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrCollectionNotFound, name)
		}
		overlays[name] = &txnOverlay{name: name}
	}

	return &badgerTxn{
		eng:      b,
		mode:     mode,
		overlays: overlays,
		done:     make(chan error, 1),
	}, nil
}

// --------------------------------------------------------------------------
// Engine Interface - Schema
// --------------------------------------------------------------------------

func (b *badgerImpl) CreateCollection(spec engine.CollectionSpec) error {
	if b.closed.Load() {
		return engine.ErrClosed
	}
	b.metaMu.Lock()
	defer b.metaMu.Unlock()

	if _, ok := b.specs.Load(spec.Name); ok {
		return nil
	}

	encoded, err := msgpack.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode collection spec: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaCollPrefix+spec.Name), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to persist collection spec: %w", err)
	}

	b.specs.Store(spec.Name, spec)
	b.log.Debugf("created collection %q", spec.Name)
	return nil
}

func (b *badgerImpl) HasCollection(name string) bool {
	_, ok := b.specs.Load(name)
	return ok
}

func (b *badgerImpl) Collections() []string {
	names := make([]string, 0, b.specs.Size())
	b.specs.Range(func(name string, _ engine.CollectionSpec) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (b *badgerImpl) SchemaVersion() uint64 {
	return b.schemaVersion.Load()
}

func (b *badgerImpl) SetSchemaVersion(version uint64) error {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()

	if version <= b.schemaVersion.Load() {
		return nil
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaVersionKey), buf)
	})
	if err != nil {
		return fmt.Errorf("failed to persist schema version: %w", err)
	}
	b.schemaVersion.Store(version)
	return nil
}

// --------------------------------------------------------------------------
// Engine Interface - Feature Support and Info
// --------------------------------------------------------------------------

func (b *badgerImpl) SupportsFeature(feature engine.Feature) bool {
	supported := engine.FeatureBegin |
		engine.FeatureAbort |
		engine.FeatureCreateCollection |
		engine.FeatureSnapshot |
		engine.FeaturePersistent
	return feature&supported == feature
}

func (b *badgerImpl) GetInfo() engine.Info {
	lsm, vlog := b.db.Size()
	names := b.Collections()
	sort.Strings(names)

	return engine.Info{
		SizeBytes:     int(lsm + vlog),
		EngineType:    engine.ImplBadgerKV,
		SchemaVersion: b.schemaVersion.Load(),
		Collections:   names,
		SupportedFeatures: []engine.Feature{
			engine.FeatureBegin,
			engine.FeatureAbort,
			engine.FeatureCreateCollection,
			engine.FeatureSnapshot,
			engine.FeaturePersistent,
		},
		Metadata: map[string]interface{}{
			"lsm_size":  lsm,
			"vlog_size": vlog,
		},
	}
}

func (b *badgerImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Save streams a full backup, including the meta keys.
func (b *badgerImpl) Save(w io.Writer) error {
	_, err := b.db.Backup(w, 0)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	return nil
}

// Load restores a backup and reloads the collection registry.
func (b *badgerImpl) Load(r io.Reader) error {
	if err := b.db.Load(r, 16); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return b.loadMeta()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

const (
	txnPending int32 = iota
	txnSettled
)

type overlayWrite struct {
	value []byte
	del   bool
}

type txnOverlay struct {
	name    string
	writes  map[string]overlayWrite
	cleared bool
}

func (o *txnOverlay) write(key string, w overlayWrite) {
	if o.writes == nil {
		o.writes = make(map[string]overlayWrite)
	}
	o.writes[key] = w
}

type badgerTxn struct {
	eng      *badgerImpl
	mode     engine.Mode
	overlays map[string]*txnOverlay
	state    atomic.Int32
	done     chan error
}

func (t *badgerTxn) Collection(name string) (engine.Handle, error) {
	ov, ok := t.overlays[name]
	if !ok {
		return nil, fmt.Errorf("%w: transaction does not cover %q", engine.ErrCollectionNotFound, name)
	}
	return &badgerHandle{txn: t, ov: ov}, nil
}

func (t *badgerTxn) Commit() {
	if !t.state.CompareAndSwap(txnPending, txnSettled) {
		return
	}

	go func() {
		t.done <- t.apply()
		close(t.done)
	}()
}

// apply flushes the buffered overlays with a write batch. The batch splits
// itself into multiple badger transactions when needed, so large units of
// work do not hit ErrTxnTooBig.
func (t *badgerTxn) apply() error {
	wb := t.eng.db.NewWriteBatch()
	defer wb.Cancel()

	for _, ov := range t.overlays {
		if ov.cleared {
			keys, err := t.eng.collectKeys(ov.name)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if _, pending := ov.writes[key]; pending {
					continue
				}
				if err := wb.Delete(dataKey(ov.name, key)); err != nil {
					return err
				}
			}
		}
		for key, w := range ov.writes {
			var err error
			if w.del {
				err = wb.Delete(dataKey(ov.name, key))
			} else {
				err = wb.Set(dataKey(ov.name, key), w.value)
			}
			if err != nil {
				return err
			}
		}
	}
	return wb.Flush()
}

func (t *badgerTxn) Abort() error {
	if !t.state.CompareAndSwap(txnPending, txnSettled) {
		return nil
	}
	t.overlays = nil
	t.done <- engine.ErrAborted
	close(t.done)
	return nil
}

func (t *badgerTxn) Done() <-chan error {
	return t.done
}

// collectKeys lists all committed keys of a collection.
func (b *badgerImpl) collectKeys(coll string) ([]string, error) {
	var keys []string
	prefix := collPrefix(coll)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	return keys, err
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

type badgerHandle struct {
	txn *badgerTxn
	ov  *txnOverlay
}

func (h *badgerHandle) Get(key string) ([]byte, bool, error) {
	if h.txn.state.Load() != txnPending {
		return nil, false, engine.ErrTxnClosed
	}

	if w, ok := h.ov.writes[key]; ok {
		if w.del {
			return nil, false, nil
		}
		valueCopy := make([]byte, len(w.value))
		copy(valueCopy, w.value)
		return valueCopy, true, nil
	}
	if h.ov.cleared {
		return nil, false, nil
	}

	var value []byte
	found := false
	err := h.txn.eng.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(h.ov.name, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger read failed: %w", err)
	}
	return value, found, nil
}

func (h *badgerHandle) Put(key string, value []byte) error {
	if err := h.writable(); err != nil {
		return err
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	h.ov.write(key, overlayWrite{value: valueCopy})
	return nil
}

func (h *badgerHandle) Delete(key string) error {
	if err := h.writable(); err != nil {
		return err
	}
	h.ov.write(key, overlayWrite{del: true})
	return nil
}

func (h *badgerHandle) Clear() error {
	if err := h.writable(); err != nil {
		return err
	}
	h.ov.cleared = true
	h.ov.writes = nil
	return nil
}

func (h *badgerHandle) Count() (int, error) {
	if h.txn.state.Load() != txnPending {
		return 0, engine.ErrTxnClosed
	}

	n := 0
	if !h.ov.cleared {
		prefix := collPrefix(h.ov.name)
		err := h.txn.eng.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				n++
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("badger count failed: %w", err)
		}
	}

	for key, w := range h.ov.writes {
		committed, err := h.committedExists(key)
		if err != nil {
			return 0, err
		}
		visible := committed && !h.ov.cleared
		if w.del && visible {
			n--
		} else if !w.del && !visible {
			n++
		}
	}
	return n, nil
}

func (h *badgerHandle) committedExists(key string) (bool, error) {
	exists := false
	err := h.txn.eng.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(dataKey(h.ov.name, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (h *badgerHandle) Ascend(fn func(key string, value []byte) bool) error {
	if h.txn.state.Load() != txnPending {
		return engine.ErrTxnClosed
	}

	// badger iterates data keys in ascending order already; merge the
	// sorted overlay keys into the stream
	overlayKeys := make([]string, 0, len(h.ov.writes))
	for key := range h.ov.writes {
		overlayKeys = append(overlayKeys, key)
	}
	sort.Strings(overlayKeys)

	emitOverlay := func(key string) bool {
		w := h.ov.writes[key]
		if w.del {
			return true
		}
		valueCopy := make([]byte, len(w.value))
		copy(valueCopy, w.value)
		return fn(key, valueCopy)
	}

	if h.ov.cleared {
		for _, key := range overlayKeys {
			if !emitOverlay(key) {
				return nil
			}
		}
		return nil
	}

	prefix := collPrefix(h.ov.name)
	oi := 0
	stopped := false
	err := h.txn.eng.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(bytes.TrimPrefix(it.Item().Key(), prefix))

			// overlay keys that sort before the committed key
			for oi < len(overlayKeys) && overlayKeys[oi] < key {
				if !emitOverlay(overlayKeys[oi]) {
					stopped = true
					return nil
				}
				oi++
			}

			// overlay shadows the committed value for the same key
			if oi < len(overlayKeys) && overlayKeys[oi] == key {
				if !emitOverlay(overlayKeys[oi]) {
					stopped = true
					return nil
				}
				oi++
				continue
			}

			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(key, value) {
				stopped = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger scan failed: %w", err)
	}
	if stopped {
		return nil
	}

	for ; oi < len(overlayKeys); oi++ {
		if !emitOverlay(overlayKeys[oi]) {
			return nil
		}
	}
	return nil
}

func (h *badgerHandle) writable() error {
	if h.txn.state.Load() != txnPending {
		return engine.ErrTxnClosed
	}
	if h.txn.mode == engine.ModeReadOnly {
		return engine.ErrReadOnly
	}
	return nil
}
