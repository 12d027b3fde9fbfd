package hazel

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/engines/hazel/internal"
	"github.com/shelfdb/shelf/lib/engine/util"
	"github.com/shelfdb/shelf/lib/logger"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "HAZELDB\x00" // Snapshot file format identifier
	hazelVersion = 1             // Snapshot format version
)

// --------------------------------------------------------------------------
// Core Hazel engine structure
// --------------------------------------------------------------------------

// hazelImpl is the in-memory engine. Committed state lives in sharded
// lock-free maps; transactions buffer their writes in a private overlay and
// apply them under the commit mutex, so readers never block and commits are
// serialized.
type hazelImpl struct {
	collections *xsync.MapOf[string, *internal.Collection]
	numShards   int
	seed        uint64 // Seed for key hashing, unique per instance

	schemaVersion atomic.Uint64
	commitMu      sync.Mutex // serializes commit application and snapshots
	closed        atomic.Bool

	log logger.ILogger
}

// Options configures the engine during initialization
type Options struct {
	NumShards int // Number of shards per collection (0 = auto)
}

// DefaultOptions returns the default engine options
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
	}
}

// New creates a new in-memory engine with the specified options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func New(opts *Options) engine.Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards < 1 {
		opts.NumShards = 1
	}

	return &hazelImpl{
		collections: xsync.NewMapOf[string, *internal.Collection](),
		numShards:   opts.NumShards,
		seed:        util.GenerateSeed(),
		log:         logger.GetLogger("hazel"),
	}
}

// Factory returns an engine.Factory for New with default options.
func Factory() engine.Factory {
	return func() (engine.Engine, error) {
		return New(nil), nil
	}
}

// --------------------------------------------------------------------------
// Engine Interface - Transactions
// --------------------------------------------------------------------------

func (h *hazelImpl) Begin(collections []string, mode engine.Mode) (engine.Txn, error) {
	if h.closed.Load() {
		return nil, engine.ErrClosed
	}

	overlays := make(map[string]*txnOverlay, len(collections))
	for _, name := range collections {
		coll, ok := h.collections.Load(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrCollectionNotFound, name)
		}
		overlays[name] = &txnOverlay{coll: coll}
	}

	return &hazelTxn{
		eng:      h,
		mode:     mode,
		overlays: overlays,
		done:     make(chan error, 1),
	}, nil
}

// --------------------------------------------------------------------------
// Engine Interface - Schema
// --------------------------------------------------------------------------

func (h *hazelImpl) CreateCollection(spec engine.CollectionSpec) error {
	if h.closed.Load() {
		return engine.ErrClosed
	}
	// index declarations are accepted and ignored, all reads are full scans
	_, loaded := h.collections.LoadOrCompute(spec.Name, func() *internal.Collection {
		return internal.NewCollection(spec, h.numShards, h.seed)
	})
	if !loaded {
		h.log.Debugf("created collection %q", spec.Name)
	}
	return nil
}

func (h *hazelImpl) HasCollection(name string) bool {
	_, ok := h.collections.Load(name)
	return ok
}

func (h *hazelImpl) Collections() []string {
	names := make([]string, 0, h.collections.Size())
	h.collections.Range(func(name string, _ *internal.Collection) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (h *hazelImpl) SchemaVersion() uint64 {
	return h.schemaVersion.Load()
}

func (h *hazelImpl) SetSchemaVersion(version uint64) error {
	// monotonic: never lower an already persisted version
	for {
		curr := h.schemaVersion.Load()
		if version <= curr {
			return nil
		}
		if h.schemaVersion.CompareAndSwap(curr, version) {
			return nil
		}
	}
}

// --------------------------------------------------------------------------
// Engine Interface - Feature Support and Info
// --------------------------------------------------------------------------

func (h *hazelImpl) SupportsFeature(feature engine.Feature) bool {
	supported := engine.FeatureBegin |
		engine.FeatureAbort |
		engine.FeatureCreateCollection |
		engine.FeatureSnapshot
	return feature&supported == feature
}

func (h *hazelImpl) GetInfo() engine.Info {
	var sizeBytes int
	names := h.Collections()
	sort.Strings(names)
	for _, name := range names {
		coll, ok := h.collections.Load(name)
		if !ok {
			continue
		}
		coll.Range(func(key string, value []byte) bool {
			sizeBytes += len(key) + len(value)
			return true
		})
	}

	return engine.Info{
		SizeBytes:     sizeBytes,
		EngineType:    engine.ImplHazel,
		SchemaVersion: h.schemaVersion.Load(),
		Collections:   names,
		SupportedFeatures: []engine.Feature{
			engine.FeatureBegin,
			engine.FeatureAbort,
			engine.FeatureCreateCollection,
			engine.FeatureSnapshot,
		},
		Metadata: map[string]interface{}{
			"num_shards": h.numShards,
		},
	}
}

func (h *hazelImpl) Close() error {
	h.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// snapshotCollection is the serialized form of one collection
type snapshotCollection struct {
	Spec engine.CollectionSpec `msgpack:"spec"`
	Data map[string][]byte     `msgpack:"data"`
}

// snapshotFile is the serialized form of the whole engine state
type snapshotFile struct {
	SchemaVersion uint64               `msgpack:"schema_version"`
	Collections   []snapshotCollection `msgpack:"collections"`
}

// Save writes a consistent snapshot of the engine. In-flight transactions
// that have not committed yet are not part of the snapshot; the commit mutex
// is held for the duration, so commits wait until Save finishes.
func (h *hazelImpl) Save(w io.Writer) error {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	file := snapshotFile{SchemaVersion: h.schemaVersion.Load()}
	h.collections.Range(func(name string, coll *internal.Collection) bool {
		snap := snapshotCollection{
			Spec: coll.Spec,
			Data: make(map[string][]byte, coll.Size()),
		}
		coll.Range(func(key string, value []byte) bool {
			valueCopy := make([]byte, len(value))
			copy(valueCopy, value)
			snap.Data[key] = valueCopy
			return true
		})
		file.Collections = append(file.Collections, snap)
		return true
	})

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magicNum); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := bw.WriteByte(hazelVersion); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := msgpack.NewEncoder(bw).Encode(file); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return bw.Flush()
}

// Load replaces the engine state with a previously saved snapshot.
//
// Thread-safety: This method is not safe to call concurrently with
// transactions; it is meant for restore-on-startup.
func (h *hazelImpl) Load(r io.Reader) error {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	br := bufio.NewReader(r)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot file format")
	}
	version, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if version != hazelVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	var file snapshotFile
	if err := msgpack.NewDecoder(br).Decode(&file); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	h.collections.Clear()
	for _, snap := range file.Collections {
		coll := internal.NewCollection(snap.Spec, h.numShards, h.seed)
		for key, value := range snap.Data {
			coll.Put(key, value, h.seed)
		}
		h.collections.Store(snap.Spec.Name, coll)
	}
	h.schemaVersion.Store(file.SchemaVersion)

	h.log.Infof("restored %d collections (schema version %d)", len(file.Collections), file.SchemaVersion)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction states
const (
	txnPending int32 = iota
	txnSettled
)

// overlayWrite is one buffered mutation. del marks a pending delete.
type overlayWrite struct {
	value []byte
	del   bool
}

// txnOverlay buffers the writes of one transaction against one collection.
// cleared means the transaction wiped the collection; buffered writes after
// the clear still apply.
type txnOverlay struct {
	coll    *internal.Collection
	writes  map[string]overlayWrite
	cleared bool
}

func (o *txnOverlay) write(key string, w overlayWrite) {
	if o.writes == nil {
		o.writes = make(map[string]overlayWrite)
	}
	o.writes[key] = w
}

type hazelTxn struct {
	eng      *hazelImpl
	mode     engine.Mode
	overlays map[string]*txnOverlay
	state    atomic.Int32
	done     chan error
}

func (t *hazelTxn) Collection(name string) (engine.Handle, error) {
	ov, ok := t.overlays[name]
	if !ok {
		return nil, fmt.Errorf("%w: transaction does not cover %q", engine.ErrCollectionNotFound, name)
	}
	return &hazelHandle{txn: t, ov: ov}, nil
}

// Commit applies the buffered writes asynchronously and delivers the
// terminal signal on Done. Commit after settlement is a no-op.
func (t *hazelTxn) Commit() {
	if !t.state.CompareAndSwap(txnPending, txnSettled) {
		return
	}

	go func() {
		t.eng.commitMu.Lock()
		for _, ov := range t.overlays {
			if ov.cleared {
				ov.coll.Purge()
			}
			for key, w := range ov.writes {
				if w.del {
					ov.coll.Delete(key, t.eng.seed)
				} else {
					ov.coll.Put(key, w.value, t.eng.seed)
				}
			}
		}
		t.eng.commitMu.Unlock()

		t.done <- nil
		close(t.done)
	}()
}

// Abort discards the buffered writes. Abort after settlement is a no-op.
func (t *hazelTxn) Abort() error {
	if !t.state.CompareAndSwap(txnPending, txnSettled) {
		return nil
	}
	t.overlays = nil
	t.done <- engine.ErrAborted
	close(t.done)
	return nil
}

func (t *hazelTxn) Done() <-chan error {
	return t.done
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

type hazelHandle struct {
	txn *hazelTxn
	ov  *txnOverlay
}

func (h *hazelHandle) Get(key string) ([]byte, bool, error) {
	if h.txn.state.Load() != txnPending {
		return nil, false, engine.ErrTxnClosed
	}

	if w, ok := h.ov.writes[key]; ok {
		if w.del {
			return nil, false, nil
		}
		return copyValue(w.value), true, nil
	}
	if h.ov.cleared {
		return nil, false, nil
	}

	value, ok := h.ov.coll.Get(key, h.txn.eng.seed)
	if !ok {
		return nil, false, nil
	}
	return copyValue(value), true, nil
}

func (h *hazelHandle) Put(key string, value []byte) error {
	if err := h.writable(); err != nil {
		return err
	}
	h.ov.write(key, overlayWrite{value: copyValue(value)})
	return nil
}

func (h *hazelHandle) Delete(key string) error {
	if err := h.writable(); err != nil {
		return err
	}
	h.ov.write(key, overlayWrite{del: true})
	return nil
}

func (h *hazelHandle) Clear() error {
	if err := h.writable(); err != nil {
		return err
	}
	h.ov.cleared = true
	h.ov.writes = nil
	return nil
}

func (h *hazelHandle) Count() (int, error) {
	if h.txn.state.Load() != txnPending {
		return 0, engine.ErrTxnClosed
	}

	n := 0
	if !h.ov.cleared {
		n = h.ov.coll.Size()
	}
	for key, w := range h.ov.writes {
		_, committed := h.ov.coll.Get(key, h.txn.eng.seed)
		visible := committed && !h.ov.cleared
		if w.del && visible {
			n--
		} else if !w.del && !visible {
			n++
		}
	}
	return n, nil
}

func (h *hazelHandle) Ascend(fn func(key string, value []byte) bool) error {
	if h.txn.state.Load() != txnPending {
		return engine.ErrTxnClosed
	}

	// merge committed state and overlay, then order by key
	merged := make(map[string][]byte)
	if !h.ov.cleared {
		h.ov.coll.Range(func(key string, value []byte) bool {
			merged[key] = value
			return true
		})
	}
	for key, w := range h.ov.writes {
		if w.del {
			delete(merged, key)
		} else {
			merged[key] = w.value
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !fn(key, copyValue(merged[key])) {
			return nil
		}
	}
	return nil
}

func (h *hazelHandle) writable() error {
	if h.txn.state.Load() != txnPending {
		return engine.ErrTxnClosed
	}
	if h.txn.mode == engine.ModeReadOnly {
		return engine.ErrReadOnly
	}
	return nil
}

func copyValue(value []byte) []byte {
	if value == nil {
		return nil
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy
}
