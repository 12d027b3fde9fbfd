package manager

import (
	"fmt"
	"sync"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/logger"
	"github.com/shelfdb/shelf/lib/notify"
	"github.com/shelfdb/shelf/lib/txn"
)

// --------------------------------------------------------------------------
// Connection Lifecycle
// --------------------------------------------------------------------------

type connState int

const (
	stateClosed connState = iota
	stateOpening
	stateOpen
)

// Manager owns the single logical connection to a store and hands out
// collection proxies. The connection is created lazily on first use;
// concurrent first uses share one in-flight open attempt.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	state   connState
	eng     engine.Engine
	opening chan struct{} // closed when the in-flight open finishes
	openErr error

	notifier *notify.Notifier
	log      logger.ILogger
}

// New validates the config and returns a closed manager. No engine is
// opened yet; Open (or the first operation) does that.
func New(cfg Config) (*Manager, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      normalized,
		notifier: notify.NewNotifier(),
		log:      logger.GetLogger("manager"),
	}, nil
}

// Open makes sure the connection is established. Calling Open on an open
// manager is a no-op.
func (m *Manager) Open() error {
	_, err := m.ensureOpen()
	return err
}

// ensureOpen returns the open engine, establishing the connection first if
// needed. Concurrent callers during Opening wait for the same attempt
// instead of issuing a second open.
func (m *Manager) ensureOpen() (engine.Engine, error) {
	m.mu.Lock()
	switch m.state {
	case stateOpen:
		eng := m.eng
		m.mu.Unlock()
		return eng, nil

	case stateOpening:
		wait := m.opening
		m.mu.Unlock()
		<-wait

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != stateOpen {
			if m.openErr != nil {
				return nil, m.openErr
			}
			return nil, collection.NewError(collection.RetCConfiguration, "store closed during open")
		}
		return m.eng, nil

	default: // stateClosed
		m.state = stateOpening
		m.opening = make(chan struct{})
		wait := m.opening
		m.mu.Unlock()

		eng, err := m.open()

		m.mu.Lock()
		if err != nil {
			m.state = stateClosed
			m.openErr = err
		} else {
			m.state = stateOpen
			m.eng = eng
			m.openErr = nil
		}
		close(wait)
		m.mu.Unlock()
		return eng, err
	}
}

// open creates the engine and runs the upgrade path: create collections and
// indexes the schema declares but the engine is missing, then persist the
// declared version. Pre-existing collections are left untouched.
func (m *Manager) open() (engine.Engine, error) {
	eng, err := m.cfg.Engine()
	if err != nil {
		return nil, collection.WrapError(collection.RetCConfiguration,
			fmt.Sprintf("failed to open store %q", m.cfg.Name), err)
	}

	persisted := eng.SchemaVersion()
	switch {
	case persisted > m.cfg.Version:
		// an open store with a newer schema blocks a downgrade; keep
		// running against the newer layout and warn
		m.log.Warningf("store %q: persisted schema version %d is newer than declared %d",
			m.cfg.Name, persisted, m.cfg.Version)

	case persisted < m.cfg.Version:
		m.log.Infof("store %q: upgrading schema from version %d to %d",
			m.cfg.Name, persisted, m.cfg.Version)
		for _, spec := range m.cfg.Collections {
			if eng.HasCollection(spec.Name) {
				continue
			}
			if err := eng.CreateCollection(spec); err != nil {
				_ = eng.Close()
				return nil, collection.WrapError(collection.RetCConfiguration,
					fmt.Sprintf("failed to create collection %q", spec.Name), err)
			}
		}
		if err := eng.SetSchemaVersion(m.cfg.Version); err != nil {
			_ = eng.Close()
			return nil, collection.WrapError(collection.RetCConfiguration,
				"failed to persist schema version", err)
		}
	}

	m.log.Infof("store %q open (engine=%s, version=%d)", m.cfg.Name, eng.GetInfo().EngineType, eng.SchemaVersion())
	return eng, nil
}

// Close tears the connection down. Collection proxies stay valid and reopen
// the connection on their next use.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateOpen {
		m.state = stateClosed
		return nil
	}
	err := m.eng.Close()
	m.eng = nil
	m.state = stateClosed
	if err != nil {
		return collection.WrapError(collection.RetCInternalError, "failed to close engine", err)
	}
	return nil
}

// Shutdown closes the connection and the notifier. The manager is not
// usable afterwards.
func (m *Manager) Shutdown() error {
	err := m.Close()
	m.notifier.Close()
	return err
}

// Reconfigure closes the current connection and swaps the configuration.
// The next operation opens the store with the new config.
func (m *Manager) Reconfigure(cfg Config) error {
	normalized, err := cfg.normalize()
	if err != nil {
		return err
	}
	if err := m.Close(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = normalized
	return nil
}

// --------------------------------------------------------------------------
// Collections
// --------------------------------------------------------------------------

// Collection returns the proxy for a declared collection. Undeclared names
// fail here, not at operation time.
func (m *Manager) Collection(name string) (collection.ICollection, error) {
	spec, ok := m.cfg.spec(name)
	if !ok {
		return nil, collection.NewError(collection.RetCCollectionNotFound,
			fmt.Sprintf("collection %q is not declared", name))
	}
	return &proxy{mgr: m, spec: spec}, nil
}

// Default returns the proxy for the default collection.
func (m *Manager) Default() (collection.ICollection, error) {
	return m.Collection(m.cfg.DefaultCollection)
}

// Collections returns the declared collection names.
func (m *Manager) Collections() []string {
	names := make([]string, len(m.cfg.Collections))
	for i, spec := range m.cfg.Collections {
		names[i] = spec.Name
	}
	return names
}

// Info returns the engine's self-description, opening the connection if
// needed.
func (m *Manager) Info() (engine.Info, error) {
	eng, err := m.ensureOpen()
	if err != nil {
		return engine.Info{}, err
	}
	return eng.GetInfo(), nil
}

// Txn runs one unit of work through the transaction coordinator against a
// declared collection. Most callers want the proxy operations instead; Txn
// exists for components that need multi-operation atomicity with custom
// logic, like the lock manager.
func (m *Manager) Txn(collectionName string, mode engine.Mode, work txn.Work) (interface{}, error) {
	if _, ok := m.cfg.spec(collectionName); !ok {
		return nil, collection.NewError(collection.RetCCollectionNotFound,
			fmt.Sprintf("collection %q is not declared", collectionName))
	}
	eng, err := m.ensureOpen()
	if err != nil {
		return nil, err
	}
	return txn.Run(eng, collectionName, mode, work)
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// Subscribe registers a handler for mutation events on one collection
// (notify.AllCollections for all of them).
func (m *Manager) Subscribe(collectionName string, kinds notify.Kind, fn notify.Handler) uint64 {
	return m.notifier.Subscribe(collectionName, kinds, fn)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id uint64) {
	m.notifier.Unsubscribe(id)
}
