package server

import (
	"fmt"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/engines/badgerkv"
	"github.com/shelfdb/shelf/lib/engine/engines/hazel"
	"github.com/shelfdb/shelf/lib/lockmgr"
	"github.com/shelfdb/shelf/lib/manager"
	"github.com/shelfdb/shelf/rpc/common"
)

// LockCollection is the reserved collection backing the lock manager of
// every served database.
const LockCollection = "_locks"

// Database is one served database: a manager over a storage engine plus
// the advisory lock manager living in its reserved lock collection.
type Database struct {
	Name    string
	Manager *manager.Manager
	Locks   lockmgr.ILockManager
}

// Collection resolves a collection by name, falling back to the default
// collection for an empty name.
func (d *Database) Collection(name string) (collection.ICollection, error) {
	if name == "" {
		return d.Manager.Default()
	}
	return d.Manager.Collection(name)
}

// NewDatabase builds a served database from its configuration: engine
// selection, schema declaration (including the reserved lock collection)
// and the lock manager on top.
func NewDatabase(cfg common.DatabaseConfig) (*Database, error) {
	factory, err := engineFactory(cfg)
	if err != nil {
		return nil, err
	}

	specs := make([]engine.CollectionSpec, 0, len(cfg.Collections)+1)
	for _, name := range cfg.Collections {
		specs = append(specs, engine.CollectionSpec{
			Name:          name,
			KeyField:      "id",
			AutoIncrement: true,
		})
	}
	defaultCol := cfg.Default
	if defaultCol == "" && len(cfg.Collections) > 0 {
		defaultCol = cfg.Collections[0]
	}
	if defaultCol == "" {
		return nil, fmt.Errorf("database %s declares no collections", cfg.Name)
	}
	specs = append(specs, engine.CollectionSpec{Name: LockCollection, KeyField: "id"})

	mgr, err := manager.New(manager.Config{
		Name:              cfg.Name,
		Version:           cfg.Version,
		Collections:       specs,
		DefaultCollection: defaultCol,
		Engine:            factory,
	})
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", cfg.Name, err)
	}

	return &Database{
		Name:    cfg.Name,
		Manager: mgr,
		Locks:   lockmgr.New(mgr, LockCollection),
	}, nil
}

// engineFactory maps the configured engine name to a factory.
func engineFactory(cfg common.DatabaseConfig) (engine.Factory, error) {
	switch cfg.Engine {
	case "", "hazel":
		return hazel.Factory(), nil
	case "badgerkv":
		if cfg.Dir == "" {
			return badgerkv.Factory(), nil
		}
		dir := cfg.Dir
		return func() (engine.Engine, error) {
			return badgerkv.New(badgerkv.Options{Dir: dir})
		}, nil
	default:
		return nil, fmt.Errorf("database %s: unknown engine %q", cfg.Name, cfg.Engine)
	}
}
