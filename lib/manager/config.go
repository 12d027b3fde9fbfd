package manager

import (
	"fmt"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/engine"
)

// Config describes one logical store: its name, declared schema version,
// and the collections the schema defines. The engine factory keeps
// connection creation lazy; the engine is only opened on first use.
type Config struct {
	// Name identifies the store in logs and diagnostics.
	Name string

	// Version is the declared schema version. On open, when the engine
	// reports an older persisted version, the upgrade path creates any
	// missing collections and indexes and persists this version.
	Version uint64

	// Collections declares the schema. At least one collection is
	// required unless DefaultCollection is set.
	Collections []engine.CollectionSpec

	// DefaultCollection names the collection returned by Default(). When
	// Collections is empty, a single auto-increment collection of this
	// name is synthesized (the legacy single-collection configuration).
	DefaultCollection string

	// Engine creates the storage engine backing this store.
	Engine engine.Factory
}

// normalize validates the config and fills in defaults. It returns the
// effective config so the original stays untouched.
func (c Config) normalize() (Config, error) {
	if c.Name == "" {
		return c, collection.NewError(collection.RetCConfiguration, "store name is required")
	}
	if c.Engine == nil {
		return c, collection.NewError(collection.RetCConfiguration, "engine factory is required")
	}
	if c.Version == 0 {
		c.Version = 1
	}

	if len(c.Collections) == 0 {
		if c.DefaultCollection == "" {
			return c, collection.NewError(collection.RetCConfiguration, "at least one collection is required")
		}
		c.Collections = []engine.CollectionSpec{{
			Name:          c.DefaultCollection,
			KeyField:      "id",
			AutoIncrement: true,
		}}
	}
	if c.DefaultCollection == "" {
		c.DefaultCollection = c.Collections[0].Name
	}

	seen := make(map[string]bool, len(c.Collections))
	specs := make([]engine.CollectionSpec, len(c.Collections))
	for i, spec := range c.Collections {
		if spec.Name == "" {
			return c, collection.NewError(collection.RetCConfiguration, "collection name must not be empty")
		}
		if seen[spec.Name] {
			return c, collection.NewError(collection.RetCConfiguration,
				fmt.Sprintf("duplicate collection %q", spec.Name))
		}
		seen[spec.Name] = true
		if spec.KeyField == "" {
			spec.KeyField = "id"
		}
		specs[i] = spec
	}
	c.Collections = specs

	if !seen[c.DefaultCollection] {
		return c, collection.NewError(collection.RetCConfiguration,
			fmt.Sprintf("default collection %q is not declared", c.DefaultCollection))
	}
	return c, nil
}

// spec returns the declared spec for a collection name.
func (c Config) spec(name string) (engine.CollectionSpec, bool) {
	for _, spec := range c.Collections {
		if spec.Name == name {
			return spec, true
		}
	}
	return engine.CollectionSpec{}, false
}
