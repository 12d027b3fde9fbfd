package internal

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/engine/util"
)

// --------------------------------------------------------------------------
// Shard Type (partition of one collection's key space)
// --------------------------------------------------------------------------

// Shard holds a partition of a collection. Each shard has its own lock-free
// map so concurrent commits and reads contend per partition, not per
// collection.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a shard whose map hashes keys with the engine's seed, so
// hash distribution differs between engine instances.
func NewShard(seed uint64) *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[string, []byte](func(key string, mapSeed uint64) uint64 {
			return util.HashString(key, seed^mapSeed)
		}),
	}
}

// --------------------------------------------------------------------------
// Collection Type
// --------------------------------------------------------------------------

// Collection is the committed state of one named collection.
type Collection struct {
	Spec   engine.CollectionSpec
	Shards []*Shard
}

func NewCollection(spec engine.CollectionSpec, numShards int, seed uint64) *Collection {
	shards := make([]*Shard, numShards)
	for i := range shards {
		shards[i] = NewShard(seed)
	}
	return &Collection{Spec: spec, Shards: shards}
}

// ShardFor returns the shard responsible for a key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *Collection) ShardFor(key string, seed uint64) *Shard {
	return c.Shards[util.HashString(key, seed)%uint64(len(c.Shards))]
}

// Get reads the committed value for a key.
func (c *Collection) Get(key string, seed uint64) ([]byte, bool) {
	return c.ShardFor(key, seed).Data.Load(key)
}

// Put writes a committed value. Only the commit path may call this.
func (c *Collection) Put(key string, value []byte, seed uint64) {
	c.ShardFor(key, seed).Data.Store(key, value)
}

// Delete removes a committed value. Only the commit path may call this.
func (c *Collection) Delete(key string, seed uint64) {
	c.ShardFor(key, seed).Data.Delete(key)
}

// Purge drops all committed entries. Only the commit path may call this.
func (c *Collection) Purge() {
	for _, s := range c.Shards {
		s.Data.Clear()
	}
}

// Size returns the number of committed entries.
func (c *Collection) Size() int {
	n := 0
	for _, s := range c.Shards {
		n += s.Data.Size()
	}
	return n
}

// Range iterates all committed entries in unspecified order.
func (c *Collection) Range(fn func(key string, value []byte) bool) {
	for _, s := range c.Shards {
		cont := true
		s.Data.Range(func(key string, value []byte) bool {
			cont = fn(key, value)
			return cont
		})
		if !cont {
			return
		}
	}
}
