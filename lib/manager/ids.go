package manager

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shelfdb/shelf/lib/engine"
	"github.com/shelfdb/shelf/lib/ident"
)

// idAssigner picks identifiers for records inserted without one. It is
// created per transaction so that a batch sees its own earlier assignments:
// IDs handed out within one batch are folded into the used set before they
// are committed, which keeps them pairwise distinct.
type idAssigner struct {
	keys map[string]struct{}
	// integer stays true while every key (existing and assigned) parses
	// as an integer; pure-integer ID sets get max+1 semantics
	integer bool
	max     int64
}

// newIDAssigner reads the current key set of the collection.
func newIDAssigner(h engine.Handle) (*idAssigner, error) {
	a := &idAssigner{
		keys:    make(map[string]struct{}),
		integer: true,
	}
	err := h.Ascend(func(key string, _ []byte) bool {
		a.observe(key)
		return true
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// observe folds a key into the used set.
func (a *idAssigner) observe(key string) {
	a.keys[key] = struct{}{}
	if !a.integer {
		return
	}
	if n, ok := ident.AsInt(key); ok {
		if n > a.max {
			a.max = n
		}
	} else {
		a.integer = false
	}
}

// next assigns a fresh identifier. For pure-integer ID sets the next
// integer above the maximum is used; otherwise a timestamp plus a random
// discriminator, so concurrent inserts are exceedingly unlikely to collide.
// The returned value is what gets stored in the record's key field, the key
// is its normalized form.
func (a *idAssigner) next() (key string, value interface{}) {
	if a.integer {
		a.max++
		key = ident.MustNormalize(a.max)
		a.keys[key] = struct{}{}
		return key, a.max
	}

	id := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())
	a.keys[id] = struct{}{}
	return id, id
}
