package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/collection/ctesting"
)

func TestProxyConformance(t *testing.T) {
	ctesting.RunCollectionTests(t, "Proxy", func(t *testing.T) collection.ICollection {
		mgr := newTestManager(t, "users")
		col, err := mgr.Collection("users")
		require.NoError(t, err)
		return col
	})
}
