package server_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/collection/ctesting"
	"github.com/shelfdb/shelf/rpc/client"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/server"
	"github.com/shelfdb/shelf/rpc/transport/unix"
)

// startServer spins up a unix-socket server with a pool of empty
// collections and returns the matching client configuration.
func startServer(t *testing.T, collections []string) common.ClientConfig {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "shelf.sock")
	cfg := common.ServerConfig{
		Endpoint:      sock,
		TimeoutSecond: 10,
		Databases: []common.DatabaseConfig{{
			ID:          1,
			Name:        "testdb",
			Collections: collections,
		}},
	}

	srv := server.NewRPCServer(cfg, unix.NewUnixServerTransport(), serializer.NewBinarySerializer())
	go srv.Serve() //nolint:errcheck // Listen blocks until the process ends

	// Wait for the socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server socket %s never appeared", sock)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return common.ClientConfig{
		Endpoints:     []string{sock},
		TimeoutSecond: 10,
		RetryCount:    3,
	}
}

// TestRPCCollectionConformance runs the shared collection suite against the
// remote client, proving embedded and remote access behave identically.
func TestRPCCollectionConformance(t *testing.T) {
	var pool []string
	for i := 0; i < 16; i++ {
		pool = append(pool, fmt.Sprintf("c%d", i))
	}
	clientCfg := startServer(t, pool)

	var next atomic.Int32
	ctesting.RunCollectionTests(t, "RPCClient", func(t *testing.T) collection.ICollection {
		idx := int(next.Add(1)) - 1
		require.Less(t, idx, len(pool), "collection pool exhausted")

		col, err := client.NewRPCCollection(1, pool[idx], clientCfg,
			unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
		require.NoError(t, err)
		return col
	})
}

func TestRPCDefaultCollection(t *testing.T) {
	clientCfg := startServer(t, []string{"users", "tickets"})

	// Empty collection name addresses the database default
	def, err := client.NewRPCCollection(1, "", clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	users, err := client.NewRPCCollection(1, "users", clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	rec, err := def.Add(collection.Record{"name": "ada"})
	require.NoError(t, err)

	got, err := users.Get(rec["id"])
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ada", got["name"])
}

func TestRPCUnknownCollection(t *testing.T) {
	clientCfg := startServer(t, []string{"users"})

	col, err := client.NewRPCCollection(1, "nope", clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	_, err = col.Add(collection.Record{"name": "x"})
	require.Error(t, err)
	require.Equal(t, collection.RetCCollectionNotFound, collection.CodeOf(err))
}

func TestRPCUnknownDatabase(t *testing.T) {
	clientCfg := startServer(t, []string{"users"})

	col, err := client.NewRPCCollection(99, "users", clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	_, err = col.Count()
	require.Error(t, err)
}

func TestRPCStats(t *testing.T) {
	clientCfg := startServer(t, []string{"users"})

	col, err := client.NewRPCCollection(1, "users", clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := col.Add(collection.Record{"name": fmt.Sprintf("user-%d", i)})
		require.NoError(t, err)
	}

	stats, err := col.Stats()
	require.NoError(t, err)
	require.Equal(t, "users", stats.Collection)
	require.Equal(t, 5, stats.Count)
	require.Greater(t, stats.TotalBytes, int64(0))
}

func TestRPCLockManager(t *testing.T) {
	clientCfg := startServer(t, []string{"users"})

	locks, err := client.NewRPCLockMgr(1, clientCfg,
		unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	ok, owner, err := locks.AcquireLock("migration", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, owner)

	// Second acquire fails while the lock is held
	ok, _, err = locks.AcquireLock("migration", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// Release with the wrong owner fails, with the right one succeeds
	ok, err = locks.ReleaseLock("migration", "not-the-owner")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = locks.ReleaseLock("migration", owner)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = locks.AcquireLock("migration", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
