// Package client implements the RPC clients. It provides implementations of
// the collection.ICollection and lockmgr.ILockManager interfaces that
// communicate with a remote server, so applications can switch between
// embedded and remote access without code changes.
//
// Key Components:
//
//   - NewRPCCollection: Factory function that creates a client implementing
//     collection.ICollection for one collection of one served database.
//     All operations are forwarded via the configured transport.
//
//   - NewRPCLockMgr: Factory function that creates a client implementing
//     lockmgr.ILockManager for advisory locking on a served database.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		Endpoints:     []string{"localhost:5000"},
//		TimeoutSecond: 5,
//		RetryCount:    3,
//	}
//
//	users, _ := client.NewRPCCollection(1, "users", config,
//		tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//
//	rec, _ := users.Add(collection.Record{"name": "ada"})
//	got, _ := users.Get(rec["id"])
//
//	locks, _ := client.NewRPCLockMgr(1, config,
//		tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	acquired, ownerID, _ := locks.AcquireLock("migration", 30*time.Second)
//	if acquired {
//		locks.ReleaseLock("migration", ownerID)
//	}
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - The choice of serializer significantly affects performance. The
//     binary serializer produces the smallest and fastest payloads.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently
//	from multiple goroutines without additional synchronization.
package client
