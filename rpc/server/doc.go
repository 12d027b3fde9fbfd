// Package server implements the RPC server. A server instance hosts any
// number of databases, each pairing a storage engine (hazel or badgerkv)
// with its declared collections and an advisory lock manager in the
// reserved "_locks" collection.
//
// Requests arrive through a pluggable transport (tcp, unix, http), are
// decoded by a pluggable serializer, routed to a database by the numeric
// ID carried in the frame, and dispatched to the collection or lock
// adapter by message type.
//
// Key Components:
//
//   - RPCServer: Owns the database map, the transport and the serializer;
//     Serve builds the databases and starts listening.
//
//   - IRPCServerAdapter: Adapter contract; one implementation handles
//     collection operations, one handles lock operations.
//
//   - Database: One served database (manager + lock manager), built from
//     its DatabaseConfig.
package server
