// Package common provides core data structures and utilities shared across
// the RPC layer. It defines the wire protocol, configuration structures and
// error conversion used by the other rpc packages.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Conversion between typed collection errors and their wire form
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to different operation types. Records and search
//     criteria travel as encoded bytes so the wire shape is independent of
//     the chosen serializer. Includes factory methods for creating the
//     various request and response messages.
//
//   - MessageType: Enumeration defining all supported operation types,
//     categorized into collection operations, lock operations, and control
//     messages.
//
//   - ServerConfig: Configuration for server instances, including the served
//     databases (engine, schema, routing ID), network settings and socket
//     tuning knobs.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
package common
