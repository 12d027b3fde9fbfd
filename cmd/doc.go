// Package cmd implements the command-line interface for the shelf
// collection store. It provides a hierarchical command structure with
// operations for running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - col: Commands for collection operations (add, get, search, etc.)
//   - lock: Commands for locking operations (acquire, release)
//   - serve: Commands for starting and configuring the shelf server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See shelf -help for a list of all commands.
package cmd
