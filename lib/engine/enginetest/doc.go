// Package enginetest provides a shared conformance test suite for storage
// engine implementations. Every engine package runs RunEngineTests against
// its own factory so all engines are held to the same transactional
// contract, including the asynchronous terminal signal on Txn.Done.
package enginetest
