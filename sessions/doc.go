// Package sessions defines the registry of open event-stream connections.
//
// A stream connection is keyed by the session identifier the client supplied
// when it connected. The registry is an explicitly owned store: it is created
// once at process start, handed to the stream handler when that handler is
// constructed, and closed on shutdown. Nothing is persisted.
//
// Lifecycle of an entry
//
//	connect     -> Register(stream)      entry created (or replaces a prior one)
//	timeout     -> Unregister(stream)    entry removed by its own connection
//	disconnect  -> Unregister(stream)    entry removed by its own connection
//	missed      -> expiry                entry purged after its TTL
//
// Unregister is conditional: it only removes the entry if it still belongs to
// the stream that asks. A reconnecting client that reuses its session id
// therefore cannot be evicted by the cleanup of its earlier connection.
//
// # Implementations
//
//	memoryhost : in-process registry with TTL-based purging
//
// registrytest holds the conformance suite every implementation must pass.
package sessions
