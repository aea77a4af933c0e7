// Package memoryhost provides an in-memory sessions.Registry suitable for
// single-process servers and tests. All state is ephemeral and discarded on
// process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Expiry            : per-entry TTL, purged by a background janitor
//	Concurrency       : safe
//
// Entries are normally removed by the connection that registered them. The
// TTL only bounds growth when that cleanup never runs; configure it to exceed
// the longest stream lifetime.
//
// Example:
//
//	reg := memoryhost.New(memoryhost.WithTTL(2 * time.Minute))
//	defer reg.Close()
//	// the stream handler is constructed with reg
package memoryhost
