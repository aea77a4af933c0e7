// Package ssehttp serves the bridge's keep-alive event stream.
//
// A GET opens a text/event-stream response for the session named by the
// "session" query parameter ("default" when absent). The handler writes one
// connection event:
//
//	data: {"type":"connection","sessionId":"<id>","timestamp":"<RFC 3339, ms, UTC>"}
//
// and then only ":ping" comments at the keep-alive interval until the maximum
// duration elapses or the client disconnects. Each open stream is recorded in
// a sessions.Registry for its lifetime; nothing is delivered through it.
package ssehttp
