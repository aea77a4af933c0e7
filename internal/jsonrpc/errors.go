package jsonrpc

import "errors"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

const (
	// MessageInvalidRequest is the canonical message paired with ErrorCodeInvalidRequest.
	MessageInvalidRequest = "Invalid Request"
	// MessageInternalError is used when a failure carries no description of its own.
	MessageInternalError = "Internal error"
)

// ErrInvalidRequest is returned by DecodeRequest for any payload that is not a
// well-formed JSON-RPC 2.0 request.
var ErrInvalidRequest = errors.New("invalid JSON-RPC request")
