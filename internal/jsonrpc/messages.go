package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response represents a JSON-RPC response. The id member is always present
// and is null when the originating request could not be identified.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *RequestID      `json:"id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewRawResultResponse builds a successful JSON-RPC response around an
// already-encoded JSON result.
func NewRawResultResponse(id *RequestID, result json.RawMessage) *Response {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         result,
		ID:             id,
	}
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// DecodeRequest parses and validates a single JSON-RPC 2.0 request.
//
// Every failure wraps ErrInvalidRequest. When the payload was a JSON object
// the returned Request is non-nil even on failure so that callers can echo
// whatever id the client supplied.
func DecodeRequest(data []byte) (*Request, error) {
	type rawRequest struct {
		JSONRPCVersion json.RawMessage `json:"jsonrpc"`
		Method         json.RawMessage `json:"method"`
		Params         json.RawMessage `json:"params"`
		ID             json.RawMessage `json:"id"`
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidRequest)
	}

	var raw rawRequest
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req := &Request{}
	if !isNull(raw.Params) {
		req.Params = raw.Params
	}

	var idErr error
	if !isNull(raw.ID) {
		var id RequestID
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			idErr = err
		} else {
			req.ID = &id
		}
	}

	if !isNull(raw.JSONRPCVersion) {
		if err := json.Unmarshal(raw.JSONRPCVersion, &req.JSONRPCVersion); err != nil {
			return req, fmt.Errorf("%w: jsonrpc member must be a string", ErrInvalidRequest)
		}
	}
	if req.JSONRPCVersion != ProtocolVersion {
		return req, fmt.Errorf("%w: expected jsonrpc %q, got %q", ErrInvalidRequest, ProtocolVersion, req.JSONRPCVersion)
	}

	if !isNull(raw.Method) {
		if err := json.Unmarshal(raw.Method, &req.Method); err != nil {
			return req, fmt.Errorf("%w: method member must be a string", ErrInvalidRequest)
		}
	}
	if req.Method == "" {
		return req, fmt.Errorf("%w: method is required", ErrInvalidRequest)
	}

	if idErr != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, idErr)
	}

	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
