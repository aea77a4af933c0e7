package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC id: either a string or a number. Numbers keep their
// original textual form so that they are echoed back exactly as received. A
// nil *RequestID encodes as null.
type RequestID struct {
	raw   json.RawMessage
	str   string
	isStr bool
}

// StringID returns a string-valued id.
func StringID(s string) *RequestID {
	raw, _ := json.Marshal(s)
	return &RequestID{raw: raw, str: s, isStr: true}
}

// IntID returns a number-valued id.
func IntID(n int64) *RequestID {
	s := strconv.FormatInt(n, 10)
	return &RequestID{raw: json.RawMessage(s), str: s}
}

// IsString reports whether the id was given as a JSON string.
func (id *RequestID) IsString() bool {
	return id != nil && id.isStr
}

// IsNil reports whether id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.raw) == 0
}

// String returns the string value, or the number's literal text. It returns
// "" for a nil id.
func (id *RequestID) String() string {
	if id == nil {
		return ""
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Anything other than a string, a
// number or null is rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got empty input")
	case string(data) == "null":
		*id = RequestID{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid JSON-RPC ID: %w", err)
		}
		*id = RequestID{raw: append(json.RawMessage(nil), data...), str: s, isStr: true}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON-RPC ID: %w", err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
	}
	*id = RequestID{raw: json.RawMessage(n.String()), str: n.String()}
	return nil
}
