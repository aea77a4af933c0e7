package chatmi

import (
	"errors"
	"fmt"
)

// ErrNoAnswer is returned when the webhook replied successfully but did not
// produce any message.
var ErrNoAnswer = errors.New("No response from Chatmi")

// StatusError reports a non-2xx reply from the webhook.
type StatusError struct {
	StatusCode int
	StatusText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Chatmi API error: %d %s", e.StatusCode, e.StatusText)
}
