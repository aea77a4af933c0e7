// Package chatmi is a small client for the Chatmi bot webhook.
//
// The webhook accepts a "new_message" event for a chat and replies
// synchronously with whatever the bot produced:
//
//	POST <endpoint>
//	{"event":"new_message","chat":{"id":"mcp-session"},"text":"..."}
//
//	200 OK
//	{"has_answer":true,"messages":[{"kind":"text","text":"..."}]}
//
// Client.Send posts a text payload and returns the text of the first answer
// message. Failures are reported as:
//
//	*StatusError   the webhook replied with a non-2xx status
//	ErrNoAnswer    the webhook replied but produced no message
//
// Transport failures are returned wrapped, so errors.Is against
// context.DeadlineExceeded and friends keeps working.
//
// Example:
//
//	c, err := chatmi.New(os.Getenv("CHATMI_ENDPOINT"), chatmi.WithTimeout(30*time.Second))
//	if err != nil {
//		return err
//	}
//	out, err := c.Send(ctx, `{"method":"ping","params":{},"id":1}`)
package chatmi
