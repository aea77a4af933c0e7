package chatmi

const (
	// EventNewMessage is the only event type the bridge emits.
	EventNewMessage = "new_message"

	// DefaultChatID is the fixed chat all bridged traffic is attributed to.
	DefaultChatID = "mcp-session"

	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "https://admin.chatme.ai/connector/webim/webim_message/a7e28b914256ab13395ec974e7bb9548/bot_api_webhook"
)

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID string `json:"id"`
}

// Request is the webhook envelope.
type Request struct {
	Event string `json:"event"`
	Chat  Chat   `json:"chat"`
	Text  string `json:"text"`
}

// Message is a single bot reply.
type Message struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Response is the webhook reply body.
type Response struct {
	HasAnswer bool      `json:"has_answer"`
	Messages  []*Message `json:"messages"`
}

// FirstText returns the text of the first message when the response carries
// an answer. A null first message is not an answer.
func (r *Response) FirstText() (string, bool) {
	if r == nil || !r.HasAnswer || len(r.Messages) == 0 || r.Messages[0] == nil {
		return "", false
	}
	return r.Messages[0].Text, true
}
