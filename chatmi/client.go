package chatmi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/internal/logctx"
)

// maxErrorBody bounds how much of a failed reply is read before the
// connection is released.
const maxErrorBody = 4 << 10

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for webhook calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each webhook call. Zero means no limit beyond what the
// transport and the caller's context impose.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithChatID overrides the chat id sent with every event.
func WithChatID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.chatID = id
		}
	}
}

// WithLogger sets the logger used by the client. If not provided, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client posts messages to a Chatmi webhook.
type Client struct {
	endpoint string
	chatID   string
	timeout  time.Duration
	http     *http.Client
	log      *slog.Logger
}

// New returns a Client for the given webhook endpoint. An empty endpoint
// selects DefaultEndpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL %q: %w", endpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("webhook URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}

	c := &Client{
		endpoint: u.String(),
		chatID:   DefaultChatID,
		http:     http.DefaultClient,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = slog.New(logctx.Handler{Handler: c.log.Handler()})
	return c, nil
}

// Endpoint returns the webhook URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Send delivers text as a new_message event and returns the text of the
// first message in the reply.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	res, err := c.Post(ctx, text)
	if err != nil {
		return "", err
	}
	out, ok := res.FirstText()
	if !ok {
		c.log.WarnContext(ctx, "chatmi.answer.missing", slog.Bool("has_answer", res.HasAnswer), slog.Int("messages", len(res.Messages)))
		return "", ErrNoAnswer
	}
	return out, nil
}

// Post delivers text as a new_message event and returns the decoded reply.
func (c *Client) Post(ctx context.Context, text string) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(Request{
		Event: EventNewMessage,
		Chat:  Chat{ID: c.chatID},
		Text:  text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode Chatmi request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build Chatmi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.DebugContext(ctx, "chatmi.request.start", slog.Int("bytes", len(body)))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "chatmi.request.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return nil, fmt.Errorf("Chatmi request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, StatusText: statusText(resp)}
		c.log.ErrorContext(ctx, "chatmi.response.status", slog.Int("status", resp.StatusCode), slog.Duration("dur", time.Since(start)))
		return nil, serr
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.ErrorContext(ctx, "chatmi.response.decode.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("failed to decode Chatmi response: %w", err)
	}

	c.log.DebugContext(ctx, "chatmi.request.ok", slog.Int("status", resp.StatusCode), slog.Duration("dur", time.Since(start)))
	return &out, nil
}

// statusText extracts the reason phrase the webhook actually sent, falling
// back to the canonical text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
