package ssehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/internal/httpx"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/logctx"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/metrics"
	"github.com/ggoodman/mcp-chatmi-bridge/sessions"
	"github.com/google/uuid"
)

var (
	_ http.Handler    = (*Handler)(nil)
	_ sessions.Stream = (*stream)(nil)
)

var allowedMethods = []string{http.MethodGet, http.MethodOptions}

const (
	methodNotAllowedMessage = "Method not allowed. Use GET for SSE connection."

	// SessionQueryParam names the query parameter carrying the session id.
	SessionQueryParam = "session"

	// DefaultKeepAliveInterval is the period between ping comments.
	DefaultKeepAliveInterval = 15 * time.Second
	// DefaultMaxDuration stays under the 60s execution ceiling of common
	// serverless hosts.
	DefaultMaxDuration = 50 * time.Second

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the slog logger used by the handler. If not provided, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithKeepAliveInterval sets the period between ping comments.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithMaxDuration sets how long a stream stays open before the server ends it.
func WithMaxDuration(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.maxDuration = d
		}
	}
}

// WithClock overrides the time source used for connection timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler serves a keep-alive event stream per session.
type Handler struct {
	registry    sessions.Registry
	log         *slog.Logger
	keepAlive   time.Duration
	maxDuration time.Duration
	now         func() time.Time
}

// New constructs a Handler that records open streams in registry.
func New(registry sessions.Registry, opts ...Option) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	h := &Handler{
		registry:    registry,
		log:         slog.Default(),
		keepAlive:   DefaultKeepAliveInterval,
		maxDuration: DefaultMaxDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h, nil
}

// connectionEvent is the first event written on every stream.
type connectionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// stream is the registry entry for one open connection.
type stream struct {
	id     string
	opened time.Time
}

func (s *stream) SessionID() string   { return s.id }
func (s *stream) OpenedAt() time.Time { return s.opened }

// lockedWriteFlusher serializes writes and flushes and refuses to write once
// ctx is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ctx.Err(); err != nil {
		return 0, err
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})

	if httpx.HandlePreflight(w, r, allowedMethods...) {
		h.log.DebugContext(ctx, "http.options.ok")
		return
	}
	if r.Method != http.MethodGet {
		httpx.WriteMethodNotAllowed(w, methodNotAllowedMessage)
		h.log.WarnContext(ctx, "http.method.not_allowed")
		return
	}

	h.handleGet(ctx, w, r)
}

func (h *Handler) handleGet(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	sessionID := r.URL.Query().Get(SessionQueryParam)
	if sessionID == "" {
		sessionID = sessions.DefaultSessionID
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})

	st := &stream{id: sessionID, opened: h.now()}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.log.InfoContext(ctx, "sse.stream.start")
	metrics.RecordStreamOpened()

	payload, err := json.Marshal(connectionEvent{
		Type:      "connection",
		SessionID: sessionID,
		Timestamp: st.opened.UTC().Format(timestampLayout),
	})
	if err != nil {
		h.log.ErrorContext(ctx, "sse.connection.encode.fail", slog.String("err", err.Error()))
		metrics.RecordStreamClosed(metrics.EndWriteError)
		return
	}
	if err := writeSSEEvent(wf, payload); err != nil {
		h.log.WarnContext(ctx, "sse.connection.write.fail", slog.String("err", err.Error()))
		metrics.RecordStreamClosed(metrics.EndWriteError)
		return
	}

	if err := h.registry.Register(ctx, st); err != nil {
		h.log.ErrorContext(ctx, "sse.session.register.fail", slog.String("err", err.Error()))
	}
	defer func() {
		// The request context is usually done by now.
		removed, err := h.registry.Unregister(context.WithoutCancel(ctx), st)
		if err != nil {
			h.log.ErrorContext(ctx, "sse.session.unregister.fail", slog.String("err", err.Error()))
			return
		}
		h.log.DebugContext(ctx, "sse.session.unregister", slog.Bool("removed", removed))
	}()

	reason := h.pump(ctx, wf)
	metrics.RecordStreamClosed(reason)
	h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", reason), slog.Duration("dur", time.Since(st.opened)))
}

// pump writes keep-alive comments until the stream's lifetime elapses, the
// client goes away or a write fails. It returns the reason the stream ended.
func (h *Handler) pump(ctx context.Context, wf *lockedWriteFlusher) string {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	deadline := time.NewTimer(h.maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.client.disconnect")
			return metrics.EndDisconnect
		case <-deadline.C:
			h.log.InfoContext(ctx, "sse.timeout", slog.Duration("max_duration", h.maxDuration))
			return metrics.EndTimeout
		case <-ticker.C:
			if err := writeSSEComment(wf, "ping"); err != nil {
				if ctx.Err() != nil {
					h.log.InfoContext(ctx, "sse.client.disconnect")
					return metrics.EndDisconnect
				}
				h.log.WarnContext(ctx, "sse.ping.write.fail", slog.String("err", err.Error()))
				return metrics.EndWriteError
			}
			h.log.DebugContext(ctx, "sse.ping")
		}
	}
}

func writeSSEEvent(wf *lockedWriteFlusher, payload []byte) error {
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE event terminator: %w", err)
	}
	wf.Flush()
	return nil
}

func writeSSEComment(wf *lockedWriteFlusher, comment string) error {
	if _, err := fmt.Fprintf(wf, ":%s\n\n", comment); err != nil {
		return fmt.Errorf("failed to write SSE comment: %w", err)
	}
	wf.Flush()
	return nil
}
