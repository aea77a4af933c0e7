package messagehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/httpx"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/jsonrpc"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/logctx"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/metrics"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// allowedMethods are advertised on every response, preflight included.
var allowedMethods = []string{http.MethodPost, http.MethodOptions}

const (
	methodNotAllowedMessage = "Method not allowed. Use POST to send messages."

	// DefaultMaxBodyBytes caps inbound request bodies.
	DefaultMaxBodyBytes = 1 << 20
)

// Sender delivers an opaque text payload to the conversational backend and
// returns its textual answer. *chatmi.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
}

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

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// Handler bridges a JSON-RPC request onto a single webhook call.
type Handler struct {
	sender       Sender
	log          *slog.Logger
	maxBodyBytes int64
}

// New constructs a Handler that forwards requests through sender.
func New(sender Sender, opts ...Option) (*Handler, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	h := &Handler{sender: sender, log: slog.Default(), maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h, nil
}

// forwardedCall is the object serialized into the webhook's text field.
type forwardedCall struct {
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	ID     *jsonrpc.RequestID `json:"id,omitempty"`
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
	if r.Method != http.MethodPost {
		httpx.WriteMethodNotAllowed(w, methodNotAllowedMessage)
		h.log.WarnContext(ctx, "http.method.not_allowed")
		return
	}

	h.handlePost(ctx, w, r)
}

func (h *Handler) handlePost(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.log.WarnContext(ctx, "message.body.read.fail", slog.String("err", err.Error()))
		h.writeInvalid(ctx, w, nil)
		return
	}

	h.log.InfoContext(ctx, "message.inbound", slog.String("body", string(body)))

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "message.content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		h.writeInvalid(ctx, w, nil)
		return
	}

	req, err := jsonrpc.DecodeRequest(body)
	var id *jsonrpc.RequestID
	if req != nil {
		id = req.ID
	}
	if err != nil {
		h.log.WarnContext(ctx, "message.validation.fail", slog.String("err", err.Error()))
		h.writeInvalid(ctx, w, id)
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	// The webhook call runs to completion even if the client goes away.
	result, err := h.forward(context.WithoutCancel(ctx), req)
	if err != nil {
		h.log.ErrorContext(ctx, "message.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		msg := err.Error()
		if msg == "" {
			msg = jsonrpc.MessageInternalError
		}
		h.writeResponse(ctx, w, http.StatusInternalServerError, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, msg, nil))
		metrics.RecordMessage(metrics.OutcomeError)
		return
	}

	res := jsonrpc.NewRawResultResponse(id, result)
	if b, err := json.Marshal(res); err == nil {
		h.log.InfoContext(ctx, "message.response", slog.String("body", string(b)))
	}
	h.writeResponse(ctx, w, http.StatusOK, res)
	metrics.RecordMessage(metrics.OutcomeOK)
	h.log.InfoContext(ctx, "message.ok", slog.Duration("dur", time.Since(start)))
}

// forward serializes req into the webhook payload, performs the call and
// interprets the answer as the JSON-RPC result.
func (h *Handler) forward(ctx context.Context, req *jsonrpc.Request) (json.RawMessage, error) {
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	input, err := json.Marshal(forwardedCall{Method: req.Method, Params: params, ID: req.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook input: %w", err)
	}

	h.log.InfoContext(ctx, "chatmi.input", slog.String("text", string(input)))

	callStart := time.Now()
	output, err := h.sender.Send(ctx, string(input))
	metrics.ObserveWebhook(err == nil, time.Since(callStart))
	if err != nil {
		return nil, err
	}

	h.log.InfoContext(ctx, "chatmi.output", slog.String("text", output))

	return parseResult(ctx, h.log, output), nil
}

// parseResult returns output verbatim when it is JSON, otherwise the output
// encoded as a JSON string.
func parseResult(ctx context.Context, log *slog.Logger, output string) json.RawMessage {
	if json.Valid([]byte(output)) {
		return json.RawMessage(output)
	}
	log.WarnContext(ctx, "chatmi.output.parse.fail")
	b, _ := json.Marshal(output)
	return b
}

func (h *Handler) writeInvalid(ctx context.Context, w http.ResponseWriter, id *jsonrpc.RequestID) {
	h.writeResponse(ctx, w, http.StatusBadRequest, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidRequest, jsonrpc.MessageInvalidRequest, nil))
	metrics.RecordMessage(metrics.OutcomeInvalid)
}

func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, status int, res *jsonrpc.Response) {
	if err := httpx.WriteJSON(w, status, res); err != nil {
		h.log.ErrorContext(ctx, "message.write.fail", slog.String("err", err.Error()))
	}
}
