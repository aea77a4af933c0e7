package chatmi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/chatmi"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/logctx"
	"github.com/ggoodman/mcp-chatmi-bridge/internal/logtest"
)

func TestClientSend(t *testing.T) {
	t.Run("posts the envelope and returns the first message", func(t *testing.T) {
		var got chatmi.Request
		var contentType string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method %s", r.Method)
			}
			contentType = r.Header.Get("Content-Type")
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"has_answer":true,"messages":[{"kind":"text","text":"first"},{"kind":"text","text":"second"}]}`))
		}))
		defer srv.Close()

		c := mustClient(t, srv.URL)
		out, err := c.Send(context.Background(), `{"method":"ping","params":{},"id":1}`)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if want := "first"; out != want {
			t.Fatalf("want %q got %q", want, out)
		}
		if want := "application/json"; contentType != want {
			t.Fatalf("content-type: want %q got %q", want, contentType)
		}
		if want := chatmi.EventNewMessage; got.Event != want {
			t.Fatalf("event: want %q got %q", want, got.Event)
		}
		if want := chatmi.DefaultChatID; got.Chat.ID != want {
			t.Fatalf("chat id: want %q got %q", want, got.Chat.ID)
		}
		if want := `{"method":"ping","params":{},"id":1}`; got.Text != want {
			t.Fatalf("text: want %q got %q", want, got.Text)
		}
	})

	t.Run("no answer", func(t *testing.T) {
		for _, body := range []string{
			`{"has_answer":false,"messages":[{"kind":"text","text":"ignored"}]}`,
			`{"has_answer":true,"messages":[]}`,
			`{"has_answer":true,"messages":[null]}`,
			`{}`,
		} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			c := mustClient(t, srv.URL)
			_, err := c.Send(context.Background(), "x")
			srv.Close()
			if !errors.Is(err, chatmi.ErrNoAnswer) {
				t.Fatalf("body %s: expected ErrNoAnswer, got %v", body, err)
			}
			if want := "No response from Chatmi"; err.Error() != want {
				t.Fatalf("message: want %q got %q", want, err.Error())
			}
		}
	})

	t.Run("empty first message text is still an answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"has_answer":true,"messages":[{"kind":"text","text":""}]}`))
		}))
		defer srv.Close()

		out, err := mustClient(t, srv.URL).Send(context.Background(), "x")
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if out != "" {
			t.Fatalf("want empty text, got %q", out)
		}
	})

	t.Run("custom chat id and http client", func(t *testing.T) {
		var got chatmi.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"has_answer":true,"messages":[{"kind":"text","text":"ok"}]}`))
		}))
		defer srv.Close()

		rt := &countingTransport{next: srv.Client().Transport}
		hc := srv.Client()
		hc.Transport = rt

		c := mustClient(t, srv.URL, chatmi.WithChatID("support-42"), chatmi.WithHTTPClient(hc))
		if _, err := c.Send(context.Background(), "x"); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if want := "support-42"; got.Chat.ID != want {
			t.Fatalf("chat id: want %q got %q", want, got.Chat.ID)
		}
		if want := 1; rt.calls != want {
			t.Fatalf("transport calls: want %d got %d", want, rt.calls)
		}
	})

	t.Run("failure logs carry request context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		var buf bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&buf, nil))
		c, err := chatmi.New(srv.URL, chatmi.WithLogger(log))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ctx := logctx.WithRequestData(context.Background(), &logctx.RequestData{RequestID: "req-1"})
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: "ping", ID: "7"})
		if _, err := c.Send(ctx, "x"); err == nil {
			t.Fatalf("expected error")
		}

		out := buf.String()
		if !strings.Contains(out, `"msg":"chatmi.response.status"`) {
			t.Fatalf("expected status log line, got %s", out)
		}
		if !strings.Contains(out, `"req":{"id":"req-1"`) {
			t.Fatalf("expected req group in log, got %s", out)
		}
		if !strings.Contains(out, `"rpc":{"method":"ping","id":"7"}`) {
			t.Fatalf("expected rpc group in log, got %s", out)
		}
	})

	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		c := mustClient(t, srv.URL)
		_, err := c.Send(context.Background(), "x")

		var serr *chatmi.StatusError
		if !errors.As(err, &serr) {
			t.Fatalf("expected *StatusError, got %T %v", err, err)
		}
		if want := http.StatusBadGateway; serr.StatusCode != want {
			t.Fatalf("status: want %d got %d", want, serr.StatusCode)
		}
		if want := "Chatmi API error: 502 Bad Gateway"; err.Error() != want {
			t.Fatalf("message: want %q got %q", want, err.Error())
		}
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer srv.Close()

		c := mustClient(t, srv.URL)
		if _, err := c.Send(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "decode Chatmi response") {
			t.Fatalf("expected decode error, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := mustClient(t, srv.URL, chatmi.WithTimeout(50*time.Millisecond))
		_, err := c.Send(context.Background(), "x")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("empty endpoint selects the default", func(t *testing.T) {
		c, err := chatmi.New("")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if want, got := chatmi.DefaultEndpoint, c.Endpoint(); want != got {
			t.Fatalf("want %q got %q", want, got)
		}
	})

	t.Run("rejects non-http schemes", func(t *testing.T) {
		if _, err := chatmi.New("ftp://example.com/hook"); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func mustClient(t *testing.T, endpoint string, opts ...chatmi.Option) *chatmi.Client {
	t.Helper()
	opts = append([]chatmi.Option{chatmi.WithLogger(logtest.NewLogger(t))}, opts...)
	c, err := chatmi.New(endpoint, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

type countingTransport struct {
	next  http.RoundTripper
	calls int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(r)
}
