package ssehttp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/internal/logtest"
	"github.com/ggoodman/mcp-chatmi-bridge/sessions"
	"github.com/ggoodman/mcp-chatmi-bridge/sessions/memoryhost"
	"github.com/ggoodman/mcp-chatmi-bridge/ssehttp"
)

func TestStreamLifecycle(t *testing.T) {
	fixed := time.Date(2024, 3, 5, 7, 9, 11, 123_000_000, time.FixedZone("X", 2*60*60))
	reg := newRegistry(t)
	srv := newServer(t, reg,
		ssehttp.WithKeepAliveInterval(20*time.Millisecond),
		ssehttp.WithMaxDuration(150*time.Millisecond),
		ssehttp.WithClock(func() time.Time { return fixed }),
	)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if want, got := http.StatusOK, resp.StatusCode; want != got {
		t.Fatalf("status: want %d got %d", want, got)
	}
	for header, want := range map[string]string{
		"Content-Type":                 "text/event-stream",
		"Cache-Control":                "no-cache, no-transform",
		"Connection":                   "keep-alive",
		"X-Accel-Buffering":            "no",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s: want %q got %q", header, want, got)
		}
	}

	rd := bufio.NewReader(resp.Body)
	first := readFrame(t, rd)
	if !strings.HasPrefix(first, "data: ") {
		t.Fatalf("expected a data frame first, got %q", first)
	}
	var evt map[string]string
	if err := json.Unmarshal([]byte(strings.TrimPrefix(first, "data: ")), &evt); err != nil {
		t.Fatalf("decode connection event: %v", err)
	}
	if want, got := "connection", evt["type"]; want != got {
		t.Fatalf("type: want %q got %q", want, got)
	}
	if want, got := "default", evt["sessionId"]; want != got {
		t.Fatalf("sessionId: want %q got %q", want, got)
	}
	if want, got := "2024-03-05T05:09:11.123Z", evt["timestamp"]; want != got {
		t.Fatalf("timestamp: want %q got %q", want, got)
	}

	waitFor(t, func() bool {
		_, err := reg.Lookup(context.Background(), "default")
		return err == nil
	})

	pings := 0
	for {
		frame, err := readFrameErr(rd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame != ":ping" {
			t.Fatalf("expected only ping comments after the connection event, got %q", frame)
		}
		pings++
	}
	if pings == 0 {
		t.Fatalf("expected at least one ping before the stream ended")
	}

	waitFor(t, func() bool { return reg.Len() == 0 })
}

func TestStreamSessionFromQuery(t *testing.T) {
	reg := newRegistry(t)
	srv := newServer(t, reg, ssehttp.WithMaxDuration(100*time.Millisecond))

	resp, err := http.Get(srv.URL + "?session=abc-123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var evt map[string]string
	frame := readFrame(t, bufio.NewReader(resp.Body))
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &evt); err != nil {
		t.Fatalf("decode connection event: %v", err)
	}
	if want, got := "abc-123", evt["sessionId"]; want != got {
		t.Fatalf("sessionId: want %q got %q", want, got)
	}
	waitFor(t, func() bool {
		s, err := reg.Lookup(context.Background(), "abc-123")
		return err == nil && s.SessionID() == "abc-123"
	})
}

func TestStreamClientDisconnect(t *testing.T) {
	reg := newRegistry(t)
	srv := newServer(t, reg, ssehttp.WithMaxDuration(30*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?session=gone", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	_ = readFrame(t, bufio.NewReader(resp.Body))
	waitFor(t, func() bool { return reg.Len() == 1 })

	cancel()

	// Well before the max duration.
	waitFor(t, func() bool { return reg.Len() == 0 })
}

func TestStaleDisconnectKeepsNewerStream(t *testing.T) {
	reg := newRegistry(t)
	srv := newServer(t, reg, ssehttp.WithMaxDuration(30*time.Second))

	open := func() (context.CancelFunc, *http.Response) {
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?session=dup", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			t.Fatalf("get: %v", err)
		}
		_ = readFrame(t, bufio.NewReader(resp.Body))
		return cancel, resp
	}

	cancelOld, oldResp := open()
	defer oldResp.Body.Close()
	defer cancelOld()
	waitFor(t, func() bool { return reg.Len() == 1 })
	first, _ := reg.Lookup(context.Background(), "dup")

	cancelNew, newResp := open()
	defer newResp.Body.Close()
	defer cancelNew()
	waitFor(t, func() bool {
		s, err := reg.Lookup(context.Background(), "dup")
		return err == nil && s != first
	})
	second, _ := reg.Lookup(context.Background(), "dup")

	cancelOld()
	// Give the old stream's cleanup time to run.
	time.Sleep(100 * time.Millisecond)

	got, err := reg.Lookup(context.Background(), "dup")
	if err != nil {
		t.Fatalf("newer stream was evicted: %v", err)
	}
	if got != second {
		t.Fatalf("expected the newer stream to remain registered")
	}
}

func TestStreamPreflightAndMethods(t *testing.T) {
	reg := newRegistry(t)
	srv := newServer(t, reg)

	t.Run("OPTIONS", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("options: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("status: want %d got %d", want, got)
		}
		if len(body) != 0 {
			t.Fatalf("expected empty body, got %q", body)
		}
		if want, got := "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"); want != got {
			t.Fatalf("allow methods: want %q got %q", want, got)
		}
		if reg.Len() != 0 {
			t.Fatalf("preflight must not register a session")
		}
	})

	t.Run("POST", func(t *testing.T) {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()

		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := http.StatusMethodNotAllowed, resp.StatusCode; want != got {
			t.Fatalf("status: want %d got %d", want, got)
		}
		if want, got := "Method not allowed. Use GET for SSE connection.", body["error"]; want != got {
			t.Fatalf("error: want %q got %q", want, got)
		}
	})
}

func TestDefaults(t *testing.T) {
	if want, got := 15*time.Second, ssehttp.DefaultKeepAliveInterval; want != got {
		t.Fatalf("keep-alive: want %s got %s", want, got)
	}
	if want, got := 50*time.Second, ssehttp.DefaultMaxDuration; want != got {
		t.Fatalf("max duration: want %s got %s", want, got)
	}
}

func TestNewRequiresRegistry(t *testing.T) {
	if _, err := ssehttp.New(nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

// ============================================================================
// Test utilities
// ============================================================================

func newRegistry(t *testing.T) *memoryhost.Host {
	t.Helper()
	reg := memoryhost.New()
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func newServer(t *testing.T, reg sessions.Registry, opts ...ssehttp.Option) *httptest.Server {
	t.Helper()
	opts = append([]ssehttp.Option{ssehttp.WithLogger(logtest.NewLogger(t))}, opts...)
	h, err := ssehttp.New(reg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// readFrameErr reads one blank-line terminated SSE frame without its
// terminator.
func readFrameErr(rd *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && len(lines) == 0 {
				return "", io.EOF
			}
			return "", err
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
}

func readFrame(t *testing.T, rd *bufio.Reader) string {
	t.Helper()
	frame, err := readFrameErr(rd)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
