package registrytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/sessions"
)

// RegistryFactory creates a new Registry instance for testing.
type RegistryFactory func(t *testing.T) sessions.Registry

// Stream is a minimal sessions.Stream for exercising registries.
type Stream struct {
	id     string
	opened time.Time
}

// NewStream returns a distinct stream registered under id.
func NewStream(id string) *Stream {
	return &Stream{id: id, opened: time.Now()}
}

func (s *Stream) SessionID() string   { return s.id }
func (s *Stream) OpenedAt() time.Time { return s.opened }

// RunRegistryTests runs the complete Registry test suite against the provided factory.
func RunRegistryTests(t *testing.T, factory RegistryFactory) {
	t.Run("RegisterThenLookup", func(t *testing.T) { testRegisterThenLookup(t, factory) })
	t.Run("LookupMissing", func(t *testing.T) { testLookupMissing(t, factory) })
	t.Run("UnregisterRemoves", func(t *testing.T) { testUnregisterRemoves(t, factory) })
	t.Run("UnregisterIsIdempotent", func(t *testing.T) { testUnregisterIdempotent(t, factory) })
	t.Run("ReplacementSurvivesStaleCleanup", func(t *testing.T) { testReplacementSurvivesStaleCleanup(t, factory) })
	t.Run("IsolationBetweenSessions", func(t *testing.T) { testIsolation(t, factory) })
	t.Run("ConcurrentConnections", func(t *testing.T) { testConcurrent(t, factory) })
}

func testRegisterThenLookup(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	s := NewStream("sess-1")
	if err := r.Register(ctx, s); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := r.Lookup(ctx, "sess-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != sessions.Stream(s) {
		t.Fatalf("lookup returned a different stream")
	}
	if want, got := 1, r.Len(); want != got {
		t.Fatalf("len: want %d got %d", want, got)
	}
}

func testLookupMissing(t *testing.T, factory RegistryFactory) {
	r := factory(t)

	if _, err := r.Lookup(context.Background(), "nope"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testUnregisterRemoves(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	s := NewStream("sess-1")
	if err := r.Register(ctx, s); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	removed, err := r.Unregister(ctx, s)
	if err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if !removed {
		t.Fatalf("expected entry to be removed")
	}
	if _, err := r.Lookup(ctx, "sess-1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after unregister, got %v", err)
	}
	if want, got := 0, r.Len(); want != got {
		t.Fatalf("len: want %d got %d", want, got)
	}
}

func testUnregisterIdempotent(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	s := NewStream("sess-1")
	if err := r.Register(ctx, s); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := r.Unregister(ctx, s); err != nil {
		t.Fatalf("first unregister failed: %v", err)
	}

	removed, err := r.Unregister(ctx, s)
	if err != nil {
		t.Fatalf("second unregister failed: %v", err)
	}
	if removed {
		t.Fatalf("second unregister should be a no-op")
	}
}

func testReplacementSurvivesStaleCleanup(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	older := NewStream("shared")
	newer := NewStream("shared")
	if err := r.Register(ctx, older); err != nil {
		t.Fatalf("register older failed: %v", err)
	}
	if err := r.Register(ctx, newer); err != nil {
		t.Fatalf("register newer failed: %v", err)
	}

	removed, err := r.Unregister(ctx, older)
	if err != nil {
		t.Fatalf("unregister older failed: %v", err)
	}
	if removed {
		t.Fatalf("stale cleanup must not evict the newer stream")
	}

	got, err := r.Lookup(ctx, "shared")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != sessions.Stream(newer) {
		t.Fatalf("expected the newer stream to remain registered")
	}
}

func testIsolation(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	a, b := NewStream("a"), NewStream("b")
	if err := r.Register(ctx, a); err != nil {
		t.Fatalf("register a failed: %v", err)
	}
	if err := r.Register(ctx, b); err != nil {
		t.Fatalf("register b failed: %v", err)
	}
	if _, err := r.Unregister(ctx, a); err != nil {
		t.Fatalf("unregister a failed: %v", err)
	}

	if _, err := r.Lookup(ctx, "b"); err != nil {
		t.Fatalf("session b should be unaffected: %v", err)
	}
	if want, got := 1, r.Len(); want != got {
		t.Fatalf("len: want %d got %d", want, got)
	}
}

func testConcurrent(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewStream(fmt.Sprintf("sess-%d", i))
			if err := r.Register(ctx, s); err != nil {
				errCh <- err
				return
			}
			if removed, err := r.Unregister(ctx, s); err != nil || !removed {
				errCh <- fmt.Errorf("unregister %s: removed=%v err=%v", s.SessionID(), removed, err)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
	if want, got := 0, r.Len(); want != got {
		t.Fatalf("len: want %d got %d", want, got)
	}
}
