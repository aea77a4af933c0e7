package memoryhost

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/sessions"
	"github.com/ggoodman/mcp-chatmi-bridge/sessions/registrytest"
)

func TestMemoryRegistry(t *testing.T) {
	registrytest.RunRegistryTests(t, func(t *testing.T) sessions.Registry {
		h := New()
		t.Cleanup(func() { _ = h.Close() })
		return h
	})
}

func TestExpiredEntriesArePurged(t *testing.T) {
	h := New(WithTTL(20*time.Millisecond), WithCleanupInterval(5*time.Millisecond))
	defer h.Close()

	ctx := context.Background()
	s := registrytest.NewStream("leaky")
	if err := h.Register(ctx, s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("entry was not purged, len=%d", h.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := h.Lookup(ctx, "leaky"); err != sessions.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
