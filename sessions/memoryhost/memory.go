package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/mcp-chatmi-bridge/sessions"
	"github.com/patrickmn/go-cache"
)

const (
	defaultTTL             = 2 * time.Minute
	defaultCleanupInterval = time.Minute
)

// Option configures a Host.
type Option func(*Host)

// WithTTL sets how long an entry may live without being unregistered.
func WithTTL(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.ttl = d
		}
	}
}

// WithCleanupInterval sets how often expired entries are purged.
func WithCleanupInterval(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.cleanup = d
		}
	}
}

// Host is an in-memory implementation of sessions.Registry. Registered
// streams must be comparable (pointer types in practice).
type Host struct {
	ttl     time.Duration
	cleanup time.Duration

	// mu makes the read-compare-delete in Unregister atomic with Register.
	mu    sync.Mutex
	items *cache.Cache
}

func New(opts ...Option) *Host {
	h := &Host{ttl: defaultTTL, cleanup: defaultCleanupInterval}
	for _, opt := range opts {
		opt(h)
	}
	h.items = cache.New(h.ttl, h.cleanup)
	return h
}

func (h *Host) Register(ctx context.Context, s sessions.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items.Set(s.SessionID(), s, cache.DefaultExpiration)
	return nil
}

func (h *Host) Unregister(_ context.Context, s sessions.Stream) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.items.Get(s.SessionID())
	if !ok {
		return false, nil
	}
	if existing, _ := cur.(sessions.Stream); existing != s {
		return false, nil
	}
	h.items.Delete(s.SessionID())
	return true, nil
}

func (h *Host) Lookup(ctx context.Context, sessionID string) (sessions.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur, ok := h.items.Get(sessionID)
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	s, ok := cur.(sessions.Stream)
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	return s, nil
}

// Len reports the number of entries, including expired entries the janitor
// has not purged yet.
func (h *Host) Len() int {
	return h.items.ItemCount()
}

// Close drops every entry.
func (h *Host) Close() error {
	h.items.Flush()
	return nil
}

// Interface compliance
var _ sessions.Registry = (*Host)(nil)
