package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory builds the Store for one portal token. The token selects the
// keeper slot the store persists its platform session under.
type Factory func(portalToken string) *Store

// Registry maps portal cookie tokens to live stores. Stores evicted by a
// restart are rebuilt lazily from their persisted sessions on first use.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// NewRegistry constructs a Registry. idleTTL bounds how long an untouched
// store stays resident before Prune drops it.
func NewRegistry(factory Factory, idleTTL time.Duration, now func() time.Time, logger *slog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		now:     now,
		logger:  logger,
		entries: make(map[string]*registryEntry),
	}
}

// Create mints a fresh portal token with an initialized, signed-out store.
// The caller signs the store in afterwards and removes it when that fails.
func (r *Registry) Create(ctx context.Context) (string, *Store) {
	token := uuid.NewString()
	store := r.factory(token)
	store.Initialize(ctx)

	r.mu.Lock()
	r.entries[token] = &registryEntry{store: store, lastSeen: r.now()}
	r.mu.Unlock()
	return token, store
}

// Get returns the store for a portal token. An unknown token is rebuilt
// through the factory; it only takes a slot when a persisted session was
// actually restored, so stale cookies cannot fill the registry.
func (r *Registry) Get(ctx context.Context, token string) (*Store, bool) {
	if token == "" {
		return nil, false
	}

	r.mu.Lock()
	if entry, ok := r.entries[token]; ok {
		entry.lastSeen = r.now()
		store := entry.store
		r.mu.Unlock()
		return store, true
	}
	r.mu.Unlock()

	store := r.factory(token)
	store.Initialize(ctx)
	if _, ok := store.Session(); !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[token]; ok {
		// Another request restored the same token first.
		entry.lastSeen = r.now()
		return entry.store, true
	}
	r.entries[token] = &registryEntry{store: store, lastSeen: r.now()}
	r.logger.InfoContext(ctx, "session restored from persistence", "portal_token", token)
	return store, true
}

// Remove drops a token's store. Signing out and failed sign-ins both end
// here.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, token)
}

// Prune evicts stores idle longer than the registry TTL and reports how many
// it dropped. Persisted sessions survive eviction.
func (r *Registry) Prune() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for token, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, token)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of resident stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
