package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

// Manager resolves the stable per-profile session identifier. The identifier is
// read from storage once and cached for the lifetime of the Manager.
type Manager struct {
	mu      sync.Mutex
	storage store.Store
	key     string
	newID   func() string
	cached  string
}

// Option customises a Manager.
type Option func(*Manager)

// WithGenerator overrides the identifier generator.
func WithGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(m *Manager) { m.key = key }
}

// NewManager binds a Manager to the given storage.
func NewManager(storage store.Store, opts ...Option) *Manager {
	m := &Manager{
		storage: storage,
		key:     chat.SessionStorageKey,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the stored identifier, generating and persisting a new
// one when storage holds none. The returned value is always the one storage
// holds. On storage failure it returns "" with the error;
// callers must treat an empty identifier as not ready.
func (m *Manager) GetOrCreate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	existing, ok, err := m.storage.Get(ctx, m.key)
	if err != nil {
		return "", errors.Wrap(err, "read session id")
	}
	if ok && existing != "" {
		m.cached = existing
		return existing, nil
	}

	// Another process sharing the storage may create the id between the read
	// above and this write; whichever value landed first is the session id.
	candidate := m.newID()
	id, err := m.storage.SetIfAbsent(ctx, m.key, candidate)
	if err != nil {
		return "", errors.Wrap(err, "persist session id")
	}
	if id == candidate {
		log.Info().Str("session_id", id).Msg("created chatbot session")
	}

	m.cached = id
	return id, nil
}

// Reset removes the stored identifier so the next GetOrCreate issues a new one.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Delete(ctx, m.key); err != nil {
		return errors.Wrap(err, "delete session id")
	}
	m.cached = ""
	return nil
}
