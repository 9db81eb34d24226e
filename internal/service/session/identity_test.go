package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

type countingStore struct {
	*store.MemoryStore
	sets int
}

func (s *countingStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	s.sets++
	return s.MemoryStore.SetIfAbsent(ctx, key, value)
}

// gatedStore holds every Get until `readers` callers have read, so all of
// them observe an empty key before anyone writes.
type gatedStore struct {
	*store.MemoryStore
	readers sync.WaitGroup
}

func (s *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.MemoryStore.Get(ctx, key)
	s.readers.Done()
	s.readers.Wait()
	return value, ok, err
}

type brokenStore struct{ store.MemoryStore }

func (*brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unavailable")
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := &countingStore{MemoryStore: store.NewMemoryStore()}
	mgr := session.NewManager(storage)

	first, err := mgr.GetOrCreate(ctx)
	require.NoError(t, err)
	second, err := mgr.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, storage.sets)

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestGetOrCreateReusesStoredValueAcrossReload(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStore()

	a, err := session.NewManager(storage).GetOrCreate(ctx)
	require.NoError(t, err)

	// A fresh manager over the same storage models a page reload.
	b, err := session.NewManager(storage).GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	stored, ok, err := storage.Get(ctx, chat.SessionStorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, stored)
}

func TestGetOrCreateReturnsPreexistingValue(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStore()
	require.NoError(t, storage.Set(ctx, chat.SessionStorageKey, "s1"))

	got, err := session.NewManager(storage).GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", got)
}

func TestResetIssuesNewIdentifier(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(store.NewMemoryStore())

	before, err := mgr.GetOrCreate(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.Reset(ctx))
	after, err := mgr.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestGeneratedIdentifiersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStore()
	seen := make(map[string]struct{}, 1000)

	for i := 0; i < 1000; i++ {
		require.NoError(t, storage.Delete(ctx, chat.SessionStorageKey))
		id, err := session.NewManager(storage).GetOrCreate(ctx)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %s", id)
		seen[id] = struct{}{}
	}
}

func TestGetOrCreateStorageUnavailable(t *testing.T) {
	mgr := session.NewManager(&brokenStore{})

	id, err := mgr.GetOrCreate(context.Background())
	assert.Error(t, err)
	assert.Empty(t, id)
}

func TestWithGeneratorAndKey(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStore()
	mgr := session.NewManager(storage, session.WithGenerator(func() string { return "fixed" }), session.WithKey("alt"))

	id, err := mgr.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	stored, ok, _ := storage.Get(ctx, "alt")
	assert.True(t, ok)
	assert.Equal(t, "fixed", stored)
}

func TestConcurrentManagersAgreeOnOneIdentifier(t *testing.T) {
	ctx := context.Background()
	shared := &gatedStore{MemoryStore: store.NewMemoryStore()}
	shared.readers.Add(2)

	replicas := []*session.Manager{session.NewManager(shared), session.NewManager(shared)}
	ids := make([]string, len(replicas))

	var wg sync.WaitGroup
	for i, mgr := range replicas {
		wg.Add(1)
		go func(i int, mgr *session.Manager) {
			defer wg.Done()
			id, err := mgr.GetOrCreate(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}(i, mgr)
	}
	wg.Wait()

	stored, ok, err := shared.MemoryStore.Get(ctx, chat.SessionStorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored, ids[0])
	assert.Equal(t, stored, ids[1])
}
