package sdk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

// failingStorage fails every write.
type failingStorage struct {
	storage.Storage
}

func (failingStorage) Set(ctx context.Context, key, value string) error {
	return errors.New("disk full")
}

func (failingStorage) Remove(ctx context.Context, key string) error {
	return errors.New("disk full")
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	s := NewSessionStore(storage.NewMemoryStorage(), "", telemetry.NewNopLogger(), obs)
	assert.Equal(t, DefaultSessionKey, s.Key())
	assert.Nil(t, s.Load(ctx))

	session := &Session{
		SessionID: "sess-1",
		User:      User{ID: "u-1", UserType: "admin", Extra: map[string]any{"theme": "dark"}},
		ExpiresAt: "2030-01-01 00:00:00",
	}
	require.NoError(t, s.Save(ctx, session))

	loaded := s.Load(ctx)
	require.NotNil(t, loaded)
	assert.Equal(t, "sess-1", loaded.SessionID)
	assert.Equal(t, session.ExpiresAt, loaded.ExpiresAt)
	assert.Equal(t, "dark", loaded.User.Extra["theme"])

	require.NoError(t, s.Clear(ctx))
	assert.Nil(t, s.Load(ctx))
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, []bool{true, false, false}, obs.sessions)
}

func TestSessionStoreWriteFailures(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(failingStorage{storage.NewMemoryStorage()}, "k", telemetry.NewNopLogger(), nil)

	err := s.Save(ctx, &Session{SessionID: "x"})
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, s.Clear(ctx), ErrStorage)
}

func TestSessionStorePrefixedBackend(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	s := NewSessionStore(storage.Prefixed(mem, "tenant-a:"), "", telemetry.NewNopLogger(), nil)

	require.NoError(t, s.Save(ctx, &Session{SessionID: "x"}))
	_, ok, err := mem.Get(ctx, "tenant-a:"+DefaultSessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
}
