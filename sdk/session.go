package sdk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

// SessionStore persists the single active session under one storage key.
// Writes replace the whole value, so concurrent readers observe either the
// old or the new session.
type SessionStore struct {
	store    storage.Storage
	key      string
	logger   logrus.FieldLogger
	observer Observer
}

// NewSessionStore creates a store that keeps the session under key.
func NewSessionStore(s storage.Storage, key string, logger logrus.FieldLogger, observer Observer) *SessionStore {
	if key == "" {
		key = DefaultSessionKey
	}
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &SessionStore{store: s, key: key, logger: logger, observer: observer}
}

// Key returns the storage key.
func (s *SessionStore) Key() string {
	return s.key
}

// Load returns the persisted session, or nil when none is stored. Corrupt
// data and storage failures are logged and also yield nil.
func (s *SessionStore) Load(ctx context.Context) *Session {
	raw, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.logger.WithError(err).WithField("key", s.key).Warn("Failed to read session")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.WithError(err).WithField("key", s.key).Warn("Discarding corrupt session")
		return nil
	}
	return &session
}

// Save replaces the persisted session.
func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.store.Set(ctx, s.key, string(data)); err != nil {
		return NewErrorWithCode(ErrorTypeStorage, CodeStorageError, "failed to persist session", err)
	}
	s.observer.OnSessionChange(true)
	return nil
}

// Clear removes the persisted session. Clearing an empty store succeeds.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, s.key); err != nil {
		return NewErrorWithCode(ErrorTypeStorage, CodeStorageError, "failed to clear session", err)
	}
	s.observer.OnSessionChange(false)
	return nil
}
