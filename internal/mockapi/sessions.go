package mockapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/sdk"
)

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
)

// Account is a user that can log in.
type Account struct {
	UserName string
	User     sdk.User
}

// DemoAccounts returns the accounts the mock backend starts with.
func DemoAccounts() []Account {
	return []Account{
		{
			UserName: "admin",
			User: sdk.User{
				ID:       "user-admin",
				Email:    "admin@pubflow.local",
				Name:     "PubFlow Admin",
				UserType: "admin",
				Roles:    []string{"admin", "editor"},
				Extra:    map[string]any{"userName": "admin"},
			},
		},
		{
			UserName: "editor",
			User: sdk.User{
				ID:       "user-editor",
				Email:    "editor@pubflow.local",
				Name:     "PubFlow Editor",
				UserType: "user",
				Roles:    []string{"editor"},
				Extra:    map[string]any{"userName": "editor"},
			},
		},
	}
}

// SessionManager issues and validates sessions for a fixed set of
// accounts sharing one password.
type SessionManager struct {
	mu       sync.Mutex
	accounts []Account
	password string
	ttl      time.Duration
	sessions map[string]*sdk.Session
	now      func() time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(accounts []Account, password string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		accounts: accounts,
		password: password,
		ttl:      ttl,
		sessions: make(map[string]*sdk.Session),
		now:      time.Now,
	}
}

// Login checks creds and opens a session.
func (m *SessionManager) Login(creds sdk.Credentials) (*sdk.Session, error) {
	account, ok := m.find(creds)
	if !ok || creds.Password != m.password {
		return nil, ErrInvalidCredentials
	}

	now := m.now().UTC()
	session := &sdk.Session{
		SessionID:  uuid.NewString(),
		User:       account.User,
		ExpiresAt:  sdk.FormatTimestamp(now.Add(m.ttl)),
		LastUsedAt: sdk.FormatTimestamp(now),
	}

	m.mu.Lock()
	m.sessions[session.SessionID] = session
	m.mu.Unlock()

	out := *session
	return &out, nil
}

func (m *SessionManager) find(creds sdk.Credentials) (Account, bool) {
	for _, a := range m.accounts {
		if creds.Email != "" && strings.EqualFold(a.User.Email, creds.Email) {
			return a, true
		}
		if creds.UserName != "" && a.UserName == creds.UserName {
			return a, true
		}
	}
	return Account{}, false
}

// Validate returns the session with id and marks it used. Expired
// sessions are removed.
func (m *SessionManager) Validate(id string) (*sdk.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionExpired
	}
	now := m.now().UTC()
	if session.Expired(now) {
		delete(m.sessions, id)
		return nil, ErrSessionExpired
	}
	session.LastUsedAt = sdk.FormatTimestamp(now)

	out := *session
	return &out, nil
}

// Logout ends the session. Unknown ids are ignored.
func (m *SessionManager) Logout(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval).Info("Session sweeper started")
	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.WithField("removed", n).Debug("Expired sessions removed")
			}
		case <-ctx.Done():
			logger.Info("Session sweeper stopped")
			return
		}
	}
}
