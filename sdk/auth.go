package sdk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AuthService manages the session slot: login moves it from anonymous to
// authenticated, logout or a rejected validation moves it back.
//
// Example:
//
//	session, err := client.Auth().Login(ctx, sdk.Credentials{
//	    Email:    "ada@example.com",
//	    Password: "secret",
//	})
//	if sdk.IsAuthError(err) {
//	    // wrong credentials
//	}
//	if client.Auth().HasUserType(ctx, "admin,superadmin") {
//	    // show admin panel
//	}
type AuthService struct {
	http      *HTTPClient
	sessions  *SessionStore
	publisher EventPublisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewAuthService creates an auth service. publisher may be nil.
func NewAuthService(hc *HTTPClient, sessions *SessionStore, publisher EventPublisher, logger logrus.FieldLogger) *AuthService {
	return &AuthService{
		http:      hc,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Login authenticates and persists the returned session. Nothing is stored
// when the server rejects the credentials.
func (a *AuthService) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var resp Response[*Session]
	if err := a.http.Post(ctx, "/auth/login", creds, &resp); err != nil {
		var sdkErr *Error
		if errors.As(err, &sdkErr) && sdkErr.Type == ErrorTypeRequest &&
			(sdkErr.Status == http.StatusUnauthorized || sdkErr.Status == http.StatusForbidden) {
			authErr := newAuthError(sdkErr.Message, err)
			authErr.Status = sdkErr.Status
			authErr.Details = sdkErr.Details
			authErr.RequestID = sdkErr.RequestID
			err = authErr
		} else if errors.Is(err, ErrInvalidResponse) {
			err = newAuthError("Login failed", err)
		}
		a.emit(ctx, AuthEvent{Type: EventError, Error: err.Error()})
		return nil, err
	}

	if !resp.Success || resp.Data == nil {
		err := newAuthError(resp.Error, nil)
		err.Details = resp.Details
		a.emit(ctx, AuthEvent{Type: EventError, Error: err.Error()})
		return nil, err
	}

	if err := a.sessions.Save(ctx, resp.Data); err != nil {
		return nil, err
	}
	a.logger.WithField("user", resp.Data.User.ID).Debug("Logged in")
	a.emit(ctx, AuthEvent{Type: EventLogin, Session: resp.Data})
	return resp.Data, nil
}

// Logout ends the session on the server and always clears it locally.
// Server and network failures are logged, not returned; only a failure to
// clear local storage is. The local clear runs even when ctx has already
// expired during the server call.
func (a *AuthService) Logout(ctx context.Context) error {
	local := context.WithoutCancel(ctx)
	if err := a.http.Post(ctx, "/auth/logout", nil, nil); err != nil {
		a.logger.WithError(err).Warn("Server logout failed, clearing local session anyway")
		a.emit(local, AuthEvent{Type: EventError, Error: err.Error()})
	}
	if err := a.sessions.Clear(local); err != nil {
		return err
	}
	a.emit(local, AuthEvent{Type: EventLogout})
	return nil
}

// GetSession returns the stored session or nil.
func (a *AuthService) GetSession(ctx context.Context) *Session {
	return a.sessions.Load(ctx)
}

// ValidateSession asks the server whether the session is still valid and
// returns the refreshed session, or nil. sessionID may be empty, in which
// case the server identifies the session from cookies. A rejection clears
// the stored session; a network failure leaves it in place. It never
// returns an error.
func (a *AuthService) ValidateSession(ctx context.Context, sessionID string) *Session {
	var body any
	if sessionID != "" {
		body = map[string]string{"sessionId": sessionID}
	}

	var resp Response[*Session]
	if err := a.http.Post(ctx, "/auth/validation", body, &resp); err != nil {
		status := StatusCode(err)
		if IsRequestError(err) && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			a.invalidate(ctx, err.Error())
			return nil
		}
		a.logger.WithError(err).Debug("Session validation unavailable")
		return nil
	}

	if !resp.Success || resp.Data == nil {
		a.invalidate(ctx, resp.Error)
		return nil
	}

	if err := a.sessions.Save(ctx, resp.Data); err != nil {
		a.logger.WithError(err).Warn("Failed to persist validated session")
	}
	return resp.Data
}

func (a *AuthService) invalidate(ctx context.Context, reason string) {
	if err := a.sessions.Clear(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to clear invalid session")
	}
	a.emit(ctx, AuthEvent{Type: EventSessionInvalid, Error: reason})
}

// IsAuthenticated reports whether an unexpired session is stored.
func (a *AuthService) IsAuthenticated(ctx context.Context) bool {
	s := a.sessions.Load(ctx)
	return s != nil && !s.Expired(a.now())
}

// HasUserType reports whether the session user has one of types. Each
// argument may hold several comma separated types. With no types any
// session passes.
func (a *AuthService) HasUserType(ctx context.Context, types ...string) bool {
	s := a.sessions.Load(ctx)
	if s == nil {
		return false
	}
	wanted := splitList(types)
	if len(wanted) == 0 {
		return true
	}
	for _, t := range wanted {
		if t == s.User.UserType {
			return true
		}
	}
	return false
}

// HasRole reports whether the session user holds one of roles. Users
// without explicit roles are matched on their user type.
func (a *AuthService) HasRole(ctx context.Context, roles ...string) bool {
	s := a.sessions.Load(ctx)
	if s == nil {
		return false
	}
	wanted := splitList(roles)
	if len(wanted) == 0 {
		return true
	}
	held := s.User.Roles
	if len(held) == 0 {
		held = []string{s.User.UserType}
	}
	for _, w := range wanted {
		for _, h := range held {
			if w == h {
				return true
			}
		}
	}
	return false
}

func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (a *AuthService) emit(ctx context.Context, event AuthEvent) {
	if a.publisher == nil {
		return
	}
	event.Timestamp = a.now()
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.WithError(err).WithField("event", event.Type).Warn("Failed to publish auth event")
	}
}
