package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Response is the envelope every PubFlow endpoint answers with. Data is
// present when Success is true and Error is set when it is false.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries list pagination state.
type Meta struct {
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	HasMore    bool   `json:"hasMore"`
	TotalPages int    `json:"totalPages,omitempty"`
	Total      int    `json:"total,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Query      any    `json:"query,omitempty"`
}

// Credentials is the login payload. Either Email or UserName identifies
// the principal.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	UserName string `json:"userName,omitempty"`
	Password string `json:"password"`
}

// Session is an authenticated principal as issued by the server.
// Timestamps are kept as the server wrote them; backends send RFC 3339
// as well as SQL style "2006-01-02 15:04:05" values.
type Session struct {
	SessionID  string `json:"sessionId"`
	User       User   `json:"user"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a server timestamp. Values without a zone are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// FormatTimestamp renders t the way the backend issues timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Expiry returns the parsed expiry. ok is false when the session carries
// no expiry or one that cannot be parsed.
func (s *Session) Expiry() (t time.Time, ok bool) {
	if s.ExpiresAt == "" {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(s.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Expired reports whether the session expiry has passed at now. A missing
// or unparseable expiry never expires; the server stays the authority.
func (s *Session) Expired(now time.Time) bool {
	t, ok := s.Expiry()
	return ok && now.After(t)
}

// User is the session principal. Fields the backend adds beyond the known
// ones are kept in Extra and written back unchanged. A numeric id is
// accepted and stored in its decimal form.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	UserType string   `json:"userType"`
	Roles    []string `json:"roles,omitempty"`

	Extra map[string]any `json:"-"`
}

type userFields User

var knownUserFields = []string{"id", "email", "name", "userType", "roles"}

// MarshalJSON merges Extra with the known fields. Known fields win.
func (u User) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(userFields(u))
	if err != nil {
		return nil, err
	}
	if len(u.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]any, len(u.Extra)+len(knownUserFields))
	for k, v := range u.Extra {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// userWire shadows id so both string and numeric ids decode.
type userWire struct {
	userFields
	ID json.RawMessage `json:"id"`
}

// UnmarshalJSON fills the known fields and collects the rest into Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	var wire userWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	known := wire.userFields
	id, err := decodeID(wire.ID)
	if err != nil {
		return err
	}
	known.ID = id

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownUserFields {
		delete(all, k)
	}

	*u = User(known)
	if len(all) > 0 {
		u.Extra = all
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		err := json.Unmarshal(raw, &id)
		return id, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("user id must be a string or a number: %w", err)
	}
	return n.String(), nil
}
