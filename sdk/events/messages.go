package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pubflow/pubflow-go/sdk"
)

// Message is the wire form of an auth event.
type Message struct {
	ID        string            `json:"id"`
	Type      sdk.AuthEventType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Session   *sdk.Session      `json:"session,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewMessage wraps event with a fresh id.
func NewMessage(event sdk.AuthEvent) *Message {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      event.Type,
		Timestamp: ts.UTC(),
		Session:   event.Session,
		Error:     event.Error,
	}
}

// Event converts the message back into an auth event.
func (m *Message) Event() sdk.AuthEvent {
	return sdk.AuthEvent{
		Type:      m.Type,
		Session:   m.Session,
		Error:     m.Error,
		Timestamp: m.Timestamp,
	}
}

// Marshal serializes the message to JSON
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage deserializes a message from JSON
func UnmarshalMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Subject returns the subject an event type is published on:
// "auth:session-invalid" under "pubflow.auth" becomes
// "pubflow.auth.session-invalid".
func Subject(prefix string, t sdk.AuthEventType) string {
	name := strings.TrimPrefix(string(t), "auth:")
	name = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(name)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
