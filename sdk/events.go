package sdk

import (
	"context"
	"time"
)

// AuthEventType names an auth lifecycle event.
type AuthEventType string

const (
	EventLogin          AuthEventType = "auth:login"
	EventLogout         AuthEventType = "auth:logout"
	EventError          AuthEventType = "auth:error"
	EventSessionInvalid AuthEventType = "auth:session-invalid"
)

// AuthEvent describes a change of the authentication state.
type AuthEvent struct {
	Type      AuthEventType `json:"type"`
	Session   *Session      `json:"session,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventPublisher delivers auth events. Publish errors are logged by the
// SDK and never fail the operation that raised the event.
type EventPublisher interface {
	Publish(ctx context.Context, event AuthEvent) error
}

// EventFunc adapts a function to EventPublisher.
type EventFunc func(ctx context.Context, event AuthEvent) error

// Publish calls f.
func (f EventFunc) Publish(ctx context.Context, event AuthEvent) error {
	return f(ctx, event)
}
