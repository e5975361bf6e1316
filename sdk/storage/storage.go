// Package storage defines the key/value contract PubFlow persists client
// state through, together with the backends that implement it.
//
// Every operation takes a context and may suspend: a backend can be an
// in-process map, a remote Redis or PostgreSQL server, an object store or
// the operating system keychain. Values are always strings; callers encode
// and decode JSON themselves.
//
// A missing key is not an error:
//
//	value, ok, err := store.Get(ctx, "pubflow_session")
//	if err != nil {
//	    // backend failure
//	}
//	if !ok {
//	    // key absent
//	}
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Storage is the asynchronous key/value contract shared by every runtime.
type Storage interface {
	// Get returns the stored value. ok is false when the key is absent,
	// in which case err is nil.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
}

// ErrEmptyKey is returned when an operation receives an empty key.
var ErrEmptyKey = errors.New("storage key cannot be empty")

// Error describes a backend failure.
type Error struct {
	Backend   string
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s storage: %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s storage: %s %q failed", e.Backend, e.Op, e.Key)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(backend, op, key string, retryable bool, err error) *Error {
	return &Error{Backend: backend, Op: op, Key: key, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a storage failure worth retrying.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

type prefixed struct {
	next   Storage
	prefix string
}

// Prefixed namespaces every key of s with prefix.
func Prefixed(s Storage, prefix string) Storage {
	if prefix == "" {
		return s
	}
	return &prefixed{next: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.next.Remove(ctx, p.prefix+key)
}
