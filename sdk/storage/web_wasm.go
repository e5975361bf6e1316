//go:build wasm

package storage

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"
)

// WebStorage wraps the browser's localStorage or sessionStorage.
type WebStorage struct {
	area js.Value
	name string
}

// NewLocalStorage returns a Storage over window.localStorage.
func NewLocalStorage() (*WebStorage, error) {
	return newWebStorage("localStorage")
}

// NewSessionStorage returns a Storage over window.sessionStorage.
func NewSessionStorage() (*WebStorage, error) {
	return newWebStorage("sessionStorage")
}

func newWebStorage(name string) (*WebStorage, error) {
	area := js.Global().Get(name)
	if area.IsUndefined() || area.IsNull() {
		return nil, fmt.Errorf("%s is not available", name)
	}
	return &WebStorage{area: area, name: name}, nil
}

// Get implements Storage.
func (w *WebStorage) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	defer recoverJS(w.name, "get", key, &err)
	v := w.area.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false, nil
	}
	return v.String(), true, nil
}

// Set implements Storage.
func (w *WebStorage) Set(ctx context.Context, key, value string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	defer recoverJS(w.name, "set", key, &err)
	w.area.Call("setItem", key, value)
	return nil
}

// Remove implements Storage.
func (w *WebStorage) Remove(ctx context.Context, key string) (err error) {
	defer recoverJS(w.name, "remove", key, &err)
	w.area.Call("removeItem", key)
	return nil
}

// recoverJS turns a thrown DOMException (quota, private mode) into an error.
func recoverJS(backend, op, key string, err *error) {
	if r := recover(); r != nil {
		var jsErr js.Error
		if e, ok := r.(js.Error); ok {
			jsErr = e
			*err = newError(backend, op, key, false, jsErr)
			return
		}
		*err = newError(backend, op, key, false, errors.New(fmt.Sprint(r)))
	}
}
