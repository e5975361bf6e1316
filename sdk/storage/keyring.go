//go:build !wasm

package storage

import (
	"context"
	"errors"

	"github.com/99designs/keyring"
)

// DefaultKeyringService is the keychain namespace used when none is given.
const DefaultKeyringService = "pubflow"

// KeyringStorage keeps values in the operating system credential store
// (macOS Keychain, Windows Credential Manager, Secret Service, pass).
// It is the secure keystore backend for desktop and CLI hosts.
type KeyringStorage struct {
	ring keyring.Keyring
}

// NewKeyringStorage opens the OS keyring for service. Restrict backends
// with allowed; nil lets the library choose.
func NewKeyringStorage(service string, allowed ...keyring.BackendType) (*KeyringStorage, error) {
	if service == "" {
		service = DefaultKeyringService
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    service,
		AllowedBackends:                allowed,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
	})
	if err != nil {
		return nil, err
	}
	return NewKeyringStorageFromRing(ring), nil
}

// NewKeyringStorageFromRing wraps an opened keyring.
func NewKeyringStorageFromRing(ring keyring.Keyring) *KeyringStorage {
	return &KeyringStorage{ring: ring}
}

// Get implements Storage.
func (k *KeyringStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	item, err := k.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, newError("keyring", "get", key, false, err)
	}
	return string(item.Data), true, nil
}

// Set implements Storage.
func (k *KeyringStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "PubFlow " + key,
	})
	if err != nil {
		return newError("keyring", "set", key, false, err)
	}
	return nil
}

// Remove implements Storage.
func (k *KeyringStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return newError("keyring", "remove", key, false, err)
	}
	return nil
}
