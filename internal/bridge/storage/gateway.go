// Package storage gives each micro-app a private key/value namespace.
//
// Callers supply only logical keys. The gateway derives the namespace from
// the micro-app identity, so one app can never address another app's keys.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Store is the underlying namespaced key/value store. No transaction
// semantics are assumed.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
}

// ErrEmptyKey rejects operations without a key.
var ErrEmptyKey = errors.New("storage key is required")

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Namespace derives the storage namespace for a micro-app identity.
func Namespace(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return "ns_" + hex.EncodeToString(sum[:])[:32]
}

// Gateway scopes a Store to one micro-app identity.
type Gateway struct {
	store     Store
	namespace string
}

// NewGateway binds store to the namespace of identity.
func NewGateway(store Store, identity string) *Gateway {
	return &Gateway{store: store, namespace: Namespace(identity)}
}

// Namespace returns the namespace this gateway writes to.
func (g *Gateway) Namespace() string {
	return g.namespace
}

// Save stores value under key.
func (g *Gateway) Save(ctx context.Context, key, value string) error {
	if key == "" {
		return &StorageError{Op: "save", Err: ErrEmptyKey}
	}
	if err := g.store.Set(ctx, g.namespace, key, value); err != nil {
		return &StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Get returns the value under key and whether it exists.
func (g *Gateway) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, &StorageError{Op: "get", Err: ErrEmptyKey}
	}
	value, ok, err := g.store.Get(ctx, g.namespace, key)
	if err != nil {
		return "", false, &StorageError{Op: "get", Key: key, Err: err}
	}
	return value, ok, nil
}

// Keys lists the logical keys stored for this identity, sorted.
func (g *Gateway) Keys(ctx context.Context) ([]string, error) {
	keys, err := g.store.Keys(ctx, g.namespace)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return keys, nil
}
