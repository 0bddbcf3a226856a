package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrValueTooLarge = errors.New("store: value too large")
	ErrTxDone        = errors.New("store: transaction already finished")
)

// DefaultMaxValueSize bounds a single stored value.
const DefaultMaxValueSize = 128 << 10

// Store is the root data access interface. Concrete drivers (memory, sqlite,
// redis) implement this. Every actor gets a private key/value namespace from
// it; nothing is shared between namespaces.
type Store interface {
	// Namespace returns the storage of the actor called name.
	Namespace(name string) Storage

	// DueAlarms lists namespaces whose persisted alarm is at or before now.
	DueAlarms(ctx context.Context, now time.Time) ([]string, error)

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// KV is the key/value surface shared by a namespace and its transactions.
type KV interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	PutMulti(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}

// Storage is one actor's namespace.
type Storage interface {
	KV

	// WithTx executes fn within a transaction.
	// If fn returns an error, every staged write is discarded.
	// If fn returns nil, the staged writes are applied atomically.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// SetAlarm replaces the namespace alarm.
	SetAlarm(ctx context.Context, at time.Time) error
	DeleteAlarm(ctx context.Context) error
	// GetAlarm returns the zero time when no alarm is set.
	GetAlarm(ctx context.Context) (time.Time, error)
}

// Tx is a transactional view of one namespace. Reads see staged writes.
type Tx interface {
	KV
}

// CheckSize fails with ErrValueTooLarge when value exceeds limit. A limit of
// zero or less disables the check.
func CheckSize(key string, value []byte, limit int) error {
	if limit > 0 && len(value) > limit {
		return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrValueTooLarge, key, len(value), limit)
	}
	return nil
}

// GetJSON decodes the value under key into v. It reports false with a nil
// error when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return kv.Put(ctx, key, raw)
}

// PutMultiJSON encodes every entry and stores them in one write.
func PutMultiJSON(ctx context.Context, kv KV, entries map[string]any) error {
	encoded := make(map[string][]byte, len(entries))
	for k, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: encode %q: %w", k, err)
		}
		encoded[k] = raw
	}
	return kv.PutMulti(ctx, encoded)
}
