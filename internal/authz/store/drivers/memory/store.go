// Package memory is an in-process store driver. State is lost on restart;
// it backs tests and single-node development runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/store"
)

type Store struct {
	mu           sync.RWMutex
	data         map[string]map[string][]byte
	alarms       map[string]time.Time
	maxValueSize int
}

var _ store.Store = (*Store)(nil)

// NewStore returns an empty store. A maxValueSize of zero selects
// store.DefaultMaxValueSize.
func NewStore(maxValueSize int) *Store {
	if maxValueSize == 0 {
		maxValueSize = store.DefaultMaxValueSize
	}
	return &Store{
		data:         map[string]map[string][]byte{},
		alarms:       map[string]time.Time{},
		maxValueSize: maxValueSize,
	}
}

func (s *Store) Namespace(name string) store.Storage { return &namespace{s: s, name: name} }

func (s *Store) DueAlarms(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []string
	for name, at := range s.alarms {
		if !at.After(now) {
			due = append(due, name)
		}
	}
	slices.Sort(due)
	return due, nil
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type namespace struct {
	s    *Store
	name string
}

func (n *namespace) Get(_ context.Context, key string) ([]byte, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()

	v, ok := n.s.data[n.name][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (n *namespace) Put(ctx context.Context, key string, value []byte) error {
	return n.WithTx(ctx, func(tx store.Tx) error { return tx.Put(ctx, key, value) })
}

func (n *namespace) PutMulti(ctx context.Context, entries map[string][]byte) error {
	return n.WithTx(ctx, func(tx store.Tx) error { return tx.PutMulti(ctx, entries) })
}

func (n *namespace) Delete(ctx context.Context, key string) error {
	return n.WithTx(ctx, func(tx store.Tx) error { return tx.Delete(ctx, key) })
}

func (n *namespace) DeleteAll(ctx context.Context) error {
	return n.WithTx(ctx, func(tx store.Tx) error { return tx.DeleteAll(ctx) })
}

func (n *namespace) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.RunTx(ctx, n, n.s.maxValueSize, fn, n.apply)
}

func (n *namespace) apply(_ context.Context, ops []store.Op) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	kv := maps.Clone(n.s.data[n.name])
	if kv == nil {
		kv = map[string][]byte{}
	}
	for _, op := range ops {
		switch op.Kind {
		case store.OpPut:
			kv[op.Key] = op.Value
		case store.OpDelete:
			delete(kv, op.Key)
		case store.OpDeleteAll:
			clear(kv)
		}
	}
	if len(kv) == 0 {
		delete(n.s.data, n.name)
		return nil
	}
	n.s.data[n.name] = kv
	return nil
}

func (n *namespace) SetAlarm(_ context.Context, at time.Time) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	n.s.alarms[n.name] = at
	return nil
}

func (n *namespace) DeleteAlarm(_ context.Context) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	delete(n.s.alarms, n.name)
	return nil
}

func (n *namespace) GetAlarm(_ context.Context) (time.Time, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	return n.s.alarms[n.name], nil
}
