// Package redis stores actor namespaces in Redis so several instances of the
// service can share sessions. Each namespace is one hash; alarms live in a
// single sorted set scored by fire time.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix separates deployments sharing one Redis, e.g. "authz:".
	KeyPrefix    string
	MaxValueSize int
}

type Store struct {
	client       redis.UniversalClient
	keyPrefix    string
	maxValueSize int
}

var _ store.Store = (*Store)(nil)

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStoreWithClient(client, cfg.KeyPrefix, cfg.MaxValueSize), nil
}

// NewStoreWithClient wraps a pre-configured client.
// This is useful for testing with miniredis.
func NewStoreWithClient(client redis.UniversalClient, keyPrefix string, maxValueSize int) *Store {
	if maxValueSize == 0 {
		maxValueSize = store.DefaultMaxValueSize
	}
	return &Store{
		client:       client,
		keyPrefix:    keyPrefix,
		maxValueSize: maxValueSize,
	}
}

func (s *Store) namespaceKey(name string) string { return s.keyPrefix + "ns:" + name }
func (s *Store) alarmsKey() string               { return s.keyPrefix + "alarms" }

// ApplyMigrations is a no-op, Redis needs no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Namespace(name string) store.Storage { return &namespace{s: s, name: name} }

func (s *Store) DueAlarms(ctx context.Context, now time.Time) ([]string, error) {
	due, err := s.client.ZRangeByScore(ctx, s.alarmsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due alarms: %w", err)
	}
	return due, nil
}

type namespace struct {
	s    *Store
	name string
}

func (n *namespace) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := n.s.client.HGet(ctx, n.s.namespaceKey(n.name), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return data, nil
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

// WithTx stages writes locally and sends them as one MULTI/EXEC block.
func (n *namespace) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.RunTx(ctx, n, n.s.maxValueSize, fn, n.apply)
}

func (n *namespace) apply(ctx context.Context, ops []store.Op) error {
	key := n.s.namespaceKey(n.name)
	_, err := n.s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case store.OpPut:
				pipe.HSet(ctx, key, op.Key, op.Value)
			case store.OpDelete:
				pipe.HDel(ctx, key, op.Key)
			case store.OpDeleteAll:
				pipe.Del(ctx, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", n.name, err)
	}
	return nil
}

func (n *namespace) SetAlarm(ctx context.Context, at time.Time) error {
	return n.s.client.ZAdd(ctx, n.s.alarmsKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: n.name,
	}).Err()
}

func (n *namespace) DeleteAlarm(ctx context.Context) error {
	return n.s.client.ZRem(ctx, n.s.alarmsKey(), n.name).Err()
}

func (n *namespace) GetAlarm(ctx context.Context) (time.Time, error) {
	score, err := n.s.client.ZScore(ctx, n.s.alarmsKey(), n.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.UnixMilli(int64(score)), nil
}
