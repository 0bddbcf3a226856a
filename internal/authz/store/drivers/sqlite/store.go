package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db           *sql.DB
	dsn          string
	maxValueSize int
}

var _ store.Store = (*Store)(nil)

// DSN builds the connection string for a database file. WAL and a busy
// timeout keep concurrent actors from failing on SQLITE_BUSY.
func DSN(file string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", file)
}

// NewStore opens the database at dsn. A maxValueSize of zero selects
// store.DefaultMaxValueSize.
func NewStore(dsn string, maxValueSize int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A private in-memory database only exists on its own connection.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if maxValueSize == 0 {
		maxValueSize = store.DefaultMaxValueSize
	}

	return &Store{
		db:           db,
		dsn:          dsn,
		maxValueSize: maxValueSize,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Namespace(name string) store.Storage { return &namespace{s: s, name: name} }

func (s *Store) DueAlarms(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, dueAlarmsQuery, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		due = append(due, name)
	}
	return due, rows.Err()
}

type namespace struct {
	s    *Store
	name string
}

func (n *namespace) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := n.s.db.QueryRowContext(ctx, getValueQuery, n.name, key).Scan(&value)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return value, nil
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

// WithTx stages writes in memory and applies them in a single database
// transaction once fn succeeds.
func (n *namespace) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.RunTx(ctx, n, n.s.maxValueSize, fn, n.apply)
}

func (n *namespace) apply(ctx context.Context, ops []store.Op) error {
	tx, err := n.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	for _, op := range ops {
		switch op.Kind {
		case store.OpPut:
			_, err = tx.ExecContext(ctx, putValueQuery, n.name, op.Key, op.Value)
		case store.OpDelete:
			_, err = tx.ExecContext(ctx, deleteValueQuery, n.name, op.Key)
		case store.OpDeleteAll:
			_, err = tx.ExecContext(ctx, deleteNamespaceQuery, n.name)
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (n *namespace) SetAlarm(ctx context.Context, at time.Time) error {
	_, err := n.s.db.ExecContext(ctx, setAlarmQuery, n.name, at.UnixMilli())
	return err
}

func (n *namespace) DeleteAlarm(ctx context.Context) error {
	_, err := n.s.db.ExecContext(ctx, deleteAlarmQuery, n.name)
	return err
}

func (n *namespace) GetAlarm(ctx context.Context) (time.Time, error) {
	var ms int64
	err := n.s.db.QueryRowContext(ctx, getAlarmQuery, n.name).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
