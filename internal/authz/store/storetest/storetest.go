// Package storetest holds the behavior every store driver must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated store enforcing maxValueSize.
type Factory func(t *testing.T, maxValueSize int) store.Store

// Run exercises a driver against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("get put delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, 0)
		ns := s.Namespace("abc@app1")

		_, err := ns.Get(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, ns.Put(ctx, "k", []byte("v1")))
		v, err := ns.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v1", string(v))

		require.NoError(t, ns.Put(ctx, "k", []byte("v2")))
		v, err = ns.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v2", string(v))

		require.NoError(t, ns.Delete(ctx, "k"))
		_, err = ns.Get(ctx, "k")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, ns.Delete(ctx, "k"), "deleting an absent key is a no-op")
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, 0)
		a, b := s.Namespace("a"), s.Namespace("b")

		require.NoError(t, a.PutMulti(ctx, map[string][]byte{"x": []byte("1"), "y": []byte("2")}))
		require.NoError(t, b.Put(ctx, "x", []byte("3")))

		require.NoError(t, a.DeleteAll(ctx))
		_, err := a.Get(ctx, "y")
		require.ErrorIs(t, err, store.ErrNotFound)

		v, err := b.Get(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, "3", string(v))
	})

	t.Run("transactions commit atomically", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, 0)
		ns := s.Namespace("tx")
		require.NoError(t, ns.Put(ctx, "keep", []byte("1")))

		boom := errors.New("boom")
		err := ns.WithTx(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.Put(ctx, "new", []byte("2")))
			require.NoError(t, tx.Delete(ctx, "keep"))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = ns.Get(ctx, "new")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = ns.Get(ctx, "keep")
		require.NoError(t, err)

		err = ns.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.DeleteAll(ctx); err != nil {
				return err
			}
			return tx.Put(ctx, "new", []byte("2"))
		})
		require.NoError(t, err)

		_, err = ns.Get(ctx, "keep")
		require.ErrorIs(t, err, store.ErrNotFound)
		v, err := ns.Get(ctx, "new")
		require.NoError(t, err)
		require.Equal(t, "2", string(v))
	})

	t.Run("values over the limit are rejected", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, 8)
		ns := s.Namespace("small")

		require.ErrorIs(t, ns.Put(ctx, "k", make([]byte, 9)), store.ErrValueTooLarge)
		require.NoError(t, ns.Put(ctx, "k", make([]byte, 8)))
	})

	t.Run("alarms", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, 0)
		now := time.Now().Truncate(time.Millisecond)

		at, err := s.Namespace("code:1").GetAlarm(ctx)
		require.NoError(t, err)
		require.True(t, at.IsZero())

		require.NoError(t, s.Namespace("code:1").SetAlarm(ctx, now.Add(-time.Second)))
		require.NoError(t, s.Namespace("code:2").SetAlarm(ctx, now.Add(time.Hour)))

		at, err = s.Namespace("code:2").GetAlarm(ctx)
		require.NoError(t, err)
		require.True(t, at.Equal(now.Add(time.Hour)))

		due, err := s.DueAlarms(ctx, now)
		require.NoError(t, err)
		require.Equal(t, []string{"code:1"}, due)

		require.NoError(t, s.Namespace("code:1").DeleteAlarm(ctx))
		due, err = s.DueAlarms(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Equal(t, []string{"code:2"}, due)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t, 0).Ping(context.Background()))
	})
}
