package actor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/memory"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

func newRegistry(t *testing.T) (*actor.Registry, *memory.Store) {
	t.Helper()
	st := memory.NewStore(0)
	r := actor.NewRegistry(st, slogx.Discard())
	t.Cleanup(r.Close)
	return r, st
}

func TestNameAndKind(t *testing.T) {
	t.Parallel()
	require.Equal(t, "code:abc", actor.Name("code", "abc"))
	require.Equal(t, "session", actor.Kind("session:abc@app1"))
	require.Equal(t, "bare", actor.Kind("bare"))
}

func TestDoSerializesSameName(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	ctx := context.Background()

	var active, peak int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Do(ctx, "session:a@b", func(ctx context.Context, st store.Storage) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), peak)
}

func TestDoRespectsContext(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = r.Do(context.Background(), "code:x", func(context.Context, store.Storage) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.Do(ctx, "code:x", func(context.Context, store.Storage) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

func TestAlarmTimerRunsHandler(t *testing.T) {
	t.Parallel()
	r, st := newRegistry(t)
	ctx := context.Background()

	fired := make(chan string, 1)
	r.Handle("code", func(ctx context.Context, name string, s store.Storage) error {
		fired <- name
		return s.DeleteAll(ctx)
	})

	require.NoError(t, st.Namespace("code:1").Put(ctx, "k", []byte("v")))
	require.NoError(t, r.SetAlarm(ctx, "code:1", time.Now().Add(5*time.Millisecond)))

	select {
	case name := <-fired:
		require.Equal(t, "code:1", name)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}

	require.Eventually(t, func() bool {
		at, err := st.Namespace("code:1").GetAlarm(ctx)
		return err == nil && at.IsZero()
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteAlarmDisarms(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	ctx := context.Background()

	var calls atomic.Int32
	r.Handle("code", func(context.Context, string, store.Storage) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, r.SetAlarm(ctx, "code:2", time.Now().Add(20*time.Millisecond)))
	require.NoError(t, r.DeleteAlarm(ctx, "code:2"))
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestFireDueAfterRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore(0)

	// Alarm persisted by a previous process whose timers are gone.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.Namespace("code:old").SetAlarm(ctx, past))
	require.NoError(t, st.Namespace("code:later").SetAlarm(ctx, time.Now().Add(time.Hour)))

	r := actor.NewRegistry(st, slogx.Discard())
	t.Cleanup(r.Close)

	var names []string
	r.Handle("code", func(_ context.Context, name string, _ store.Storage) error {
		names = append(names, name)
		return nil
	})

	n, err := r.FireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"code:old"}, names)

	// Firing again is a no-op: the alarm was consumed.
	n, err = r.FireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFailedHandlerKeepsAlarm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, st := newRegistry(t)

	boom := errors.New("boom")
	r.Handle("code", func(context.Context, string, store.Storage) error { return boom })

	past := time.Now().Add(-time.Second)
	require.NoError(t, st.Namespace("code:3").SetAlarm(ctx, past))

	_, err := r.FireDue(ctx)
	require.ErrorIs(t, err, boom)

	at, err := st.Namespace("code:3").GetAlarm(ctx)
	require.NoError(t, err)
	require.False(t, at.IsZero())
}

func TestFireDueWithoutHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, st := newRegistry(t)

	require.NoError(t, st.Namespace("unknown:1").SetAlarm(ctx, time.Now().Add(-time.Second)))
	_, err := r.FireDue(ctx)
	require.Error(t, err)
}
