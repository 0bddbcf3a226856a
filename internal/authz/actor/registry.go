// Package actor serializes work per named actor. Every actor owns one store
// namespace; calls for the same name run one at a time while calls for
// different names run concurrently. Actors can schedule a persisted one-shot
// alarm that runs the handler registered for their kind.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aussiebroadwan/authz/internal/authz/store"
)

var ErrClosed = errors.New("actor: registry closed")

// Handler runs when an actor's alarm fires. It holds the actor lock and must
// be idempotent: alarms fire at least once.
type Handler func(ctx context.Context, name string, st store.Storage) error

type lock struct {
	sem  *semaphore.Weighted
	refs int
}

// Registry hands out serialized access to actors backed by a store.
type Registry struct {
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time

	mu       sync.Mutex
	locks    map[string]*lock
	handlers map[string]Handler
	timers   map[string]*time.Timer
	closed   bool
	inflight sync.WaitGroup
}

// NewRegistry creates a registry over st.
func NewRegistry(st store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		Store:    st,
		Logger:   logger,
		Now:      time.Now,
		locks:    map[string]*lock{},
		handlers: map[string]Handler{},
		timers:   map[string]*time.Timer{},
	}
}

// Name joins an actor kind and id, e.g. Name("code", c) is "code:<c>".
func Name(kind, id string) string { return kind + ":" + id }

// Kind returns the part of name before the first colon.
func Kind(name string) string {
	kind, _, _ := strings.Cut(name, ":")
	return kind
}

// Handle registers the alarm handler for every actor of kind.
func (r *Registry) Handle(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Do runs fn with the storage of actor name while holding its lock. It
// returns ctx.Err() if the lock cannot be taken before ctx is done.
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context, st store.Storage) error) error {
	l, err := r.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer r.release(name, l)

	return fn(ctx, r.Store.Namespace(name))
}

func (r *Registry) acquire(ctx context.Context, name string) (*lock, error) {
	r.mu.Lock()
	l, ok := r.locks[name]
	if !ok {
		l = &lock{sem: semaphore.NewWeighted(1)}
		r.locks[name] = l
	}
	l.refs++
	r.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		r.unref(name, l)
		return nil, err
	}
	return l, nil
}

func (r *Registry) release(name string, l *lock) {
	l.sem.Release(1)
	r.unref(name, l)
}

func (r *Registry) unref(name string, l *lock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, name)
	}
}

// SetAlarm persists an alarm for name and arms an in-process timer for it.
// It does not take the actor lock and may be called from inside Do.
func (r *Registry) SetAlarm(ctx context.Context, name string, at time.Time) error {
	if err := r.Store.Namespace(name).SetAlarm(ctx, at); err != nil {
		return fmt.Errorf("set alarm %s: %w", name, err)
	}
	r.arm(name, at)
	return nil
}

// DeleteAlarm removes the persisted alarm of name and disarms its timer.
func (r *Registry) DeleteAlarm(ctx context.Context, name string) error {
	r.disarm(name)
	if err := r.Store.Namespace(name).DeleteAlarm(ctx); err != nil {
		return fmt.Errorf("delete alarm %s: %w", name, err)
	}
	return nil
}

func (r *Registry) arm(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if t, ok := r.timers[name]; ok {
		t.Stop()
	}
	d := max(at.Sub(r.Now()), 0)
	r.timers[name] = time.AfterFunc(d, func() { r.onTimer(name) })
}

func (r *Registry) disarm(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *Registry) onTimer(name string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.timers, name)
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	if _, err := r.fire(context.Background(), name); err != nil {
		r.Logger.Error("alarm handler failed", "actor", name, "error", err)
	}
}

// fire runs the handler of name if its persisted alarm is due. It reports
// whether the handler ran.
func (r *Registry) fire(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	h, ok := r.handlers[Kind(name)]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no alarm handler for %q", Kind(name))
	}

	ran := false
	err := r.Do(ctx, name, func(ctx context.Context, st store.Storage) error {
		at, err := st.GetAlarm(ctx)
		if err != nil {
			return err
		}
		// Deleted or pushed back since the timer was armed.
		if at.IsZero() || at.After(r.Now()) {
			return nil
		}
		if err := st.DeleteAlarm(ctx); err != nil {
			return err
		}
		ran = true
		if err := h(ctx, name, st); err != nil {
			// Put the alarm back so a later FireDue retries it.
			if rerr := st.SetAlarm(ctx, at); rerr != nil {
				r.Logger.Error("failed to restore alarm", "actor", name, "error", rerr)
			}
			return err
		}
		return nil
	})
	return ran, err
}

// FireDue runs every persisted alarm that is due, including alarms whose
// timers were lost in a restart. It returns how many handlers ran.
func (r *Registry) FireDue(ctx context.Context) (int, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	due, err := r.Store.DueAlarms(ctx, r.Now())
	if err != nil {
		return 0, err
	}

	fired := 0
	var errs []error
	for _, name := range due {
		r.disarm(name)
		ran, err := r.fire(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ran {
			fired++
		}
	}
	return fired, errors.Join(errs...)
}

// Close stops every pending timer and waits for running handlers. Persisted
// alarms stay in the store for FireDue after a restart.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	r.inflight.Wait()
}
