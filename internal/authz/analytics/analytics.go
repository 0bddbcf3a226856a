// Package analytics delivers product analytics events off the request path.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authz/pkg/idx"
)

// Event names.
const (
	EventAppAuthorized                = "app_authorized"
	EventAppExchangedPrefix           = "app_exchanged_"
	EventIdentityRevokedAuthorization = "identity_revoked_authorization"
)

// DefaultBufferSize is the number of events a Dispatcher queues before it
// starts dropping.
const DefaultBufferSize = 256

// Event is one analytics record.
type Event struct {
	ID         string            `json:"uuid"`
	Name       string            `json:"event"`
	DistinctID string            `json:"distinct_id"`
	Groups     map[string]string `json:"groups,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Time       time.Time         `json:"timestamp"`
}

// Sink receives events from the dispatcher worker.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// Emitter is the narrow view handed to request handlers.
type Emitter interface {
	Emit(ev Event)
}

// Dispatcher queues events on a bounded channel and hands them to a sink
// from a single worker goroutine.
type Dispatcher struct {
	Sink   Sink
	Logger *slog.Logger

	// SendTimeout bounds each Sink.Send call.
	SendTimeout time.Duration

	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher creates a dispatcher with room for size queued events.
// If size is 0 or negative, DefaultBufferSize is used.
func NewDispatcher(sink Sink, logger *slog.Logger, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Dispatcher{
		Sink:        sink,
		Logger:      logger,
		SendTimeout: 10 * time.Second,
		events:      make(chan Event, size),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Emit queues ev without blocking. When the queue is full the event is
// dropped.
func (d *Dispatcher) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = idx.New().String()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case d.events <- ev:
	default:
		d.Logger.Warn("analytics queue full, dropping event", "event", ev.Name)
	}
}

// Start begins the background worker.
func (d *Dispatcher) Start() {
	go d.run()
	d.Logger.Info("analytics dispatcher started", "buffer", cap(d.events))
}

// Stop drains queued events and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.Logger.Info("analytics dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case ev := <-d.events:
			d.send(ev)
		case <-d.stopCh:
			for {
				select {
				case ev := <-d.events:
					d.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SendTimeout)
	defer cancel()
	if err := d.Sink.Send(ctx, ev); err != nil {
		d.Logger.Error("failed to deliver analytics event", "event", ev.Name, "error", err)
	}
}

// LogSink writes events to a logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, ev Event) error {
	s.Logger.DebugContext(ctx, "analytics event",
		"event", ev.Name,
		"distinct_id", ev.DistinctID,
		"groups", ev.Groups,
		"properties", ev.Properties,
	)
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) {}
