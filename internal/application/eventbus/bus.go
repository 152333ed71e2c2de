// Package eventbus is the fire-and-forget notification sink for workflow and
// admission lifecycle events.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Handler processes one published event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// Bus routes events to subscribers
type Bus interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name used in logs
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch delivers the event to every subscriber in order and returns the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync delivers the event on background goroutines. Errors and
	// panics are logged and never reach the publisher.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the subscriptions for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and waits for in-flight async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventBus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the bus
type Option func(*eventBus)

// WithLogger sets a logger for the bus
func WithLogger(logger Logger) Option {
	return func(b *eventBus) {
		b.logger = logger
	}
}

// New creates an event bus
func New(opts ...Option) Bus {
	b := &eventBus{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *eventBus) Subscribe(eventType event.Type, handler Handler) {
	b.mu.RLock()
	name := fmt.Sprintf("%s-%d", eventType, len(b.handlers[eventType]))
	b.mu.RUnlock()
	b.SubscribeNamed(eventType, name, handler)
}

func (b *eventBus) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	if b.logger != nil {
		b.logger.Info("Event subscriber registered",
			"event_type", eventType.String(),
			"handler_name", name,
		)
	}
}

func (b *eventBus) Unsubscribe(eventType event.Type, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	b.handlers[eventType] = filtered
}

func (b *eventBus) snapshot(eventType event.Type) []HandlerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]HandlerInfo(nil), b.handlers[eventType]...)
}

func (b *eventBus) Dispatch(ctx context.Context, evt *event.Event) error {
	if b.closed.Load() {
		return fmt.Errorf("event bus is closed")
	}

	for _, info := range b.snapshot(evt.Type) {
		if err := b.safeExecute(ctx, evt, info); err != nil {
			b.logFailure("Event handler failed", evt, info.Name, err)
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

func (b *eventBus) DispatchAsync(ctx context.Context, evt *event.Event) {
	if b.closed.Load() {
		if b.logger != nil {
			b.logger.Error("Event dropped, bus is closed",
				"event_type", evt.Type.String(),
				"event_id", evt.ID,
			)
		}
		return
	}

	// handlers outlive the request that published the event
	ctx = context.WithoutCancel(ctx)

	for _, info := range b.snapshot(evt.Type) {
		b.wg.Add(1)
		go func(h HandlerInfo) {
			defer b.wg.Done()

			if err := b.safeExecute(ctx, evt, h); err != nil {
				b.logFailure("Async event handler failed", evt, h.Name, err)
			}
		}(info)
	}
}

func (b *eventBus) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := b.snapshot(eventType)
	for i := range handlers {
		handlers[i].Handler = nil
	}
	return handlers
}

func (b *eventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("event bus already closed")
	}

	b.wg.Wait()

	if b.logger != nil {
		b.logger.Info("Event bus closed")
	}
	return nil
}

func (b *eventBus) logFailure(msg string, evt *event.Event, handler string, err error) {
	if b.logger == nil {
		return
	}
	b.logger.Error(msg,
		"event_type", evt.Type.String(),
		"event_id", evt.ID,
		"entity_type", evt.EntityType,
		"entity_id", evt.EntityID,
		"handler_name", handler,
		"error", err,
	)
}

// safeExecute runs a handler with panic recovery
func (b *eventBus) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}
