// Package dispatcher translates closed workflow instances into updates of the
// originating domain records. Dispatch is best effort: failures are logged and
// never reach the workflow caller, and the closed instance is never reopened.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HandlerInfo describes the registration of one entity type
type HandlerInfo struct {
	EntityType string
	Hooks      []string
}

type namedHook struct {
	name string
	hook Hook
}

// Registry maps entity types to domain handlers and post-approval hooks
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]DomainHandler
	hooks    map[string][]namedHook
	logger   Logger
}

// Option configures the registry
type Option func(*Registry)

// WithLogger sets a logger for the registry
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]DomainHandler),
		hooks:    make(map[string][]namedHook),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the handler for an entity type, replacing any previous one
func (r *Registry) Register(entityType string, handler DomainHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[entityType] = handler

	if r.logger != nil {
		r.logger.Info("Domain handler registered", "entity_type", entityType)
	}
}

// RegisterHook adds a post-approval hook for an entity type
func (r *Registry) RegisterHook(entityType, name string, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[entityType] = append(r.hooks[entityType], namedHook{name: name, hook: hook})
}

// ListHandlers returns the registered entity types with their hook names
func (r *Registry) ListHandlers() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for t := range r.handlers {
		seen[t] = true
	}
	for t := range r.hooks {
		seen[t] = true
	}

	infos := make([]HandlerInfo, 0, len(seen))
	for t := range seen {
		info := HandlerInfo{EntityType: t}
		for _, h := range r.hooks[t] {
			info.Hooks = append(info.Hooks, h.name)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].EntityType < infos[j].EntityType })
	return infos
}

// Dispatch applies a closed instance to its domain record. Post-approval hooks
// run only when the instance closed APPROVED and the handler succeeded; a
// handler returning ErrSkipped counts as not applied.
func (r *Registry) Dispatch(ctx context.Context, instance *entity.WorkflowInstance) {
	if !instance.Status.IsTerminal() {
		return
	}

	r.mu.RLock()
	handler := r.handlers[instance.EntityType]
	hooks := append([]namedHook(nil), r.hooks[instance.EntityType]...)
	r.mu.RUnlock()

	if handler != nil {
		err := safeCall(func() error {
			if instance.Status == workflow.StatusApproved {
				return handler.OnApproved(ctx, instance)
			}
			return handler.OnRejected(ctx, instance)
		})
		if errors.Is(err, ErrSkipped) {
			if r.logger != nil {
				r.logger.Info("Domain dispatch skipped",
					"entity_type", instance.EntityType,
					"entity_id", instance.EntityID,
					"instance_id", instance.ID,
					"reason", err.Error(),
				)
			}
			return
		}
		if err != nil {
			r.logFailure("Domain dispatch failed", instance, attemptedStatus(handler, instance.Status), "", err)
			return
		}
	} else if r.logger != nil {
		r.logger.Info("No domain handler registered",
			"entity_type", instance.EntityType,
			"entity_id", instance.EntityID,
		)
	}

	if instance.Status != workflow.StatusApproved {
		return
	}

	for _, h := range hooks {
		if err := safeCall(func() error { return h.hook(ctx, instance) }); err != nil {
			r.logFailure("Post-approval hook failed", instance, instance.Status.String(), h.name, err)
		}
	}
}

func attemptedStatus(handler DomainHandler, final workflow.InstanceStatus) string {
	if namer, ok := handler.(StatusNamer); ok {
		return namer.AttemptedStatus(final)
	}
	return final.String()
}

func (r *Registry) logFailure(msg string, instance *entity.WorkflowInstance, status, hook string, err error) {
	if r.logger == nil {
		return
	}
	kv := []interface{}{
		"entity_type", instance.EntityType,
		"entity_id", instance.EntityID,
		"instance_id", instance.ID,
		"attempted_status", status,
		"error", err,
	}
	if hook != "" {
		kv = append(kv, "hook", hook)
	}
	r.logger.Error(msg, kv...)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn()
}
