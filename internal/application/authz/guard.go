// Package authz decides whether an actor may act on the current step of a
// workflow instance.
package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Actor is the authenticated caller supplied by the auth middleware
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// Request is the subject of one authorization decision
type Request struct {
	Actor    Actor
	Instance *entity.WorkflowInstance
	Step     *entity.WorkflowStep
}

// Predicate is an assignment check such as panel membership.
// A non-nil error is an infrastructure failure, not a denial.
type Predicate func(ctx context.Context, req Request) (bool, error)

type predicateKey struct {
	entityType string
	stepName   string
}

type namedPredicate struct {
	name string
	fn   Predicate
}

// Guard evaluates exclusions, then role membership, then assignment predicates.
// It also holds the role grants of domain operations that run outside a
// workflow step.
type Guard struct {
	mu            sync.RWMutex
	deniedRoles   map[string]bool
	deniedOnSteps map[string]map[string]bool
	predicates    map[predicateKey][]namedPredicate
	grants        map[string]map[string]bool
}

// NewGuard creates a guard that denies the given roles everywhere
func NewGuard(excludedRoles ...string) *Guard {
	g := &Guard{
		deniedRoles:   make(map[string]bool),
		deniedOnSteps: make(map[string]map[string]bool),
		predicates:    make(map[predicateKey][]namedPredicate),
		grants:        make(map[string]map[string]bool),
	}
	for _, role := range excludedRoles {
		g.DenyRole(role)
	}
	return g
}

// DenyRole excludes a role from acting on any step
func (g *Guard) DenyRole(role string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deniedRoles[role] = true
}

// DenyRoleOnSteps excludes a role from acting on the named steps, even if
// the step lists the role as an approver
func (g *Guard) DenyRoleOnSteps(role string, stepNames ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	steps := g.deniedOnSteps[role]
	if steps == nil {
		steps = make(map[string]bool)
		g.deniedOnSteps[role] = steps
	}
	for _, s := range stepNames {
		steps[s] = true
	}
}

// Require registers an assignment predicate for a step of an entity type
func (g *Guard) Require(entityType, stepName, name string, p Predicate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := predicateKey{entityType: entityType, stepName: stepName}
	g.predicates[key] = append(g.predicates[key], namedPredicate{name: name, fn: p})
}

// IsExcluded reports whether a role is denied on every step
func (g *Guard) IsExcluded(role string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deniedRoles[role]
}

// Authorize returns nil if the actor may act on req.Step
func (g *Guard) Authorize(ctx context.Context, req Request) error {
	actor := req.Actor
	if actor.ID == "" || actor.Role == "" {
		return fmt.Errorf("%w: unauthenticated actor", workflow.ErrForbidden)
	}

	g.mu.RLock()
	denied := g.deniedRoles[actor.Role] || g.deniedOnSteps[actor.Role][req.Step.Name]
	predicates := g.predicates[predicateKey{entityType: req.Instance.EntityType, stepName: req.Step.Name}]
	g.mu.RUnlock()

	if denied {
		return fmt.Errorf("%w: role %s is excluded from acting on step %q", workflow.ErrForbidden, actor.Role, req.Step.Name)
	}

	if !req.Step.HasRole(actor.Role) {
		return fmt.Errorf("%w: role %s is not an approver of step %q", workflow.ErrForbidden, actor.Role, req.Step.Name)
	}

	for _, p := range predicates {
		ok, err := p.fn(ctx, req)
		if err != nil {
			return fmt.Errorf("assignment check %s: %w", p.name, err)
		}
		if !ok {
			return fmt.Errorf("%w: actor %s failed assignment check %s", workflow.ErrForbidden, actor.ID, p.name)
		}
	}

	return nil
}

// Grant allows roles to perform a named domain operation
func (g *Guard) Grant(operation string, roles ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	granted := g.grants[operation]
	if granted == nil {
		granted = make(map[string]bool)
		g.grants[operation] = granted
	}
	for _, role := range roles {
		if role != "" {
			granted[role] = true
		}
	}
}

// AuthorizeOperation returns nil if the actor's role was granted the
// operation. An operation nobody was granted is denied to everyone.
func (g *Guard) AuthorizeOperation(actor Actor, operation string) error {
	if actor.ID == "" || actor.Role == "" {
		return fmt.Errorf("%w: unauthenticated actor", workflow.ErrForbidden)
	}

	g.mu.RLock()
	denied := g.deniedRoles[actor.Role]
	granted := g.grants[operation][actor.Role]
	g.mu.RUnlock()

	if denied {
		return fmt.Errorf("%w: role %s is excluded from acting", workflow.ErrForbidden, actor.Role)
	}
	if !granted {
		return fmt.Errorf("%w: role %s may not %s", workflow.ErrForbidden, actor.Role, operation)
	}
	return nil
}

// AllOf passes when every predicate passes
func AllOf(ps ...Predicate) Predicate {
	return func(ctx context.Context, req Request) (bool, error) {
		for _, p := range ps {
			ok, err := p(ctx, req)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// AnyOf passes when at least one predicate passes
func AnyOf(ps ...Predicate) Predicate {
	return func(ctx context.Context, req Request) (bool, error) {
		for _, p := range ps {
			ok, err := p(ctx, req)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
