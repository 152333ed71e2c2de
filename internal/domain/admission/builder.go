package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// TableBuilder builds an immutable transition table
type TableBuilder interface {
	// Configure returns the configuration for the given status
	Configure(status Status) StatusConfiguration

	// Build freezes the configuration into a table tagged with version
	Build(version string) *Table
}

// StatusConfiguration configures one status of the table
type StatusConfiguration interface {
	// Permit allows transitions from this status to each target
	Permit(targets ...Status) StatusConfiguration

	// WithSLA sets the number of days an entity may stay in this status
	WithSLA(days int) StatusConfiguration

	// Require declares prerequisites that must hold to enter this status
	Require(prereqs ...Prerequisite) StatusConfiguration
}

type statusConfig struct {
	targets  []Status
	slaDays  int
	requires []Prerequisite
}

type tableBuilder struct {
	configurations map[Status]*statusConfig
}

type configurator struct {
	config *statusConfig
}

// Table is the frozen admission transition table
type Table struct {
	version        string
	configurations map[Status]*statusConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		configurations: make(map[Status]*statusConfig),
	}
}

// Configure returns the configuration for the given status
func (b *tableBuilder) Configure(status Status) StatusConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &statusConfig{}
		b.configurations[status] = config
	}

	return &configurator{config: config}
}

// Build copies the configuration so later builder changes do not leak into the table
func (b *tableBuilder) Build(version string) *Table {
	configsCopy := make(map[Status]*statusConfig, len(b.configurations))
	for status, config := range b.configurations {
		configsCopy[status] = &statusConfig{
			targets:  append([]Status{}, config.targets...),
			slaDays:  config.slaDays,
			requires: append([]Prerequisite{}, config.requires...),
		}
	}

	return &Table{
		version:        version,
		configurations: configsCopy,
	}
}

// Permit allows transitions from this status to each target
func (c *configurator) Permit(targets ...Status) StatusConfiguration {
	for _, to := range targets {
		if !to.IsValid() {
			panic(fmt.Sprintf("invalid target status: %s", to))
		}
		c.config.targets = append(c.config.targets, to)
	}
	return c
}

// WithSLA sets the number of days an entity may stay in this status
func (c *configurator) WithSLA(days int) StatusConfiguration {
	if days < 0 {
		panic(fmt.Sprintf("negative SLA: %d", days))
	}
	c.config.slaDays = days
	return c
}

// Require declares prerequisites that must hold to enter this status
func (c *configurator) Require(prereqs ...Prerequisite) StatusConfiguration {
	c.config.requires = append(c.config.requires, prereqs...)
	return c
}

// Version returns the table version recorded with every transition
func (t *Table) Version() string {
	return t.version
}

// Allowed returns the legal next statuses from the given status
func (t *Table) Allowed(from Status) []Status {
	config, exists := t.configurations[from]
	if !exists {
		return []Status{}
	}
	return append([]Status{}, config.targets...)
}

// CanTransition returns true if to is in the allowed set of from
func (t *Table) CanTransition(from, to Status) bool {
	for _, s := range t.Allowed(from) {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns a state violation if the transition is not in the table
func (t *Table) Check(from, to Status) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %s", workflow.ErrValidation, to)
	}
	if !t.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", workflow.ErrStateViolation, from, to)
	}
	return nil
}

// SLADays returns the SLA offset of a status, zero when none is declared
func (t *Table) SLADays(status Status) int {
	if config, exists := t.configurations[status]; exists {
		return config.slaDays
	}
	return 0
}

// Deadline computes the due time for an entity entering status at enteredAt.
// Statuses without an SLA have no deadline.
func (t *Table) Deadline(status Status, enteredAt time.Time) *time.Time {
	days := t.SLADays(status)
	if days == 0 {
		return nil
	}
	due := enteredAt.AddDate(0, 0, days)
	return &due
}

// Prerequisites returns the prerequisites required to enter a status
func (t *Table) Prerequisites(to Status) []Prerequisite {
	if config, exists := t.configurations[to]; exists {
		return append([]Prerequisite{}, config.requires...)
	}
	return []Prerequisite{}
}

// CheckPrerequisites returns a prerequisite violation naming every
// unsatisfied prerequisite of the target status
func (t *Table) CheckPrerequisites(to Status, facts Facts) error {
	var missing []string
	for _, p := range t.Prerequisites(to) {
		if !facts.Satisfies(p) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", workflow.ErrPrerequisiteViolation, to, strings.Join(missing, ", "))
	}
	return nil
}

// WithSLAOverrides returns a copy of the table with the SLA offsets of the
// given statuses replaced. Unknown statuses and negative offsets are rejected.
func (t *Table) WithSLAOverrides(days map[Status]int) (*Table, error) {
	cp := &Table{
		version:        t.version,
		configurations: make(map[Status]*statusConfig, len(t.configurations)),
	}
	for status, config := range t.configurations {
		c := *config
		cp.configurations[status] = &c
	}

	for status, d := range days {
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q in SLA overrides", workflow.ErrValidation, status)
		}
		if d < 0 {
			return nil, fmt.Errorf("%w: negative SLA for %s", workflow.ErrValidation, status)
		}
		config, exists := cp.configurations[status]
		if !exists {
			config = &statusConfig{}
			cp.configurations[status] = config
		}
		config.slaDays = d
	}
	return cp, nil
}
