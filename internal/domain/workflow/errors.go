package workflow

import "errors"

// Error taxonomy shared by the workflow engine and the lifecycle adapters.
// Callers match with errors.Is; messages carry the specific context.
var (
	// ErrNotFound is returned when a definition, instance, step or domain record is missing
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor may not act on the current step
	ErrForbidden = errors.New("forbidden")

	// ErrStateViolation is returned when an instance is closed or a lifecycle
	// target is not reachable from the current status
	ErrStateViolation = errors.New("state violation")

	// ErrPrerequisiteViolation is returned when an irreversible transition is
	// attempted without the required upstream completions
	ErrPrerequisiteViolation = errors.New("prerequisite violation")

	// ErrConflict is returned when an active instance already exists for an entity
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed definitions, steps or requests
	ErrValidation = errors.New("validation error")
)
