package workflow

import "errors"

// State machine errors
var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// Orchestration error taxonomy. Callers discriminate with errors.Is; every
// layer wraps these with context rather than redefining them.
var (
	// ErrDuplicateActiveInstance is returned by StartInstance when an active
	// instance already exists for the entity reference
	ErrDuplicateActiveInstance = errors.New("active workflow instance already exists for entity")

	// ErrInstanceTerminated is returned when a mutation targets an instance in
	// a terminal status
	ErrInstanceTerminated = errors.New("workflow instance is terminated")

	// ErrInstanceOnHold is returned when an approver action targets a paused
	// instance
	ErrInstanceOnHold = errors.New("workflow instance is on hold")

	// ErrUnknownAssignment is returned when an action references an assignment
	// that does not exist
	ErrUnknownAssignment = errors.New("unknown assignment")

	// ErrAssignmentAlreadyClosed is returned on a duplicate action against a
	// closed assignment; the duplicate is rejected, never re-applied
	ErrAssignmentAlreadyClosed = errors.New("assignment already closed")

	// ErrUnresolvableAssignment is returned when a required role resolves to
	// zero candidate users; the stage escalates instead of stalling silently
	ErrUnresolvableAssignment = errors.New("assignment role resolves to no candidates")

	// ErrDelegationNotAllowed is returned when the stage forbids delegation or
	// has already closed
	ErrDelegationNotAllowed = errors.New("delegation not allowed")

	// ErrInvalidRuleCondition is returned at definition-publish time for a
	// malformed rule condition; it is never produced at run time
	ErrInvalidRuleCondition = errors.New("invalid rule condition")

	// ErrConcurrentModification is returned when the optimistic revision check
	// fails on commit; the orchestrator retries the read-modify-write cycle a
	// bounded number of times before surfacing it
	ErrConcurrentModification = errors.New("concurrent modification of workflow instance")
)
