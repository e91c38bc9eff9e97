package workflow

import "context"

// StateMachine tracks an instance's lifecycle state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

// NewInstanceMachine builds the sign-off lifecycle machine:
// NOT_STARTED -> IN_PROGRESS -> {COMPLETED | REJECTED | CANCELLED}, with
// ON_HOLD as a pausable sub-state of IN_PROGRESS. Terminal states have no
// outgoing transitions.
func NewInstanceMachine(initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateNotStarted).
		Permit(TriggerStart, StateInProgress).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StateInProgress).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled).
		Permit(TriggerHold, StateOnHold)

	builder.Configure(StateOnHold).
		Permit(TriggerResume, StateInProgress).
		Permit(TriggerCancel, StateCancelled)

	return builder.Build(initialState)
}
