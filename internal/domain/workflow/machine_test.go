package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateNotStarted, false},
		{StateInProgress, false},
		{StateOnHold, false},
		{StateCompleted, true},
		{StateRejected, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"valid state", StateInProgress, true},
		{"valid terminal state", StateCancelled, true},
		{"invalid state", State("PAUSED"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInstanceMachine_HappyPath(t *testing.T) {
	m := NewInstanceMachine(StateNotStarted)
	ctx := context.Background()

	if err := m.Fire(ctx, TriggerStart); err != nil {
		t.Fatalf("Fire(START) error: %v", err)
	}
	if m.State() != StateInProgress {
		t.Fatalf("state = %s, want IN_PROGRESS", m.State())
	}
	if err := m.Fire(ctx, TriggerComplete); err != nil {
		t.Fatalf("Fire(COMPLETE) error: %v", err)
	}
	if m.State() != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", m.State())
	}
}

func TestInstanceMachine_HoldResume(t *testing.T) {
	m := NewInstanceMachine(StateInProgress)
	ctx := context.Background()

	if err := m.Fire(ctx, TriggerHold); err != nil {
		t.Fatalf("Fire(HOLD) error: %v", err)
	}
	if m.State() != StateOnHold {
		t.Fatalf("state = %s, want ON_HOLD", m.State())
	}

	// Completing a held instance is not allowed
	if err := m.Fire(ctx, TriggerComplete); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(COMPLETE) from ON_HOLD = %v, want ErrInvalidTransition", err)
	}

	if err := m.Fire(ctx, TriggerResume); err != nil {
		t.Fatalf("Fire(RESUME) error: %v", err)
	}
	if m.State() != StateInProgress {
		t.Fatalf("state = %s, want IN_PROGRESS", m.State())
	}
}

func TestInstanceMachine_CancelFromHold(t *testing.T) {
	m := NewInstanceMachine(StateOnHold)

	if err := m.Fire(context.Background(), TriggerCancel); err != nil {
		t.Fatalf("Fire(CANCEL) error: %v", err)
	}
	if m.State() != StateCancelled {
		t.Fatalf("state = %s, want CANCELLED", m.State())
	}
}

func TestInstanceMachine_TerminalStatesHaveNoTransitions(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateRejected, StateCancelled} {
		m := NewInstanceMachine(terminal)
		if triggers := m.PermittedTriggers(); len(triggers) != 0 {
			t.Errorf("terminal state %s permits triggers %v", terminal, triggers)
		}
		if err := m.Fire(context.Background(), TriggerCancel); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Fire(CANCEL) from %s = %v, want ErrInvalidTransition", terminal, err)
		}
	}
}

func TestInstanceMachine_CanFire(t *testing.T) {
	m := NewInstanceMachine(StateInProgress)

	if !m.CanFire(TriggerHold) {
		t.Error("CanFire(HOLD) = false, want true")
	}
	if m.CanFire(TriggerStart) {
		t.Error("CanFire(START) = true, want false")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() with invalid state should panic")
		}
	}()

	builder.Configure(State("BOGUS"))
}

func TestBuilder_GuardedTransition(t *testing.T) {
	builder := NewBuilder()
	allow := false
	builder.Configure(StateInProgress).
		PermitIf(TriggerComplete, StateCompleted, func(ctx context.Context) bool { return allow })

	m := builder.Build(StateInProgress)

	if err := m.Fire(context.Background(), TriggerComplete); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire with failing guard = %v, want ErrGuardFailed", err)
	}

	allow = true
	if err := m.Fire(context.Background(), TriggerComplete); err != nil {
		t.Fatalf("Fire with passing guard error: %v", err)
	}
	if m.State() != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", m.State())
	}
}
