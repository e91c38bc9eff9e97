// Package workflow implements the orchestration engine: the single write path
// through which workflow instances start, collect approver actions, evaluate
// stage quorums, apply conditional rules, and advance or terminate.
package workflow

import (
	"context"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

// Engine orchestrates workflow instances. Every mutating call runs in one
// database transaction guarded by an optimistic revision check on the
// instance; lost races are retried a bounded number of times before
// surfacing ErrConcurrentModification.
type Engine interface {
	// StartInstance creates and starts a workflow for an entity using the
	// active definition of the requested type. At most one active instance
	// may exist per entity reference.
	StartInstance(ctx context.Context, req StartRequest) (*entity.WorkflowInstance, error)

	// SubmitAction records an approver's decision on an open assignment,
	// re-evaluates the stage, and advances or terminates the instance when
	// the stage closes.
	SubmitAction(ctx context.Context, req ActionRequest) (*InstanceView, error)

	// Delegate closes an open assignment as DELEGATED and opens a
	// replacement assignment for the delegatee on the same stage.
	Delegate(ctx context.Context, req DelegateRequest) (*entity.Assignment, error)

	// Escalate applies the stage's configured escalation action to an
	// overdue stage. Calling it on a stage already escalated for its current
	// deadline is a no-op.
	Escalate(ctx context.Context, stageInstanceID int64) error

	// CaptureSignature attaches a signature record to a stage waiting on one
	// and completes the stage.
	CaptureSignature(ctx context.Context, req SignatureRequest) (*InstanceView, error)

	// ExtendDeadline moves an active stage's deadline forward and re-arms
	// escalation for the new deadline.
	ExtendDeadline(ctx context.Context, instanceID int64, executionOrder, hours int, actor string) error

	// Hold pauses an in-progress instance; open assignments stay open but
	// reject actions until Resume.
	Hold(ctx context.Context, instanceID int64, actor, reason string) error

	// Resume returns a held instance to IN_PROGRESS.
	Resume(ctx context.Context, instanceID int64, actor string) error

	// Cancel terminates an instance from any non-terminal status, closing
	// all open assignments as SKIPPED.
	Cancel(ctx context.Context, instanceID int64, actor, reason string) error

	// GetView assembles the full current state of an instance: stages in
	// execution order with their assignments and coordination groups.
	GetView(ctx context.Context, instanceID int64) (*InstanceView, error)

	// History returns the instance's audit trail in sequence order.
	History(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error)
}

// StartRequest carries the inputs for StartInstance.
type StartRequest struct {
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	WorkflowType string         `json:"workflow_type"`
	StartedBy    string         `json:"started_by"`
	Priority     string         `json:"priority,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// ActionRequest carries one approver decision.
type ActionRequest struct {
	AssignmentID int64  `json:"assignment_id"`
	Actor        string `json:"actor"`
	Outcome      string `json:"outcome"` // APPROVED, REJECTED or CHANGES_REQUESTED
	Comment      string `json:"comment,omitempty"`
	SignatureRef string `json:"signature_ref,omitempty"`
}

// DelegateRequest reassigns a single open assignment.
type DelegateRequest struct {
	AssignmentID int64  `json:"assignment_id"`
	Delegator    string `json:"delegator"`
	Delegatee    string `json:"delegatee"`
	Reason       string `json:"reason,omitempty"`
}

// SignatureRequest completes a stage gated on signature capture.
type SignatureRequest struct {
	InstanceID     int64  `json:"instance_id"`
	ExecutionOrder int    `json:"execution_order"`
	Actor          string `json:"actor"`
	SignatureRef   string `json:"signature_ref"`
}

// InstanceView is the read model returned by queries and mutations.
type InstanceView struct {
	Instance *entity.WorkflowInstance `json:"instance"`
	Stages   []*StageView             `json:"stages"`
}

// StageView pairs a stage with its assignments and groups.
type StageView struct {
	Stage       *entity.StageInstance       `json:"stage"`
	Assignments []*entity.Assignment        `json:"assignments"`
	Groups      []*entity.CoordinationGroup `json:"groups,omitempty"`
}

// ActiveStage returns the view of the instance's current stage, or nil when
// the instance is terminal.
func (v *InstanceView) ActiveStage() *StageView {
	for _, sv := range v.Stages {
		if sv.Stage.ExecutionOrder == v.Instance.CurrentStage {
			return sv
		}
	}
	return nil
}
