package port

import (
	"context"
	"time"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

// DefinitionRepository defines persistence operations for WorkflowDefinition.
// Definitions are immutable once stored; there is no update operation.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	GetActiveByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error)
	MaxVersion(ctx context.Context, workflowType string) (int, error)
	Deactivate(ctx context.Context, workflowType string) error
	List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	// GetActiveByEntity returns the non-terminal instance for an entity
	// reference, or nil when none exists.
	GetActiveByEntity(ctx context.Context, ref entity.EntityRef) (*entity.WorkflowInstance, error)
	// UpdateWithRevision commits the instance's mutable fields with a
	// compare-and-swap on the revision counter. It returns false when the
	// stored revision no longer matches, in which case nothing was written.
	UpdateWithRevision(ctx context.Context, instance *entity.WorkflowInstance, expectedRevision int64) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*entity.WorkflowInstance, error)
}

// StageRepository defines persistence operations for StageInstance.
type StageRepository interface {
	Create(ctx context.Context, stage *entity.StageInstance) error
	GetByID(ctx context.Context, id int64) (*entity.StageInstance, error)
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageInstance, error)
	Update(ctx context.Context, stage *entity.StageInstance) error
	// ShiftExecutionOrders makes room for an injected stage by incrementing
	// the execution order of every stage at or after the given position.
	ShiftExecutionOrders(ctx context.Context, instanceID int64, fromOrder int) error
	// ListOverdue returns IN_PROGRESS stages whose deadline elapsed and which
	// have not been escalated for the current deadline configuration.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.StageInstance, error)
}

// AssignmentRepository defines persistence operations for Assignment.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *entity.Assignment) error
	GetByID(ctx context.Context, id int64) (*entity.Assignment, error)
	GetByStageInstanceID(ctx context.Context, stageInstanceID int64) ([]*entity.Assignment, error)
	Update(ctx context.Context, assignment *entity.Assignment) error
	// CountOpenByUser supports the load-balanced assignment strategy.
	CountOpenByUser(ctx context.Context, userID string) (int, error)
}

// GroupRepository defines persistence operations for CoordinationGroup.
type GroupRepository interface {
	Create(ctx context.Context, group *entity.CoordinationGroup) error
	GetByStageInstanceID(ctx context.Context, stageInstanceID int64) ([]*entity.CoordinationGroup, error)
	Update(ctx context.Context, group *entity.CoordinationGroup) error
}

// DelegationRepository defines persistence operations for standing Delegation
// redirects.
type DelegationRepository interface {
	Create(ctx context.Context, delegation *entity.Delegation) error
	// GetActiveForUser returns redirects where the given user is the
	// delegator, regardless of scope; callers filter with AppliesTo.
	GetActiveForUser(ctx context.Context, delegatorID string) ([]*entity.Delegation, error)
	Deactivate(ctx context.Context, id int64) error
}

// HistoryRepository defines the append-only audit trail. Append assigns the
// next per-instance sequence number inside the caller's transaction.
type HistoryRepository interface {
	Append(ctx context.Context, event *entity.HistoryEvent) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
