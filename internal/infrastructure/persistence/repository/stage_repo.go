package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/persistence/sqlite"
)

// StageRepository implements port.StageRepository
type StageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sql.DB, logger *zap.Logger) port.StageRepository {
	return &StageRepository{
		db:     db,
		logger: logger,
	}
}

const stageColumns = `id, instance_id, execution_order, definition_stage, name, status, outcome,
	approval_type, minimum_approvals, percent_threshold, minimum_weight,
	required_roles, optional_roles, observer_roles, named_approvers, strategy,
	deadline_hours, allow_delegation, escalation_action, escalation_target,
	groups_spec, signature_type, signature_ref, applied_rules,
	started_at, deadline, escalated_at, closed_at, created_at`

// Create stores a new stage instance
func (r *StageRepository) Create(ctx context.Context, stage *entity.StageInstance) error {
	cols, err := encodeStageJSON(stage)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO stage_instances (
			instance_id, execution_order, definition_stage, name, status, outcome,
			approval_type, minimum_approvals, percent_threshold, minimum_weight,
			required_roles, optional_roles, observer_roles, named_approvers, strategy,
			deadline_hours, allow_delegation, escalation_action, escalation_target,
			groups_spec, signature_type, signature_ref, applied_rules,
			started_at, deadline, escalated_at, closed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		stage.InstanceID,
		stage.ExecutionOrder,
		stage.DefinitionStage,
		stage.Name,
		stage.Status,
		stage.Outcome,
		stage.ApprovalType,
		stage.MinimumApprovals,
		stage.PercentThreshold,
		stage.MinimumWeight,
		cols.requiredRoles,
		cols.optionalRoles,
		cols.observerRoles,
		cols.namedApprovers,
		stage.Strategy,
		stage.DeadlineHours,
		stage.AllowDelegation,
		stage.EscalationAction,
		stage.EscalationTarget,
		cols.groups,
		stage.SignatureType,
		stage.SignatureRef,
		cols.appliedRules,
		stage.StartedAt,
		stage.Deadline,
		stage.EscalatedAt,
		stage.ClosedAt,
		stage.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create stage", zap.Error(err))
		return fmt.Errorf("failed to create stage: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	stage.ID = id
	return nil
}

// GetByID retrieves a stage instance by ID
func (r *StageRepository) GetByID(ctx context.Context, id int64) (*entity.StageInstance, error) {
	query := `SELECT ` + stageColumns + ` FROM stage_instances WHERE id = ?`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	stage, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stage %d not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get stage", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

// GetByInstanceID retrieves all stages of an instance in execution order
func (r *StageRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageInstance, error) {
	query := `SELECT ` + stageColumns + ` FROM stage_instances WHERE instance_id = ? ORDER BY execution_order`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list stages", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*entity.StageInstance
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// Update writes back a stage instance's mutable fields
func (r *StageRepository) Update(ctx context.Context, stage *entity.StageInstance) error {
	cols, err := encodeStageJSON(stage)
	if err != nil {
		return err
	}

	query := `
		UPDATE stage_instances
		SET execution_order = ?, status = ?, outcome = ?,
			required_roles = ?, optional_roles = ?, observer_roles = ?, named_approvers = ?,
			strategy = ?, deadline_hours = ?, escalation_action = ?, escalation_target = ?,
			signature_type = ?, signature_ref = ?, applied_rules = ?,
			started_at = ?, deadline = ?, escalated_at = ?, closed_at = ?
		WHERE id = ?
	`
	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		stage.ExecutionOrder,
		stage.Status,
		stage.Outcome,
		cols.requiredRoles,
		cols.optionalRoles,
		cols.observerRoles,
		cols.namedApprovers,
		stage.Strategy,
		stage.DeadlineHours,
		stage.EscalationAction,
		stage.EscalationTarget,
		stage.SignatureType,
		stage.SignatureRef,
		cols.appliedRules,
		stage.StartedAt,
		stage.Deadline,
		stage.EscalatedAt,
		stage.ClosedAt,
		stage.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update stage", zap.Int64("id", stage.ID), zap.Error(err))
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

// ShiftExecutionOrders makes room for an injected stage by pushing every
// stage at or after the given position one slot later. The shift runs in two
// passes through negative orders: a direct +1 update would trip the unique
// (instance_id, execution_order) index as soon as a bumped row lands on a
// slot a later row still holds.
func (r *StageRepository) ShiftExecutionOrders(ctx context.Context, instanceID int64, fromOrder int) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	negate := `UPDATE stage_instances SET execution_order = -(execution_order + 1) WHERE instance_id = ? AND execution_order >= ?`
	if _, err := exec.ExecContext(ctx, negate, instanceID, fromOrder); err != nil {
		r.logger.Error("Failed to shift stage orders", zap.Int64("instance_id", instanceID), zap.Error(err))
		return fmt.Errorf("failed to shift stage orders: %w", err)
	}

	restore := `UPDATE stage_instances SET execution_order = -execution_order WHERE instance_id = ? AND execution_order < 0`
	if _, err := exec.ExecContext(ctx, restore, instanceID); err != nil {
		r.logger.Error("Failed to shift stage orders", zap.Int64("instance_id", instanceID), zap.Error(err))
		return fmt.Errorf("failed to shift stage orders: %w", err)
	}
	return nil
}

// ListOverdue returns running stages past their deadline that have not yet
// escalated, scoped to instances that are still in progress
func (r *StageRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.StageInstance, error) {
	query := `
		SELECT ` + qualifyStageColumns("s") + `
		FROM stage_instances s
		JOIN workflow_instances i ON i.id = s.instance_id
		WHERE s.status = 'IN_PROGRESS'
			AND s.deadline IS NOT NULL AND s.deadline < ?
			AND s.escalated_at IS NULL
			AND i.status = 'IN_PROGRESS'
		ORDER BY s.deadline
		LIMIT ?
	`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list overdue stages", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue stages: %w", err)
	}
	defer rows.Close()

	var stages []*entity.StageInstance
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

type stageJSONColumns struct {
	requiredRoles  string
	optionalRoles  string
	observerRoles  string
	namedApprovers string
	groups         string
	appliedRules   string
}

func encodeStageJSON(stage *entity.StageInstance) (stageJSONColumns, error) {
	var cols stageJSONColumns
	var err error
	if cols.requiredRoles, err = encodeJSON(stage.RequiredRoles); err != nil {
		return cols, err
	}
	if cols.optionalRoles, err = encodeJSON(stage.OptionalRoles); err != nil {
		return cols, err
	}
	if cols.observerRoles, err = encodeJSON(stage.ObserverRoles); err != nil {
		return cols, err
	}
	if cols.namedApprovers, err = encodeJSON(stage.NamedApprovers); err != nil {
		return cols, err
	}
	if cols.groups, err = encodeJSON(stage.Groups); err != nil {
		return cols, err
	}
	if cols.appliedRules, err = encodeJSON(stage.AppliedRules); err != nil {
		return cols, err
	}
	return cols, nil
}

func qualifyStageColumns(alias string) string {
	return alias + `.id, ` + alias + `.instance_id, ` + alias + `.execution_order, ` + alias + `.definition_stage, ` +
		alias + `.name, ` + alias + `.status, ` + alias + `.outcome, ` + alias + `.approval_type, ` +
		alias + `.minimum_approvals, ` + alias + `.percent_threshold, ` + alias + `.minimum_weight, ` +
		alias + `.required_roles, ` + alias + `.optional_roles, ` + alias + `.observer_roles, ` +
		alias + `.named_approvers, ` + alias + `.strategy, ` + alias + `.deadline_hours, ` +
		alias + `.allow_delegation, ` + alias + `.escalation_action, ` + alias + `.escalation_target, ` +
		alias + `.groups_spec, ` + alias + `.signature_type, ` + alias + `.signature_ref, ` +
		alias + `.applied_rules, ` + alias + `.started_at, ` + alias + `.deadline, ` +
		alias + `.escalated_at, ` + alias + `.closed_at, ` + alias + `.created_at`
}

func scanStage(row rowScanner) (*entity.StageInstance, error) {
	var stage entity.StageInstance
	var requiredRoles, optionalRoles, observerRoles, namedApprovers, groups, appliedRules string
	var startedAt, deadline, escalatedAt, closedAt sql.NullTime

	err := row.Scan(
		&stage.ID,
		&stage.InstanceID,
		&stage.ExecutionOrder,
		&stage.DefinitionStage,
		&stage.Name,
		&stage.Status,
		&stage.Outcome,
		&stage.ApprovalType,
		&stage.MinimumApprovals,
		&stage.PercentThreshold,
		&stage.MinimumWeight,
		&requiredRoles,
		&optionalRoles,
		&observerRoles,
		&namedApprovers,
		&stage.Strategy,
		&stage.DeadlineHours,
		&stage.AllowDelegation,
		&stage.EscalationAction,
		&stage.EscalationTarget,
		&groups,
		&stage.SignatureType,
		&stage.SignatureRef,
		&appliedRules,
		&startedAt,
		&deadline,
		&escalatedAt,
		&closedAt,
		&stage.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(requiredRoles, &stage.RequiredRoles); err != nil {
		return nil, err
	}
	if err := decodeJSON(optionalRoles, &stage.OptionalRoles); err != nil {
		return nil, err
	}
	if err := decodeJSON(observerRoles, &stage.ObserverRoles); err != nil {
		return nil, err
	}
	if err := decodeJSON(namedApprovers, &stage.NamedApprovers); err != nil {
		return nil, err
	}
	if err := decodeJSON(groups, &stage.Groups); err != nil {
		return nil, err
	}
	if err := decodeJSON(appliedRules, &stage.AppliedRules); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		stage.StartedAt = &startedAt.Time
	}
	if deadline.Valid {
		stage.Deadline = &deadline.Time
	}
	if escalatedAt.Valid {
		stage.EscalatedAt = &escalatedAt.Time
	}
	if closedAt.Valid {
		stage.ClosedAt = &closedAt.Time
	}
	return &stage, nil
}

// Verify interface compliance
var _ port.StageRepository = (*StageRepository)(nil)
