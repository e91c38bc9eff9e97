package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/persistence/sqlite"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, entity_type, entity_id, definition_id, workflow_type, current_stage,
	status, revision, priority, impact_level, context, started_by, started_at,
	deadline, completed_at, created_at, updated_at`

// Create stores a new instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	contextJSON, err := encodeJSON(instance.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			entity_type, entity_id, definition_id, workflow_type, current_stage,
			status, revision, priority, impact_level, context, started_by, started_at,
			deadline, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.EntityType,
		instance.EntityID,
		instance.DefinitionID,
		instance.WorkflowType,
		instance.CurrentStage,
		instance.Status,
		instance.Revision,
		instance.Priority,
		instance.ImpactLevel,
		contextJSON,
		instance.StartedBy,
		instance.StartedAt,
		instance.Deadline,
		instance.CompletedAt,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	instance.ID = id
	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance %d not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// GetActiveByEntity returns the non-terminal instance governing an entity
// reference, or nil when none exists
func (r *InstanceRepository) GetActiveByEntity(ctx context.Context, ref entity.EntityRef) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE entity_type = ? AND entity_id = ? AND status NOT IN ('COMPLETED', 'REJECTED', 'CANCELLED')`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, ref.Type, ref.ID)
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active instance", zap.String("entity", ref.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get active instance: %w", err)
	}
	return instance, nil
}

// UpdateWithRevision commits the instance's mutable fields guarded by a
// compare-and-swap on the revision column. Returns false when the stored
// revision no longer matches.
func (r *InstanceRepository) UpdateWithRevision(ctx context.Context, instance *entity.WorkflowInstance, expectedRevision int64) (bool, error) {
	contextJSON, err := encodeJSON(instance.Context)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE workflow_instances
		SET current_stage = ?, status = ?, revision = ?, priority = ?, impact_level = ?,
			context = ?, deadline = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.CurrentStage,
		instance.Status,
		instance.Revision,
		instance.Priority,
		instance.ImpactLevel,
		contextJSON,
		instance.Deadline,
		instance.CompletedAt,
		instance.UpdatedAt,
		instance.ID,
		expectedRevision,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", instance.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// List retrieves instances with pagination, newest first
func (r *InstanceRepository) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var contextJSON string
	var deadline, completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.DefinitionID,
		&instance.WorkflowType,
		&instance.CurrentStage,
		&instance.Status,
		&instance.Revision,
		&instance.Priority,
		&instance.ImpactLevel,
		&contextJSON,
		&instance.StartedBy,
		&instance.StartedAt,
		&deadline,
		&completedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &instance.Context); err != nil {
		return nil, err
	}
	if deadline.Valid {
		instance.Deadline = &deadline.Time
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
