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

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

const assignmentColumns = `id, instance_id, stage_instance_id, user_id, role, type, group_name,
	weight, status, outcome, comment, delegated_from, signature_ref, acted_by, acted_at, created_at`

// Create stores a new assignment
func (r *AssignmentRepository) Create(ctx context.Context, a *entity.Assignment) error {
	query := `
		INSERT INTO assignments (
			instance_id, stage_instance_id, user_id, role, type, group_name,
			weight, status, outcome, comment, delegated_from, signature_ref, acted_by, acted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		a.InstanceID,
		a.StageInstanceID,
		a.UserID,
		a.Role,
		a.Type,
		a.GroupName,
		a.Weight,
		a.Status,
		a.Outcome,
		a.Comment,
		a.DelegatedFrom,
		a.SignatureRef,
		a.ActedBy,
		a.ActedAt,
		a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create assignment", zap.Error(err))
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// GetByID retrieves an assignment by ID, nil when it does not exist
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*entity.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = ?`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// GetByStageInstanceID retrieves all assignments of a stage
func (r *AssignmentRepository) GetByStageInstanceID(ctx context.Context, stageInstanceID int64) ([]*entity.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE stage_instance_id = ? ORDER BY id`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, stageInstanceID)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.Int64("stage_instance_id", stageInstanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Update writes back an assignment's mutable fields
func (r *AssignmentRepository) Update(ctx context.Context, a *entity.Assignment) error {
	query := `
		UPDATE assignments
		SET status = ?, outcome = ?, comment = ?, signature_ref = ?, acted_by = ?, acted_at = ?
		WHERE id = ?
	`
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		a.Status,
		a.Outcome,
		a.Comment,
		a.SignatureRef,
		a.ActedBy,
		a.ActedAt,
		a.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update assignment", zap.Int64("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return nil
}

// CountOpenByUser counts a user's open assignments across all instances
func (r *AssignmentRepository) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM assignments WHERE user_id = ? AND status = 'OPEN'`
	var count int
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open assignments: %w", err)
	}
	return count, nil
}

func scanAssignment(row rowScanner) (*entity.Assignment, error) {
	var a entity.Assignment
	var actedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.InstanceID,
		&a.StageInstanceID,
		&a.UserID,
		&a.Role,
		&a.Type,
		&a.GroupName,
		&a.Weight,
		&a.Status,
		&a.Outcome,
		&a.Comment,
		&a.DelegatedFrom,
		&a.SignatureRef,
		&a.ActedBy,
		&actedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if actedAt.Valid {
		a.ActedAt = &actedAt.Time
	}
	return &a, nil
}

// Verify interface compliance
var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
