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

// GroupRepository implements port.GroupRepository
type GroupRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGroupRepository creates a new coordination group repository
func NewGroupRepository(db *sql.DB, logger *zap.Logger) port.GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new coordination group
func (r *GroupRepository) Create(ctx context.Context, g *entity.CoordinationGroup) error {
	query := `
		INSERT INTO coordination_groups (
			stage_instance_id, name, completion_type, threshold_value,
			total_count, completed_count, approved_count, rejected_count,
			status, decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		g.StageInstanceID,
		g.Name,
		g.CompletionType,
		g.ThresholdValue,
		g.TotalCount,
		g.CompletedCount,
		g.ApprovedCount,
		g.RejectedCount,
		g.Status,
		g.Decision,
		g.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create group", zap.Error(err))
		return fmt.Errorf("failed to create group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	g.ID = id
	return nil
}

// GetByStageInstanceID retrieves all coordination groups of a stage
func (r *GroupRepository) GetByStageInstanceID(ctx context.Context, stageInstanceID int64) ([]*entity.CoordinationGroup, error) {
	query := `
		SELECT id, stage_instance_id, name, completion_type, threshold_value,
			total_count, completed_count, approved_count, rejected_count,
			status, decision, created_at
		FROM coordination_groups
		WHERE stage_instance_id = ?
		ORDER BY id
	`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, stageInstanceID)
	if err != nil {
		r.logger.Error("Failed to list groups", zap.Int64("stage_instance_id", stageInstanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*entity.CoordinationGroup
	for rows.Next() {
		var g entity.CoordinationGroup
		err := rows.Scan(
			&g.ID,
			&g.StageInstanceID,
			&g.Name,
			&g.CompletionType,
			&g.ThresholdValue,
			&g.TotalCount,
			&g.CompletedCount,
			&g.ApprovedCount,
			&g.RejectedCount,
			&g.Status,
			&g.Decision,
			&g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// Update writes back a group's recomputed counters and decision
func (r *GroupRepository) Update(ctx context.Context, g *entity.CoordinationGroup) error {
	query := `
		UPDATE coordination_groups
		SET total_count = ?, completed_count = ?, approved_count = ?, rejected_count = ?,
			status = ?, decision = ?
		WHERE id = ?
	`
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		g.TotalCount,
		g.CompletedCount,
		g.ApprovedCount,
		g.RejectedCount,
		g.Status,
		g.Decision,
		g.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update group", zap.Int64("id", g.ID), zap.Error(err))
		return fmt.Errorf("failed to update group: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.GroupRepository = (*GroupRepository)(nil)
