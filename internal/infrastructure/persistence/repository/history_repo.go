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

// HistoryRepository implements port.HistoryRepository. The table is
// append-only: there is no update or delete path.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores a history event, assigning the next per-instance sequence
// number inside the caller's transaction. The unique (instance_id, seq) index
// turns a lost race into a constraint violation instead of a silent gap.
func (r *HistoryRepository) Append(ctx context.Context, evt *entity.HistoryEvent) error {
	query := `
		INSERT INTO workflow_history (
			instance_id, seq, event_type, stage_number, previous_status, new_status,
			actor, detail, occurred_at
		) VALUES (
			?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM workflow_history WHERE instance_id = ?),
			?, ?, ?, ?, ?, ?, ?
		)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		evt.InstanceID,
		evt.InstanceID,
		evt.EventType,
		evt.StageNumber,
		evt.PreviousStatus,
		evt.NewStatus,
		evt.Actor,
		evt.Detail,
		evt.OccurredAt,
	)
	if err != nil {
		r.logger.Error("Failed to append history", zap.Int64("instance_id", evt.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	evt.ID = id

	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT seq FROM workflow_history WHERE id = ?`, id)
	if err := row.Scan(&evt.Seq); err != nil {
		return fmt.Errorf("failed to read assigned seq: %w", err)
	}
	return nil
}

// GetByInstanceID retrieves an instance's audit trail in sequence order
func (r *HistoryRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error) {
	query := `
		SELECT id, instance_id, seq, event_type, stage_number, previous_status, new_status,
			actor, detail, occurred_at
		FROM workflow_history
		WHERE instance_id = ?
		ORDER BY seq
	`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var events []*entity.HistoryEvent
	for rows.Next() {
		var evt entity.HistoryEvent
		err := rows.Scan(
			&evt.ID,
			&evt.InstanceID,
			&evt.Seq,
			&evt.EventType,
			&evt.StageNumber,
			&evt.PreviousStatus,
			&evt.NewStatus,
			&evt.Actor,
			&evt.Detail,
			&evt.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
