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

// DelegationRepository implements port.DelegationRepository
type DelegationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDelegationRepository creates a new delegation repository
func NewDelegationRepository(db *sql.DB, logger *zap.Logger) port.DelegationRepository {
	return &DelegationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new standing delegation redirect
func (r *DelegationRepository) Create(ctx context.Context, d *entity.Delegation) error {
	query := `
		INSERT INTO delegations (
			delegator_id, delegatee_id, workflow_type, reason, starts_at, expires_at, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		d.DelegatorID,
		d.DelegateeID,
		d.WorkflowType,
		d.Reason,
		d.StartsAt,
		d.ExpiresAt,
		d.Active,
		d.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create delegation", zap.Error(err))
		return fmt.Errorf("failed to create delegation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// GetActiveForUser retrieves a user's active outbound redirects. Scope and
// time-window filtering is the caller's concern via Delegation.AppliesTo.
func (r *DelegationRepository) GetActiveForUser(ctx context.Context, delegatorID string) ([]*entity.Delegation, error) {
	query := `
		SELECT id, delegator_id, delegatee_id, workflow_type, reason, starts_at, expires_at, active, created_at
		FROM delegations
		WHERE delegator_id = ? AND active = 1
		ORDER BY created_at
	`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, delegatorID)
	if err != nil {
		r.logger.Error("Failed to list delegations", zap.String("delegator_id", delegatorID), zap.Error(err))
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	defer rows.Close()

	var delegations []*entity.Delegation
	for rows.Next() {
		var d entity.Delegation
		var startsAt, expiresAt sql.NullTime
		err := rows.Scan(
			&d.ID,
			&d.DelegatorID,
			&d.DelegateeID,
			&d.WorkflowType,
			&d.Reason,
			&startsAt,
			&expiresAt,
			&d.Active,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		if startsAt.Valid {
			d.StartsAt = &startsAt.Time
		}
		if expiresAt.Valid {
			d.ExpiresAt = &expiresAt.Time
		}
		delegations = append(delegations, &d)
	}
	return delegations, rows.Err()
}

// Deactivate retires a standing redirect
func (r *DelegationRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE delegations SET active = 0 WHERE id = ?`
	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		r.logger.Error("Failed to deactivate delegation", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate delegation: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.DelegationRepository = (*DelegationRepository)(nil)
