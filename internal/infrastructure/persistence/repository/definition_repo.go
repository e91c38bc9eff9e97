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

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `id, workflow_type, version, name, description, stages, rules, active, created_by, created_at`

// Create stores a new definition version
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	stages, err := encodeJSON(def.Stages)
	if err != nil {
		return err
	}
	rules, err := encodeJSON(def.Rules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (
			workflow_type, version, name, description, stages, rules, active, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		def.WorkflowType,
		def.Version,
		def.Name,
		def.Description,
		stages,
		rules,
		def.Active,
		def.CreatedBy,
		def.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create definition", zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = id
	return nil
}

// GetByID retrieves a definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ?`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("definition %d not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return def, nil
}

// GetActiveByType retrieves the single active definition for a workflow type
func (r *DefinitionRepository) GetActiveByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE workflow_type = ? AND active = 1`
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, workflowType)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active definition for workflow type %q", workflowType)
	}
	if err != nil {
		r.logger.Error("Failed to get active definition", zap.String("workflow_type", workflowType), zap.Error(err))
		return nil, fmt.Errorf("failed to get active definition: %w", err)
	}
	return def, nil
}

// MaxVersion returns the highest stored version for a workflow type, 0 when none
func (r *DefinitionRepository) MaxVersion(ctx context.Context, workflowType string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM workflow_definitions WHERE workflow_type = ?`
	var max int
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, workflowType).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

// Deactivate clears the active flag on every version of a workflow type
func (r *DefinitionRepository) Deactivate(ctx context.Context, workflowType string) error {
	query := `UPDATE workflow_definitions SET active = 0 WHERE workflow_type = ?`
	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, workflowType); err != nil {
		r.logger.Error("Failed to deactivate definitions", zap.String("workflow_type", workflowType), zap.Error(err))
		return fmt.Errorf("failed to deactivate definitions: %w", err)
	}
	return nil
}

// List retrieves definitions with pagination, newest first
func (r *DefinitionRepository) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var stages, rules string

	err := row.Scan(
		&def.ID,
		&def.WorkflowType,
		&def.Version,
		&def.Name,
		&def.Description,
		&stages,
		&rules,
		&def.Active,
		&def.CreatedBy,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(stages, &def.Stages); err != nil {
		return nil, err
	}
	if err := decodeJSON(rules, &def.Rules); err != nil {
		return nil, err
	}
	return &def, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
