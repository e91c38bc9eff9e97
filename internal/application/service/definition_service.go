package service

import (
	"context"
	"fmt"
	"time"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/application/rules"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefinitionService manages versioned workflow definitions. Publishing a
// definition validates its structure, compiles its rule conditions, assigns
// the next version for its workflow type, and atomically makes it the single
// active version.
type DefinitionService interface {
	Publish(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	ActiveForType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error)
}

type definitionServiceImpl struct {
	definitionRepo port.DefinitionRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitionRepo port.DefinitionRepository,
	txManager port.TransactionManager,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		definitionRepo: definitionRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

// Publish validates and stores a new definition version. In-flight instances
// keep the version they started on; only new instances pick up the published
// version.
func (s *definitionServiceImpl) Publish(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidDefinition, err)
	}
	if _, err := rules.Compile(def.Rules); err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		maxVersion, err := s.definitionRepo.MaxVersion(txCtx, def.WorkflowType)
		if err != nil {
			return fmt.Errorf("get max version: %w", err)
		}
		def.Version = maxVersion + 1
		def.Active = true
		def.CreatedAt = time.Now()

		if err := s.definitionRepo.Deactivate(txCtx, def.WorkflowType); err != nil {
			return fmt.Errorf("deactivate previous versions: %w", err)
		}
		if err := s.definitionRepo.Create(txCtx, def); err != nil {
			return fmt.Errorf("create definition: %w", err)
		}
		return nil
	})

	if err != nil {
		s.logger.Error("Failed to publish definition", "error", err, "workflow_type", def.WorkflowType)
		return nil, err
	}

	s.logger.Info("Definition published", "id", def.ID, "workflow_type", def.WorkflowType, "version", def.Version)
	return def, nil
}

// GetDefinition retrieves a definition by ID
func (s *definitionServiceImpl) GetDefinition(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get definition", "error", err, "id", id)
		return nil, err
	}
	return def, nil
}

// ActiveForType retrieves the active definition version for a workflow type
func (s *definitionServiceImpl) ActiveForType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetActiveByType(ctx, workflowType)
	if err != nil {
		s.logger.Error("Failed to get active definition", "error", err, "workflow_type", workflowType)
		return nil, err
	}
	return def, nil
}

// ListDefinitions retrieves a paginated list of definitions
func (s *definitionServiceImpl) ListDefinitions(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	defs, err := s.definitionRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list definitions", "error", err, "limit", limit, "offset", offset)
		return nil, err
	}
	return defs, nil
}
