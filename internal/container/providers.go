package container

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/infrastructure/persistence/repository"
)

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Definition: repository.NewDefinitionRepository(sqlDB, logger),
		Instance:   repository.NewInstanceRepository(sqlDB, logger),
		Stage:      repository.NewStageRepository(sqlDB, logger),
		Assignment: repository.NewAssignmentRepository(sqlDB, logger),
		Group:      repository.NewGroupRepository(sqlDB, logger),
		Delegation: repository.NewDelegationRepository(sqlDB, logger),
		History:    repository.NewHistoryRepository(sqlDB, logger),
	}
}
