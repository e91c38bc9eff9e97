package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	"github.com/steiner385/MachShop-sub008/pkg/database"
)

// repos bundles repositories over a migrated throwaway database so tests
// exercise the real schema, including its unique indexes.
type repos struct {
	definitions port.DefinitionRepository
	instances   port.InstanceRepository
	stages      port.StageRepository
	history     port.HistoryRepository
}

func newTestRepos(t *testing.T) *repos {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../../../migrations"))

	return &repos{
		definitions: NewDefinitionRepository(db.DB, logger),
		instances:   NewInstanceRepository(db.DB, logger),
		stages:      NewStageRepository(db.DB, logger),
		history:     NewHistoryRepository(db.DB, logger),
	}
}

// seedInstance creates a definition and an instance for it.
func seedInstance(t *testing.T, r *repos, entityID string) *entity.WorkflowInstance {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	def := &entity.WorkflowDefinition{
		WorkflowType: "ECO_APPROVAL",
		Version:      1,
		Name:         "Engineering Change Order",
		Stages: []entity.StageSpec{{
			StageNumber:    1,
			Name:           "Engineering Review",
			ApprovalType:   entity.ApprovalAnyOne,
			Strategy:       entity.StrategyManual,
			NamedApprovers: []string{"lead-eng"},
		}},
		Active:    true,
		CreatedBy: "config-admin",
		CreatedAt: now,
	}
	require.NoError(t, r.definitions.Create(ctx, def))

	instance := &entity.WorkflowInstance{
		EntityType:   "ECO",
		EntityID:     entityID,
		DefinitionID: def.ID,
		WorkflowType: def.WorkflowType,
		CurrentStage: 1,
		Status:       entity.InstanceInProgress,
		Revision:     1,
		StartedBy:    "planner",
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, r.instances.Create(ctx, instance))
	return instance
}

func seedStage(t *testing.T, r *repos, instanceID int64, order int, name string) *entity.StageInstance {
	t.Helper()
	stage := &entity.StageInstance{
		InstanceID:      instanceID,
		ExecutionOrder:  order,
		DefinitionStage: order,
		Name:            name,
		Status:          entity.StagePending,
		ApprovalType:    entity.ApprovalAnyOne,
		Strategy:        entity.StrategyManual,
		NamedApprovers:  []string{"lead-eng"},
	}
	require.NoError(t, r.stages.Create(context.Background(), stage))
	return stage
}

func TestStageRepository_ShiftExecutionOrders(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	instance := seedInstance(t, r, "ECO-2042")

	// Three consecutive stages: shifting from order 1 must renumber all of
	// them without tripping the unique (instance_id, execution_order) index.
	seedStage(t, r, instance.ID, 1, "Engineering Review")
	seedStage(t, r, instance.ID, 2, "Quality Review")
	seedStage(t, r, instance.ID, 3, "Production Sign-off")

	require.NoError(t, r.stages.ShiftExecutionOrders(ctx, instance.ID, 1))

	stages, err := r.stages.GetByInstanceID(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)

	byName := make(map[string]int, len(stages))
	for _, s := range stages {
		byName[s.Name] = s.ExecutionOrder
	}
	assert.Equal(t, 2, byName["Engineering Review"])
	assert.Equal(t, 3, byName["Quality Review"])
	assert.Equal(t, 4, byName["Production Sign-off"])
}

func TestStageRepository_ShiftExecutionOrdersMidChain(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	instance := seedInstance(t, r, "ECO-2042")

	seedStage(t, r, instance.ID, 1, "Engineering Review")
	seedStage(t, r, instance.ID, 2, "Quality Review")
	seedStage(t, r, instance.ID, 3, "Production Sign-off")

	// Shift from the middle: the earlier stage keeps its slot.
	require.NoError(t, r.stages.ShiftExecutionOrders(ctx, instance.ID, 2))

	stages, err := r.stages.GetByInstanceID(ctx, instance.ID)
	require.NoError(t, err)
	byName := make(map[string]int, len(stages))
	for _, s := range stages {
		byName[s.Name] = s.ExecutionOrder
	}
	assert.Equal(t, 1, byName["Engineering Review"])
	assert.Equal(t, 3, byName["Quality Review"])
	assert.Equal(t, 4, byName["Production Sign-off"])
}

func TestStageRepository_ShiftLeavesOtherInstancesAlone(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	first := seedInstance(t, r, "ECO-2042")
	second := seedInstance(t, r, "ECO-2043")

	seedStage(t, r, first.ID, 1, "Engineering Review")
	seedStage(t, r, second.ID, 1, "Engineering Review")

	require.NoError(t, r.stages.ShiftExecutionOrders(ctx, first.ID, 1))

	others, err := r.stages.GetByInstanceID(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, 1, others[0].ExecutionOrder)
}

func TestHistoryRepository_AppendAssignsPerInstanceSeq(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	first := seedInstance(t, r, "ECO-2042")
	second := seedInstance(t, r, "ECO-2043")
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	record := func(instanceID int64, eventType string) *entity.HistoryEvent {
		evt := &entity.HistoryEvent{
			InstanceID: instanceID,
			EventType:  eventType,
			Actor:      entity.SystemActor,
			OccurredAt: now,
		}
		require.NoError(t, r.history.Append(ctx, evt))
		return evt
	}

	// Interleaved appends keep each instance's sequence dense and private.
	a1 := record(first.ID, entity.HistoryAssignmentActed)
	b1 := record(second.ID, entity.HistoryAssignmentActed)
	a2 := record(first.ID, entity.HistoryStageCompleted)
	a3 := record(first.ID, entity.HistoryInstanceCompleted)
	b2 := record(second.ID, entity.HistoryStageCompleted)

	assert.Equal(t, int64(1), a1.Seq)
	assert.Equal(t, int64(2), a2.Seq)
	assert.Equal(t, int64(3), a3.Seq)
	assert.Equal(t, int64(1), b1.Seq)
	assert.Equal(t, int64(2), b2.Seq)

	trail, err := r.history.GetByInstanceID(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	for i, evt := range trail {
		assert.Equal(t, int64(i+1), evt.Seq)
	}
}

func TestInstanceRepository_UpdateWithRevision(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	instance := seedInstance(t, r, "ECO-2042")

	instance.CurrentStage = 2
	instance.Revision = 2
	instance.UpdatedAt = instance.UpdatedAt.Add(time.Minute)
	ok, err := r.instances.UpdateWithRevision(ctx, instance, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// A writer still holding the old revision loses the race.
	stale := *instance
	stale.CurrentStage = 3
	stale.Revision = 2
	ok, err = r.instances.UpdateWithRevision(ctx, &stale, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := r.instances.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.CurrentStage)
	assert.Equal(t, int64(2), reloaded.Revision)
}

func TestInstanceRepository_ActiveEntityUniqueness(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	instance := seedInstance(t, r, "ECO-2042")

	dup := &entity.WorkflowInstance{
		EntityType:   instance.EntityType,
		EntityID:     instance.EntityID,
		DefinitionID: instance.DefinitionID,
		WorkflowType: instance.WorkflowType,
		CurrentStage: 1,
		Status:       entity.InstanceInProgress,
		Revision:     1,
		StartedBy:    "planner",
		StartedAt:    instance.StartedAt,
		CreatedAt:    instance.CreatedAt,
		UpdatedAt:    instance.UpdatedAt,
	}
	err := r.instances.Create(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%v", err), "UNIQUE")
}
