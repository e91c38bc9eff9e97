package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

type stubInstanceRepo struct {
	instance *entity.WorkflowInstance
}

func (s *stubInstanceRepo) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	return nil
}
func (s *stubInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	return s.instance, nil
}
func (s *stubInstanceRepo) GetActiveByEntity(ctx context.Context, ref entity.EntityRef) (*entity.WorkflowInstance, error) {
	return nil, nil
}
func (s *stubInstanceRepo) UpdateWithRevision(ctx context.Context, instance *entity.WorkflowInstance, expectedRevision int64) (bool, error) {
	return true, nil
}
func (s *stubInstanceRepo) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowInstance, error) {
	return nil, nil
}

type stubStageRepo struct {
	stages []*entity.StageInstance
}

func (s *stubStageRepo) Create(ctx context.Context, stage *entity.StageInstance) error { return nil }
func (s *stubStageRepo) GetByID(ctx context.Context, id int64) (*entity.StageInstance, error) {
	return nil, nil
}
func (s *stubStageRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageInstance, error) {
	return s.stages, nil
}
func (s *stubStageRepo) Update(ctx context.Context, stage *entity.StageInstance) error { return nil }
func (s *stubStageRepo) ShiftExecutionOrders(ctx context.Context, instanceID int64, fromOrder int) error {
	return nil
}
func (s *stubStageRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.StageInstance, error) {
	return nil, nil
}

type stubAssignmentRepo struct {
	byStage map[int64][]*entity.Assignment
}

func (s *stubAssignmentRepo) Create(ctx context.Context, a *entity.Assignment) error { return nil }
func (s *stubAssignmentRepo) GetByID(ctx context.Context, id int64) (*entity.Assignment, error) {
	return nil, nil
}
func (s *stubAssignmentRepo) GetByStageInstanceID(ctx context.Context, stageInstanceID int64) ([]*entity.Assignment, error) {
	return s.byStage[stageInstanceID], nil
}
func (s *stubAssignmentRepo) Update(ctx context.Context, a *entity.Assignment) error { return nil }
func (s *stubAssignmentRepo) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

type stubHistoryRepo struct {
	events []*entity.HistoryEvent
}

func (s *stubHistoryRepo) Append(ctx context.Context, event *entity.HistoryEvent) error { return nil }
func (s *stubHistoryRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error) {
	return s.events, nil
}

func TestAuditExporter_Build(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	acted := now.Add(2 * time.Hour)

	exporter := NewAuditExporter(
		&stubInstanceRepo{instance: &entity.WorkflowInstance{
			ID:           12,
			EntityType:   "ECO",
			EntityID:     "ECO-2042",
			WorkflowType: "eco_approval",
			Status:       entity.InstanceCompleted,
			StartedBy:    "alex",
			StartedAt:    now,
			Revision:     5,
			CompletedAt:  &acted,
		}},
		&stubStageRepo{stages: []*entity.StageInstance{
			{ID: 1, InstanceID: 12, ExecutionOrder: 1, Name: "Engineering Review", Status: entity.StageCompleted, Outcome: entity.OutcomeApproved, ApprovalType: entity.ApprovalAnyOne, Strategy: entity.StrategyManual},
			{ID: 2, InstanceID: 12, ExecutionOrder: 2, Name: "Quality Review", Status: entity.StageCompleted, Outcome: entity.OutcomeApproved, ApprovalType: entity.ApprovalAllRequired, Strategy: entity.StrategyRoleBased},
		}},
		&stubAssignmentRepo{byStage: map[int64][]*entity.Assignment{
			1: {{ID: 10, StageInstanceID: 1, UserID: "lead-eng", Type: entity.AssignmentRequired, Status: entity.AssignmentClosed, Outcome: entity.OutcomeApproved, ActedAt: &acted}},
		}},
		&stubHistoryRepo{events: []*entity.HistoryEvent{
			{InstanceID: 12, Seq: 1, EventType: entity.HistoryAssignmentActed, StageNumber: 1, Actor: "lead-eng", OccurredAt: acted},
			{InstanceID: 12, Seq: 2, EventType: entity.HistoryStageCompleted, StageNumber: 1, Actor: entity.SystemActor, OccurredAt: acted},
		}},
		zap.NewNop(),
	)

	f, err := exporter.Build(context.Background(), 12)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{summarySheet, stagesSheet, trailSheet}, f.GetSheetList())

	id, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "12", id)

	ref, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "ECO:ECO-2042", ref)

	stageName, err := f.GetCellValue(stagesSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Engineering Review", stageName)

	approver, err := f.GetCellValue(stagesSheet, "G2")
	require.NoError(t, err)
	assert.Equal(t, "lead-eng", approver)

	// Quality Review had no assignments and still gets a row.
	quality, err := f.GetCellValue(stagesSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Quality Review", quality)

	firstEvent, err := f.GetCellValue(trailSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, entity.HistoryAssignmentActed, firstEvent)
}
