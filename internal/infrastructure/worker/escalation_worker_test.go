package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/workflow"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

type stubStageRepo struct {
	overdue []*entity.StageInstance
	err     error
}

func (s *stubStageRepo) Create(ctx context.Context, stage *entity.StageInstance) error { return nil }
func (s *stubStageRepo) GetByID(ctx context.Context, id int64) (*entity.StageInstance, error) {
	return nil, nil
}
func (s *stubStageRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageInstance, error) {
	return nil, nil
}
func (s *stubStageRepo) Update(ctx context.Context, stage *entity.StageInstance) error { return nil }
func (s *stubStageRepo) ShiftExecutionOrders(ctx context.Context, instanceID int64, fromOrder int) error {
	return nil
}
func (s *stubStageRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.StageInstance, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.overdue) {
		return s.overdue[:limit], nil
	}
	return s.overdue, nil
}

type stubEngine struct {
	workflow.Engine

	escalated []int64
	failOn    int64
}

func (s *stubEngine) Escalate(ctx context.Context, stageInstanceID int64) error {
	if stageInstanceID == s.failOn {
		return errors.New("escalate failed")
	}
	s.escalated = append(s.escalated, stageInstanceID)
	return nil
}

func newTestWorker(repo *stubStageRepo, engine *stubEngine) *EscalationWorker {
	w := NewEscalationWorker(DefaultEscalationWorkerConfig(), repo, engine, zap.NewNop())
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

func TestEscalationWorker_SweepEscalatesOverdueStages(t *testing.T) {
	repo := &stubStageRepo{overdue: []*entity.StageInstance{
		{ID: 7, InstanceID: 1, ExecutionOrder: 2},
		{ID: 9, InstanceID: 3, ExecutionOrder: 1},
	}}
	engine := &stubEngine{}
	w := newTestWorker(repo, engine)

	require.NoError(t, w.sweep())
	assert.Equal(t, []int64{7, 9}, engine.escalated)
	assert.Equal(t, 2, w.escalatedCount)
	assert.Equal(t, 0, w.failedCount)
}

func TestEscalationWorker_SweepContinuesPastFailures(t *testing.T) {
	repo := &stubStageRepo{overdue: []*entity.StageInstance{
		{ID: 7, InstanceID: 1},
		{ID: 9, InstanceID: 3},
	}}
	engine := &stubEngine{failOn: 7}
	w := newTestWorker(repo, engine)

	require.NoError(t, w.sweep())
	assert.Equal(t, []int64{9}, engine.escalated)
	assert.Equal(t, 1, w.escalatedCount)
	assert.Equal(t, 1, w.failedCount)
}

func TestEscalationWorker_SweepPropagatesListError(t *testing.T) {
	repo := &stubStageRepo{err: errors.New("db down")}
	w := newTestWorker(repo, &stubEngine{})

	err := w.sweep()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list overdue stages")
}

func TestEscalationWorker_StartStop(t *testing.T) {
	repo := &stubStageRepo{}
	w := NewEscalationWorker(EscalationWorkerConfig{
		PollInterval: time.Hour,
		BatchSize:    5,
		SweepTimeout: time.Second,
	}, repo, &stubEngine{}, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start must be rejected")
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")
}

func TestWorkerManager_Lifecycle(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	m.Register(NewEscalationWorker(DefaultEscalationWorkerConfig(), &stubStageRepo{}, &stubEngine{}, zap.NewNop()))

	assert.Equal(t, 1, m.GetWorkerCount())
	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
}
