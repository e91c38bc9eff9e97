package service

import (
	"context"
	"errors"
	"testing"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

// Mock repositories
type mockDefinitionRepo struct {
	createFunc          func(ctx context.Context, def *entity.WorkflowDefinition) error
	getByIDFunc         func(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	getActiveByTypeFunc func(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error)
	maxVersionFunc      func(ctx context.Context, workflowType string) (int, error)
	deactivateFunc      func(ctx context.Context, workflowType string) error
	listFunc            func(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error)
}

func (m *mockDefinitionRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, def)
	}
	def.ID = 1
	return nil
}

func (m *mockDefinitionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.WorkflowDefinition{ID: id}, nil
}

func (m *mockDefinitionRepo) GetActiveByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	if m.getActiveByTypeFunc != nil {
		return m.getActiveByTypeFunc(ctx, workflowType)
	}
	return nil, errors.New("not found")
}

func (m *mockDefinitionRepo) MaxVersion(ctx context.Context, workflowType string) (int, error) {
	if m.maxVersionFunc != nil {
		return m.maxVersionFunc(ctx, workflowType)
	}
	return 0, nil
}

func (m *mockDefinitionRepo) Deactivate(ctx context.Context, workflowType string) error {
	if m.deactivateFunc != nil {
		return m.deactivateFunc(ctx, workflowType)
	}
	return nil
}

func (m *mockDefinitionRepo) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*entity.WorkflowDefinition{}, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func validDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		WorkflowType: "ECO_APPROVAL",
		Name:         "Engineering Change Order",
		Stages: []entity.StageSpec{
			{
				StageNumber:  1,
				Name:         "Engineering Review",
				ApprovalType: entity.ApprovalAnyOne,
				Strategy:     entity.StrategyManual,
				NamedApprovers: []string{"lead-eng"},
			},
			{
				StageNumber:      2,
				Name:             "Quality Review",
				ApprovalType:     entity.ApprovalThreshold,
				MinimumApprovals: 2,
				Strategy:         entity.StrategyRoleBased,
				RequiredRoles:    []string{"quality_engineer"},
			},
		},
	}
}

func TestDefinitionService_Publish(t *testing.T) {
	tests := []struct {
		name       string
		definition *entity.WorkflowDefinition
		setupRepo  func(*mockDefinitionRepo)
		wantErr    bool
		wantVer    int
	}{
		{
			name:       "first version",
			definition: validDefinition(),
			wantVer:    1,
		},
		{
			name:       "version increments past existing",
			definition: validDefinition(),
			setupRepo: func(m *mockDefinitionRepo) {
				m.maxVersionFunc = func(ctx context.Context, workflowType string) (int, error) {
					return 3, nil
				}
			},
			wantVer: 4,
		},
		{
			name: "invalid structure rejected before storage",
			definition: &entity.WorkflowDefinition{
				WorkflowType: "ECO_APPROVAL",
				Stages: []entity.StageSpec{
					{StageNumber: 2, Name: "gap", ApprovalType: entity.ApprovalAnyOne, Strategy: entity.StrategyManual, NamedApprovers: []string{"x"}},
				},
			},
			wantErr: true,
		},
		{
			name: "bad rule condition rejected at publish",
			definition: func() *entity.WorkflowDefinition {
				def := validDefinition()
				def.Rules = []entity.RuleSpec{{
					Name: "bad", Field: "cost_impact", Operator: "~~", Value: 1,
					Action: entity.RuleNotify, NotifyUser: "x",
				}}
				return def
			}(),
			wantErr: true,
		},
		{
			name:       "storage failure surfaces",
			definition: validDefinition(),
			setupRepo: func(m *mockDefinitionRepo) {
				m.createFunc = func(ctx context.Context, def *entity.WorkflowDefinition) error {
					return errors.New("disk full")
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockDefinitionRepo{}
			if tt.setupRepo != nil {
				tt.setupRepo(repo)
			}
			svc := NewDefinitionService(repo, &mockTxManager{}, &mockLogger{})

			published, err := svc.Publish(context.Background(), tt.definition)
			if tt.wantErr {
				if err == nil {
					t.Error("Publish() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Publish() unexpected error: %v", err)
			}
			if published.Version != tt.wantVer {
				t.Errorf("Version = %d, want %d", published.Version, tt.wantVer)
			}
			if !published.Active {
				t.Error("published definition should be active")
			}
		})
	}
}

func TestDefinitionService_Publish_DeactivatesPrevious(t *testing.T) {
	var deactivated string
	repo := &mockDefinitionRepo{
		deactivateFunc: func(ctx context.Context, workflowType string) error {
			deactivated = workflowType
			return nil
		},
	}
	svc := NewDefinitionService(repo, &mockTxManager{}, &mockLogger{})

	if _, err := svc.Publish(context.Background(), validDefinition()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if deactivated != "ECO_APPROVAL" {
		t.Errorf("deactivated type = %q, want ECO_APPROVAL", deactivated)
	}
}
