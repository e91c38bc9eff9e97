package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steiner385/MachShop-sub008/internal/application/service"
	appworkflow "github.com/steiner385/MachShop-sub008/internal/application/workflow"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	domainwf "github.com/steiner385/MachShop-sub008/internal/domain/workflow"
)

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

type fakeEngine struct {
	startFunc  func(ctx context.Context, req appworkflow.StartRequest) (*entity.WorkflowInstance, error)
	actionFunc func(ctx context.Context, req appworkflow.ActionRequest) (*appworkflow.InstanceView, error)
	holdFunc   func(ctx context.Context, id int64, actor, reason string) error
	viewFunc   func(ctx context.Context, id int64) (*appworkflow.InstanceView, error)
}

func (f *fakeEngine) StartInstance(ctx context.Context, req appworkflow.StartRequest) (*entity.WorkflowInstance, error) {
	return f.startFunc(ctx, req)
}
func (f *fakeEngine) SubmitAction(ctx context.Context, req appworkflow.ActionRequest) (*appworkflow.InstanceView, error) {
	return f.actionFunc(ctx, req)
}
func (f *fakeEngine) Delegate(ctx context.Context, req appworkflow.DelegateRequest) (*entity.Assignment, error) {
	return nil, domainwf.ErrDelegationNotAllowed
}
func (f *fakeEngine) Escalate(ctx context.Context, stageInstanceID int64) error { return nil }
func (f *fakeEngine) CaptureSignature(ctx context.Context, req appworkflow.SignatureRequest) (*appworkflow.InstanceView, error) {
	return nil, nil
}
func (f *fakeEngine) ExtendDeadline(ctx context.Context, instanceID int64, executionOrder, hours int, actor string) error {
	return nil
}
func (f *fakeEngine) Hold(ctx context.Context, instanceID int64, actor, reason string) error {
	if f.holdFunc != nil {
		return f.holdFunc(ctx, instanceID, actor, reason)
	}
	return nil
}
func (f *fakeEngine) Resume(ctx context.Context, instanceID int64, actor string) error { return nil }
func (f *fakeEngine) Cancel(ctx context.Context, instanceID int64, actor, reason string) error {
	return nil
}
func (f *fakeEngine) GetView(ctx context.Context, instanceID int64) (*appworkflow.InstanceView, error) {
	if f.viewFunc != nil {
		return f.viewFunc(ctx, instanceID)
	}
	return nil, fmt.Errorf("not found")
}
func (f *fakeEngine) History(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error) {
	return nil, nil
}

type fakeDefinitionService struct {
	publishFunc func(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error)
}

func (f *fakeDefinitionService) Publish(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	return f.publishFunc(ctx, def)
}
func (f *fakeDefinitionService) GetDefinition(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	return nil, fmt.Errorf("not found")
}
func (f *fakeDefinitionService) ActiveForType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	return nil, fmt.Errorf("not found")
}
func (f *fakeDefinitionService) ListDefinitions(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	return nil, nil
}

var _ appworkflow.Engine = (*fakeEngine)(nil)
var _ service.DefinitionService = (*fakeDefinitionService)(nil)

func newTestServer(engine *fakeEngine, defs *fakeDefinitionService) *Server {
	return NewServer(DefaultServerConfig(), engine, defs, nil, testLogger{})
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDefinitionService{})
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartInstance_Created(t *testing.T) {
	engine := &fakeEngine{
		startFunc: func(ctx context.Context, req appworkflow.StartRequest) (*entity.WorkflowInstance, error) {
			return &entity.WorkflowInstance{ID: 11, EntityType: req.EntityType, EntityID: req.EntityID, Status: entity.InstanceInProgress}, nil
		},
	}
	srv := newTestServer(engine, &fakeDefinitionService{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/instances", appworkflow.StartRequest{
		EntityType:   "ECO",
		EntityID:     "ECO-1001",
		WorkflowType: "eco_approval",
		StartedBy:    "alex",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestStartInstance_DuplicateConflicts(t *testing.T) {
	engine := &fakeEngine{
		startFunc: func(ctx context.Context, req appworkflow.StartRequest) (*entity.WorkflowInstance, error) {
			return nil, fmt.Errorf("start: %w", domainwf.ErrDuplicateActiveInstance)
		},
	}
	srv := newTestServer(engine, &fakeDefinitionService{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/instances", appworkflow.StartRequest{
		EntityType:   "ECO",
		EntityID:     "ECO-1001",
		WorkflowType: "eco_approval",
		StartedBy:    "alex",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartInstance_MissingFields(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDefinitionService{})
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/instances", map[string]string{"entity_type": "ECO"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"closed assignment", domainwf.ErrAssignmentAlreadyClosed, http.StatusConflict},
		{"unknown assignment", domainwf.ErrUnknownAssignment, http.StatusNotFound},
		{"terminated instance", domainwf.ErrInstanceTerminated, http.StatusGone},
		{"held instance", domainwf.ErrInstanceOnHold, http.StatusUnprocessableEntity},
		{"revision conflict", domainwf.ErrConcurrentModification, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{
				actionFunc: func(ctx context.Context, req appworkflow.ActionRequest) (*appworkflow.InstanceView, error) {
					return nil, fmt.Errorf("submit: %w", tt.err)
				},
			}
			srv := newTestServer(engine, &fakeDefinitionService{})

			rec := doJSON(t, srv, http.MethodPost, "/api/v1/assignments/5/action", ActionBody{
				Actor:   "sam",
				Outcome: entity.OutcomeApproved,
			})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDelegate_Forbidden(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDefinitionService{})
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/assignments/5/delegate", DelegateBody{
		Delegator: "sam",
		Delegatee: "kim",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPublishDefinition_InvalidIsUnprocessable(t *testing.T) {
	defs := &fakeDefinitionService{
		publishFunc: func(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
			return nil, fmt.Errorf("%w: stage numbers must be contiguous", entity.ErrInvalidDefinition)
		},
	}
	srv := newTestServer(&fakeEngine{}, defs)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/definitions", entity.WorkflowDefinition{WorkflowType: "eco_approval"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetInstance_NotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDefinitionService{})
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/instances/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHold_RoutesBody(t *testing.T) {
	var gotActor, gotReason string
	engine := &fakeEngine{
		holdFunc: func(ctx context.Context, id int64, actor, reason string) error {
			gotActor, gotReason = actor, reason
			return nil
		},
	}
	srv := newTestServer(engine, &fakeDefinitionService{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/instances/3/hold", LifecycleBody{
		Actor:  "quality-mgr",
		Reason: "supplier data pending",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quality-mgr", gotActor)
	assert.Equal(t, "supplier data pending", gotReason)
}
