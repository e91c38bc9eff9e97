package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/steiner385/MachShop-sub008/internal/application/dispatcher"
	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/application/rules"
	"github.com/steiner385/MachShop-sub008/internal/domain/approval"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	"github.com/steiner385/MachShop-sub008/internal/domain/event"
	domainwf "github.com/steiner385/MachShop-sub008/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// maxConflictRetries bounds how often a mutation is re-run after losing the
// optimistic revision race before the conflict surfaces to the caller.
const maxConflictRetries = 3

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	stageRepo      port.StageRepository
	assignmentRepo port.AssignmentRepository
	groupRepo      port.GroupRepository
	delegationRepo port.DelegationRepository
	historyRepo    port.HistoryRepository
	txManager      port.TransactionManager
	roleResolver   port.RoleResolver
	metadata       port.MetadataLookup
	dispatcher     dispatcher.Dispatcher
	logger         Logger
	now            func() time.Time

	// Compiled rule sets cached per definition; definitions are immutable so
	// entries never invalidate.
	mu        sync.RWMutex
	ruleCache map[int64][]rules.CompiledRule
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting domain events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetadataLookup sets the entity metadata collaborator used to seed the
// instance context for rule evaluation
func WithMetadataLookup(m port.MetadataLookup) EngineOption {
	return func(e *engineImpl) {
		e.metadata = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the engine's time source, for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	stageRepo port.StageRepository,
	assignmentRepo port.AssignmentRepository,
	groupRepo port.GroupRepository,
	delegationRepo port.DelegationRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	roleResolver port.RoleResolver,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		stageRepo:      stageRepo,
		assignmentRepo: assignmentRepo,
		groupRepo:      groupRepo,
		delegationRepo: delegationRepo,
		historyRepo:    historyRepo,
		txManager:      txManager,
		roleResolver:   roleResolver,
		logger:         noopLogger{},
		now:            time.Now,
		ruleCache:      make(map[int64][]rules.CompiledRule),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// StartInstance creates and starts a workflow for an entity
func (e *engineImpl) StartInstance(ctx context.Context, req StartRequest) (*entity.WorkflowInstance, error) {
	if req.EntityType == "" || req.EntityID == "" || req.WorkflowType == "" {
		return nil, fmt.Errorf("entity type, entity id and workflow type are required")
	}

	ref := entity.EntityRef{Type: req.EntityType, ID: req.EntityID}
	existing, err := e.instanceRepo.GetActiveByEntity(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("check active instance: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s held by instance %d", domainwf.ErrDuplicateActiveInstance, ref, existing.ID)
	}

	def, err := e.definitionRepo.GetActiveByType(ctx, req.WorkflowType)
	if err != nil {
		return nil, fmt.Errorf("load active definition for %s: %w", req.WorkflowType, err)
	}
	compiled, err := e.compiledRules(def)
	if err != nil {
		return nil, err
	}

	instCtx := e.seedContext(ctx, req)

	now := e.now()
	instance := &entity.WorkflowInstance{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		DefinitionID: def.ID,
		WorkflowType: def.WorkflowType,
		CurrentStage: 1,
		Status:       entity.InstanceInProgress,
		Revision:     1,
		Priority:     req.Priority,
		Context:      instCtx,
		StartedBy:    req.StartedBy,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if impact, ok := instCtx["impact_level"].(string); ok {
		instance.ImpactLevel = impact
	}

	var events []*event.Event
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}

		for i, spec := range def.Stages {
			stage := snapshotStage(instance.ID, i+1, spec, now)
			if err := e.stageRepo.Create(txCtx, stage); err != nil {
				return fmt.Errorf("create stage %d: %w", spec.StageNumber, err)
			}
		}

		events = append(events, event.New(event.TypeInstanceStarted, instance.ID, instance.EntityType, instance.EntityID).
			WithActor(req.StartedBy))

		// Start-time rule pass reshapes the plan before anyone is assigned.
		if err := e.runRules(txCtx, instance, nil, "", compiled, &events); err != nil {
			return err
		}
		if err := e.advance(txCtx, instance, &events); err != nil {
			return err
		}
		return e.commitInstance(txCtx, instance)
	})
	if err != nil {
		e.logger.Error("Failed to start instance", "error", err, "entity", ref.String())
		return nil, err
	}

	e.emit(ctx, events)
	e.logger.Info("Instance started", "id", instance.ID, "entity", ref.String(), "workflow_type", def.WorkflowType)
	return instance, nil
}

// SubmitAction records an approver decision and drives stage evaluation
func (e *engineImpl) SubmitAction(ctx context.Context, req ActionRequest) (*InstanceView, error) {
	switch req.Outcome {
	case entity.OutcomeApproved, entity.OutcomeRejected, entity.OutcomeChangesRequested:
	default:
		return nil, fmt.Errorf("unsupported action outcome %q", req.Outcome)
	}

	var instanceID int64
	err := e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		assignment, err := e.assignmentRepo.GetByID(txCtx, req.AssignmentID)
		if err != nil || assignment == nil {
			return fmt.Errorf("%w: id %d", domainwf.ErrUnknownAssignment, req.AssignmentID)
		}
		instanceID = assignment.InstanceID

		instance, err := e.loadActiveInstance(txCtx, assignment.InstanceID)
		if err != nil {
			return err
		}
		if assignment.UserID != req.Actor {
			return fmt.Errorf("%w: assignment %d is not held by %s", domainwf.ErrUnknownAssignment, req.AssignmentID, req.Actor)
		}
		if !assignment.IsOpen() {
			return fmt.Errorf("%w: id %d", domainwf.ErrAssignmentAlreadyClosed, req.AssignmentID)
		}
		if assignment.Type == entity.AssignmentObserver {
			return fmt.Errorf("observer assignment %d cannot act", req.AssignmentID)
		}

		stage, err := e.stageRepo.GetByID(txCtx, assignment.StageInstanceID)
		if err != nil {
			return fmt.Errorf("load stage: %w", err)
		}
		if stage.IsClosed() || stage.Status == entity.StageWaitingSignature {
			return fmt.Errorf("%w: stage already closed", domainwf.ErrAssignmentAlreadyClosed)
		}

		now := e.now()
		assignment.Status = entity.AssignmentClosed
		assignment.Outcome = req.Outcome
		assignment.Comment = req.Comment
		assignment.SignatureRef = req.SignatureRef
		assignment.ActedBy = req.Actor
		assignment.ActedAt = &now
		if err := e.assignmentRepo.Update(txCtx, assignment); err != nil {
			return fmt.Errorf("close assignment: %w", err)
		}

		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:     instance.ID,
			EventType:      entity.HistoryAssignmentActed,
			StageNumber:    stage.ExecutionOrder,
			PreviousStatus: entity.AssignmentOpen,
			NewStatus:      entity.AssignmentClosed,
			Actor:          req.Actor,
			Detail:         req.Outcome,
			OccurredAt:     now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(event.TypeAssignmentActed, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithActor(req.Actor).WithPayload("outcome", req.Outcome))

		result, err := e.evaluateStage(txCtx, stage)
		if err != nil {
			return err
		}
		if result.Closed {
			if result.Outcome == entity.OutcomeApproved {
				err = e.stageApproved(txCtx, instance, stage, events)
			} else {
				err = e.stageFailed(txCtx, instance, stage, result.Outcome, req.Actor, events)
			}
			if err != nil {
				return err
			}
		}
		return e.commitInstance(txCtx, instance)
	})
	if err != nil {
		return nil, err
	}
	return e.GetView(ctx, instanceID)
}

// Delegate reassigns one open assignment to another user
func (e *engineImpl) Delegate(ctx context.Context, req DelegateRequest) (*entity.Assignment, error) {
	var replacement *entity.Assignment
	err := e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		assignment, err := e.assignmentRepo.GetByID(txCtx, req.AssignmentID)
		if err != nil || assignment == nil {
			return fmt.Errorf("%w: id %d", domainwf.ErrUnknownAssignment, req.AssignmentID)
		}
		instance, err := e.loadActiveInstance(txCtx, assignment.InstanceID)
		if err != nil {
			return err
		}
		if assignment.UserID != req.Delegator {
			return fmt.Errorf("%w: assignment %d is not held by %s", domainwf.ErrUnknownAssignment, req.AssignmentID, req.Delegator)
		}
		if !assignment.IsOpen() {
			return fmt.Errorf("%w: id %d", domainwf.ErrAssignmentAlreadyClosed, req.AssignmentID)
		}

		stage, err := e.stageRepo.GetByID(txCtx, assignment.StageInstanceID)
		if err != nil {
			return fmt.Errorf("load stage: %w", err)
		}
		if stage.IsClosed() || stage.Status == entity.StageWaitingSignature {
			return fmt.Errorf("%w: stage already closed", domainwf.ErrAssignmentAlreadyClosed)
		}
		if !stage.AllowDelegation {
			return fmt.Errorf("%w: stage %q forbids delegation", domainwf.ErrDelegationNotAllowed, stage.Name)
		}
		if req.Delegatee == "" || req.Delegatee == req.Delegator {
			return fmt.Errorf("%w: invalid delegatee", domainwf.ErrDelegationNotAllowed)
		}
		siblings, err := e.assignmentRepo.GetByStageInstanceID(txCtx, stage.ID)
		if err != nil {
			return fmt.Errorf("load stage assignments: %w", err)
		}
		for _, s := range siblings {
			if s.UserID == req.Delegatee && s.IsOpen() {
				return fmt.Errorf("%w: %s already holds an open assignment on this stage", domainwf.ErrDelegationNotAllowed, req.Delegatee)
			}
		}

		now := e.now()
		assignment.Status = entity.AssignmentClosed
		assignment.Outcome = entity.OutcomeDelegated
		assignment.Comment = req.Reason
		assignment.ActedBy = req.Delegator
		assignment.ActedAt = &now
		if err := e.assignmentRepo.Update(txCtx, assignment); err != nil {
			return fmt.Errorf("close delegated assignment: %w", err)
		}

		replacement = &entity.Assignment{
			InstanceID:      assignment.InstanceID,
			StageInstanceID: assignment.StageInstanceID,
			UserID:          req.Delegatee,
			Role:            assignment.Role,
			Type:            assignment.Type,
			GroupName:       assignment.GroupName,
			Weight:          assignment.Weight,
			Status:          entity.AssignmentOpen,
			DelegatedFrom:   assignment.ID,
			CreatedAt:       now,
		}
		if err := e.assignmentRepo.Create(txCtx, replacement); err != nil {
			return fmt.Errorf("create replacement assignment: %w", err)
		}

		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistoryAssignmentDelegated,
			StageNumber: stage.ExecutionOrder,
			Actor:       req.Delegator,
			Detail:      fmt.Sprintf("delegated to %s", req.Delegatee),
			OccurredAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(event.TypeAssignmentCreated, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithActor(req.Delegator).WithPayload("user_id", req.Delegatee))

		return e.commitInstance(txCtx, instance)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// Escalate applies the configured escalation action to an overdue stage
func (e *engineImpl) Escalate(ctx context.Context, stageInstanceID int64) error {
	return e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		stage, err := e.stageRepo.GetByID(txCtx, stageInstanceID)
		if err != nil {
			return fmt.Errorf("load stage %d: %w", stageInstanceID, err)
		}
		if stage == nil {
			return fmt.Errorf("stage %d not found", stageInstanceID)
		}
		// Idempotent: a stage escalates at most once per deadline
		// configuration; extending the deadline re-arms it.
		if stage.IsClosed() || stage.EscalatedAt != nil {
			return nil
		}
		instance, err := e.instanceRepo.GetByID(txCtx, stage.InstanceID)
		if err != nil {
			return fmt.Errorf("load instance: %w", err)
		}
		if instance.IsTerminal() || instance.Status == entity.InstanceOnHold {
			return nil
		}

		now := e.now()
		stage.EscalatedAt = &now

		switch stage.EscalationAction {
		case entity.EscalateAutoDelegate:
			if err := e.autoDelegate(txCtx, instance, stage, now, events); err != nil {
				return err
			}
		default:
			// The stage stays open for its approvers but is flagged for the
			// supervisor; only a deadline extension re-arms it.
			stage.Status = entity.StageEscalated
			*events = append(*events, event.New(event.TypeNotifyRequested, instance.ID, instance.EntityType, instance.EntityID).
				WithStage(stage.ExecutionOrder).
				WithPayload("user_id", stage.EscalationTarget).
				WithPayload("reason", "stage overdue"))
		}

		if err := e.stageRepo.Update(txCtx, stage); err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistoryStageEscalated,
			StageNumber: stage.ExecutionOrder,
			Actor:       entity.SystemActor,
			Detail:      stage.EscalationAction,
			OccurredAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(event.TypeStageEscalated, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithActor(entity.SystemActor))

		return e.commitInstance(txCtx, instance)
	})
}

// autoDelegate closes every open approver slot as DELEGATED and hands the
// stage to the escalation target as a single required assignment.
func (e *engineImpl) autoDelegate(txCtx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance, now time.Time, events *[]*event.Event) error {
	assignments, err := e.assignmentRepo.GetByStageInstanceID(txCtx, stage.ID)
	if err != nil {
		return fmt.Errorf("load stage assignments: %w", err)
	}

	var lastClosed int64
	targetOpen := false
	for _, a := range assignments {
		if !a.IsOpen() || a.Type == entity.AssignmentObserver {
			continue
		}
		if a.UserID == stage.EscalationTarget {
			targetOpen = true
			continue
		}
		a.Status = entity.AssignmentClosed
		a.Outcome = entity.OutcomeDelegated
		a.ActedBy = entity.SystemActor
		a.ActedAt = &now
		if err := e.assignmentRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("close overdue assignment: %w", err)
		}
		lastClosed = a.ID
	}

	if !targetOpen {
		replacement := &entity.Assignment{
			InstanceID:      instance.ID,
			StageInstanceID: stage.ID,
			UserID:          stage.EscalationTarget,
			Type:            entity.AssignmentRequired,
			Weight:          1,
			Status:          entity.AssignmentOpen,
			DelegatedFrom:   lastClosed,
			CreatedAt:       now,
		}
		if err := e.assignmentRepo.Create(txCtx, replacement); err != nil {
			return fmt.Errorf("create escalation assignment: %w", err)
		}
		*events = append(*events, event.New(event.TypeAssignmentCreated, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithActor(entity.SystemActor).WithPayload("user_id", stage.EscalationTarget))
	}
	return nil
}

// CaptureSignature attaches a signature and completes a gated stage
func (e *engineImpl) CaptureSignature(ctx context.Context, req SignatureRequest) (*InstanceView, error) {
	if req.SignatureRef == "" {
		return nil, fmt.Errorf("signature reference is required")
	}
	err := e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		instance, err := e.loadActiveInstance(txCtx, req.InstanceID)
		if err != nil {
			return err
		}
		stage, err := e.stageByOrder(txCtx, req.InstanceID, req.ExecutionOrder)
		if err != nil {
			return err
		}
		if stage.Status != entity.StageWaitingSignature {
			return fmt.Errorf("stage %d of instance %d is not waiting for a signature", req.ExecutionOrder, req.InstanceID)
		}

		now := e.now()
		stage.SignatureRef = req.SignatureRef
		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistorySignatureCaptured,
			StageNumber: stage.ExecutionOrder,
			Actor:       req.Actor,
			Detail:      req.SignatureRef,
			OccurredAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		if err := e.closeStage(txCtx, instance, stage, entity.OutcomeApproved, events); err != nil {
			return err
		}
		compiled, err := e.compiledRulesForInstance(txCtx, instance)
		if err != nil {
			return err
		}
		if err := e.runRules(txCtx, instance, stage, entity.OutcomeApproved, compiled, events); err != nil {
			return err
		}
		if err := e.advance(txCtx, instance, events); err != nil {
			return err
		}
		return e.commitInstance(txCtx, instance)
	})
	if err != nil {
		return nil, err
	}
	return e.GetView(ctx, req.InstanceID)
}

// ExtendDeadline pushes an active stage's deadline out and re-arms escalation
func (e *engineImpl) ExtendDeadline(ctx context.Context, instanceID int64, executionOrder, hours int, actor string) error {
	if hours < 1 {
		return fmt.Errorf("deadline extension must be at least one hour")
	}
	return e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		instance, err := e.loadActiveInstance(txCtx, instanceID)
		if err != nil {
			return err
		}
		stage, err := e.stageByOrder(txCtx, instanceID, executionOrder)
		if err != nil {
			return err
		}
		if stage.IsClosed() {
			return fmt.Errorf("stage %d of instance %d is already closed", executionOrder, instanceID)
		}

		now := e.now()
		base := now
		if stage.Deadline != nil && stage.Deadline.After(now) {
			base = *stage.Deadline
		}
		deadline := base.Add(time.Duration(hours) * time.Hour)
		stage.Deadline = &deadline
		stage.EscalatedAt = nil
		if stage.Status == entity.StageEscalated {
			stage.Status = entity.StageInProgress
		}
		if err := e.stageRepo.Update(txCtx, stage); err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistoryDeadlineExtended,
			StageNumber: stage.ExecutionOrder,
			Actor:       actor,
			Detail:      fmt.Sprintf("extended by %dh", hours),
			OccurredAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return e.commitInstance(txCtx, instance)
	})
}

// Hold pauses an in-progress instance
func (e *engineImpl) Hold(ctx context.Context, instanceID int64, actor, reason string) error {
	return e.lifecycle(ctx, instanceID, domainwf.TriggerHold, entity.HistoryInstanceHeld, event.TypeInstanceHeld, actor, reason)
}

// Resume returns a held instance to IN_PROGRESS
func (e *engineImpl) Resume(ctx context.Context, instanceID int64, actor string) error {
	return e.lifecycle(ctx, instanceID, domainwf.TriggerResume, entity.HistoryInstanceResumed, event.TypeInstanceResumed, actor, "")
}

// Cancel terminates an instance and closes all open work
func (e *engineImpl) Cancel(ctx context.Context, instanceID int64, actor, reason string) error {
	return e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		instance, err := e.instanceRepo.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load instance: %w", err)
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrInstanceTerminated, instanceID, instance.Status)
		}
		previousStatus := instance.Status
		if err := e.fire(txCtx, instance, domainwf.TriggerCancel); err != nil {
			return err
		}

		now := e.now()
		instance.CompletedAt = &now

		stages, err := e.stageRepo.GetByInstanceID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load stages: %w", err)
		}
		for _, stage := range stages {
			if stage.IsClosed() {
				continue
			}
			assignments, err := e.assignmentRepo.GetByStageInstanceID(txCtx, stage.ID)
			if err != nil {
				return fmt.Errorf("load stage assignments: %w", err)
			}
			for _, a := range assignments {
				if !a.IsOpen() {
					continue
				}
				a.Status = entity.AssignmentClosed
				a.Outcome = entity.OutcomeSkipped
				a.ActedBy = entity.SystemActor
				a.ActedAt = &now
				if err := e.assignmentRepo.Update(txCtx, a); err != nil {
					return fmt.Errorf("close assignment: %w", err)
				}
			}
			stage.Status = entity.StageSkipped
			stage.Outcome = entity.OutcomeSkipped
			stage.ClosedAt = &now
			if err := e.stageRepo.Update(txCtx, stage); err != nil {
				return fmt.Errorf("skip stage: %w", err)
			}
		}

		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:     instanceID,
			EventType:      entity.HistoryInstanceCancelled,
			PreviousStatus: previousStatus,
			NewStatus:      entity.InstanceCancelled,
			Actor:          actor,
			Detail:         reason,
			OccurredAt:     now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(event.TypeInstanceCancelled, instanceID, instance.EntityType, instance.EntityID).
			WithActor(actor))

		return e.commitInstance(txCtx, instance)
	})
}

// GetView assembles the full read model for an instance
func (e *engineImpl) GetView(ctx context.Context, instanceID int64) (*InstanceView, error) {
	instance, err := e.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	stages, err := e.stageRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ExecutionOrder < stages[j].ExecutionOrder })

	view := &InstanceView{Instance: instance, Stages: make([]*StageView, 0, len(stages))}
	for _, stage := range stages {
		assignments, err := e.assignmentRepo.GetByStageInstanceID(ctx, stage.ID)
		if err != nil {
			return nil, fmt.Errorf("load assignments for stage %d: %w", stage.ID, err)
		}
		groups, err := e.groupRepo.GetByStageInstanceID(ctx, stage.ID)
		if err != nil {
			return nil, fmt.Errorf("load groups for stage %d: %w", stage.ID, err)
		}
		view.Stages = append(view.Stages, &StageView{Stage: stage, Assignments: assignments, Groups: groups})
	}
	return view, nil
}

// History returns the audit trail in sequence order
func (e *engineImpl) History(ctx context.Context, instanceID int64) ([]*entity.HistoryEvent, error) {
	events, err := e.historyRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// ---- internal helpers ----

// withRetry runs the mutation in a transaction, re-running it from scratch
// when the optimistic revision check loses a race. Domain events collected by
// the winning attempt are dispatched after commit.
func (e *engineImpl) withRetry(ctx context.Context, op func(txCtx context.Context, events *[]*event.Event) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var events []*event.Event
		err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return op(txCtx, &events)
		})
		if err == nil {
			e.emit(ctx, events)
			return nil
		}
		if !errors.Is(err, domainwf.ErrConcurrentModification) {
			return err
		}
		e.logger.Info("Retrying after revision conflict", "attempt", attempt+1)
	}
	return err
}

func (e *engineImpl) emit(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range events {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

// commitInstance writes the instance's mutable fields with a compare-and-swap
// on the revision it was loaded at.
func (e *engineImpl) commitInstance(txCtx context.Context, instance *entity.WorkflowInstance) error {
	expected := instance.Revision
	instance.Revision++
	instance.UpdatedAt = e.now()
	ok, err := e.instanceRepo.UpdateWithRevision(txCtx, instance, expected)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: instance %d revision %d", domainwf.ErrConcurrentModification, instance.ID, expected)
	}
	return nil
}

// loadActiveInstance loads an instance and rejects mutations against
// terminated or held instances.
func (e *engineImpl) loadActiveInstance(txCtx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	instance, err := e.instanceRepo.GetByID(txCtx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if instance.IsTerminal() {
		return nil, fmt.Errorf("%w: instance %d is %s", domainwf.ErrInstanceTerminated, instanceID, instance.Status)
	}
	if instance.Status == entity.InstanceOnHold {
		return nil, fmt.Errorf("%w: instance %d", domainwf.ErrInstanceOnHold, instanceID)
	}
	return instance, nil
}

func (e *engineImpl) stageByOrder(txCtx context.Context, instanceID int64, executionOrder int) (*entity.StageInstance, error) {
	stages, err := e.stageRepo.GetByInstanceID(txCtx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	for _, stage := range stages {
		if stage.ExecutionOrder == executionOrder {
			return stage, nil
		}
	}
	return nil, fmt.Errorf("instance %d has no stage at position %d", instanceID, executionOrder)
}

// fire validates and applies a lifecycle transition through the state machine.
func (e *engineImpl) fire(txCtx context.Context, instance *entity.WorkflowInstance, trigger domainwf.Trigger) error {
	machine := domainwf.NewInstanceMachine(domainwf.State(instance.Status))
	if err := machine.Fire(txCtx, trigger); err != nil {
		return fmt.Errorf("instance %d: %w", instance.ID, err)
	}
	instance.Status = string(machine.State())
	return nil
}

// lifecycle implements the shared hold/resume mutation shape.
func (e *engineImpl) lifecycle(ctx context.Context, instanceID int64, trigger domainwf.Trigger, historyType string, eventType event.Type, actor, reason string) error {
	return e.withRetry(ctx, func(txCtx context.Context, events *[]*event.Event) error {
		instance, err := e.instanceRepo.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load instance: %w", err)
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrInstanceTerminated, instanceID, instance.Status)
		}
		previous := instance.Status
		if err := e.fire(txCtx, instance, trigger); err != nil {
			return err
		}

		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:     instanceID,
			EventType:      historyType,
			PreviousStatus: previous,
			NewStatus:      instance.Status,
			Actor:          actor,
			Detail:         reason,
			OccurredAt:     e.now(),
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(eventType, instanceID, instance.EntityType, instance.EntityID).WithActor(actor))
		return e.commitInstance(txCtx, instance)
	})
}

// evaluateStage recomputes the stage's closure from its full assignment set.
// Grouped stages evaluate per group and persist the recomputed counters.
func (e *engineImpl) evaluateStage(txCtx context.Context, stage *entity.StageInstance) (approval.Result, error) {
	assignments, err := e.assignmentRepo.GetByStageInstanceID(txCtx, stage.ID)
	if err != nil {
		return approval.Result{}, fmt.Errorf("load stage assignments: %w", err)
	}
	votes := approval.VotesFromAssignments(assignments)

	if len(stage.Groups) == 0 {
		return approval.Evaluate(approval.StageQuorum(stage), votes), nil
	}

	decision := approval.EvaluateGroups(approval.GroupQuorumsFromSpecs(stage.Groups), votes)
	groups, err := e.groupRepo.GetByStageInstanceID(txCtx, stage.ID)
	if err != nil {
		return approval.Result{}, fmt.Errorf("load groups: %w", err)
	}
	byName := make(map[string]*entity.CoordinationGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	for _, gr := range decision.Groups {
		g, ok := byName[gr.Name]
		if !ok {
			continue
		}
		g.TotalCount = gr.TotalCount
		g.CompletedCount = gr.CompletedCount
		g.ApprovedCount = gr.ApprovedCount
		g.RejectedCount = gr.RejectedCount
		if gr.Result.Closed {
			g.Status = "COMPLETED"
			g.Decision = gr.Result.Outcome
		}
		if err := e.groupRepo.Update(txCtx, g); err != nil {
			return approval.Result{}, fmt.Errorf("update group %q: %w", g.Name, err)
		}
	}
	return decision.Result, nil
}

// stageApproved handles an approved quorum: the stage either completes and
// the instance advances, or parks in WAITING_SIGNATURE until the sign-off
// record arrives.
func (e *engineImpl) stageApproved(txCtx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance, events *[]*event.Event) error {
	if stage.SignatureType != "" && stage.SignatureRef == "" {
		stage.Status = entity.StageWaitingSignature
		if err := e.stageRepo.Update(txCtx, stage); err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
		*events = append(*events, event.New(event.TypeNotifyRequested, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).
			WithPayload("reason", "signature required").
			WithPayload("signature_type", stage.SignatureType))
		return nil
	}

	if err := e.closeStage(txCtx, instance, stage, entity.OutcomeApproved, events); err != nil {
		return err
	}
	compiled, err := e.compiledRulesForInstance(txCtx, instance)
	if err != nil {
		return err
	}
	if err := e.runRules(txCtx, instance, stage, entity.OutcomeApproved, compiled, events); err != nil {
		return err
	}
	return e.advance(txCtx, instance, events)
}

// stageFailed closes the stage with a non-approved outcome and terminates
// the instance: any single stage rejection sinks the whole workflow.
func (e *engineImpl) stageFailed(txCtx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance, outcome, actor string, events *[]*event.Event) error {
	if err := e.closeStage(txCtx, instance, stage, outcome, events); err != nil {
		return err
	}
	if err := e.fire(txCtx, instance, domainwf.TriggerReject); err != nil {
		return err
	}
	now := e.now()
	instance.CompletedAt = &now

	if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
		InstanceID:     instance.ID,
		EventType:      entity.HistoryInstanceRejected,
		PreviousStatus: entity.InstanceInProgress,
		NewStatus:      instance.Status,
		Actor:          actor,
		Detail:         outcome,
		OccurredAt:     now,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	*events = append(*events, event.New(event.TypeInstanceRejected, instance.ID, instance.EntityType, instance.EntityID).
		WithActor(actor).WithPayload("outcome", outcome))
	return nil
}

// closeStage finalizes a stage with the given outcome, closing any remaining
// open assignments as SKIPPED so they drop out of approver worklists.
func (e *engineImpl) closeStage(txCtx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance, outcome string, events *[]*event.Event) error {
	now := e.now()
	previous := stage.Status
	stage.Status = entity.StageCompleted
	stage.Outcome = outcome
	stage.ClosedAt = &now
	if err := e.stageRepo.Update(txCtx, stage); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}

	assignments, err := e.assignmentRepo.GetByStageInstanceID(txCtx, stage.ID)
	if err != nil {
		return fmt.Errorf("load stage assignments: %w", err)
	}
	for _, a := range assignments {
		if !a.IsOpen() {
			continue
		}
		a.Status = entity.AssignmentClosed
		a.Outcome = entity.OutcomeSkipped
		a.ActedBy = entity.SystemActor
		a.ActedAt = &now
		if err := e.assignmentRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("close assignment: %w", err)
		}
	}

	if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
		InstanceID:     instance.ID,
		EventType:      entity.HistoryStageCompleted,
		StageNumber:    stage.ExecutionOrder,
		PreviousStatus: previous,
		NewStatus:      stage.Status,
		Actor:          entity.SystemActor,
		Detail:         outcome,
		OccurredAt:     now,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	*events = append(*events, event.New(event.TypeStageCompleted, instance.ID, instance.EntityType, instance.EntityID).
		WithStage(stage.ExecutionOrder).WithPayload("outcome", outcome))
	return nil
}

// advance starts the next pending stage in execution order, or completes the
// instance when none remains.
func (e *engineImpl) advance(txCtx context.Context, instance *entity.WorkflowInstance, events *[]*event.Event) error {
	stages, err := e.stageRepo.GetByInstanceID(txCtx, instance.ID)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ExecutionOrder < stages[j].ExecutionOrder })

	for _, stage := range stages {
		switch stage.Status {
		case entity.StagePending:
			return e.startStage(txCtx, instance, stage, events)
		case entity.StageInProgress, entity.StageWaitingSignature, entity.StageEscalated:
			instance.CurrentStage = stage.ExecutionOrder
			return nil
		}
	}

	return e.finishInstance(txCtx, instance, events)
}

// startStage activates a pending stage: resolves and creates its assignments
// and coordination groups, arms the deadline, and points the instance at it.
// A stage whose required approvers resolve to nobody parks in ESCALATED for
// an administrator instead of wedging the instance.
func (e *engineImpl) startStage(txCtx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance, events *[]*event.Event) error {
	now := e.now()
	stage.StartedAt = &now
	instance.CurrentStage = stage.ExecutionOrder
	if stage.DeadlineHours > 0 {
		deadline := now.Add(time.Duration(stage.DeadlineHours) * time.Hour)
		stage.Deadline = &deadline
	}

	assignments, groups, err := e.materializeStage(txCtx, instance, stage)
	if errors.Is(err, domainwf.ErrUnresolvableAssignment) {
		stage.Status = entity.StageEscalated
		if uerr := e.stageRepo.Update(txCtx, stage); uerr != nil {
			return fmt.Errorf("update stage: %w", uerr)
		}
		if herr := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistoryStageEscalated,
			StageNumber: stage.ExecutionOrder,
			Actor:       entity.SystemActor,
			Detail:      err.Error(),
			OccurredAt:  now,
		}); herr != nil {
			return fmt.Errorf("append history: %w", herr)
		}
		*events = append(*events, event.New(event.TypeStageEscalated, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithActor(entity.SystemActor).WithPayload("reason", err.Error()))
		e.logger.Error("Stage unresolvable, escalated", "instance_id", instance.ID, "stage", stage.ExecutionOrder, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	stage.Status = entity.StageInProgress
	if err := e.stageRepo.Update(txCtx, stage); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	for _, g := range groups {
		if err := e.groupRepo.Create(txCtx, g); err != nil {
			return fmt.Errorf("create group %q: %w", g.Name, err)
		}
	}
	for _, a := range assignments {
		if err := e.assignmentRepo.Create(txCtx, a); err != nil {
			return fmt.Errorf("create assignment for %s: %w", a.UserID, err)
		}
		*events = append(*events, event.New(event.TypeAssignmentCreated, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(stage.ExecutionOrder).WithPayload("user_id", a.UserID).WithPayload("type", a.Type))
	}
	*events = append(*events, event.New(event.TypeStageStarted, instance.ID, instance.EntityType, instance.EntityID).
		WithStage(stage.ExecutionOrder).WithPayload("name", stage.Name))
	return nil
}

// finishInstance completes an instance whose stages all closed successfully.
func (e *engineImpl) finishInstance(txCtx context.Context, instance *entity.WorkflowInstance, events *[]*event.Event) error {
	if err := e.fire(txCtx, instance, domainwf.TriggerComplete); err != nil {
		return err
	}
	now := e.now()
	instance.CompletedAt = &now

	if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
		InstanceID:     instance.ID,
		EventType:      entity.HistoryInstanceCompleted,
		PreviousStatus: entity.InstanceInProgress,
		NewStatus:      instance.Status,
		Actor:          entity.SystemActor,
		Detail:         entity.OutcomeApproved,
		OccurredAt:     now,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	*events = append(*events, event.New(event.TypeInstanceCompleted, instance.ID, instance.EntityType, instance.EntityID).
		WithActor(entity.SystemActor))
	return nil
}

// seedContext merges entity metadata under the caller-supplied context.
func (e *engineImpl) seedContext(ctx context.Context, req StartRequest) map[string]any {
	merged := make(map[string]any)
	if e.metadata != nil {
		fields, err := e.metadata.Lookup(ctx, req.EntityType, req.EntityID)
		if err != nil {
			e.logger.Error("Metadata lookup failed, starting with caller context only", "error", err, "entity_type", req.EntityType, "entity_id", req.EntityID)
		} else {
			for k, v := range fields {
				merged[k] = v
			}
		}
	}
	for k, v := range req.Context {
		merged[k] = v
	}
	return merged
}

func (e *engineImpl) compiledRulesForInstance(txCtx context.Context, instance *entity.WorkflowInstance) ([]rules.CompiledRule, error) {
	e.mu.RLock()
	cached, ok := e.ruleCache[instance.DefinitionID]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}
	def, err := e.definitionRepo.GetByID(txCtx, instance.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("load definition %d: %w", instance.DefinitionID, err)
	}
	return e.compiledRules(def)
}

func (e *engineImpl) compiledRules(def *entity.WorkflowDefinition) ([]rules.CompiledRule, error) {
	e.mu.RLock()
	cached, ok := e.ruleCache[def.ID]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}
	compiled, err := rules.Compile(def.Rules)
	if err != nil {
		return nil, fmt.Errorf("definition %d: %w", def.ID, err)
	}
	e.mu.Lock()
	e.ruleCache[def.ID] = compiled
	e.mu.Unlock()
	return compiled, nil
}

// runRules evaluates the definition's rules against the instance context plus
// transition facts, and applies the effects of every rule that fires. Each
// rule fires at most once per instance; the names of applied rules are
// recorded on the stage that triggered them.
func (e *engineImpl) runRules(txCtx context.Context, instance *entity.WorkflowInstance, closedStage *entity.StageInstance, stageOutcome string, compiled []rules.CompiledRule, events *[]*event.Event) error {
	if len(compiled) == 0 {
		return nil
	}

	stages, err := e.stageRepo.GetByInstanceID(txCtx, instance.ID)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ExecutionOrder < stages[j].ExecutionOrder })

	params := make(map[string]any, len(instance.Context)+5)
	for k, v := range instance.Context {
		params[k] = v
	}
	params[rules.FactPriority] = instance.Priority
	params[rules.FactImpactLevel] = instance.ImpactLevel
	params[rules.FactElapsedHours] = e.now().Sub(instance.StartedAt).Hours()
	if closedStage != nil {
		params[rules.FactStageOutcome] = stageOutcome
		params[rules.FactStageNumber] = closedStage.ExecutionOrder
	}

	applied := func(name string) bool {
		for _, s := range stages {
			if s.RuleApplied(name) {
				return true
			}
		}
		return false
	}

	fired := rules.Evaluate(compiled, params, applied)
	if len(fired) == 0 {
		return nil
	}

	// Applied rule names are recorded on the stage that triggered the pass,
	// or on the first stage for the start-time pass, before any structural
	// effect mutates the plan: effects can renumber execution orders, so the
	// record must land while this snapshot is still accurate.
	recordOn := closedStage
	if recordOn == nil && len(stages) > 0 {
		recordOn = stages[0]
	}
	if recordOn != nil {
		for _, spec := range fired {
			recordOn.AppliedRules = append(recordOn.AppliedRules, spec.Name)
		}
		if err := e.stageRepo.Update(txCtx, recordOn); err != nil {
			return fmt.Errorf("record applied rules: %w", err)
		}
	}

	for _, spec := range fired {
		if err := e.applyRuleEffect(txCtx, instance, closedStage, spec, events); err != nil {
			return err
		}
		e.logger.Info("Rule applied", "instance_id", instance.ID, "rule", spec.Name, "action", spec.Action)
	}
	return nil
}

// applyRuleEffect mutates the in-flight plan for one fired rule. Structural
// actions target pending stages only; a rule aimed at a stage that already
// ran is a no-op rather than an error. Stages are reloaded per effect because
// an earlier effect in the same pass may have renumbered them.
func (e *engineImpl) applyRuleEffect(txCtx context.Context, instance *entity.WorkflowInstance, closedStage *entity.StageInstance, spec entity.RuleSpec, events *[]*event.Event) error {
	now := e.now()
	stages, err := e.stageRepo.GetByInstanceID(txCtx, instance.ID)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}

	switch spec.Action {
	case entity.RuleInjectStage:
		insertAt := 1
		if closedStage != nil {
			insertAt = closedStage.ExecutionOrder + 1
		}
		if err := e.stageRepo.ShiftExecutionOrders(txCtx, instance.ID, insertAt); err != nil {
			return fmt.Errorf("shift stages for injection: %w", err)
		}
		injected := snapshotStage(instance.ID, insertAt, *spec.InjectedStage, now)
		injected.DefinitionStage = 0
		injected.Name = spec.InjectedStage.Name
		if err := e.stageRepo.Create(txCtx, injected); err != nil {
			return fmt.Errorf("create injected stage: %w", err)
		}

	case entity.RuleSkipStage:
		target := pendingByDefinitionStage(stages, spec.TargetStage)
		if target == nil {
			return nil
		}
		target.Status = entity.StageSkipped
		target.Outcome = entity.OutcomeSkipped
		target.ClosedAt = &now
		if err := e.stageRepo.Update(txCtx, target); err != nil {
			return fmt.Errorf("skip stage: %w", err)
		}
		if err := e.historyRepo.Append(txCtx, &entity.HistoryEvent{
			InstanceID:  instance.ID,
			EventType:   entity.HistoryStageSkipped,
			StageNumber: target.ExecutionOrder,
			Actor:       entity.SystemActor,
			Detail:      spec.Name,
			OccurredAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		*events = append(*events, event.New(event.TypeStageSkipped, instance.ID, instance.EntityType, instance.EntityID).
			WithStage(target.ExecutionOrder).WithActor(entity.SystemActor))

	case entity.RuleChangeApprovers:
		target := pendingByDefinitionStage(stages, spec.TargetStage)
		if target == nil {
			return nil
		}
		target.Strategy = entity.StrategyManual
		target.NamedApprovers = spec.Approvers
		target.RequiredRoles = nil
		if err := e.stageRepo.Update(txCtx, target); err != nil {
			return fmt.Errorf("change approvers: %w", err)
		}

	case entity.RuleSetDeadline:
		target := byDefinitionStage(stages, spec.TargetStage)
		if target == nil || target.IsClosed() {
			return nil
		}
		target.DeadlineHours = spec.DeadlineHours
		if target.StartedAt != nil {
			deadline := target.StartedAt.Add(time.Duration(spec.DeadlineHours) * time.Hour)
			target.Deadline = &deadline
			target.EscalatedAt = nil
		}
		if err := e.stageRepo.Update(txCtx, target); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}

	case entity.RuleRequireSignature:
		target := pendingByDefinitionStage(stages, spec.TargetStage)
		if target == nil {
			return nil
		}
		target.SignatureType = spec.SignatureType
		if err := e.stageRepo.Update(txCtx, target); err != nil {
			return fmt.Errorf("require signature: %w", err)
		}

	case entity.RuleNotify:
		*events = append(*events, event.New(event.TypeNotifyRequested, instance.ID, instance.EntityType, instance.EntityID).
			WithPayload("user_id", spec.NotifyUser).
			WithPayload("reason", spec.NotifyEvent))
	}

	return nil
}

func byDefinitionStage(stages []*entity.StageInstance, definitionStage int) *entity.StageInstance {
	for _, s := range stages {
		if s.DefinitionStage == definitionStage {
			return s
		}
	}
	return nil
}

func pendingByDefinitionStage(stages []*entity.StageInstance, definitionStage int) *entity.StageInstance {
	s := byDefinitionStage(stages, definitionStage)
	if s == nil || s.Status != entity.StagePending {
		return nil
	}
	return s
}

// snapshotStage copies a stage spec into a stage instance row. The snapshot
// is what executes; later definition edits never touch a running instance.
func snapshotStage(instanceID int64, executionOrder int, spec entity.StageSpec, now time.Time) *entity.StageInstance {
	return &entity.StageInstance{
		InstanceID:       instanceID,
		ExecutionOrder:   executionOrder,
		DefinitionStage:  spec.StageNumber,
		Name:             spec.Name,
		Status:           entity.StagePending,
		ApprovalType:     spec.ApprovalType,
		MinimumApprovals: spec.MinimumApprovals,
		PercentThreshold: spec.PercentThreshold,
		MinimumWeight:    spec.MinimumWeight,
		RequiredRoles:    spec.RequiredRoles,
		OptionalRoles:    spec.OptionalRoles,
		ObserverRoles:    spec.ObserverRoles,
		NamedApprovers:   spec.NamedApprovers,
		Strategy:         spec.Strategy,
		DeadlineHours:    spec.DeadlineHours,
		AllowDelegation:  spec.AllowDelegation,
		EscalationAction: spec.EscalationAction,
		EscalationTarget: spec.EscalationTarget,
		Groups:           spec.Groups,
		SignatureType:    spec.SignatureType,
		CreatedAt:        now,
	}
}
