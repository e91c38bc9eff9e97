package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/application/workflow"
)

// EscalationWorkerConfig holds configuration for the escalation worker
type EscalationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	SweepTimeout time.Duration
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() EscalationWorkerConfig {
	return EscalationWorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    20,
		SweepTimeout: 60 * time.Second,
	}
}

// EscalationWorker periodically sweeps for running stages past their deadline
// and escalates them. A stage is picked up at most once per deadline: the
// engine stamps it escalated, and only an extended deadline re-arms it.
type EscalationWorker struct {
	config EscalationWorkerConfig

	stageRepo port.StageRepository
	engine    workflow.Engine
	logger    *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isRunning      bool
	lastSweep      time.Time
	escalatedCount int
	failedCount    int
	lastError      error
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(
	config EscalationWorkerConfig,
	stageRepo port.StageRepository,
	engine workflow.Engine,
	logger *zap.Logger,
) *EscalationWorker {
	return &EscalationWorker{
		config:    config,
		stageRepo: stageRepo,
		engine:    engine,
		logger:    logger,
	}
}

// Start begins the worker polling loop
func (w *EscalationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("escalation worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("EscalationWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *EscalationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("EscalationWorker stopped",
		zap.Int("escalated_count", w.escalatedCount),
		zap.Int("failed_count", w.failedCount))

	return nil
}

// Name returns the worker name for identification
func (w *EscalationWorker) Name() string {
	return "EscalationWorker"
}

// pollLoop runs the main polling loop in background
func (w *EscalationWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Escalation poll loop context cancelled")
			return

		case <-ticker.C:
			if err := w.sweep(); err != nil {
				w.mu.Lock()
				w.lastError = err
				w.mu.Unlock()
				w.logger.Error("Escalation sweep failed", zap.Error(err))
			}

			w.mu.Lock()
			w.lastSweep = time.Now()
			w.mu.Unlock()
		}
	}
}

// sweep escalates one batch of overdue stages. Failures on individual stages
// are counted and logged but do not abort the batch.
func (w *EscalationWorker) sweep() error {
	sweepCtx, cancel := context.WithTimeout(w.ctx, w.config.SweepTimeout)
	defer cancel()

	overdue, err := w.stageRepo.ListOverdue(sweepCtx, time.Now(), w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list overdue stages: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	w.logger.Info("Escalating overdue stages", zap.Int("count", len(overdue)))

	for _, stage := range overdue {
		if err := w.engine.Escalate(sweepCtx, stage.ID); err != nil {
			w.mu.Lock()
			w.failedCount++
			w.mu.Unlock()
			w.logger.Error("Failed to escalate stage",
				zap.Int64("stage_instance_id", stage.ID),
				zap.Int64("instance_id", stage.InstanceID),
				zap.Error(err))
			continue
		}

		w.mu.Lock()
		w.escalatedCount++
		w.mu.Unlock()
		w.logger.Info("Stage escalated",
			zap.Int64("stage_instance_id", stage.ID),
			zap.Int64("instance_id", stage.InstanceID),
			zap.Int("execution_order", stage.ExecutionOrder))
	}

	return nil
}
