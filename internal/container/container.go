// Package container wires the application's dependency graph: database,
// repositories, external collaborators, orchestration engine, dispatcher,
// HTTP server and background workers, with ordered startup and reverse-order
// teardown.
package container

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/dispatcher"
	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/application/service"
	appworkflow "github.com/steiner385/MachShop-sub008/internal/application/workflow"
	"github.com/steiner385/MachShop-sub008/internal/config"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/directory"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/export"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/notify"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/persistence/sqlite"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/worker"
	httpiface "github.com/steiner385/MachShop-sub008/internal/interfaces/http"
	"github.com/steiner385/MachShop-sub008/pkg/database"
)

// Container manages all application dependencies and lifecycle.
type Container struct {
	mu      sync.Mutex
	started bool

	config *config.Config
	logger *zap.Logger

	db        *database.DB
	txManager *sqlite.DB
	repos     *RepositoryBundle

	directory  *directory.Client
	dispatcher dispatcher.Dispatcher
	notifier   *notify.WebhookNotifier

	engine            appworkflow.Engine
	definitionService service.DefinitionService
	auditExporter     *export.AuditExporter

	workers    *worker.WorkerManager
	httpServer *httpiface.Server
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition port.DefinitionRepository
	Instance   port.InstanceRepository
	Stage      port.StageRepository
	Assignment port.AssignmentRepository
	Group      port.GroupRepository
	Delegation port.DelegationRepository
	History    port.HistoryRepository
}

// NewContainer creates a new container from configuration. It does not
// initialize components; call Start to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// database and repositories, external collaborators, engine and services,
// dispatcher subscriptions, then workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("container already started")
	}

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.initCollaborators()
	c.initEngine()
	if err := c.initWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.started = true
	c.logger.Info("Container started")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.workers != nil {
		record(c.workers.StopAll())
	}
	if c.dispatcher != nil {
		record(c.dispatcher.Close())
	}
	if c.db != nil {
		record(c.db.Close())
	}

	c.started = false
	c.logger.Info("Container closed")
	return firstErr
}

// initDatabase opens the database, runs migrations and builds repositories.
func (c *Container) initDatabase() error {
	db, err := database.New(database.Config{
		Path:            c.config.Database.Path,
		MaxOpenConns:    c.config.Database.MaxOpenConns,
		MaxIdleConns:    c.config.Database.MaxIdleConns,
		ConnMaxLifetime: c.config.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}

	migrator := database.NewMigrator(db, c.logger)
	if err := migrator.RunMigrations(c.config.Database.MigrationsDir); err != nil {
		return err
	}

	c.db = db
	c.txManager = sqlite.NewDB(db.DB, c.logger)
	c.repos = ProvideRepositories(db.DB, c.logger)
	return nil
}

// initCollaborators builds the external collaborator adapters and the event
// dispatcher with its subscriptions.
func (c *Container) initCollaborators() {
	c.directory = directory.NewClient(directory.ClientConfig{
		BaseURL: c.config.RoleSource.BaseURL,
		Token:   c.config.RoleSource.Token,
		Timeout: c.config.RoleSource.Timeout,
	}, c.logger)

	c.dispatcher = dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: c.logger}),
	)

	c.notifier = notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:     c.config.Webhook.URL,
		Secret:  c.config.Webhook.Secret,
		Timeout: c.config.Webhook.Timeout,
	}, c.logger)
	c.notifier.Register(c.dispatcher)
}

// initEngine builds the orchestration engine and the services layered on it.
func (c *Container) initEngine() {
	appLogger := &zapLoggerAdapter{logger: c.logger}

	c.engine = appworkflow.NewEngine(
		c.repos.Definition,
		c.repos.Instance,
		c.repos.Stage,
		c.repos.Assignment,
		c.repos.Group,
		c.repos.Delegation,
		c.repos.History,
		c.txManager,
		c.directory,
		appworkflow.WithDispatcher(c.dispatcher),
		appworkflow.WithMetadataLookup(c.directory),
		appworkflow.WithLogger(appLogger),
	)

	c.definitionService = service.NewDefinitionService(c.repos.Definition, c.txManager, appLogger)

	c.auditExporter = export.NewAuditExporter(
		c.repos.Instance,
		c.repos.Stage,
		c.repos.Assignment,
		c.repos.History,
		c.logger,
	)

	c.httpServer = httpiface.NewServer(
		httpiface.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		},
		c.engine,
		c.definitionService,
		c.auditExporter,
		appLogger,
	)
}

// initWorkers registers and starts the background workers.
func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewWorkerManager(c.logger)
	c.workers.Register(worker.NewEscalationWorker(
		worker.EscalationWorkerConfig{
			PollInterval: c.config.Worker.EscalationInterval,
			BatchSize:    c.config.Worker.EscalationBatchSize,
			SweepTimeout: c.config.Worker.SweepTimeout,
		},
		c.repos.Stage,
		c.engine,
		c.logger,
	))
	return c.workers.StartAll(ctx)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Engine returns the orchestration engine.
func (c *Container) Engine() appworkflow.Engine {
	return c.engine
}

// DefinitionService returns the definition service.
func (c *Container) DefinitionService() service.DefinitionService {
	return c.definitionService
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repos
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// HTTPServer returns the HTTP server adapter.
func (c *Container) HTTPServer() *httpiface.Server {
	return c.httpServer
}

// zapLoggerAdapter adapts zap.Logger to the application Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields turns alternating key/value pairs into zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
