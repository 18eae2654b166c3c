package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-tendlc/adapters/gocommand"
	"github.com/goliatone/go-tendlc/adapters/gojob"
	"github.com/goliatone/go-tendlc/adapters/gologger"
	promrecorder "github.com/goliatone/go-tendlc/adapters/prometheus"
	tendlccommand "github.com/goliatone/go-tendlc/command"
	"github.com/goliatone/go-tendlc/core"
	"github.com/goliatone/go-tendlc/inbound"
	tendlcmigrations "github.com/goliatone/go-tendlc/migrations"
	"github.com/goliatone/go-tendlc/registry"
	sqlstore "github.com/goliatone/go-tendlc/store/sql"
	"github.com/goliatone/go-tendlc/webhooks"
)

const shutdownTimeout = 10 * time.Second

type appDeps struct {
	logger     *gologger.ZapLogger
	configs    core.ConfigProvider
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	// registryClient replaces the HTTP registry client when set.
	registryClient core.RegistryClient
}

type app struct {
	config   core.Config
	logger   core.Logger
	client   *persistence.Client
	service  *core.Service
	jobs     *sqlstore.JobQueue
	runner   *gojob.Runner
	commands *gocommand.RegistryAdapter
	bindings *gocommand.Bindings
	poller   *core.Poller
	handler  http.Handler
}

type persistenceConfig struct {
	cfg core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool                { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string             { return c.cfg.Driver }
func (c persistenceConfig) GetServer() string             { return c.cfg.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-tendlc" }

func newApp(ctx context.Context, runtime core.Config, deps appDeps) (*app, error) {
	if deps.logger == nil {
		return nil, fmt.Errorf("tendlc: logger is required")
	}
	if deps.configs == nil {
		deps.configs = core.NewCfgxConfigProvider(nil)
	}
	logger := deps.logger.GetLogger(gologger.NameService)

	// The database section is needed before the service exists.
	defaults := core.DefaultConfig()
	loaded, err := deps.configs.Load(ctx, defaults)
	if err != nil {
		return nil, err
	}
	cfg, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		return nil, err
	}

	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithJobLease(cfg.Queue.Lease()))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	jobs := factory.JobQueue()
	enqueuer := gojob.NewEnqueuerAdapter(jobs)

	registryClient := deps.registryClient
	if registryClient == nil {
		registryClient = registry.NewClient(cfg.Registry, registry.WithLogger(deps.logger.GetLogger(gologger.NameRegistry)))
	}

	opts := []core.Option{
		core.WithLoggerProvider(deps.logger),
		core.WithConfigProvider(deps.configs),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithRegistryClient(registryClient),
		core.WithJobEnqueuer(enqueuer),
		core.WithErrorTranslator(registry.TranslateError),
	}
	if deps.registerer != nil && !cfg.HTTP.DisableMetrics {
		opts = append(opts, core.WithMetricsRecorder(promrecorder.NewRecorder(deps.registerer, promrecorder.WithLogger(logger))))
	}
	service, err := core.NewService(runtime, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	processor := webhooks.NewProcessor(webhooks.NewEd25519Verifier(cfg.Webhooks), enqueuer)
	processor.Logger = deps.logger.GetLogger(gologger.NameWebhooks)
	routerOpts := []inbound.RouterOption{
		inbound.WithLogger(deps.logger.GetLogger(gologger.NameInbound)),
		inbound.WithMaxBodyBytes(cfg.Webhooks.MaxBodyBytes),
	}
	if deps.gatherer != nil && !cfg.HTTP.DisableMetrics {
		routerOpts = append(routerOpts, inbound.WithMetrics(deps.gatherer))
	}

	runner, err := gojob.NewRunner(jobs, gojob.RunnerConfigFromQueue(cfg.Queue),
		gojob.WithRunnerLogger(gologger.WorkerLogger(deps.logger)),
		gojob.WithJobHooks(service.JobHook()),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	eventRouter := webhooks.NewRouter(service, deps.logger.GetLogger(gologger.NameEvents))
	if err := runner.Handle(core.JobIDWebhookProcess, eventRouter.JobHandler()); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := runner.Handle(core.JobIDCampaignSubmit, service.CampaignSubmitHandler()); err != nil {
		_ = client.Close()
		return nil, err
	}

	commands := gocommand.NewRegistryAdapter(nil)
	bindings, err := gocommand.RegisterService(commands, service)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := commands.Initialize(); err != nil {
		bindings.Unsubscribe()
		_ = client.Close()
		return nil, err
	}
	if err := runner.RegisterQueuedCommands(commands.QueueRegistry()); err != nil {
		bindings.Unsubscribe()
		_ = client.Close()
		return nil, err
	}

	return &app{
		config:   service.Config(),
		logger:   logger,
		client:   client,
		service:  service,
		jobs:     jobs,
		runner:   runner,
		commands: commands,
		bindings: bindings,
		poller:   core.NewPoller(service),
		handler:  inbound.NewRouter(processor, routerOpts...),
	}, nil
}

// EnqueueReconcile queues a reconciliation pass for the job worker.
func (a *app) EnqueueReconcile(ctx context.Context) error {
	receipt, err := a.commands.Enqueue(ctx, a.jobs, tendlccommand.ReconcilePendingMessage{})
	if err != nil {
		return err
	}
	a.logger.Info("reconciliation queued", "dispatch_id", receipt.DispatchID)
	return nil
}

// Run serves HTTP and drives the worker and poller until ctx ends.
func (a *app) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.config.HTTP.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.logger.Info("http listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return a.runner.Run(ctx)
	})
	if a.config.Poller.Disabled {
		a.logger.Info("reconciliation poller disabled")
	} else {
		group.Go(func() error {
			return a.poller.Run(ctx)
		})
	}
	return group.Wait()
}

func (a *app) Close() {
	if a == nil {
		return
	}
	a.bindings.Unsubscribe()
	if a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		a.logger.Warn("database close failed", "error", err.Error())
	}
}

func openPersistence(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	var (
		bunDialect    schema.Dialect
		migrationsFor string
	)
	switch driver {
	case "postgres":
		bunDialect = pgdialect.New()
		migrationsFor = tendlcmigrations.DialectPostgres
	case "sqlite3", "sqlite":
		driver = "sqlite3"
		bunDialect = sqlitedialect.New()
		migrationsFor = tendlcmigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("tendlc: unsupported database driver %q", cfg.Driver)
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tendlc: open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{cfg: cfg}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	_, err = tendlcmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationsFor {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, tendlcmigrations.WithValidationTargets(migrationsFor))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tendlc: migrate: %w", err)
	}
	return client, nil
}
