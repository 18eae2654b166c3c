package gojob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-tendlc/core"
)

const defaultStopTimeout = 30 * time.Second

type RunnerConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PollInterval   time.Duration
	// Lease is the queue lease length. The worker extends it every Lease/3
	// while a handler runs.
	Lease       time.Duration
	Concurrency int
	StopTimeout time.Duration
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfigFromQueue(core.DefaultConfig().Queue)
}

func RunnerConfigFromQueue(cfg core.QueueConfig) RunnerConfig {
	return RunnerConfig{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.RetryInitialSeconds) * time.Second,
		MaxBackoff:     time.Duration(cfg.RetryMaxSeconds) * time.Second,
		PollInterval:   cfg.PollInterval(),
		Lease:          cfg.Lease(),
		Concurrency:    cfg.Concurrency,
		StopTimeout:    defaultStopTimeout,
	}
}

// RetryPolicy is the worker retry policy for cfg: exponential backoff with
// jitter from InitialBackoff up to MaxBackoff, dead-lettering once
// MaxAttempts deliveries have failed.
func (cfg RunnerConfig) RetryPolicy() worker.DefaultRetryPolicy {
	return worker.DefaultRetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    cfg.InitialBackoff,
			MaxInterval: cfg.MaxBackoff,
			Jitter:      true,
		},
	}
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger job.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHooks registers go-job worker hooks fired around every job.
func WithHooks(hooks ...worker.Hook) RunnerOption {
	return func(r *Runner) {
		for _, hook := range hooks {
			if hook != nil {
				r.hooks = append(r.hooks, hook)
			}
		}
	}
}

// WithJobHooks registers core job hooks, such as core.Service.JobHook.
func WithJobHooks(hooks ...core.JobWorkerHook) RunnerOption {
	return func(r *Runner) {
		for _, hook := range hooks {
			if hook != nil {
				r.hooks = append(r.hooks, NewWorkerHookAdapter(hook))
			}
		}
	}
}

// Runner runs the go-job worker over a queue backend. Core job handlers are
// registered as tasks keyed by job id; queued go-command commands can be
// registered next to them.
type Runner struct {
	worker   *worker.Worker
	registry *worker.Registry
	config   RunnerConfig
	logger   job.Logger
	hooks    []worker.Hook
}

func NewRunner(dequeuer queue.Dequeuer, config RunnerConfig, opts ...RunnerOption) (*Runner, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	config = normalizeRunnerConfig(config)
	r := &Runner{
		registry: worker.NewRegistry(),
		config:   config,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	workerOpts := []worker.Option{
		worker.WithRegistry(r.registry),
		worker.WithConcurrency(config.Concurrency),
		worker.WithIdleDelay(config.PollInterval),
		worker.WithRetryPolicy(config.RetryPolicy()),
		worker.WithLeaseHeartbeatInterval(config.Lease / 3),
		worker.WithLeaseExtensionTTL(config.Lease),
		worker.WithCommanderFactory(newTaskCommander),
		worker.WithHooks(r.hooks...),
	}
	if r.logger != nil {
		workerOpts = append(workerOpts, worker.WithLogger(r.logger))
	}
	r.worker = worker.NewWorker(dequeuer, workerOpts...)
	return r, nil
}

func normalizeRunnerConfig(config RunnerConfig) RunnerConfig {
	defaults := RunnerConfigFromQueue(core.DefaultConfig().Queue)
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaultStopTimeout
	}
	return config
}

// newTaskCommander runs each delivery exactly once. Retries belong to the
// worker retry policy and duplicates are collapsed by the queue at enqueue
// time, so the commander keeps no idempotency state of its own.
func newTaskCommander(task job.Task) *job.TaskCommander {
	return job.NewTaskCommander(task).
		WithIdempotencyTracker(nil).
		WithRetryOverride(0)
}

func (r *Runner) Config() RunnerConfig {
	if r == nil {
		return RunnerConfig{}
	}
	return r.config
}

// Handle registers handler for jobID.
func (r *Runner) Handle(jobID string, handler core.JobHandler) error {
	if r == nil || r.worker == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("gojob: job id is required")
	}
	if handler == nil {
		return fmt.Errorf("gojob: handler for %s is required", jobID)
	}
	return r.worker.Register(&handlerTask{id: jobID, handler: handler})
}

// RegisterQueuedCommands registers queued go-command commands as worker
// tasks. With no ids every command in reg is registered.
func (r *Runner) RegisterQueuedCommands(reg *jobqueuecommand.Registry, ids ...string) error {
	if r == nil || r.worker == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	return jobqueuecommand.RegisterAll(r.worker, reg, ids)
}

// Tasks returns the registered task ids in sorted order.
func (r *Runner) Tasks() []string {
	if r == nil || r.registry == nil {
		return nil
	}
	tasks := r.registry.List()
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.GetID())
	}
	sort.Strings(ids)
	return ids
}

// Start launches the worker goroutines and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.worker == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	return r.worker.Start(ctx)
}

// Stop cancels the worker and waits for running jobs to return.
func (r *Runner) Stop(ctx context.Context) error {
	if r == nil || r.worker == nil {
		return nil
	}
	return r.worker.Stop(ctx)
}

// Run starts the worker, blocks until ctx ends and then stops it, waiting up
// to StopTimeout for running jobs.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.Info("job worker started", "tasks", strings.Join(r.Tasks(), ","), "concurrency", r.config.Concurrency)
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.StopTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

// handlerTask adapts a core job handler to a go-job task. The task path is
// the job id, which is also what the queue stores as the script path.
type handlerTask struct {
	id      string
	handler core.JobHandler
}

func (t *handlerTask) GetID() string                        { return t.id }
func (t *handlerTask) GetPath() string                      { return t.id }
func (t *handlerTask) GetConfig() job.Config                { return job.Config{} }
func (t *handlerTask) GetHandler() func() error             { return func() error { return nil } }
func (t *handlerTask) GetHandlerConfig() job.HandlerOptions { return job.HandlerOptions{} }
func (t *handlerTask) GetEngine() job.Engine                { return nil }

func (t *handlerTask) Execute(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("gojob: handler for %s panicked: %v", t.id, recovered)
		}
	}()
	return t.handler(ctx, FromExecutionMessage(msg))
}

var _ job.Task = (*handlerTask)(nil)
