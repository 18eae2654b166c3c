package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-tendlc/adapters/gocommand"
	"github.com/goliatone/go-tendlc/adapters/gojob"
	"github.com/goliatone/go-tendlc/adapters/gologger"
	tendlccommand "github.com/goliatone/go-tendlc/command"
	"github.com/goliatone/go-tendlc/core"
	"github.com/goliatone/go-tendlc/query"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	zapLogger, err := gologger.NewZapLoggerToWriter(&logs, "info")
	if err != nil {
		t.Fatalf("zap logger: %v", err)
	}
	provider, _, jobProvider, jobLogger := gologger.ResolveForJob("tendlc", zapLogger, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	jobs := core.NewMemoryJobQueue()
	service, err := core.NewService(
		core.Config{},
		core.WithLoggerProvider(provider),
		core.WithRegistryClient(&compatRegistry{}),
		core.WithJobEnqueuer(gojob.NewEnqueuerAdapter(&compatQueue{jobs: jobs})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	bindings, err := gocommand.RegisterService(commandAdapter, service)
	if err != nil {
		t.Fatalf("register service: %v", err)
	}
	defer bindings.Unsubscribe()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := commandAdapter.QueueRegistry().Get(tendlccommand.TypeSubmitCampaign); !ok {
		t.Fatalf("expected campaign command to be mirrored into go-job queue registry")
	}

	if err := gocommand.Dispatch(ctx, tendlccommand.RegisterBrandMessage{Request: core.RegisterBrandRequest{
		TenantID: "tenant-1",
		Profile:  core.Profile{OrganizationName: "Acme Dental", ContactEmail: "ops@acme.test"},
	}}); err != nil {
		t.Fatalf("dispatch register brand: %v", err)
	}

	if err := service.ScheduleCampaignSubmission(ctx, "tenant-1", "brand-1"); err != nil {
		t.Fatalf("schedule campaign: %v", err)
	}
	if err := service.ScheduleCampaignSubmission(ctx, "tenant-1", "brand-1"); err != nil {
		t.Fatalf("schedule duplicate campaign: %v", err)
	}
	if jobs.Len() != 1 {
		t.Fatalf("expected duplicate schedule to collapse, got %d jobs", jobs.Len())
	}

	hook := &compatHook{}
	config := gojob.DefaultRunnerConfig()
	config.PollInterval = 10 * time.Millisecond
	runner, err := gojob.NewRunner(gojob.NewQueueDequeuer(jobs), config,
		gojob.WithRunnerLogger(jobLogger),
		gojob.WithJobHooks(hook, service.JobHook()),
	)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Handle(core.JobIDCampaignSubmit, service.CampaignSubmitHandler()); err != nil {
		t.Fatalf("register campaign handler: %v", err)
	}
	if err := runner.RegisterQueuedCommands(commandAdapter.QueueRegistry()); err != nil {
		t.Fatalf("register queued commands: %v", err)
	}
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("start runner: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for hook.successCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one successful campaign job, got %d", hook.successCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("stop runner: %v", err)
	}
	if jobs.Len() != 0 || len(jobs.DeadLetters()) != 0 {
		t.Fatalf("expected the campaign job to be acknowledged, pending %d dead %d", jobs.Len(), len(jobs.DeadLetters()))
	}

	record, err := gocommand.Query[query.GetRegistrationMessage, core.RegistrationRecord](
		ctx,
		query.GetRegistrationMessage{TenantID: "tenant-1"},
	)
	if err != nil {
		t.Fatalf("query registration: %v", err)
	}
	if record.Status != core.StatusCampaignPending || record.CampaignID != "campaign-1" {
		t.Fatalf("expected campaign pending record, got %#v", record)
	}
	if !strings.Contains(logs.String(), "register_brand succeeded") {
		t.Fatalf("expected operation log through zap, got %q", logs.String())
	}
}

type compatRegistry struct{}

func (compatRegistry) SubmitBrand(context.Context, core.BrandSubmission) (core.BrandSubmissionResult, error) {
	return core.BrandSubmissionResult{BrandID: "brand-1", Status: "PENDING"}, nil
}

func (compatRegistry) SubmitCampaign(context.Context, core.CampaignSubmission) (core.CampaignSubmissionResult, error) {
	return core.CampaignSubmissionResult{CampaignID: "campaign-1", Status: "PENDING"}, nil
}

func (compatRegistry) GetBrandStatus(_ context.Context, brandID string) (core.BrandStatusResult, error) {
	return core.BrandStatusResult{BrandID: brandID, Status: "PENDING"}, nil
}

// compatQueue exposes the in-memory queue as a go-job enqueuer.
type compatQueue struct {
	jobs *core.MemoryJobQueue
}

func (q *compatQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if err := q.jobs.Enqueue(ctx, gojob.FromExecutionMessage(msg)); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return queue.EnqueueReceipt{DispatchID: msg.JobID, EnqueuedAt: time.Now()}, nil
}

type compatHook struct {
	mu        sync.Mutex
	successes int
}

func (h *compatHook) OnStart(context.Context, core.JobWorkerEvent) {}
func (h *compatHook) OnSuccess(context.Context, core.JobWorkerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
}
func (h *compatHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (h *compatHook) OnRetry(context.Context, core.JobWorkerEvent)   {}

func (h *compatHook) successCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successes
}

var (
	_ queue.Enqueuer      = (*compatQueue)(nil)
	_ core.JobWorkerHook  = (*compatHook)(nil)
	_ core.RegistryClient = compatRegistry{}
)
