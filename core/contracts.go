package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// RecordStore persists one registration record per tenant. CompareAndSwap
// must only write when the stored version equals expectedVersion; version 0
// means the record does not exist yet.
type RecordStore interface {
	Get(ctx context.Context, tenantID string) (RegistrationRecord, error)
	FindByBrandID(ctx context.Context, brandID string) (RegistrationRecord, error)
	FindByCampaignID(ctx context.Context, campaignID string) (RegistrationRecord, error)
	FindByPhoneNumber(ctx context.Context, phoneNumber string) (RegistrationRecord, error)
	ListDueForRecheck(ctx context.Context, now time.Time, limit int) ([]RegistrationRecord, error)
	CompareAndSwap(ctx context.Context, record RegistrationRecord, expectedVersion int64) (RegistrationRecord, error)
}

type RegistryClient interface {
	SubmitBrand(ctx context.Context, in BrandSubmission) (BrandSubmissionResult, error)
	SubmitCampaign(ctx context.Context, in CampaignSubmission) (CampaignSubmissionResult, error)
	GetBrandStatus(ctx context.Context, brandID string) (BrandStatusResult, error)
}

// ErrorTranslator turns registry failures into operator-readable reasons.
type ErrorTranslator func(err error) string

type StatusChange struct {
	TenantID string
	From     RegistrationStatus
	To       RegistrationStatus
	Reason   string
	Source   string
	At       time.Time
}

// StatusNotifier is told about every persisted status change.
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type StoreProvider interface {
	RecordStore() RecordStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// JobNackDisposition says what happens to a nacked job. The values match
// the go-job queue dispositions.
type JobNackDisposition string

const (
	JobNackRetry      JobNackDisposition = "retry"
	JobNackDeadLetter JobNackDisposition = "dead_letter"
	JobNackFailed     JobNackDisposition = "failed"
	JobNackCanceled   JobNackDisposition = "canceled"
)

// JobNackOptions releases a delivery. Only JobNackRetry makes the job
// claimable again, after Delay.
type JobNackOptions struct {
	Disposition JobNackDisposition
	Delay       time.Duration
	Reason      string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// JobAttempter is implemented by deliveries that count how many times the
// message was handed to a worker, starting at 1.
type JobAttempter interface {
	Attempt() int
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// JobHandler executes one queued job. Returning an error nacks the delivery.
type JobHandler func(ctx context.Context, msg *JobExecutionMessage) error
