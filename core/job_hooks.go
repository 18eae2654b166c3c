package core

import (
	"context"
	"strings"
)

// JobHook reports queue job outcomes through the service metrics recorder
// and logger. Counters are tagged with the job id as the operation.
func (s *Service) JobHook() JobWorkerHook {
	return &jobObserver{service: s}
}

type jobObserver struct {
	service *Service
}

func (o *jobObserver) OnStart(context.Context, JobWorkerEvent) {}

func (o *jobObserver) OnSuccess(ctx context.Context, event JobWorkerEvent) {
	o.observe(ctx, event, "success")
}

func (o *jobObserver) OnFailure(ctx context.Context, event JobWorkerEvent) {
	o.observe(ctx, event, "failure")
	o.service.logError(ctx, "job failed", o.fields(event))
}

func (o *jobObserver) OnRetry(ctx context.Context, event JobWorkerEvent) {
	o.observe(ctx, event, "retry")
	fields := o.fields(event)
	fields["delay_ms"] = event.Delay.Milliseconds()
	o.service.logWarn(ctx, "job retry scheduled", fields)
}

func (o *jobObserver) observe(ctx context.Context, event JobWorkerEvent, status string) {
	tags := map[string]string{
		"operation": jobIDOf(event),
		"status":    status,
		"source":    SourceWorker,
	}
	o.service.recordCounter(ctx, "tendlc.job.total", 1, tags)
	o.service.recordHistogram(ctx, "tendlc.job.duration_ms", float64(event.Duration.Milliseconds()), tags)
}

func (o *jobObserver) fields(event JobWorkerEvent) map[string]any {
	fields := map[string]any{
		"job_id":  jobIDOf(event),
		"attempt": event.Attempt,
		"source":  SourceWorker,
	}
	if event.Message != nil && event.Message.IdempotencyKey != "" {
		fields["idempotency_key"] = event.Message.IdempotencyKey
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func jobIDOf(event JobWorkerEvent) string {
	if event.Message == nil {
		return "unknown"
	}
	if id := strings.TrimSpace(event.Message.JobID); id != "" {
		return id
	}
	return "unknown"
}
