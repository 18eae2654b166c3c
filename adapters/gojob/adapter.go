package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-tendlc/core"
)

// ToExecutionMessage maps a core job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message to the core contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// FromNackOptions maps a worker nack decision to the core contract. An
// unknown disposition is treated as a failure so the job is not retried.
func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	disposition := core.JobNackDisposition(opts.Disposition)
	switch disposition {
	case core.JobNackRetry, core.JobNackDeadLetter, core.JobNackFailed, core.JobNackCanceled:
	default:
		disposition = core.JobNackFailed
	}
	return core.JobNackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      strings.TrimSpace(opts.Reason),
	}
}

// EnqueuerAdapter lets the service enqueue onto any go-job queue backend.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

// QueueDequeuer exposes a core job queue, such as core.MemoryJobQueue, to the
// go-job worker.
type QueueDequeuer struct {
	dequeuer core.JobDequeuer
}

func NewQueueDequeuer(dequeuer core.JobDequeuer) *QueueDequeuer {
	return &QueueDequeuer{dequeuer: dequeuer}
}

func (a *QueueDequeuer) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return &queueDelivery{delivery: delivery}, nil
}

type queueDelivery struct {
	delivery core.JobDelivery
}

func (d *queueDelivery) Message() *job.ExecutionMessage {
	return ToExecutionMessage(d.delivery.Message())
}

func (d *queueDelivery) Ack(ctx context.Context) error {
	return d.delivery.Ack(ctx)
}

func (d *queueDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	return d.delivery.Nack(ctx, FromNackOptions(opts))
}

// Attempts reports the delivery count to the worker retry policy.
func (d *queueDelivery) Attempts() int {
	if attempter, ok := d.delivery.(core.JobAttempter); ok {
		return attempter.Attempt()
	}
	return 1
}

// WorkerHookAdapter forwards go-job worker events to a core job hook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ queue.Dequeuer   = (*QueueDequeuer)(nil)
	_ queue.Delivery   = (*queueDelivery)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
