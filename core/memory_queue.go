package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryJobQueue is an in-process job queue with idempotency-key dedup.
// A key only blocks new messages while its job is waiting or claimed; once
// the job is acked or dead-lettered the key can be enqueued again.
// Deliveries that are neither acked nor nacked stay claimed.
type MemoryJobQueue struct {
	mu         sync.Mutex
	now        func() time.Time
	ready      []*memoryJob
	active     map[string]struct{}
	deadLetter []*JobExecutionMessage
}

type memoryJob struct {
	msg         *JobExecutionMessage
	key         string
	attempts    int
	availableAt time.Time
}

func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{
		now:    func() time.Time { return time.Now().UTC() },
		active: map[string]struct{}{},
	}
}

// WithClock replaces the queue clock used for delayed redelivery.
func (q *MemoryJobQueue) WithClock(now func() time.Time) *MemoryJobQueue {
	if q != nil && now != nil {
		q.now = now
	}
	return q
}

func (q *MemoryJobQueue) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("core: job queue is nil")
	}
	if msg == nil {
		return fmt.Errorf("core: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" {
		if _, ok := q.active[key]; ok {
			return nil
		}
		q.active[key] = struct{}{}
	}
	q.ready = append(q.ready, &memoryJob{msg: cloneJobMessage(msg), key: key, availableAt: q.now()})
	return nil
}

// Dequeue claims the first job whose delay has passed. It returns a nil
// delivery when nothing is ready.
func (q *MemoryJobQueue) Dequeue(_ context.Context) (JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("core: job queue is nil")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for idx, job := range q.ready {
		if job.availableAt.After(now) {
			continue
		}
		q.ready = append(q.ready[:idx], q.ready[idx+1:]...)
		job.attempts++
		return &memoryDelivery{queue: q, job: job}, nil
	}
	return nil, nil
}

// Len reports how many jobs wait for delivery, delayed ones included.
func (q *MemoryJobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Pending returns copies of the waiting messages in delivery order.
func (q *MemoryJobQueue) Pending() []*JobExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*JobExecutionMessage, 0, len(q.ready))
	for _, job := range q.ready {
		out = append(out, cloneJobMessage(job.msg))
	}
	return out
}

func (q *MemoryJobQueue) DeadLetters() []*JobExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*JobExecutionMessage(nil), q.deadLetter...)
}

// releaseKey must be called with q.mu held.
func (q *MemoryJobQueue) releaseKey(job *memoryJob) {
	if job.key != "" {
		delete(q.active, job.key)
	}
}

type memoryDelivery struct {
	queue *MemoryJobQueue
	job   *memoryJob
	done  bool
}

func (d *memoryDelivery) Message() *JobExecutionMessage {
	return cloneJobMessage(d.job.msg)
}

func (d *memoryDelivery) Attempt() int {
	return d.job.attempts
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.done {
		return nil
	}
	d.done = true
	d.queue.releaseKey(d.job)
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.done {
		return nil
	}
	d.done = true
	if opts.Disposition != JobNackRetry {
		d.queue.releaseKey(d.job)
		d.queue.deadLetter = append(d.queue.deadLetter, cloneJobMessage(d.job.msg))
		return nil
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	d.job.availableAt = d.queue.now().Add(delay)
	d.queue.ready = append(d.queue.ready, d.job)
	return nil
}

func cloneJobMessage(msg *JobExecutionMessage) *JobExecutionMessage {
	if msg == nil {
		return nil
	}
	copied := *msg
	if msg.Parameters != nil {
		copied.Parameters = make(map[string]any, len(msg.Parameters))
		for key, value := range msg.Parameters {
			copied.Parameters[key] = value
		}
	}
	return &copied
}

var (
	_ JobEnqueuer  = (*MemoryJobQueue)(nil)
	_ JobDequeuer  = (*MemoryJobQueue)(nil)
	_ JobDelivery  = (*memoryDelivery)(nil)
	_ JobAttempter = (*memoryDelivery)(nil)
)
