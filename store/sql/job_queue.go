package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	jobStatusPending    = "pending"
	jobStatusProcessing = "processing"
	jobStatusDone       = "done"
	jobStatusDead       = "dead"

	DefaultJobLease = 5 * time.Minute
)

// JobQueue is a go-job queue backend on the tendlc_jobs table. A claimed job
// is leased; when the lease runs out before an ack, nack or lease extension
// it becomes claimable again.
type JobQueue struct {
	db    *bun.DB
	repo  repository.Repository[*jobRecord]
	lease time.Duration
	now   func() time.Time
}

type JobQueueOption func(*JobQueue)

func WithJobLease(lease time.Duration) JobQueueOption {
	return func(q *JobQueue) {
		if lease > 0 {
			q.lease = lease
		}
	}
}

func WithJobClock(now func() time.Time) JobQueueOption {
	return func(q *JobQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewJobQueue(db *bun.DB, opts ...JobQueueOption) (*JobQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	q := &JobQueue{
		db:    db,
		repo:  repo,
		lease: DefaultJobLease,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// Enqueue stores a job ready for immediate delivery.
func (q *JobQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	return q.enqueue(ctx, msg, q.now().UTC())
}

// EnqueueAt stores a job that becomes claimable at the given time.
func (q *JobQueue) EnqueueAt(ctx context.Context, msg *job.ExecutionMessage, at time.Time) (queue.EnqueueReceipt, error) {
	return q.enqueue(ctx, msg, at.UTC())
}

// EnqueueAfter stores a job that becomes claimable after delay.
func (q *JobQueue) EnqueueAfter(ctx context.Context, msg *job.ExecutionMessage, delay time.Duration) (queue.EnqueueReceipt, error) {
	if delay < 0 {
		delay = 0
	}
	return q.enqueue(ctx, msg, q.now().UTC().Add(delay))
}

// enqueue inserts the job row. A message whose idempotency key belongs to a
// pending or processing job is dropped and the receipt names that job; keys
// of done and dead jobs do not block.
func (q *JobQueue) enqueue(ctx context.Context, msg *job.ExecutionMessage, availableAt time.Time) (queue.EnqueueReceipt, error) {
	if q == nil || q.repo == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: job queue is not configured")
	}
	if err := queue.ValidateRequiredMessage(msg); err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: %w", err)
	}
	now := q.now().UTC()
	record := &jobRecord{
		ID:          uuid.NewString(),
		JobID:       strings.TrimSpace(msg.JobID),
		ScriptPath:  strings.TrimSpace(msg.ScriptPath),
		Parameters:  copyAnyMap(msg.Parameters),
		DedupPolicy: strings.TrimSpace(string(msg.DedupPolicy)),
		Status:      jobStatusPending,
		AvailableAt: availableAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		record.IdempotencyKey = &key
	}
	if _, err := q.repo.Create(ctx, record); err != nil {
		if record.IdempotencyKey != nil && isUniqueViolation(err) {
			return q.activeReceipt(ctx, *record.IdempotencyKey)
		}
		return queue.EnqueueReceipt{}, err
	}
	return queue.EnqueueReceipt{DispatchID: record.ID, EnqueuedAt: now}, nil
}

func (q *JobQueue) activeReceipt(ctx context.Context, key string) (queue.EnqueueReceipt, error) {
	existing := new(jobRecord)
	err := q.db.NewSelect().
		Model(existing).
		Column("id", "created_at").
		Where("?TableAlias.idempotency_key = ?", key).
		Where("?TableAlias.status IN (?)", bun.In([]string{jobStatusPending, jobStatusProcessing})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("sqlstore: resolve job for idempotency key %q: %w", key, err)
	}
	return queue.EnqueueReceipt{DispatchID: existing.ID, EnqueuedAt: existing.CreatedAt}, nil
}

// Dequeue claims the oldest available job. It returns a nil delivery when
// nothing is ready so the worker idles instead of logging an error.
func (q *JobQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil || q.db == nil {
		return nil, fmt.Errorf("sqlstore: job queue is not configured")
	}
	now := q.now().UTC()
	leasedUntil := now.Add(q.lease)
	var records []jobRecord
	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM tendlc_jobs
	WHERE (status = ? AND available_at <= ?)
	   OR (status = ? AND leased_until IS NOT NULL AND leased_until <= ?)
	ORDER BY available_at ASC, created_at ASC
	LIMIT 1
)
UPDATE tendlc_jobs
SET status = ?, attempts = attempts + 1, leased_until = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
RETURNING
	id,
	job_id,
	script_path,
	parameters,
	idempotency_key,
	dedup_policy,
	status,
	attempts,
	available_at,
	leased_until,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			jobStatusPending,
			now,
			jobStatusProcessing,
			now,
			jobStatusProcessing,
			leasedUntil,
			now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[0]
	return &jobDelivery{queue: q, record: record}, nil
}

// Stats counts stored jobs per status.
func (q *JobQueue) Stats(ctx context.Context) (map[string]int, error) {
	if q == nil || q.db == nil {
		return nil, fmt.Errorf("sqlstore: job queue is not configured")
	}
	var rows []struct {
		Status string `bun:"status"`
		Total  int    `bun:"total"`
	}
	if err := q.db.NewSelect().
		Model((*jobRecord)(nil)).
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("COUNT(*) AS total").
		GroupExpr("?TableAlias.status").
		Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (q *JobQueue) complete(ctx context.Context, id string, attempts int) error {
	result, err := q.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", jobStatusDone).
		Set("leased_until = NULL").
		Set("last_error = NULL").
		Set("updated_at = ?", q.now().UTC()).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing).
		Where("attempts = ?", attempts).
		Exec(ctx)
	return leaseResult(result, err, id)
}

func (q *JobQueue) release(ctx context.Context, id string, attempts int, opts queue.NackOptions) error {
	now := q.now().UTC()
	status := jobStatusPending
	if opts.Disposition != queue.NackDispositionRetry {
		status = jobStatusDead
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	var lastError any
	if reason := strings.TrimSpace(opts.Reason); reason != "" {
		lastError = reason
	}
	result, err := q.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", status).
		Set("available_at = ?", now.Add(delay)).
		Set("leased_until = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing).
		Where("attempts = ?", attempts).
		Exec(ctx)
	return leaseResult(result, err, id)
}

func (q *JobQueue) extend(ctx context.Context, id string, attempts int, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = q.lease
	}
	now := q.now().UTC()
	result, err := q.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("leased_until = ?", now.Add(ttl)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing).
		Where("attempts = ?", attempts).
		Exec(ctx)
	return leaseResult(result, err, id)
}

// leaseResult reports a lost lease when the guarded update touched no row,
// which happens after another worker reclaimed an expired lease.
func leaseResult(result interface{ RowsAffected() (int64, error) }, err error, id string) error {
	if err != nil {
		return err
	}
	if affected, rowsErr := result.RowsAffected(); rowsErr == nil && affected == 0 {
		return fmt.Errorf("sqlstore: job %s lease lost", id)
	}
	return nil
}

type jobDelivery struct {
	queue  *JobQueue
	record jobRecord

	mu   sync.Mutex
	done bool
}

func (d *jobDelivery) Message() *job.ExecutionMessage {
	msg := &job.ExecutionMessage{
		JobID:       d.record.JobID,
		ScriptPath:  d.record.ScriptPath,
		Parameters:  copyAnyMap(d.record.Parameters),
		DedupPolicy: job.DeduplicationPolicy(d.record.DedupPolicy),
	}
	if d.record.IdempotencyKey != nil {
		msg.IdempotencyKey = *d.record.IdempotencyKey
	}
	return msg
}

// Attempt counts deliveries of this job, starting at 1.
func (d *jobDelivery) Attempt() int {
	return d.record.Attempts
}

// Attempts is the go-job worker's name for Attempt.
func (d *jobDelivery) Attempts() int {
	return d.record.Attempts
}

// Ack and Nack detach from ctx cancellation so a job that finishes while the
// worker shuts down still records its outcome.
func (d *jobDelivery) Ack(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return nil
	}
	if err := d.queue.complete(context.WithoutCancel(ctx), d.record.ID, d.record.Attempts); err != nil {
		return err
	}
	d.done = true
	return nil
}

func (d *jobDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return nil
	}
	if err := queue.ValidateNackOptions(opts); err != nil {
		return fmt.Errorf("sqlstore: %w", err)
	}
	if err := d.queue.release(context.WithoutCancel(ctx), d.record.ID, d.record.Attempts, opts); err != nil {
		return err
	}
	d.done = true
	return nil
}

// ExtendLease pushes the lease out by ttl from now. It fails once the job was
// reclaimed by another worker.
func (d *jobDelivery) ExtendLease(ctx context.Context, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return nil
	}
	return d.queue.extend(ctx, d.record.ID, d.record.Attempts, ttl)
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
