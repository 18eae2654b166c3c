package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PollStats summarizes one reconciliation pass.
type PollStats struct {
	Visited  int `json:"visited"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
	Deferred int `json:"deferred"`
	Failed   int `json:"failed"`
}

// ReconcilePending asks the registry about every pending record whose next
// check is due and moves stored state to match. A failure for one tenant is
// logged and counted; the rest of the batch still runs.
func (s *Service) ReconcilePending(ctx context.Context) (stats PollStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"source": SourcePoller}
	defer func() {
		fields["visited"] = stats.Visited
		fields["verified"] = stats.Verified
		fields["rejected"] = stats.Rejected
		fields["deferred"] = stats.Deferred
		fields["failed"] = stats.Failed
		s.observeOperation(ctx, startedAt, "reconcile_pending", err, fields)
		err = s.mapError(err)
	}()

	if s == nil || s.store == nil {
		return PollStats{}, fmt.Errorf("core: record store is not configured")
	}
	if s.registry == nil {
		return PollStats{}, fmt.Errorf("core: registry client is not configured")
	}

	now := s.clock()
	due, err := s.store.ListDueForRecheck(ctx, now, s.config.Poller.BatchSize)
	if err != nil {
		return PollStats{}, err
	}
	for _, record := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Visited++
		outcome, reconcileErr := s.reconcileRecord(ctx, record, now)
		if reconcileErr != nil {
			stats.Failed++
			s.logError(ctx, "registration reconcile failed", map[string]any{
				"tenant_id": record.TenantID,
				"brand_id":  record.BrandID,
				"source":    SourcePoller,
				"error":     reconcileErr.Error(),
			})
			continue
		}
		switch outcome {
		case BrandOutcomeVerified:
			stats.Verified++
		case BrandOutcomeRejected:
			stats.Rejected++
		default:
			stats.Deferred++
		}
	}
	return stats, nil
}

func (s *Service) reconcileRecord(ctx context.Context, record RegistrationRecord, now time.Time) (BrandOutcome, error) {
	key := RecordKey{TenantID: record.TenantID}
	recheckAt := now.Add(time.Duration(s.config.Poller.RecheckMinutes) * time.Minute)
	if strings.TrimSpace(record.BrandID) == "" {
		_, _, err := s.UpdateRegistration(ctx, key, SourcePoller, deferRecheck(recheckAt))
		return BrandOutcomePending, err
	}

	result, err := s.registry.GetBrandStatus(ctx, record.BrandID)
	if err != nil {
		if _, _, deferErr := s.UpdateRegistration(ctx, key, SourcePoller, deferRecheck(recheckAt)); deferErr != nil {
			return BrandOutcomePending, deferErr
		}
		return BrandOutcomePending, err
	}

	outcome := result.Outcome()
	switch outcome {
	case BrandOutcomeVerified:
		saved, _, err := s.UpdateRegistration(ctx, key, SourcePoller, func(rec *RegistrationRecord) (bool, error) {
			if err := rec.TransitionTo(StatusBrandVerified, "", now); err != nil {
				return false, err
			}
			rec.NextCheckAt = nil
			return true, nil
		})
		if err != nil {
			return outcome, err
		}
		if saved.Status != StatusBrandVerified {
			return outcome, nil
		}
		return outcome, s.ScheduleCampaignSubmission(ctx, saved.TenantID, saved.BrandID)
	case BrandOutcomeRejected:
		reason := strings.TrimSpace(result.FailureReason)
		if reason == "" {
			reason = "Brand registration failed with status " + strings.TrimSpace(firstNonEmpty(result.IdentityStatus, result.Status))
		}
		_, _, err := s.UpdateRegistration(ctx, key, SourcePoller, func(rec *RegistrationRecord) (bool, error) {
			if err := rec.TransitionTo(StatusRejected, reason, now); err != nil {
				return false, err
			}
			rec.NextCheckAt = nil
			return true, nil
		})
		return outcome, err
	default:
		_, _, err := s.UpdateRegistration(ctx, key, SourcePoller, deferRecheck(recheckAt))
		return outcome, err
	}
}

func deferRecheck(at time.Time) Mutation {
	return func(rec *RegistrationRecord) (bool, error) {
		if rec.Status != StatusPending {
			return false, nil
		}
		rec.NextCheckAt = timePtr(at)
		return true, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Poller runs ReconcilePending on a fixed interval until its context ends.
type Poller struct {
	service  *Service
	interval time.Duration
}

func NewPoller(service *Service) *Poller {
	interval := service.Config().Poller.Interval()
	if interval <= 0 {
		interval = DefaultConfig().Poller.Interval()
	}
	return &Poller{service: service, interval: interval}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// RunOnce performs a single pass.
func (p *Poller) RunOnce(ctx context.Context) (PollStats, error) {
	if p == nil || p.service == nil {
		return PollStats{}, fmt.Errorf("core: poller service is not configured")
	}
	return p.service.ReconcilePending(ctx)
}

// Run blocks, polling every interval. The first pass runs after one interval.
func (p *Poller) Run(ctx context.Context) error {
	if p == nil || p.service == nil {
		return fmt.Errorf("core: poller service is not configured")
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
				p.service.logError(ctx, "reconciliation pass failed", map[string]any{
					"source": SourcePoller,
					"error":  err.Error(),
				})
			}
		}
	}
}
