package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Registry status values carried by webhook events.
const (
	IdentityVerified       = "VERIFIED"
	IdentityVettedVerified = "VETTED_VERIFIED"
	IdentityUnverified     = "UNVERIFIED"
	IdentityFailed         = "FAILED"
	IdentitySelfDeclared   = "SELF_DECLARED"

	CampaignMNOProvisioned = "MNO_PROVISIONED"

	CampaignEventDormant = "DORMANT"

	AssignmentAssigned   = "ASSIGNED"
	AssignmentFailed     = "FAILED"
	AssignmentUnassigned = "UNASSIGNED"
	AssignmentDeleted    = "DELETED"
)

var campaignFailureStatuses = map[string]struct{}{
	"TCR_FAILED":    {},
	"MNO_REJECTED":  {},
	"MNO_FAILED":    {},
	"TELNYX_FAILED": {},
	"REJECTED":      {},
}

// IsCampaignFailureStatus reports whether a campaign sub-status is terminal
// failure at any review stage.
func IsCampaignFailureStatus(status string) bool {
	_, ok := campaignFailureStatuses[normalizeRegistryStatus(status)]
	return ok
}

// HandleBrandAdded records that the registry accepted a brand.
func (s *Service) HandleBrandAdded(ctx context.Context, brandID string, tcrBrandID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"brand_id": brandID, "event": "brand_added"}
	defer func() {
		s.observeOperation(ctx, startedAt, "webhook_brand_added", err, fields)
	}()

	_, err = s.applyWebhookUpdate(ctx, []RecordKey{{BrandID: brandID}}, func(record *RegistrationRecord) (bool, error) {
		now := s.clock()
		changed := record.AssignBrand(brandID, tcrBrandID)
		if record.Status == StatusPending {
			if changed {
				record.UpdatedAt = now
			}
			return changed, nil
		}
		if !CanTransition(record.Status, StatusPending) {
			if changed {
				record.UpdatedAt = now
				return true, nil
			}
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidRegistrationTransition, record.Status, StatusPending)
		}
		return true, record.TransitionTo(StatusPending, "", now)
	})
	return err
}

// HandleBrandIdentity applies a brand identity verdict. A verified brand gets
// its campaign submission queued.
func (s *Service) HandleBrandIdentity(ctx context.Context, brandID string, identityStatus string, description string) (err error) {
	startedAt := time.Now().UTC()
	identityStatus = normalizeRegistryStatus(identityStatus)
	fields := map[string]any{"brand_id": brandID, "identity_status": identityStatus, "event": "brand_identity"}
	defer func() {
		s.observeOperation(ctx, startedAt, "webhook_brand_identity", err, fields)
	}()

	var target RegistrationStatus
	reason := ""
	switch identityStatus {
	case IdentityVerified, IdentityVettedVerified:
		target = StatusBrandVerified
	case IdentityUnverified:
		target = StatusPending
	case IdentityFailed:
		target = StatusRejected
		reason = strings.TrimSpace(description)
		if reason == "" {
			reason = "Brand identity verification failed"
		}
	default:
		s.logInfo(ctx, "brand identity update ignored", fields)
		return nil
	}

	saved, err := s.applyWebhookUpdate(ctx, []RecordKey{{BrandID: brandID}}, transitionMutation(target, reason, s.clock))
	if err != nil || saved == nil {
		return err
	}
	if target == StatusBrandVerified && saved.Status == StatusBrandVerified {
		return s.ScheduleCampaignSubmission(ctx, saved.TenantID, saved.BrandID)
	}
	return nil
}

// HandleBrandVetting only logs; vetting scores do not change registration
// state.
func (s *Service) HandleBrandVetting(ctx context.Context, brandID string, vettingStatus string) error {
	s.logInfo(ctx, "brand vetting update received", map[string]any{
		"brand_id":       brandID,
		"vetting_status": normalizeRegistryStatus(vettingStatus),
		"source":         SourceWebhook,
	})
	return nil
}

// HandleCampaignUpdate applies a campaign review stage. Provisioned campaigns
// are approved, failures at any stage reject, everything else is pending.
func (s *Service) HandleCampaignUpdate(
	ctx context.Context,
	campaignID string,
	brandID string,
	campaignStatus string,
	failureReasons string,
) (err error) {
	startedAt := time.Now().UTC()
	campaignStatus = normalizeRegistryStatus(campaignStatus)
	fields := map[string]any{"campaign_id": campaignID, "campaign_status": campaignStatus, "event": "campaign_update"}
	defer func() {
		s.observeOperation(ctx, startedAt, "webhook_campaign_update", err, fields)
	}()

	target := StatusCampaignPending
	reason := ""
	switch {
	case campaignStatus == CampaignMNOProvisioned:
		target = StatusApproved
	case IsCampaignFailureStatus(campaignStatus):
		target = StatusRejected
		reason = strings.TrimSpace(failureReasons)
		if reason == "" {
			reason = "Campaign registration failed with status " + campaignStatus
		}
	}

	keys := []RecordKey{{CampaignID: campaignID}, {BrandID: brandID}}
	_, err = s.applyWebhookUpdate(ctx, keys, func(record *RegistrationRecord) (bool, error) {
		now := s.clock()
		if !CanTransition(record.Status, target) {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidRegistrationTransition, record.Status, target)
		}
		changed := record.AssignCampaign(campaignID)
		if campaignStatus != "" && record.CampaignStatus != campaignStatus {
			record.CampaignStatus = campaignStatus
			changed = true
		}
		if record.Status != target || (target == StatusRejected && record.RejectionReason != reason) {
			changed = true
		}
		if !changed {
			return false, nil
		}
		return true, record.TransitionTo(target, reason, now)
	})
	return err
}

// HandleCampaignEvent applies registry operational events for a campaign.
// Only dormancy changes state; it flags the campaign without touching status.
func (s *Service) HandleCampaignEvent(ctx context.Context, campaignID string, eventStatus string, description string) (err error) {
	startedAt := time.Now().UTC()
	eventStatus = normalizeRegistryStatus(eventStatus)
	fields := map[string]any{"campaign_id": campaignID, "event_status": eventStatus, "event": "campaign_event"}
	defer func() {
		s.observeOperation(ctx, startedAt, "webhook_campaign_event", err, fields)
	}()

	if eventStatus != CampaignEventDormant {
		s.logInfo(ctx, "campaign event ignored", fields)
		return nil
	}
	reason := strings.TrimSpace(description)
	if reason == "" {
		reason = "Campaign marked dormant"
	}
	_, err = s.applyWebhookUpdate(ctx, []RecordKey{{CampaignID: campaignID}}, func(record *RegistrationRecord) (bool, error) {
		if record.CampaignSuspended && record.CampaignSuspendedReason == reason {
			return false, nil
		}
		record.Suspend(reason, s.clock())
		return true, nil
	})
	return err
}

// HandleNumberAssignment applies a phone number to campaign assignment
// outcome. A failed assignment stores its reason without a status change.
func (s *Service) HandleNumberAssignment(
	ctx context.Context,
	phoneNumber string,
	campaignID string,
	assignmentStatus string,
	failureReason string,
) (err error) {
	startedAt := time.Now().UTC()
	assignmentStatus = normalizeRegistryStatus(assignmentStatus)
	fields := map[string]any{
		"phone_number":      phoneNumber,
		"campaign_id":       campaignID,
		"assignment_status": assignmentStatus,
		"event":             "number_assignment",
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "webhook_number_assignment", err, fields)
	}()

	var mutate Mutation
	switch assignmentStatus {
	case AssignmentAssigned:
		mutate = func(record *RegistrationRecord) (bool, error) {
			record.MarkNumberAssigned(s.clock())
			return true, nil
		}
	case AssignmentFailed:
		reason := strings.TrimSpace(failureReason)
		if reason == "" {
			reason = "Phone number assignment failed"
		}
		mutate = func(record *RegistrationRecord) (bool, error) {
			if record.NumberAssignmentError == reason {
				return false, nil
			}
			record.NumberAssignmentError = reason
			record.UpdatedAt = s.clock()
			return true, nil
		}
	case AssignmentUnassigned, AssignmentDeleted:
		mutate = func(record *RegistrationRecord) (bool, error) {
			if record.NumberAssignedAt == nil {
				return false, nil
			}
			record.MarkNumberUnassigned(s.clock())
			return true, nil
		}
	default:
		s.logInfo(ctx, "number assignment update ignored", fields)
		return nil
	}

	keys := []RecordKey{{PhoneNumber: phoneNumber}, {CampaignID: campaignID}}
	_, err = s.applyWebhookUpdate(ctx, keys, mutate)
	return err
}

// applyWebhookUpdate writes through the first key that resolves to a record.
// Events for records this system does not know are logged and dropped with a
// nil record and nil error.
func (s *Service) applyWebhookUpdate(ctx context.Context, keys []RecordKey, mutate Mutation) (*RegistrationRecord, error) {
	tried := map[string]any{}
	for _, key := range keys {
		if key.String() == "" {
			continue
		}
		for name, value := range key.Fields() {
			tried[name] = value
		}
		saved, _, err := s.UpdateRegistration(ctx, key, SourceWebhook, mutate)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			fields := cloneFields(tried)
			fields["source"] = SourceWebhook
			fields["error"] = err.Error()
			s.logError(ctx, "webhook registration update failed", fields)
			return nil, err
		}
		return &saved, nil
	}
	if len(tried) == 0 {
		return nil, fmt.Errorf("core: webhook event carries no record key")
	}
	tried["source"] = SourceWebhook
	s.logWarn(ctx, "webhook registration record not found", tried)
	return nil, nil
}

func transitionMutation(target RegistrationStatus, reason string, now func() time.Time) Mutation {
	return func(record *RegistrationRecord) (bool, error) {
		if record.Status == target && (target != StatusRejected || record.RejectionReason == reason) {
			return false, nil
		}
		return true, record.TransitionTo(target, reason, now())
	}
}

func normalizeRegistryStatus(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
