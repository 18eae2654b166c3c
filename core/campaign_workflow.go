package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const noCampaignIDReason = "Registry did not return a campaign identifier"

var (
	campaignOptInKeywords  = []string{"START", "JOIN"}
	campaignOptOutKeywords = []string{"STOP", "UNSUBSCRIBE"}
	campaignHelpKeywords   = []string{"HELP", "INFO"}
	campaignSampleMessages = []string{
		"Reminder: the community meeting starts Sunday at 10am. Reply STOP to opt out.",
		"Update: volunteer sign-ups for this week are open. Reply HELP for help, STOP to opt out.",
	}
)

// CampaignDeclaration builds the fixed notifications declaration submitted
// for every verified brand.
func (s *Service) CampaignDeclaration() CampaignDeclaration {
	cfg := s.Config()
	return CampaignDeclaration{
		UseCase:            cfg.Campaign.UseCase,
		Description:        cfg.Campaign.Description,
		MessageFlow:        cfg.Campaign.MessageFlow,
		SampleMessages:     append([]string(nil), campaignSampleMessages...),
		OptInKeywords:      append([]string(nil), campaignOptInKeywords...),
		OptOutKeywords:     append([]string(nil), campaignOptOutKeywords...),
		HelpKeywords:       append([]string(nil), campaignHelpKeywords...),
		OptInMessage:       cfg.Campaign.OptInMessage,
		OptOutMessage:      cfg.Campaign.OptOutMessage,
		HelpMessage:        cfg.Campaign.HelpMessage,
		SubscriberOptIn:    true,
		SubscriberOptOut:   true,
		SubscriberHelp:     true,
		WebhookURL:         cfg.Webhooks.PrimaryURL,
		WebhookFailoverURL: cfg.Webhooks.FailoverURL,
	}
}

// SubmitCampaign submits the campaign for a tenant whose brand is known.
// A missing brand is a sequencing error: it is logged and returned without
// touching the record. Registry failures are persisted as rejections.
func (s *Service) SubmitCampaign(ctx context.Context, tenantID string) (record RegistrationRecord, err error) {
	startedAt := time.Now().UTC()
	tenantID = strings.TrimSpace(tenantID)
	fields := map[string]any{
		"tenant_id": tenantID,
		"source":    SourceWorker,
	}
	defer func() {
		fields["registration_status"] = string(record.Status)
		s.observeOperation(ctx, startedAt, "submit_campaign", err, fields)
		err = s.mapError(err)
	}()

	if s == nil {
		return RegistrationRecord{}, fmt.Errorf("core: service is nil")
	}
	if tenantID == "" {
		return RegistrationRecord{}, fmt.Errorf("core: tenant id is required")
	}
	if s.registry == nil {
		return RegistrationRecord{}, fmt.Errorf("core: registry client is not configured")
	}

	current, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, ErrRecordNotFound) {
		fields["outcome"] = "brand_missing"
		return RegistrationRecord{}, fmt.Errorf("%w: tenant %s has no registration record", ErrBrandNotRegistered, tenantID)
	}
	if err != nil {
		return RegistrationRecord{}, err
	}
	if strings.TrimSpace(current.BrandID) == "" {
		fields["outcome"] = "brand_missing"
		return current, fmt.Errorf("%w: tenant %s", ErrBrandNotRegistered, tenantID)
	}
	fields["brand_id"] = current.BrandID

	if current.CampaignID != "" && (current.Status == StatusCampaignPending || current.Status == StatusApproved) {
		fields["outcome"] = "already_submitted"
		return current, nil
	}
	if current.Status == StatusApproved {
		fields["outcome"] = "already_approved"
		return current, nil
	}

	result, submitErr := s.registry.SubmitCampaign(ctx, CampaignSubmission{
		BrandID:     current.BrandID,
		Declaration: s.CampaignDeclaration(),
	})
	key := RecordKey{TenantID: tenantID}
	now := s.clock()
	if submitErr != nil {
		fields["outcome"] = "registry_error"
		fields["registry_error"] = submitErr.Error()
		return s.persistCampaignRejection(ctx, key, s.translate(submitErr), now)
	}

	campaignID := strings.TrimSpace(result.CampaignID)
	if campaignID == "" {
		fields["outcome"] = "missing_campaign_id"
		return s.persistCampaignRejection(ctx, key, noCampaignIDReason, now)
	}
	fields["campaign_id"] = campaignID
	record, _, err = s.UpdateRegistration(ctx, key, SourceWorker, func(rec *RegistrationRecord) (bool, error) {
		if err := rec.TransitionTo(StatusCampaignPending, "", now); err != nil {
			return false, err
		}
		rec.AssignCampaign(campaignID)
		rec.CampaignStatus = CampaignStatusSubmitted
		rec.NextCheckAt = nil
		return true, nil
	})
	if err != nil {
		return record, err
	}
	fields["outcome"] = "submitted"
	return record, nil
}

func (s *Service) persistCampaignRejection(ctx context.Context, key RecordKey, reason string, now time.Time) (RegistrationRecord, error) {
	record, _, err := s.UpdateRegistration(ctx, key, SourceWorker, func(rec *RegistrationRecord) (bool, error) {
		if err := rec.TransitionTo(StatusRejected, reason, now); err != nil {
			return false, err
		}
		return true, nil
	})
	return record, err
}
