package command

import (
	"strings"

	"github.com/goliatone/go-tendlc/core"
)

const (
	TypeRegisterBrand    = "tendlc.command.brand.register"
	TypeSubmitCampaign   = "tendlc.command.campaign.submit"
	TypeReconcilePending = "tendlc.command.registrations.reconcile"
)

type RegisterBrandMessage struct {
	Request core.RegisterBrandRequest
}

func (RegisterBrandMessage) Type() string { return TypeRegisterBrand }

// Validate only checks routing fields. Profile content is validated by the
// brand workflow so an invalid profile is recorded as a rejection.
func (m RegisterBrandMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type SubmitCampaignMessage struct {
	TenantID string
}

func (SubmitCampaignMessage) Type() string { return TypeSubmitCampaign }

func (m SubmitCampaignMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ReconcilePendingMessage struct{}

func (ReconcilePendingMessage) Type() string { return TypeReconcilePending }
