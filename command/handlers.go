package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-tendlc/core"
)

type BrandRegistrar interface {
	RegisterBrand(ctx context.Context, req core.RegisterBrandRequest) (core.RegistrationRecord, error)
}

type CampaignSubmitter interface {
	SubmitCampaign(ctx context.Context, tenantID string) (core.RegistrationRecord, error)
}

type PendingReconciler interface {
	ReconcilePending(ctx context.Context) (core.PollStats, error)
}

type RegisterBrandCommand struct {
	service BrandRegistrar
}

func NewRegisterBrandCommand(service BrandRegistrar) *RegisterBrandCommand {
	return &RegisterBrandCommand{service: service}
}

// Execute stores the resulting record even when the brand was rejected, so
// callers can read the failure reason from the collector.
func (c *RegisterBrandCommand) Execute(ctx context.Context, msg RegisterBrandMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: brand registrar is required")
	}
	out, err := c.service.RegisterBrand(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitCampaignCommand struct {
	service CampaignSubmitter
}

func NewSubmitCampaignCommand(service CampaignSubmitter) *SubmitCampaignCommand {
	return &SubmitCampaignCommand{service: service}
}

func (c *SubmitCampaignCommand) Execute(ctx context.Context, msg SubmitCampaignMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: campaign submitter is required")
	}
	out, err := c.service.SubmitCampaign(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcilePendingCommand struct {
	service PendingReconciler
}

func NewReconcilePendingCommand(service PendingReconciler) *ReconcilePendingCommand {
	return &ReconcilePendingCommand{service: service}
}

func (c *ReconcilePendingCommand) Execute(ctx context.Context, _ ReconcilePendingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pending reconciler is required")
	}
	stats, err := c.service.ReconcilePending(ctx)
	storeResult(ctx, stats)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
