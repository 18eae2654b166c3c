package tendlc

import (
	"fmt"

	tendlccommand "github.com/goliatone/go-tendlc/command"
	"github.com/goliatone/go-tendlc/core"
	tendlcquery "github.com/goliatone/go-tendlc/query"
)

type CommandQueryService interface {
	tendlccommand.BrandRegistrar
	tendlccommand.CampaignSubmitter
	tendlccommand.PendingReconciler
	tendlcquery.RegistrationReader
}

type Commands struct {
	RegisterBrand    *tendlccommand.RegisterBrandCommand
	SubmitCampaign   *tendlccommand.SubmitCampaignCommand
	ReconcilePending *tendlccommand.ReconcilePendingCommand
}

type Queries struct {
	GetRegistration *tendlcquery.GetRegistrationQuery
	DueForRecheck   *tendlcquery.DueForRecheckQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	recheckLister tendlcquery.RecheckLister
}

// WithRecheckLister overrides the store used by the due-for-recheck query.
func WithRecheckLister(lister tendlcquery.RecheckLister) FacadeOption {
	return func(options *facadeOptions) {
		options.recheckLister = lister
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tendlc: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	lister := cfg.recheckLister
	if lister == nil {
		lister = resolveRecheckLister(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RegisterBrand:    tendlccommand.NewRegisterBrandCommand(service),
		SubmitCampaign:   tendlccommand.NewSubmitCampaignCommand(service),
		ReconcilePending: tendlccommand.NewReconcilePendingCommand(service),
	}
	facade.queries = Queries{
		GetRegistration: tendlcquery.NewGetRegistrationQuery(service),
		DueForRecheck:   tendlcquery.NewDueForRecheckQuery(lister),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveRecheckLister falls back to the record store the service was built
// with. A nil result leaves the query returning a dependency error.
func resolveRecheckLister(service CommandQueryService) tendlcquery.RecheckLister {
	if lister, ok := service.(tendlcquery.RecheckLister); ok {
		return lister
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	store := provider.Dependencies().RecordStore
	if store == nil {
		return nil
	}
	return store
}
