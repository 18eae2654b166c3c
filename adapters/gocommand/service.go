package gocommand

import (
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	tendlccommand "github.com/goliatone/go-tendlc/command"
	"github.com/goliatone/go-tendlc/core"
	"github.com/goliatone/go-tendlc/query"
)

// Bindings holds the dispatcher subscriptions created by RegisterService.
type Bindings struct {
	subscriptions []commanddispatcher.Subscription
}

func (b *Bindings) Unsubscribe() {
	if b == nil {
		return
	}
	for _, sub := range b.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.subscriptions)
}

// RegisterService registers the registration commands and queries backed by
// service. On failure every subscription made so far is released.
func RegisterService(adapter *RegistryAdapter, service *core.Service, runnerOpts ...runner.Option) (*Bindings, error) {
	bindings := &Bindings{}
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			bindings.Unsubscribe()
			return err
		}
		bindings.subscriptions = append(bindings.subscriptions, sub)
		return nil
	}

	if err := add(RegisterAndSubscribe[tendlccommand.RegisterBrandMessage](
		adapter, tendlccommand.NewRegisterBrandCommand(service), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe[tendlccommand.SubmitCampaignMessage](
		adapter, tendlccommand.NewSubmitCampaignCommand(service), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe[tendlccommand.ReconcilePendingMessage](
		adapter, tendlccommand.NewReconcilePendingCommand(service), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribeQuery[query.GetRegistrationMessage, core.RegistrationRecord](
		adapter, query.NewGetRegistrationQuery(service), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	return bindings, nil
}
