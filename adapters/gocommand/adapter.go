package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const typePrefix = "tendlc."

// ValidateMessageContract checks that msg is a tendlc message: it has a
// tendlc.* Type() and passes its own Validate() when it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, typePrefix) {
		return fmt.Errorf("gocommand: message type %q is outside the %s namespace", msgType, strings.TrimSuffix(typePrefix, "."))
	}
	return nil
}

// RegistryAdapter pairs the go-command registry used for in-process dispatch
// with a go-job queue registry. Every command registered through
// RegisterAndSubscribe is mirrored into the queue registry so the same
// message can also run as a durable job.
type RegistryAdapter struct {
	registry *command.Registry
	queue    *jobqueuecommand.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, queue: jobqueuecommand.NewRegistry()}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// QueueRegistry lists the commands that can be enqueued with Enqueue.
func (a *RegistryAdapter) QueueRegistry() *jobqueuecommand.Registry {
	if a == nil {
		return nil
	}
	return a.queue
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Enqueue validates msg and stores it as a durable job keyed by its message
// type. The command must have been registered through RegisterAndSubscribe.
func (a *RegistryAdapter) Enqueue(ctx context.Context, enqueuer queue.Enqueuer, msg command.Message) (queue.EnqueueReceipt, error) {
	if a == nil || a.queue == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gocommand: queue registry is not configured")
	}
	if err := ValidateMessageContract(msg); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	params, err := jobqueuecommand.ParametersFromPayload(msg)
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gocommand: encode %s: %w", msg.Type(), err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return jobqueuecommand.Enqueue(ctx, enqueuer, a.queue, strings.TrimSpace(msg.Type()), params)
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd to the dispatcher, registers it and
// mirrors it into the queue registry.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	release := func(err error) (commanddispatcher.Subscription, error) {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		return release(err)
	}
	if adapter.queue != nil {
		if err := jobqueuecommand.RegisterCommand(adapter.queue, cmd); err != nil {
			return release(fmt.Errorf("gocommand: mirror command into queue registry: %w", err))
		}
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
