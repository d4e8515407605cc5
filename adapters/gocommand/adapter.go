// Package gocommand registers the integration commands and queries with a
// go-command registry and its global dispatcher.
package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// ValidateMessageContract checks that msg names a non-empty type and passes
// its own Validate, when it has one.
func ValidateMessageContract(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return command.ValidateMessage(msg)
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return nil
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// RegisterCommand adds a command or query handler; go-command keeps both in
// the same registry.
func (a *RegistryAdapter) RegisterCommand(handler any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also be enqueued.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	return a.ready() == nil && a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd on the dispatcher and registers it. The
// subscription is released when registration fails.
func RegisterAndSubscribe[T any](adapter *RegistryAdapter, cmd command.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return subscribeThenRegister(adapter, cmd, commanddispatcher.SubscribeCommand(cmd, runnerOpts...))
}

func RegisterAndSubscribeQuery[T any, R any](adapter *RegistryAdapter, qry command.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return subscribeThenRegister(adapter, qry, commanddispatcher.SubscribeQuery(qry, runnerOpts...))
}

func subscribeThenRegister(adapter *RegistryAdapter, handler any, sub commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if err := adapter.RegisterCommand(handler); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

// Subscriptions groups the handles returned while wiring a service so they
// can be released together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// binder collects subscriptions and stops at the first failure.
type binder struct {
	subs Subscriptions
	err  error
}

func (b *binder) keep(sub commanddispatcher.Subscription, err error) {
	switch {
	case b.err != nil:
		if sub != nil {
			sub.Unsubscribe()
		}
	case err != nil:
		b.err = err
	default:
		b.subs = append(b.subs, sub)
	}
}

// RegisterIntegrationHandlers registers every integration command and query
// against service. On failure the subscriptions made so far are released.
func RegisterIntegrationHandlers(adapter *RegistryAdapter, service core.IntegrationService, runnerOpts ...runner.Option) (Subscriptions, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: integration service is required")
	}
	b := &binder{}

	// connect lifecycle
	b.keep(RegisterAndSubscribe[integrationcommand.InitiateConnectMessage](adapter, integrationcommand.NewInitiateConnectCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.CompleteConnectMessage](adapter, integrationcommand.NewCompleteConnectCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.ExchangeCodeMessage](adapter, integrationcommand.NewExchangeCodeCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.CancelConnectMessage](adapter, integrationcommand.NewCancelConnectCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.RefreshMessage](adapter, integrationcommand.NewRefreshCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.ReconnectMessage](adapter, integrationcommand.NewReconnectCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.DisconnectMessage](adapter, integrationcommand.NewDisconnectCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.ListProvidersMessage, []core.ProviderListing](adapter, integrationquery.NewListProvidersQuery(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.ListIntegrationsMessage, []core.Integration](adapter, integrationquery.NewListIntegrationsQuery(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.ConnectStatusMessage, core.ConnectAttempt](adapter, integrationquery.NewConnectStatusQuery(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.AwaitConnectMessage, core.Integration](adapter, integrationquery.NewAwaitConnectQuery(service), runnerOpts...))

	// automations
	b.keep(RegisterAndSubscribe[integrationcommand.TriggerAutomationMessage](adapter, integrationcommand.NewTriggerAutomationCommand(service), runnerOpts...))

	// request tracking
	b.keep(RegisterAndSubscribe[integrationcommand.CreateRequestMessage](adapter, integrationcommand.NewCreateRequestCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.UpdateRequestMessage](adapter, integrationcommand.NewUpdateRequestCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribe[integrationcommand.RequestCancellationMessage](adapter, integrationcommand.NewRequestCancellationCommand(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.RequestStatusMessage, core.AsyncRequest](adapter, integrationquery.NewRequestStatusQuery(service), runnerOpts...))
	b.keep(RegisterAndSubscribeQuery[integrationquery.IsCancelledMessage, bool](adapter, integrationquery.NewIsCancelledQuery(service), runnerOpts...))

	if b.err != nil {
		b.subs.Unsubscribe()
		return nil, b.err
	}
	return b.subs, nil
}
