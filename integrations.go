// Package integrations connects users to third-party OAuth providers,
// triggers their automations against the downstream executor, and tracks
// long-running requests. The core package holds the domain; this package
// re-exports it and composes a runnable stack.
package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Integration = core.Integration
type IntegrationStatus = core.IntegrationStatus
type ConnectAttempt = core.ConnectAttempt
type Automation = core.Automation
type AsyncRequest = core.AsyncRequest
type CancellationRequest = core.CancellationRequest

type ConnectRequest = core.ConnectRequest
type ConnectResponse = core.ConnectResponse
type CompletionRequest = core.CompletionRequest
type CallbackRequest = core.CallbackRequest
type ExchangeRequest = core.ExchangeRequest
type RefreshRequest = core.RefreshRequest
type ReconnectRequest = core.ReconnectRequest
type DisconnectRequest = core.DisconnectRequest
type TriggerRequest = core.TriggerRequest
type TriggerResult = core.TriggerResult
type RequestUpdate = core.RequestUpdate

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorMapper         = core.WithErrorMapper
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithRegistry            = core.WithRegistry
	WithTokenExchanger      = core.WithTokenExchanger
	WithIntegrationStore    = core.WithIntegrationStore
	WithPendingConnectStore = core.WithPendingConnectStore
	WithAutomationStore     = core.WithAutomationStore
	WithRequestStore        = core.WithRequestStore
	WithCancellationStore   = core.WithCancellationStore
	WithExecutionClient     = core.WithExecutionClient
	WithFollowUpScheduler   = core.WithFollowUpScheduler
	WithClock               = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup is NewService under the name hosts composing by hand expect.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
