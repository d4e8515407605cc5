package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Registry interface {
	Resolve(name string) (string, error)
	Config(name string) (ProviderConfig, error)
	Descriptor(name string) (ProviderDescriptor, error)
	List() []ProviderConfig
}

// TokenEnvelope is a provider token response. Raw keeps every field the
// provider returned so provider-specific data can be mapped later.
type TokenEnvelope struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	ExpiresAt    *time.Time
	Raw          map[string]any
}

type AuthorizationRequest struct {
	State       string
	RedirectURI string
}

type Authorization struct {
	URL          string
	CodeVerifier string
}

type CodeExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// TokenExchanger speaks the OAuth2 wire protocol for any catalog provider.
type TokenExchanger interface {
	BeginAuthorization(cfg ProviderConfig, req AuthorizationRequest) (Authorization, error)
	Exchange(ctx context.Context, cfg ProviderConfig, req CodeExchangeRequest) (TokenEnvelope, error)
	Refresh(ctx context.Context, cfg ProviderConfig, refreshToken string) (TokenEnvelope, error)
}

type IntegrationStore interface {
	Upsert(ctx context.Context, in UpsertIntegrationInput) (Integration, error)
	// EnsurePending creates a pending row for (user, provider) unless one
	// already exists.
	EnsurePending(ctx context.Context, userID string, providerID string) (Integration, error)
	Get(ctx context.Context, id string) (Integration, error)
	FindOwned(ctx context.Context, userID string, id string) (Integration, error)
	FindByUserProvider(ctx context.Context, userID string, providerID string) (Integration, error)
	ListByUser(ctx context.Context, userID string) ([]Integration, error)
	UpdateStatus(ctx context.Context, id string, status IntegrationStatus) (Integration, error)
	UpdateConfiguration(ctx context.Context, id string, cfg ProviderConfiguration) (Integration, error)
	// Delete removes the integration owned by userID and returns the number
	// of rows removed.
	Delete(ctx context.Context, userID string, id string) (int64, error)
}

type AutomationStore interface {
	FindOwned(ctx context.Context, userID string, automationID string) (Automation, error)
}

type RequestStore interface {
	Create(ctx context.Context, in CreateRequestInput) (AsyncRequest, error)
	Get(ctx context.Context, requestID string) (AsyncRequest, error)
	UpdateStatus(ctx context.Context, requestID string, status string, metadata map[string]any) (AsyncRequest, error)
	UpdateNetworkSuccess(ctx context.Context, requestID string, success bool) error
	UpdateResponseFetched(ctx context.Context, requestID string, fetched bool) error
}

type CancellationStore interface {
	Create(ctx context.Context, userID string, requestID string, metadata map[string]any) (CancellationRequest, error)
	HasPending(ctx context.Context, requestID string) (bool, error)
	MarkProcessed(ctx context.Context, requestID string) (int64, error)
}

type PollOutcome struct {
	ItemsFound    int
	EventsCreated int
}

type ProcessOutcome struct {
	Successful int
	Failed     int
}

type ExecutionOutcome struct {
	ExecutionID     string
	Result          map[string]any
	ActionsExecuted int
}

type ManualExecution struct {
	AutomationID string
	BearerToken  string
	TriggerData  map[string]any
	TestMode     bool
}

// ExecutionClient calls the downstream execution service. Non-success
// answers are returned as *DownstreamError.
type ExecutionClient interface {
	PollAutomation(ctx context.Context, automationID string) (PollOutcome, error)
	ProcessEvents(ctx context.Context, userID string, serviceName string) (ProcessOutcome, error)
	ExecuteAutomation(ctx context.Context, req ManualExecution) (ExecutionOutcome, error)
}

type FollowUpKind string

const (
	FollowUpHealthBackfill       FollowUpKind = "health_backfill"
	FollowUpWebhookSubscriptions FollowUpKind = "webhook_subscriptions"
)

type FollowUpRequest struct {
	Kind          FollowUpKind
	UserID        string
	ProviderID    string
	IntegrationID string
	Days          int
	Collections   []string
}

// FollowUpScheduler queues post-connect work. Schedule must not block on
// the work itself.
type FollowUpScheduler interface {
	Schedule(ctx context.Context, req FollowUpRequest) error
}

type StoreProvider interface {
	IntegrationStore() IntegrationStore
	PendingConnectStore() PendingConnectStore
	AutomationStore() AutomationStore
	RequestStore() RequestStore
	CancellationStore() CancellationStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// IntegrationService is the full surface consumed by the command, query,
// and HTTP layers.
type IntegrationService interface {
	InitiateConnect(ctx context.Context, req ConnectRequest) (ConnectResponse, error)
	PollForCompletion(ctx context.Context, req CompletionRequest) (Integration, error)
	ConnectStatus(ctx context.Context, req CompletionRequest) (ConnectAttempt, error)
	CancelConnect(ctx context.Context, req CompletionRequest) (ConnectAttempt, error)
	CompleteConnect(ctx context.Context, req CallbackRequest) (Integration, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (Integration, error)
	Refresh(ctx context.Context, req RefreshRequest) (Integration, error)
	Reconnect(ctx context.Context, req ReconnectRequest) (ConnectResponse, error)
	Disconnect(ctx context.Context, req DisconnectRequest) error
	ListIntegrations(ctx context.Context, userID string) ([]Integration, error)
	ListProviders() []ProviderListing
	TriggerAutomation(ctx context.Context, req TriggerRequest) (TriggerResult, error)
	CreateRequest(ctx context.Context, in CreateRequestInput) (AsyncRequest, error)
	RequestStatus(ctx context.Context, userID string, requestID string) (AsyncRequest, error)
	UpdateRequest(ctx context.Context, update RequestUpdate) (AsyncRequest, error)
	RequestCancellation(ctx context.Context, userID string, requestID string, metadata map[string]any) (CancellationRequest, error)
	IsCancelled(ctx context.Context, userID string, requestID string) (bool, error)
}
