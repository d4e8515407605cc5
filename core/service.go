package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service owns the integration lifecycle and exposes the dispatcher and
// tracker built from the same dependencies.
type Service struct {
	observer
	config            Config
	loggerProvider    LoggerProvider
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	exchanger         TokenExchanger
	integrations      IntegrationStore
	attempts          PendingConnectStore
	automations       AutomationStore
	requests          RequestStore
	cancellations     CancellationStore
	executionClient   ExecutionClient
	followUps         FollowUpScheduler
	now               func() time.Time
	sleep             Sleeper
	dispatcher        *Dispatcher
	tracker           *Tracker
}

type ServiceDependencies struct {
	Logger              Logger
	LoggerProvider      LoggerProvider
	MetricsRecorder     MetricsRecorder
	ErrorMapper         ErrorMapper
	PersistenceClient   any
	RepositoryFactory   any
	ConfigProvider      ConfigProvider
	OptionsResolver     OptionsResolver
	Registry            Registry
	TokenExchanger      TokenExchanger
	IntegrationStore    IntegrationStore
	PendingConnectStore PendingConnectStore
	AutomationStore     AutomationStore
	RequestStore        RequestStore
	CancellationStore   CancellationStore
	ExecutionClient     ExecutionClient
	FollowUpScheduler   FollowUpScheduler
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if builder.sleeper == nil {
		builder.sleeper = sleepContext
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.registry == nil {
		empty, _ := NewProviderRegistry()
		builder.registry = empty
	}
	if overlayable, ok := builder.registry.(*ProviderRegistry); ok && len(finalConfig.Providers) > 0 {
		overlaid, overlayErr := overlayable.WithCredentials(finalConfig.Providers)
		if overlayErr != nil {
			return nil, mapBuildError(builder.errorMapper, overlayErr)
		}
		builder.registry = overlaid
	}

	if err := builder.resolveStores(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.pendingConnectStore == nil {
		builder.pendingConnectStore = NewMemoryPendingConnectStore()
	}

	obs := observer{logger: logger, metricsRecorder: builder.metricsRecorder}
	svc := &Service{
		observer:          obs,
		config:            finalConfig,
		loggerProvider:    provider,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		exchanger:         builder.exchanger,
		integrations:      builder.integrationStore,
		attempts:          builder.pendingConnectStore,
		automations:       builder.automationStore,
		requests:          builder.requestStore,
		cancellations:     builder.cancellationStore,
		executionClient:   builder.executionClient,
		followUps:         builder.followUps,
		now:               builder.clock,
		sleep:             builder.sleeper,
	}
	if builder.requestStore != nil {
		svc.tracker = newTracker(obs, builder.requestStore, builder.cancellationStore, finalConfig.Tracker, builder.clock)
	}
	svc.dispatcher = newDispatcher(obs, DispatcherDependencies{
		Automations: builder.automationStore,
		Execution:   builder.executionClient,
		Tracker:     svc.tracker,
		Config:      finalConfig.Dispatcher,
		Clock:       builder.clock,
		Sleeper:     builder.sleeper,
	})
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (b *serviceBuilder) resolveStores() error {
	if b.repositoryFactory == nil {
		return nil
	}
	var provider StoreProvider
	switch factory := b.repositoryFactory.(type) {
	case RepositoryStoreFactory:
		built, err := factory.BuildStores(b.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	case StoreProvider:
		provider = factory
	default:
		return fmt.Errorf("core: repository factory %T does not provide stores", b.repositoryFactory)
	}
	if provider == nil {
		return nil
	}
	if b.integrationStore == nil {
		b.integrationStore = provider.IntegrationStore()
	}
	if b.pendingConnectStore == nil {
		b.pendingConnectStore = provider.PendingConnectStore()
	}
	if b.automationStore == nil {
		b.automationStore = provider.AutomationStore()
	}
	if b.requestStore == nil {
		b.requestStore = provider.RequestStore()
	}
	if b.cancellationStore == nil {
		b.cancellationStore = provider.CancellationStore()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Dispatcher returns the automation trigger dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

// Tracker returns nil when no request store is configured.
func (s *Service) Tracker() *Tracker {
	if s == nil {
		return nil
	}
	return s.tracker
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:              s.logger,
		LoggerProvider:      s.loggerProvider,
		MetricsRecorder:     s.metricsRecorder,
		ErrorMapper:         s.errorMapper,
		PersistenceClient:   s.persistenceClient,
		RepositoryFactory:   s.repositoryFactory,
		ConfigProvider:      s.configProvider,
		OptionsResolver:     s.optionsResolver,
		Registry:            s.registry,
		TokenExchanger:      s.exchanger,
		IntegrationStore:    s.integrations,
		PendingConnectStore: s.attempts,
		AutomationStore:     s.automations,
		RequestStore:        s.requests,
		CancellationStore:   s.cancellations,
		ExecutionClient:     s.executionClient,
		FollowUpScheduler:   s.followUps,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
