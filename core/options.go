package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type serviceBuilder struct {
	runtimeConfig       Config
	logger              Logger
	loggerProvider      LoggerProvider
	metricsRecorder     MetricsRecorder
	errorMapper         ErrorMapper
	persistenceClient   any
	repositoryFactory   any
	configProvider      ConfigProvider
	optionsResolver     OptionsResolver
	registry            Registry
	exchanger           TokenExchanger
	integrationStore    IntegrationStore
	pendingConnectStore PendingConnectStore
	automationStore     AutomationStore
	requestStore        RequestStore
	cancellationStore   CancellationStore
	executionClient     ExecutionClient
	followUps           FollowUpScheduler
	clock               func() time.Time
	sleeper             Sleeper
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts a RepositoryStoreFactory or a StoreProvider.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithTokenExchanger(exchanger TokenExchanger) Option {
	return func(b *serviceBuilder) {
		b.exchanger = exchanger
	}
}

func WithIntegrationStore(store IntegrationStore) Option {
	return func(b *serviceBuilder) {
		b.integrationStore = store
	}
}

func WithPendingConnectStore(store PendingConnectStore) Option {
	return func(b *serviceBuilder) {
		b.pendingConnectStore = store
	}
}

func WithAutomationStore(store AutomationStore) Option {
	return func(b *serviceBuilder) {
		b.automationStore = store
	}
}

func WithRequestStore(store RequestStore) Option {
	return func(b *serviceBuilder) {
		b.requestStore = store
	}
}

func WithCancellationStore(store CancellationStore) Option {
	return func(b *serviceBuilder) {
		b.cancellationStore = store
	}
}

func WithExecutionClient(client ExecutionClient) Option {
	return func(b *serviceBuilder) {
		b.executionClient = client
	}
}

func WithFollowUpScheduler(scheduler FollowUpScheduler) Option {
	return func(b *serviceBuilder) {
		b.followUps = scheduler
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithSleeper(sleeper Sleeper) Option {
	return func(b *serviceBuilder) {
		b.sleeper = sleeper
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("integrations", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           func() time.Time { return time.Now().UTC() },
		sleeper:         sleepContext,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader serves a fixed map, typically decoded from a file
// or flags by the caller.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config, and runtime overrides in
// that order of precedence.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	// loaded already carries the defaults, so its switch is authoritative
	// even when false.
	setFollowUpEnabled(loadedLayer, loaded.FollowUp.Enabled)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	oauth := map[string]any{}
	putString(oauth, "site_url", cfg.OAuth.SiteURL, includeZero)
	putString(oauth, "callback_path", cfg.OAuth.CallbackPath, includeZero)
	putDuration(oauth, "completion_timeout", cfg.OAuth.CompletionTimeout, includeZero)
	putDuration(oauth, "completion_poll_interval", cfg.OAuth.CompletionPollInterval, includeZero)
	putDuration(oauth, "pending_attempt_ttl", cfg.OAuth.PendingAttemptTTL, includeZero)
	putSection(layer, "oauth", oauth)

	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for name, creds := range cfg.Providers {
			providers[name] = map[string]any{
				"client_id":     creds.ClientID,
				"client_secret": creds.ClientSecret,
				"redirect_uri":  creds.RedirectURI,
				"scopes":        append([]string(nil), creds.Scopes...),
			}
		}
		layer["providers"] = providers
	}

	dispatcher := map[string]any{}
	putString(dispatcher, "base_url", cfg.Dispatcher.BaseURL, includeZero)
	putString(dispatcher, "poll_path", cfg.Dispatcher.PollPath, includeZero)
	putString(dispatcher, "process_path", cfg.Dispatcher.ProcessPath, includeZero)
	putString(dispatcher, "manual_path", cfg.Dispatcher.ManualPath, includeZero)
	putString(dispatcher, "service_token", cfg.Dispatcher.ServiceToken, includeZero)
	putDuration(dispatcher, "settle_delay", cfg.Dispatcher.SettleDelay, includeZero)
	putDuration(dispatcher, "request_timeout", cfg.Dispatcher.RequestTimeout, includeZero)
	putString(dispatcher, "origin", cfg.Dispatcher.Origin, includeZero)
	putSection(layer, "dispatcher", dispatcher)

	tracker := map[string]any{}
	putDuration(tracker, "status_log_interval", cfg.Tracker.StatusLogInterval, includeZero)
	putDuration(tracker, "status_cache_ttl", cfg.Tracker.StatusCacheTTL, includeZero)
	putSection(layer, "tracker", tracker)

	followUp := map[string]any{}
	if includeZero || cfg.FollowUp.Enabled {
		followUp["enabled"] = cfg.FollowUp.Enabled
	}
	if includeZero || cfg.FollowUp.BackfillDays > 0 {
		followUp["backfill_days"] = cfg.FollowUp.BackfillDays
	}
	putString(followUp, "health_sync_path", cfg.FollowUp.HealthSyncPath, includeZero)
	putSection(layer, "follow_up", followUp)
	return layer
}

func setFollowUpEnabled(layer map[string]any, enabled bool) {
	section, _ := layer["follow_up"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	section["enabled"] = enabled
	layer["follow_up"] = section
}

func putString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}

func putDuration(target map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
