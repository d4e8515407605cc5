package integrations

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/execution"
	"github.com/goliatone/go-integrations/followup"
	"github.com/goliatone/go-integrations/providers"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	"github.com/goliatone/go-integrations/transport"
)

// RuntimeOptions carries the process-level collaborators Compose wires
// together. Every field is optional.
type RuntimeOptions struct {
	// ConfigValues is the raw config tree, usually decoded from a file.
	ConfigValues map[string]any
	// Credentials are overlaid on the provider catalog before config
	// credentials, which win.
	Credentials map[string]core.ProviderCredentials

	// PersistenceClient is a *persistence.Client or *bun.DB. Without one
	// the service runs with in-memory connect attempts only.
	PersistenceClient any
	RequestCache      repositorycache.CacheService

	LoggerProvider glog.LoggerProvider
	Logger         glog.Logger

	// HTTPClient is shared by the token exchanger and the downstream
	// adapters.
	HTTPClient transport.HTTPDoer
	Hooks      *ExtensionHooks

	FollowUpCapacity int
	FollowUpOptions  []followup.RunnerOption

	// CommandRegistry, when set, receives every integration command and
	// query, and the go-command dispatcher is subscribed to the service.
	// The caller owns the registry and initializes it.
	CommandRegistry *command.Registry

	// ServiceOptions are applied last and override anything Compose wires.
	ServiceOptions []Option
}

// Runtime is a composed integration stack.
type Runtime struct {
	Config   Config
	Service  *Service
	Facade   *Facade
	Registry *core.ProviderRegistry
	Stores   *sqlstore.RepositoryFactory
	Worker   *followup.Worker
	Bundles  map[string]any
	// Commands holds the dispatcher subscriptions made for CommandRegistry.
	Commands gocommand.Subscriptions

	loggers gologger.Set
	logger  glog.Logger
}

// Compose resolves configuration and builds the service with its stores,
// execution client and follow-up worker.
func Compose(ctx context.Context, cfg Config, opts RuntimeOptions) (*Runtime, error) {
	loggers := gologger.NewSet(opts.LoggerProvider, opts.Logger)
	provider, logger := loggers.Provider, loggers.Root
	configProvider := core.NewCfgxConfigProvider(core.NewStaticRawConfigLoader(opts.ConfigValues))

	defaults := core.DefaultConfig()
	loaded, err := configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("integrations: load config: %w", err)
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, fmt.Errorf("integrations: resolve config: %w", err)
	}

	registry, err := opts.Hooks.BuildRegistry(opts.Credentials)
	if err != nil {
		return nil, fmt.Errorf("integrations: build provider registry: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: resolved.Dispatcher.RequestTimeout}
	}
	adapter := transport.NewRESTAdapter(httpClient)

	serviceOpts := []Option{
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithConfigProvider(configProvider),
		core.WithRegistry(registry),
		core.WithTokenExchanger(providers.NewOAuth2Exchanger(providers.OAuth2ExchangerConfig{
			HTTPClient: httpClient,
		})),
	}

	rt := &Runtime{Registry: registry, loggers: loggers, logger: logger}

	if opts.PersistenceClient != nil {
		factory := sqlstore.NewRepositoryFactory(sqlstore.WithRequestCache(opts.RequestCache))
		if _, err := factory.BuildStores(opts.PersistenceClient); err != nil {
			return nil, fmt.Errorf("integrations: build stores: %w", err)
		}
		rt.Stores = factory
		serviceOpts = append(serviceOpts, core.WithRepositoryFactory(factory))
	}

	if strings.TrimSpace(resolved.Dispatcher.BaseURL) != "" {
		client, err := execution.NewClient(resolved.Dispatcher, execution.WithAdapter(adapter))
		if err != nil {
			return nil, fmt.Errorf("integrations: build execution client: %w", err)
		}
		serviceOpts = append(serviceOpts, core.WithExecutionClient(client))

		if resolved.FollowUp.Enabled && rt.Stores != nil {
			runnerOpts := append([]followup.RunnerOption{followup.WithLogger(provider, logger)}, opts.FollowUpOptions...)
			worker, err := followup.NewWorker(followup.WorkerDeps{
				Config:    resolved,
				Store:     rt.Stores.IntegrationStore(),
				Registry:  registry,
				Transport: adapter,
				Capacity:  opts.FollowUpCapacity,
			}, runnerOpts...)
			if err != nil {
				return nil, fmt.Errorf("integrations: build follow-up worker: %w", err)
			}
			rt.Worker = worker
			serviceOpts = append(serviceOpts, core.WithFollowUpScheduler(worker.Scheduler))
		}
	}

	serviceOpts = append(serviceOpts, opts.ServiceOptions...)
	svc, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	rt.Service = svc
	rt.Config = svc.Config()

	facade, err := NewFacade(svc)
	if err != nil {
		return nil, err
	}
	rt.Facade = facade

	bundles, err := opts.Hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		return nil, err
	}
	rt.Bundles = bundles

	if opts.CommandRegistry != nil {
		subs, err := gocommand.RegisterIntegrationHandlers(gocommand.NewRegistryAdapter(opts.CommandRegistry), svc)
		if err != nil {
			return nil, fmt.Errorf("integrations: register command handlers: %w", err)
		}
		rt.Commands = subs
	}

	logger.Info("integrations runtime composed",
		"providers", len(registry.List()),
		"persistent", rt.Stores != nil,
		"dispatcher", rt.Config.Dispatcher.BaseURL != "",
		"follow_up", rt.Worker != nil,
		"commands", len(rt.Commands),
	)
	return rt, nil
}

// Start runs background workers until ctx is done. The returned channel
// closes once they have stopped.
func (r *Runtime) Start(ctx context.Context) <-chan struct{} {
	if r == nil || r.Worker == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	r.logger.Info("follow-up worker starting")
	return r.Worker.Start(ctx)
}

// Close releases the command dispatcher subscriptions. It is safe to call
// more than once.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	r.Commands.Unsubscribe()
	r.Commands = nil
}

// Logger returns the runtime's logger for a component such as
// gologger.LoggerHTTP.
func (r *Runtime) Logger(name string) glog.Logger {
	if r == nil {
		return glog.Nop()
	}
	return r.loggers.Named(name)
}
