package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultCompletionTimeout      = 10 * time.Minute
	defaultCompletionPollInterval = 2 * time.Second
	defaultPendingAttemptTTL      = 15 * time.Minute
	defaultSettleDelay            = 2 * time.Second
	defaultDispatchTimeout        = 60 * time.Second
	defaultStatusLogInterval      = 5 * time.Second
	defaultBackfillDays           = 7
)

type OAuthConfig struct {
	SiteURL                string        `koanf:"site_url" mapstructure:"site_url"`
	CallbackPath           string        `koanf:"callback_path" mapstructure:"callback_path"`
	CompletionTimeout      time.Duration `koanf:"completion_timeout" mapstructure:"completion_timeout"`
	CompletionPollInterval time.Duration `koanf:"completion_poll_interval" mapstructure:"completion_poll_interval"`
	PendingAttemptTTL      time.Duration `koanf:"pending_attempt_ttl" mapstructure:"pending_attempt_ttl"`
}

// ProviderCredentials overlays deployment secrets on top of the static
// provider catalog.
type ProviderCredentials struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type DispatcherConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	PollPath       string        `koanf:"poll_path" mapstructure:"poll_path"`
	ProcessPath    string        `koanf:"process_path" mapstructure:"process_path"`
	ManualPath     string        `koanf:"manual_path" mapstructure:"manual_path"`
	ServiceToken   string        `koanf:"service_token" mapstructure:"service_token"`
	SettleDelay    time.Duration `koanf:"settle_delay" mapstructure:"settle_delay"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	Origin         string        `koanf:"origin" mapstructure:"origin"`
}

type TrackerConfig struct {
	StatusLogInterval time.Duration `koanf:"status_log_interval" mapstructure:"status_log_interval"`
	StatusCacheTTL    time.Duration `koanf:"status_cache_ttl" mapstructure:"status_cache_ttl"`
}

type FollowUpConfig struct {
	Enabled        bool   `koanf:"enabled" mapstructure:"enabled"`
	BackfillDays   int    `koanf:"backfill_days" mapstructure:"backfill_days"`
	HealthSyncPath string `koanf:"health_sync_path" mapstructure:"health_sync_path"`
}

type Config struct {
	ServiceName string                         `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig                    `koanf:"oauth" mapstructure:"oauth"`
	Providers   map[string]ProviderCredentials `koanf:"providers" mapstructure:"providers"`
	Dispatcher  DispatcherConfig               `koanf:"dispatcher" mapstructure:"dispatcher"`
	Tracker     TrackerConfig                  `koanf:"tracker" mapstructure:"tracker"`
	FollowUp    FollowUpConfig                 `koanf:"follow_up" mapstructure:"follow_up"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		OAuth: OAuthConfig{
			SiteURL:                "http://localhost:3000",
			CallbackPath:           "/oauth/{provider}/web-callback",
			CompletionTimeout:      defaultCompletionTimeout,
			CompletionPollInterval: defaultCompletionPollInterval,
			PendingAttemptTTL:      defaultPendingAttemptTTL,
		},
		Providers: map[string]ProviderCredentials{},
		Dispatcher: DispatcherConfig{
			PollPath:       "/functions/v1/scheduler-runner/polling",
			ProcessPath:    "/functions/v1/event-processor/user",
			ManualPath:     "/functions/v1/script-executor/manual",
			SettleDelay:    defaultSettleDelay,
			RequestTimeout: defaultDispatchTimeout,
			Origin:         "web_ui",
		},
		Tracker: TrackerConfig{
			StatusLogInterval: defaultStatusLogInterval,
			StatusCacheTTL:    time.Second,
		},
		FollowUp: FollowUpConfig{
			Enabled:        true,
			BackfillDays:   defaultBackfillDays,
			HealthSyncPath: "/functions/v1/health-data-sync",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.CompletionTimeout < 0 || c.OAuth.CompletionPollInterval < 0 || c.OAuth.PendingAttemptTTL < 0 {
		return fmt.Errorf("core: oauth durations must not be negative")
	}
	if c.OAuth.PendingAttemptTTL > 0 && c.OAuth.CompletionTimeout > c.OAuth.PendingAttemptTTL {
		return fmt.Errorf("core: oauth pending_attempt_ttl must cover completion_timeout")
	}
	if c.Dispatcher.SettleDelay < 0 || c.Dispatcher.RequestTimeout < 0 {
		return fmt.Errorf("core: dispatcher durations must not be negative")
	}
	if c.FollowUp.BackfillDays < 0 {
		return fmt.Errorf("core: follow_up backfill_days must not be negative")
	}
	for key := range c.Providers {
		if NormalizeProviderName(key) == "" {
			return fmt.Errorf("core: provider credentials key %q is invalid", key)
		}
	}
	return nil
}

// CallbackURL renders the default redirect URI for a provider url name.
func (c OAuthConfig) CallbackURL(urlName string) string {
	path := strings.TrimSpace(c.CallbackPath)
	if path == "" {
		path = "/oauth/{provider}/web-callback"
	}
	path = strings.ReplaceAll(path, "{provider}", strings.TrimSpace(urlName))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(strings.TrimSpace(c.SiteURL), "/") + path
}

func (c OAuthConfig) completionTimeout() time.Duration {
	if c.CompletionTimeout <= 0 {
		return defaultCompletionTimeout
	}
	return c.CompletionTimeout
}

func (c OAuthConfig) completionPollInterval() time.Duration {
	if c.CompletionPollInterval <= 0 {
		return defaultCompletionPollInterval
	}
	return c.CompletionPollInterval
}

func (c OAuthConfig) pendingAttemptTTL() time.Duration {
	ttl := c.PendingAttemptTTL
	if ttl <= 0 {
		ttl = defaultPendingAttemptTTL
	}
	if timeout := c.completionTimeout(); ttl < timeout {
		ttl = timeout
	}
	return ttl
}
