package core

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// ProviderDescriptor is the presentation metadata shown when listing
// providers.
type ProviderDescriptor struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
}

// ProviderFollowUp describes work scheduled after a successful exchange.
type ProviderFollowUp struct {
	BackfillDays       int      `json:"backfill_days,omitempty"`
	WebhookCollections []string `json:"webhook_collections,omitempty"`
}

type ProviderConfig struct {
	Key              string
	URLName          string
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	Scopes           []string
	RedirectURI      string
	UsePKCE          bool
	UseBasicAuth     bool
	CustomHeaders    map[string]string
	AdditionalParams map[string]string
	Aliases          []string
	Descriptor       ProviderDescriptor
	FollowUp         ProviderFollowUp
}

// Configured reports whether deployment credentials are present.
func (c ProviderConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

func (c ProviderConfig) clone() ProviderConfig {
	c.Scopes = append([]string(nil), c.Scopes...)
	c.Aliases = append([]string(nil), c.Aliases...)
	c.CustomHeaders = maps.Clone(c.CustomHeaders)
	c.AdditionalParams = maps.Clone(c.AdditionalParams)
	c.FollowUp.WebhookCollections = append([]string(nil), c.FollowUp.WebhookCollections...)
	return c
}

// ProviderRegistry is an immutable name-to-configuration table. Overlays
// return a new registry.
type ProviderRegistry struct {
	configs map[string]ProviderConfig
	aliases map[string]string
	keys    []string
}

func NewProviderRegistry(configs ...ProviderConfig) (*ProviderRegistry, error) {
	registry := &ProviderRegistry{
		configs: make(map[string]ProviderConfig, len(configs)),
		aliases: make(map[string]string, len(configs)),
	}
	for _, cfg := range configs {
		key := NormalizeProviderName(cfg.Key)
		if key == "" {
			return nil, fmt.Errorf("core: provider key is required")
		}
		if _, exists := registry.configs[key]; exists {
			return nil, fmt.Errorf("core: provider already registered: %s", key)
		}
		cfg = cfg.clone()
		cfg.Key = key
		if strings.TrimSpace(cfg.URLName) == "" {
			cfg.URLName = strings.ReplaceAll(key, "_", "-")
		}
		registry.configs[key] = cfg
		registry.keys = append(registry.keys, key)
	}
	for _, key := range registry.keys {
		if err := registry.bindAlias(key, key); err != nil {
			return nil, err
		}
	}
	for _, key := range registry.keys {
		cfg := registry.configs[key]
		for _, alias := range append([]string{cfg.URLName}, cfg.Aliases...) {
			if err := registry.bindAlias(alias, key); err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(registry.keys)
	return registry, nil
}

func (r *ProviderRegistry) bindAlias(alias string, key string) error {
	normalized := NormalizeProviderName(alias)
	if normalized == "" {
		return nil
	}
	if existing, ok := r.aliases[normalized]; ok && existing != key {
		return fmt.Errorf("core: provider alias %q is claimed by %s and %s", alias, existing, key)
	}
	r.aliases[normalized] = key
	return nil
}

// WithCredentials returns a copy of the registry with deployment
// credentials applied. Keys are resolved through aliases.
func (r *ProviderRegistry) WithCredentials(credentials map[string]ProviderCredentials) (*ProviderRegistry, error) {
	configs := make([]ProviderConfig, 0, len(r.keys))
	overlay := make(map[string]ProviderCredentials, len(credentials))
	for name, creds := range credentials {
		key, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		overlay[key] = creds
	}
	for _, key := range r.keys {
		cfg := r.configs[key].clone()
		if creds, ok := overlay[key]; ok {
			if value := strings.TrimSpace(creds.ClientID); value != "" {
				cfg.ClientID = value
			}
			if value := strings.TrimSpace(creds.ClientSecret); value != "" {
				cfg.ClientSecret = value
			}
			if value := strings.TrimSpace(creds.RedirectURI); value != "" {
				cfg.RedirectURI = value
			}
			if len(creds.Scopes) > 0 {
				cfg.Scopes = append([]string(nil), creds.Scopes...)
			}
		}
		configs = append(configs, cfg)
	}
	return NewProviderRegistry(configs...)
}

// Resolve maps any accepted spelling of a provider to its canonical key.
func (r *ProviderRegistry) Resolve(name string) (string, error) {
	normalized := NormalizeProviderName(name)
	if r == nil || normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	key, ok := r.aliases[normalized]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return key, nil
}

func (r *ProviderRegistry) Config(name string) (ProviderConfig, error) {
	key, err := r.Resolve(name)
	if err != nil {
		return ProviderConfig{}, err
	}
	return r.configs[key].clone(), nil
}

func (r *ProviderRegistry) Descriptor(name string) (ProviderDescriptor, error) {
	cfg, err := r.Config(name)
	if err != nil {
		return ProviderDescriptor{}, err
	}
	return cfg.Descriptor, nil
}

// List returns every known provider ordered by key.
func (r *ProviderRegistry) List() []ProviderConfig {
	if r == nil {
		return nil
	}
	out := make([]ProviderConfig, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, r.configs[key].clone())
	}
	return out
}

// NormalizeProviderName lowercases a name and folds hyphens, spaces, and
// dots into single underscores.
func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var builder strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch r {
		case '-', ' ', '.', '_':
			if !lastUnderscore && builder.Len() > 0 {
				builder.WriteByte('_')
				lastUnderscore = true
			}
		default:
			builder.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(builder.String(), "_")
}
