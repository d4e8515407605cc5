package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderFields are the workspace details promoted to first-class
// integration columns.
type ProviderFields struct {
	BotID         string `json:"bot_id,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	WorkspaceID   string `json:"workspace_id,omitempty"`
	WorkspaceIcon string `json:"workspace_icon,omitempty"`
}

func (f ProviderFields) IsZero() bool {
	return f == ProviderFields{}
}

// Merge fills blank values in f from fallback.
func (f ProviderFields) Merge(fallback ProviderFields) ProviderFields {
	if f.BotID == "" {
		f.BotID = fallback.BotID
	}
	if f.WorkspaceName == "" {
		f.WorkspaceName = fallback.WorkspaceName
	}
	if f.WorkspaceID == "" {
		f.WorkspaceID = fallback.WorkspaceID
	}
	if f.WorkspaceIcon == "" {
		f.WorkspaceIcon = fallback.WorkspaceIcon
	}
	return f
}

// ProviderConfiguration is the provider-specific payload kept alongside an
// integration. Each provider with extra data has its own variant; the rest
// use GenericConfiguration.
type ProviderConfiguration interface {
	ProviderKind() string
	GrantedScopes() []string
	isProviderConfiguration()
}

type NotionConfiguration struct {
	Scopes               []string       `json:"scopes"`
	Owner                map[string]any `json:"owner,omitempty"`
	DuplicatedTemplateID string         `json:"duplicated_template_id,omitempty"`
}

type SlackConfiguration struct {
	Scopes              []string       `json:"scopes"`
	AppID               string         `json:"app_id,omitempty"`
	AuthedUser          map[string]any `json:"authed_user,omitempty"`
	TokenType           string         `json:"token_type,omitempty"`
	IsEnterpriseInstall bool           `json:"is_enterprise_install"`
	Enterprise          map[string]any `json:"enterprise,omitempty"`
}

type FitbitConfiguration struct {
	Scopes               []string `json:"scopes"`
	UserID               string   `json:"user_id,omitempty"`
	WebhookSubscriptions []string `json:"webhook_subscriptions"`
}

type OuraConfiguration struct {
	Scopes []string `json:"scopes"`
	UserID string   `json:"user_id,omitempty"`
}

type GenericConfiguration struct {
	Provider string         `json:"-"`
	Scopes   []string       `json:"scopes"`
	Values   map[string]any `json:"values,omitempty"`
}

func (NotionConfiguration) ProviderKind() string    { return "notion" }
func (SlackConfiguration) ProviderKind() string     { return "slack" }
func (FitbitConfiguration) ProviderKind() string    { return "fitbit" }
func (OuraConfiguration) ProviderKind() string      { return "oura" }
func (c GenericConfiguration) ProviderKind() string { return c.Provider }

func (c NotionConfiguration) GrantedScopes() []string  { return append([]string(nil), c.Scopes...) }
func (c SlackConfiguration) GrantedScopes() []string   { return append([]string(nil), c.Scopes...) }
func (c FitbitConfiguration) GrantedScopes() []string  { return append([]string(nil), c.Scopes...) }
func (c OuraConfiguration) GrantedScopes() []string    { return append([]string(nil), c.Scopes...) }
func (c GenericConfiguration) GrantedScopes() []string { return append([]string(nil), c.Scopes...) }

func (NotionConfiguration) isProviderConfiguration()  {}
func (SlackConfiguration) isProviderConfiguration()   {}
func (FitbitConfiguration) isProviderConfiguration()  {}
func (OuraConfiguration) isProviderConfiguration()    {}
func (GenericConfiguration) isProviderConfiguration() {}

// MapProviderData derives the configuration variant and promoted fields
// from a raw token response. It never fails: missing values stay empty.
func MapProviderData(providerKey string, raw map[string]any, scopes []string) (ProviderConfiguration, ProviderFields) {
	scopes = append([]string(nil), scopes...)
	if scopes == nil {
		scopes = []string{}
	}
	switch NormalizeProviderName(providerKey) {
	case "notion":
		owner, _ := raw["owner"].(map[string]any)
		return NotionConfiguration{
				Scopes:               scopes,
				Owner:                copyNestedMap(owner),
				DuplicatedTemplateID: readString(raw, "duplicated_template_id"),
			}, ProviderFields{
				BotID:         readString(raw, "bot_id"),
				WorkspaceName: readString(raw, "workspace_name"),
				WorkspaceID:   readString(raw, "workspace_id"),
				WorkspaceIcon: readString(raw, "workspace_icon"),
			}
	case "slack":
		team, _ := raw["team"].(map[string]any)
		authedUser, _ := raw["authed_user"].(map[string]any)
		enterprise, _ := raw["enterprise"].(map[string]any)
		isEnterprise, _ := raw["is_enterprise_install"].(bool)
		return SlackConfiguration{
				Scopes:              scopes,
				AppID:               readString(raw, "app_id"),
				AuthedUser:          copyNestedMap(authedUser),
				TokenType:           readString(raw, "token_type"),
				IsEnterpriseInstall: isEnterprise,
				Enterprise:          copyNestedMap(enterprise),
			}, ProviderFields{
				BotID:         readString(raw, "bot_user_id"),
				WorkspaceName: readString(team, "name"),
				WorkspaceID:   readString(team, "id"),
			}
	case "fitbit":
		return FitbitConfiguration{
			Scopes:               scopes,
			UserID:               readString(raw, "user_id"),
			WebhookSubscriptions: []string{},
		}, ProviderFields{}
	case "oura":
		return OuraConfiguration{
			Scopes: scopes,
			UserID: readString(raw, "user_id"),
		}, ProviderFields{}
	default:
		return GenericConfiguration{
			Provider: NormalizeProviderName(providerKey),
			Scopes:   scopes,
		}, ProviderFields{}
	}
}

// EncodeConfiguration renders a configuration for a JSON column.
func EncodeConfiguration(cfg ProviderConfiguration) (map[string]any, error) {
	if cfg == nil {
		return map[string]any{}, nil
	}
	if generic, ok := cfg.(GenericConfiguration); ok {
		out := copyAnyMap(generic.Values)
		out["scopes"] = stringsToAny(generic.Scopes)
		return out, nil
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("core: encode %s configuration: %w", cfg.ProviderKind(), err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("core: encode %s configuration: %w", cfg.ProviderKind(), err)
	}
	return out, nil
}

// DecodeConfiguration rebuilds the variant selected by providerKey.
func DecodeConfiguration(providerKey string, raw map[string]any) (ProviderConfiguration, error) {
	key := NormalizeProviderName(providerKey)
	var target ProviderConfiguration
	switch key {
	case "notion":
		target = &NotionConfiguration{}
	case "slack":
		target = &SlackConfiguration{}
	case "fitbit":
		target = &FitbitConfiguration{}
	case "oura":
		target = &OuraConfiguration{}
	default:
		values := copyAnyMap(raw)
		delete(values, "scopes")
		if len(values) == 0 {
			values = nil
		}
		return GenericConfiguration{
			Provider: key,
			Scopes:   readStringSlice(raw, "scopes"),
			Values:   values,
		}, nil
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("core: decode %s configuration: %w", key, err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("core: decode %s configuration: %w", key, err)
	}
	switch typed := target.(type) {
	case *NotionConfiguration:
		return *typed, nil
	case *SlackConfiguration:
		return *typed, nil
	case *FitbitConfiguration:
		if typed.WebhookSubscriptions == nil {
			typed.WebhookSubscriptions = []string{}
		}
		return *typed, nil
	case *OuraConfiguration:
		return *typed, nil
	}
	return target, nil
}

// SplitScope parses a space or comma separated scope string.
func SplitScope(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

func readString(source map[string]any, key string) string {
	if source == nil {
		return ""
	}
	switch typed := source[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func readStringSlice(source map[string]any, key string) []string {
	out := []string{}
	switch typed := source[key].(type) {
	case []string:
		out = append(out, typed...)
	case []any:
		for _, item := range typed {
			if value, ok := item.(string); ok && strings.TrimSpace(value) != "" {
				out = append(out, strings.TrimSpace(value))
			}
		}
	case string:
		out = SplitScope(typed)
	}
	return out
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}

func copyNestedMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return nil
	}
	out := make(map[string]any, len(source))
	for key, value := range source {
		if nested, ok := value.(map[string]any); ok {
			out[key] = copyNestedMap(nested)
			continue
		}
		out[key] = value
	}
	return out
}
