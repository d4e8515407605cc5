package common

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	AuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL = "https://oauth2.googleapis.com/token"

	ScopeUserInfoEmail  = "https://www.googleapis.com/auth/userinfo.email"
	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events"
)

// OfflineParams asks Google for a refresh token on every consent.
func OfflineParams() map[string]string {
	return map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	}
}

func WithIdentityScopes(scopes []string, include bool) []string {
	normalized := normalizeScopes(scopes)
	if !include {
		return normalized
	}
	return normalizeScopes(append(normalized, ScopeUserInfoEmail))
}

// Provider builds a catalog entry sharing Google's endpoints, offline
// access params, and PKCE.
func Provider(key string, descriptor core.ProviderDescriptor, scopes ...string) core.ProviderConfig {
	return core.ProviderConfig{
		Key:              key,
		AuthorizationURL: AuthURL,
		TokenURL:         TokenURL,
		Scopes:           WithIdentityScopes(scopes, true),
		UsePKCE:          true,
		AdditionalParams: OfflineParams(),
		Descriptor:       descriptor,
	}
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	result := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
