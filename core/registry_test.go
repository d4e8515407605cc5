package core

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *ProviderRegistry {
	t.Helper()
	registry, err := NewProviderRegistry(
		ProviderConfig{
			Key:              "google_calendar",
			ClientID:         "google-client",
			ClientSecret:     "google-secret",
			AuthorizationURL: "https://accounts.example/auth",
			TokenURL:         "https://accounts.example/token",
			Scopes:           []string{"calendar.events"},
			UsePKCE:          true,
			Aliases:          []string{"google-calendar"},
			Descriptor:       ProviderDescriptor{DisplayName: "Google Calendar", Category: "Calendar"},
		},
		ProviderConfig{
			Key:              "notion",
			ClientID:         "notion-client",
			ClientSecret:     "notion-secret",
			AuthorizationURL: "https://notion.example/auth",
			TokenURL:         "https://notion.example/token",
			UseBasicAuth:     true,
		},
		ProviderConfig{
			Key:              "oura",
			ClientID:         "oura-client",
			AuthorizationURL: "https://oura.example/auth",
			TokenURL:         "https://oura.example/token",
			UseBasicAuth:     true,
			FollowUp:         ProviderFollowUp{BackfillDays: 7},
		},
		ProviderConfig{
			Key:              "todoist",
			AuthorizationURL: "https://todoist.example/auth",
			TokenURL:         "https://todoist.example/token",
		},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func TestProviderRegistry_ResolveNormalizesAliases(t *testing.T) {
	registry := testRegistry(t)
	for _, name := range []string{"google_calendar", "google-calendar", "Google Calendar", " GOOGLE.CALENDAR "} {
		key, err := registry.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %q: %v", name, err)
		}
		if key != "google_calendar" {
			t.Fatalf("expected google_calendar for %q, got %q", name, key)
		}
	}
	if _, err := registry.Resolve("unknown"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}

func TestProviderRegistry_ListDeterministicOrder(t *testing.T) {
	listed := testRegistry(t).List()
	got := []string{}
	for _, cfg := range listed {
		got = append(got, cfg.Key)
	}
	want := []string{"google_calendar", "notion", "oura", "todoist"}
	if len(got) != len(want) {
		t.Fatalf("unexpected providers %v", got)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Fatalf("unexpected ordering at index %d: got %v want %v", idx, got, want)
		}
	}
}

func TestProviderRegistry_DuplicateKeyRejected(t *testing.T) {
	_, err := NewProviderRegistry(ProviderConfig{Key: "slack"}, ProviderConfig{Key: "Slack"})
	if err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	_, err = NewProviderRegistry(
		ProviderConfig{Key: "outlook_mail", Aliases: []string{"mail"}},
		ProviderConfig{Key: "gmail", Aliases: []string{"mail"}},
	)
	if err == nil {
		t.Fatalf("expected alias collision to fail")
	}
}

func TestProviderRegistry_ConfigIsolatedFromCallers(t *testing.T) {
	registry := testRegistry(t)
	cfg, err := registry.Config("google-calendar")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Scopes[0] = "mutated"
	again, _ := registry.Config("google_calendar")
	if again.Scopes[0] != "calendar.events" {
		t.Fatalf("expected registry to be immutable, got %v", again.Scopes)
	}
	if again.URLName != "google-calendar" {
		t.Fatalf("expected derived url name, got %q", again.URLName)
	}
}

func TestProviderRegistry_WithCredentialsOverlay(t *testing.T) {
	registry := testRegistry(t)
	overlaid, err := registry.WithCredentials(map[string]ProviderCredentials{
		"todoist": {ClientID: "todo-client", ClientSecret: "todo-secret", Scopes: []string{"data:read_write"}},
	})
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	cfg, _ := overlaid.Config("todoist")
	if !cfg.Configured() || cfg.ClientSecret != "todo-secret" {
		t.Fatalf("expected overlay credentials, got %#v", cfg)
	}
	original, _ := registry.Config("todoist")
	if original.Configured() {
		t.Fatalf("expected original registry untouched")
	}
	if _, err := registry.WithCredentials(map[string]ProviderCredentials{"missing": {ClientID: "x"}}); err == nil {
		t.Fatalf("expected unknown provider overlay to fail")
	}
}

func TestNormalizeProviderName(t *testing.T) {
	cases := map[string]string{
		"Google-Calendar":  "google_calendar",
		"outlook  mail":    "outlook_mail",
		"microsoft.teams_": "microsoft_teams",
		"":                 "",
	}
	for input, want := range cases {
		if got := NormalizeProviderName(input); got != want {
			t.Fatalf("normalize %q: got %q want %q", input, got, want)
		}
	}
}
