package providers

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/calendar"
	"github.com/goliatone/go-integrations/providers/google/docs"
	"github.com/goliatone/go-integrations/providers/google/gmail"
	"github.com/goliatone/go-integrations/providers/google/meet"
	"github.com/goliatone/go-integrations/providers/google/sheets"
	"github.com/goliatone/go-integrations/providers/microsoft"
)

const (
	OuraKey    = "oura"
	FitbitKey  = "fitbit"
	SlackKey   = "slack"
	NotionKey  = "notion"
	TodoistKey = "todoist"
	MyChartKey = "mychart"

	healthBackfillDays = 7
	myChartAudience    = "https://fhir.epic.com/interconnect-fhir-oauth/api/FHIR/R4/"
)

// FitbitWebhookCollections are subscribed after a Fitbit connect.
var FitbitWebhookCollections = []string{"activities", "sleep", "body", "foods"}

// DefaultCatalog returns every supported provider without credentials.
// Credentials are applied with core.ProviderRegistry.WithCredentials.
func DefaultCatalog() []core.ProviderConfig {
	catalog := []core.ProviderConfig{
		{
			Key:              OuraKey,
			AuthorizationURL: "https://cloud.ouraring.com/oauth/authorize",
			TokenURL:         "https://api.ouraring.com/oauth/token",
			Scopes:           []string{"email", "personal", "daily", "heartrate", "workout", "tag", "session", "spo2", "stress"},
			UseBasicAuth:     true,
			Descriptor: core.ProviderDescriptor{
				DisplayName: "Oura",
				Description: "Connect your Oura Ring for sleep, activity, and readiness insights",
				Category:    "Health and Wellness",
				Icon:        "activity",
			},
			FollowUp: core.ProviderFollowUp{BackfillDays: healthBackfillDays},
		},
		{
			Key:              FitbitKey,
			AuthorizationURL: "https://www.fitbit.com/oauth2/authorize",
			TokenURL:         "https://api.fitbit.com/oauth2/token",
			Scopes:           []string{"activity", "heartrate", "location", "nutrition", "profile", "settings", "sleep", "social", "weight"},
			UseBasicAuth:     true,
			Descriptor: core.ProviderDescriptor{
				DisplayName: "Fitbit",
				Description: "Sync your Fitbit data for comprehensive health tracking",
				Category:    "Health and Wellness",
				Icon:        "activity",
			},
			FollowUp: core.ProviderFollowUp{
				BackfillDays:       healthBackfillDays,
				WebhookCollections: append([]string(nil), FitbitWebhookCollections...),
			},
		},
		{
			Key:              SlackKey,
			AuthorizationURL: "https://slack.com/oauth/v2/authorize",
			TokenURL:         "https://slack.com/api/oauth.v2.access",
			Scopes: []string{
				"assistant:write", "channels:history", "channels:read", "chat:write", "chat:write.public",
				"files:read", "files:write", "groups:history", "groups:read", "groups:write",
				"im:history", "im:read", "im:write", "mpim:history", "mpim:read", "mpim:write",
				"team:read", "users:read", "users:read.email", "reactions:read", "reactions:write",
				"channels:join", "channels:manage", "channels:write.topic", "groups:write.topic",
			},
			Descriptor: core.ProviderDescriptor{
				DisplayName: "Slack",
				Description: "Send messages and interact with your Slack workspace",
				Category:    "Team Collaboration",
				Icon:        "message-square",
			},
		},
		{
			Key:              NotionKey,
			AuthorizationURL: "https://api.notion.com/v1/oauth/authorize",
			TokenURL:         "https://api.notion.com/v1/oauth/token",
			UseBasicAuth:     true,
			AdditionalParams: map[string]string{"owner": "user"},
			Descriptor: core.ProviderDescriptor{
				DisplayName: "Notion",
				Description: "Access your Notion workspace and pages",
				Category:    "Task Management",
				Icon:        "book",
			},
		},
		{
			Key:              TodoistKey,
			AuthorizationURL: "https://todoist.com/oauth/authorize",
			TokenURL:         "https://todoist.com/oauth/access_token",
			Scopes:           []string{"data:read_write"},
			Descriptor: core.ProviderDescriptor{
				DisplayName: "Todoist",
				Description: "Manage your Todoist tasks and projects",
				Category:    "Task Management",
				Icon:        "check-square",
			},
		},
		{
			Key:              MyChartKey,
			AuthorizationURL: "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/authorize",
			TokenURL:         "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/token",
			Scopes:           myChartScopes(),
			AdditionalParams: map[string]string{"aud": myChartAudience},
			Aliases:          []string{"my-chart"},
			Descriptor: core.ProviderDescriptor{
				DisplayName: "MyChart",
				Description: "Access your Epic MyChart health records and medical data",
				Category:    "Health and Wellness",
				Icon:        "activity",
			},
		},
		calendar.Config(),
		gmail.Config(),
		docs.Config(),
		sheets.Config(),
		meet.Config(),
	}
	return append(catalog, microsoft.Providers()...)
}

// NewRegistry builds the default catalog registry with credentials applied.
func NewRegistry(credentials map[string]core.ProviderCredentials) (*core.ProviderRegistry, error) {
	registry, err := core.NewProviderRegistry(DefaultCatalog()...)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return registry, nil
	}
	return registry.WithCredentials(credentials)
}

// credentialEnv names the environment variables holding each provider's
// client credentials. Google and Microsoft apps are shared across products.
var credentialEnv = map[string][2]string{
	OuraKey:                      {"OURA_CLIENT_ID", "OURA_CLIENT_SECRET"},
	FitbitKey:                    {"FITBIT_CLIENT_ID_WEB", "FITBIT_CLIENT_SECRET_WEB"},
	SlackKey:                     {"SLACK_CLIENT_ID", "SLACK_CLIENT_SECRET"},
	NotionKey:                    {"NOTION_CLIENT_ID", "NOTION_CLIENT_SECRET"},
	TodoistKey:                   {"TODOIST_CLIENT_ID_WEB", "TODOIST_CLIENT_SECRET_WEB"},
	MyChartKey:                   {"MYCHART_CLIENT_ID", "MYCHART_CLIENT_SECRET"},
	calendar.ProviderKey:         {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	gmail.ProviderKey:            {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	docs.ProviderKey:             {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	sheets.ProviderKey:           {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	meet.ProviderKey:             {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	microsoft.ExcelKey:           {"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"},
	microsoft.WordKey:            {"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"},
	microsoft.OutlookCalendarKey: {"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"},
	microsoft.OutlookMailKey:     {"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"},
	microsoft.TeamsKey:           {"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"},
}

// CredentialsFromEnv collects provider credentials through lookup, usually
// os.LookupEnv. Providers without a client id are omitted.
func CredentialsFromEnv(lookup func(string) (string, bool)) map[string]core.ProviderCredentials {
	out := map[string]core.ProviderCredentials{}
	if lookup == nil {
		return out
	}
	for key, names := range credentialEnv {
		clientID, _ := lookup(names[0])
		if strings.TrimSpace(clientID) == "" {
			continue
		}
		secret, _ := lookup(names[1])
		out[key] = core.ProviderCredentials{
			ClientID:     strings.TrimSpace(clientID),
			ClientSecret: strings.TrimSpace(secret),
		}
	}
	return out
}

func myChartScopes() []string {
	resources := []string{
		"Patient", "Observation", "AllergyIntolerance", "Condition", "Immunization",
		"DiagnosticReport", "MedicationRequest", "Procedure", "AdverseEvent", "Appointment",
		"BodyStructure", "CarePlan", "CareTeam", "Communication", "Coverage", "Device",
		"DeviceRequest", "EpisodeOfCare", "ExplanationOfBenefit", "FamilyMemberHistory",
		"Flag", "Goal", "List", "Medication", "NutritionOrder", "Questionnaire",
		"QuestionnaireResponse",
	}
	scopes := make([]string, 0, len(resources)+4)
	for _, resource := range resources {
		scopes = append(scopes, "patient/"+resource+".rs")
	}
	return append(scopes, "openid", "fhirUser", "offline_access", "launch")
}
