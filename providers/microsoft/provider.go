package microsoft

import "github.com/goliatone/go-integrations/core"

const (
	AuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	TokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	graph              = "https://graph.microsoft.com/"
	scopeOfflineAccess = "offline_access"
	scopeUserRead      = graph + "User.Read"
)

const (
	ExcelKey           = "microsoft_excel"
	WordKey            = "microsoft_word"
	OutlookCalendarKey = "microsoft_outlook_calendar"
	OutlookMailKey     = "microsoft_outlook_mail"
	TeamsKey           = "microsoft_teams"
)

// Providers returns the Microsoft Graph entries of the catalog.
func Providers() []core.ProviderConfig {
	return []core.ProviderConfig{
		provider(ExcelKey, "", nil, core.ProviderDescriptor{
			DisplayName: "Microsoft Excel Online",
			Description: "Work with Excel spreadsheets in the cloud",
			Category:    "Cloud Spreadsheets",
			Icon:        "sheet",
		}, graph+"Files.ReadWrite.All", graph+"Sites.ReadWrite.All"),
		provider(WordKey, "", nil, core.ProviderDescriptor{
			DisplayName: "Microsoft Word Online",
			Description: "Create and edit Word documents online",
			Category:    "Cloud Text Documents",
			Icon:        "file-text",
		}, graph+"Files.ReadWrite.All", graph+"Sites.ReadWrite.All"),
		provider(OutlookCalendarKey, "outlook-calendar", []string{"microsoft-outlook-calendar"}, core.ProviderDescriptor{
			DisplayName: "Microsoft Outlook Calendar",
			Description: "Manage your Outlook calendar events",
			Category:    "Calendar",
			Icon:        "calendar",
		}, graph+"Calendars.ReadWrite", scopeUserRead),
		provider(OutlookMailKey, "outlook-mail", []string{"microsoft-outlook-mail"}, core.ProviderDescriptor{
			DisplayName: "Microsoft Outlook Mail",
			Description: "Send emails and access your Outlook inbox",
			Category:    "Email",
			Icon:        "mail",
		}, graph+"Mail.ReadWrite", graph+"Mail.Send", scopeUserRead),
		provider(TeamsKey, "", nil, core.ProviderDescriptor{
			DisplayName: "Microsoft Teams",
			Description: "Collaborate with your Teams workspace",
			Category:    "Team Collaboration",
			Icon:        "users",
		},
			graph+"Chat.ReadWrite",
			graph+"Team.ReadBasic.All",
			graph+"Channel.ReadBasic.All",
			graph+"TeamMember.Read.All",
			scopeUserRead,
		),
	}
}

func provider(key string, urlName string, aliases []string, descriptor core.ProviderDescriptor, scopes ...string) core.ProviderConfig {
	return core.ProviderConfig{
		Key:              key,
		URLName:          urlName,
		AuthorizationURL: AuthURL,
		TokenURL:         TokenURL,
		Scopes:           append(scopes, scopeOfflineAccess),
		UsePKCE:          true,
		Aliases:          aliases,
		Descriptor:       descriptor,
	}
}
