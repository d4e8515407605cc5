package calendar

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/common"
)

const ProviderKey = "google_calendar"

func Config() core.ProviderConfig {
	return common.Provider(ProviderKey, core.ProviderDescriptor{
		DisplayName: "Google Calendar",
		Description: "Access and manage your Google Calendar events",
		Category:    "Calendar",
		Icon:        "calendar",
	}, common.ScopeCalendarEvents)
}
