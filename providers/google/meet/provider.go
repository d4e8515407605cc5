package meet

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/common"
)

const ProviderKey = "google_meet"

// Config requests calendar events alongside meetings because Meet links are
// created through calendar entries.
func Config() core.ProviderConfig {
	return common.Provider(ProviderKey, core.ProviderDescriptor{
		DisplayName: "Google Meet",
		Description: "Create and manage Google Meet video calls",
		Category:    "Video Conferencing",
		Icon:        "video",
	},
		"https://www.googleapis.com/auth/meetings",
		common.ScopeCalendarEvents,
	)
}
