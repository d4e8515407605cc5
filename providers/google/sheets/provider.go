package sheets

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/common"
)

const ProviderKey = "google_sheets"

func Config() core.ProviderConfig {
	return common.Provider(ProviderKey, core.ProviderDescriptor{
		DisplayName: "Google Sheets",
		Description: "Work with Google Spreadsheets",
		Category:    "Cloud Spreadsheets",
		Icon:        "sheet",
	}, "https://www.googleapis.com/auth/spreadsheets")
}
