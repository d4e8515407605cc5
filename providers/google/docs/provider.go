package docs

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/common"
)

const ProviderKey = "google_docs"

func Config() core.ProviderConfig {
	return common.Provider(ProviderKey, core.ProviderDescriptor{
		DisplayName: "Google Docs",
		Description: "Create and edit Google Documents",
		Category:    "Cloud Text Documents",
		Icon:        "file-text",
	}, "https://www.googleapis.com/auth/documents")
}
