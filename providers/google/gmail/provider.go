package gmail

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/common"
)

const ProviderKey = "gmail"

func Config() core.ProviderConfig {
	return common.Provider(ProviderKey, core.ProviderDescriptor{
		DisplayName: "Gmail",
		Description: "Send emails and access your Gmail inbox",
		Category:    "Email",
		Icon:        "mail",
	},
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/gmail.modify",
	)
}
