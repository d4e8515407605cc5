package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.PendingConnectStore    = (*PendingConnectStore)(nil)
	_ core.AutomationStore        = (*AutomationStore)(nil)
	_ core.RequestStore           = (*RequestStore)(nil)
	_ core.RequestStore           = (*CachedRequestStore)(nil)
	_ core.CancellationStore      = (*CancellationStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
