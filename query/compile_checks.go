package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[ListProvidersMessage, []core.ProviderListing] = (*ListProvidersQuery)(nil)
	_ gocmd.Querier[ListIntegrationsMessage, []core.Integration]  = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[ConnectStatusMessage, core.ConnectAttempt]    = (*ConnectStatusQuery)(nil)
	_ gocmd.Querier[AwaitConnectMessage, core.Integration]        = (*AwaitConnectQuery)(nil)
	_ gocmd.Querier[RequestStatusMessage, core.AsyncRequest]      = (*RequestStatusQuery)(nil)
	_ gocmd.Querier[IsCancelledMessage, bool]                     = (*IsCancelledQuery)(nil)

	_ ProviderLister    = (core.IntegrationService)(nil)
	_ IntegrationReader = (core.IntegrationService)(nil)
	_ ConnectReader     = (core.IntegrationService)(nil)
	_ RequestReader     = (core.IntegrationService)(nil)
)
