package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[InitiateConnectMessage]     = (*InitiateConnectCommand)(nil)
	_ gocmd.Commander[CompleteConnectMessage]     = (*CompleteConnectCommand)(nil)
	_ gocmd.Commander[ExchangeCodeMessage]        = (*ExchangeCodeCommand)(nil)
	_ gocmd.Commander[CancelConnectMessage]       = (*CancelConnectCommand)(nil)
	_ gocmd.Commander[RefreshMessage]             = (*RefreshCommand)(nil)
	_ gocmd.Commander[ReconnectMessage]           = (*ReconnectCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]          = (*DisconnectCommand)(nil)
	_ gocmd.Commander[TriggerAutomationMessage]   = (*TriggerAutomationCommand)(nil)
	_ gocmd.Commander[CreateRequestMessage]       = (*CreateRequestCommand)(nil)
	_ gocmd.Commander[UpdateRequestMessage]       = (*UpdateRequestCommand)(nil)
	_ gocmd.Commander[RequestCancellationMessage] = (*RequestCancellationCommand)(nil)

	_ ConnectService    = (core.IntegrationService)(nil)
	_ AutomationService = (core.IntegrationService)(nil)
	_ RequestService    = (core.IntegrationService)(nil)
)
