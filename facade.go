package integrations

import (
	"fmt"

	integrationcommand "github.com/goliatone/go-integrations/command"
	integrationquery "github.com/goliatone/go-integrations/query"
)

// CommandQueryService is the surface the facade wires its handlers against.
type CommandQueryService interface {
	integrationcommand.ConnectService
	integrationcommand.AutomationService
	integrationcommand.RequestService
	integrationquery.ProviderLister
	integrationquery.IntegrationReader
	integrationquery.ConnectReader
	integrationquery.RequestReader
}

type Commands struct {
	InitiateConnect     *integrationcommand.InitiateConnectCommand
	CompleteConnect     *integrationcommand.CompleteConnectCommand
	ExchangeCode        *integrationcommand.ExchangeCodeCommand
	CancelConnect       *integrationcommand.CancelConnectCommand
	Refresh             *integrationcommand.RefreshCommand
	Reconnect           *integrationcommand.ReconnectCommand
	Disconnect          *integrationcommand.DisconnectCommand
	TriggerAutomation   *integrationcommand.TriggerAutomationCommand
	CreateRequest       *integrationcommand.CreateRequestCommand
	UpdateRequest       *integrationcommand.UpdateRequestCommand
	RequestCancellation *integrationcommand.RequestCancellationCommand
}

type Queries struct {
	ListProviders    *integrationquery.ListProvidersQuery
	ListIntegrations *integrationquery.ListIntegrationsQuery
	ConnectStatus    *integrationquery.ConnectStatusQuery
	AwaitConnect     *integrationquery.AwaitConnectQuery
	RequestStatus    *integrationquery.RequestStatusQuery
	IsCancelled      *integrationquery.IsCancelledQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		InitiateConnect:     integrationcommand.NewInitiateConnectCommand(service),
		CompleteConnect:     integrationcommand.NewCompleteConnectCommand(service),
		ExchangeCode:        integrationcommand.NewExchangeCodeCommand(service),
		CancelConnect:       integrationcommand.NewCancelConnectCommand(service),
		Refresh:             integrationcommand.NewRefreshCommand(service),
		Reconnect:           integrationcommand.NewReconnectCommand(service),
		Disconnect:          integrationcommand.NewDisconnectCommand(service),
		TriggerAutomation:   integrationcommand.NewTriggerAutomationCommand(service),
		CreateRequest:       integrationcommand.NewCreateRequestCommand(service),
		UpdateRequest:       integrationcommand.NewUpdateRequestCommand(service),
		RequestCancellation: integrationcommand.NewRequestCancellationCommand(service),
	}
	facade.queries = Queries{
		ListProviders:    integrationquery.NewListProvidersQuery(service),
		ListIntegrations: integrationquery.NewListIntegrationsQuery(service),
		ConnectStatus:    integrationquery.NewConnectStatusQuery(service),
		AwaitConnect:     integrationquery.NewAwaitConnectQuery(service),
		RequestStatus:    integrationquery.NewRequestStatusQuery(service),
		IsCancelled:      integrationquery.NewIsCancelledQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
