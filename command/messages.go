package command

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

const scope = "command"

const (
	TypeInitiateConnect     = "integrations.command.connect.initiate"
	TypeCompleteConnect     = "integrations.command.connect.complete"
	TypeExchangeCode        = "integrations.command.connect.exchange"
	TypeCancelConnect       = "integrations.command.connect.cancel"
	TypeRefresh             = "integrations.command.refresh"
	TypeReconnect           = "integrations.command.reconnect"
	TypeDisconnect          = "integrations.command.disconnect"
	TypeTriggerAutomation   = "integrations.command.automation.trigger"
	TypeCreateRequest       = "integrations.command.request.create"
	TypeUpdateRequest       = "integrations.command.request.update"
	TypeRequestCancellation = "integrations.command.request.cancel"
)

type InitiateConnectMessage struct {
	Request core.ConnectRequest
}

func (InitiateConnectMessage) Type() string { return TypeInitiateConnect }

func (m InitiateConnectMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("user_id", m.Request.UserID),
		core.Require("provider", m.Request.Provider),
	)
}

// CompleteConnectMessage carries a provider redirect. A callback that only
// reports an error is still valid so the attempt can be marked failed.
type CompleteConnectMessage struct {
	Request core.CallbackRequest
}

func (CompleteConnectMessage) Type() string { return TypeCompleteConnect }

func (m CompleteConnectMessage) Validate() error {
	if err := core.RequireFields(scope, core.Require("state", m.Request.State)); err != nil {
		return err
	}
	if blank(m.Request.Code) && blank(m.Request.Error) {
		return core.FieldError(scope, goerrors.FieldError{Field: "code", Message: "code or error is required"})
	}
	return nil
}

type ExchangeCodeMessage struct {
	Request core.ExchangeRequest
}

func (ExchangeCodeMessage) Type() string { return TypeExchangeCode }

func (m ExchangeCodeMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("provider", m.Request.Provider),
		core.Require("code", m.Request.Code),
		core.Require("state", m.Request.State),
	)
}

type CancelConnectMessage struct {
	Request core.CompletionRequest
}

func (CancelConnectMessage) Type() string { return TypeCancelConnect }

func (m CancelConnectMessage) Validate() error {
	return core.RequireFields(scope, core.Require("state", m.Request.State))
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("user_id", m.Request.UserID),
		core.Require("provider", m.Request.Provider),
	)
}

type ReconnectMessage struct {
	Request core.ReconnectRequest
}

func (ReconnectMessage) Type() string { return TypeReconnect }

func (m ReconnectMessage) Validate() error {
	if err := core.RequireFields(scope, core.Require("user_id", m.Request.UserID)); err != nil {
		return err
	}
	if blank(m.Request.IntegrationID) && blank(m.Request.Provider) {
		return core.FieldError(scope, goerrors.FieldError{Field: "integration_id", Message: "integration id or provider is required"})
	}
	return nil
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("user_id", m.Request.UserID),
		core.Require("integration_id", m.Request.IntegrationID),
	)
}

type TriggerAutomationMessage struct {
	Request core.TriggerRequest
}

func (TriggerAutomationMessage) Type() string { return TypeTriggerAutomation }

func (m TriggerAutomationMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("automation_id", m.Request.AutomationID),
		core.Require("user_id", m.Request.UserID),
	)
}

type CreateRequestMessage struct {
	Input core.CreateRequestInput
}

func (CreateRequestMessage) Type() string { return TypeCreateRequest }

func (m CreateRequestMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("request_id", m.Input.RequestID),
		core.Require("user_id", m.Input.UserID),
	)
}

type UpdateRequestMessage struct {
	Update core.RequestUpdate
}

func (UpdateRequestMessage) Type() string { return TypeUpdateRequest }

func (m UpdateRequestMessage) Validate() error {
	if err := core.RequireFields(scope,
		core.Require("request_id", m.Update.RequestID),
		core.Require("user_id", m.Update.UserID),
	); err != nil {
		return err
	}
	if blank(m.Update.Status) && len(m.Update.Metadata) == 0 && m.Update.NetworkSuccess == nil && m.Update.ResponseFetched == nil {
		return core.InvalidInput(scope, "request update has no changes")
	}
	return nil
}

type RequestCancellationMessage struct {
	UserID    string
	RequestID string
	Metadata  map[string]any
}

func (RequestCancellationMessage) Type() string { return TypeRequestCancellation }

func (m RequestCancellationMessage) Validate() error {
	return core.RequireFields(scope,
		core.Require("request_id", m.RequestID),
		core.Require("user_id", m.UserID),
	)
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}
