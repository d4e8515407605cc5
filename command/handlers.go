package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

type ConnectService interface {
	InitiateConnect(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error)
	CompleteConnect(ctx context.Context, req core.CallbackRequest) (core.Integration, error)
	ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.Integration, error)
	CancelConnect(ctx context.Context, req core.CompletionRequest) (core.ConnectAttempt, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.Integration, error)
	Reconnect(ctx context.Context, req core.ReconnectRequest) (core.ConnectResponse, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) error
}

type AutomationService interface {
	TriggerAutomation(ctx context.Context, req core.TriggerRequest) (core.TriggerResult, error)
}

type RequestService interface {
	CreateRequest(ctx context.Context, in core.CreateRequestInput) (core.AsyncRequest, error)
	UpdateRequest(ctx context.Context, update core.RequestUpdate) (core.AsyncRequest, error)
	RequestCancellation(ctx context.Context, userID string, requestID string, metadata map[string]any) (core.CancellationRequest, error)
}

type InitiateConnectCommand struct {
	service ConnectService
}

func NewInitiateConnectCommand(service ConnectService) *InitiateConnectCommand {
	return &InitiateConnectCommand{service: service}
}

func (c *InitiateConnectCommand) Execute(ctx context.Context, msg InitiateConnectMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "connect service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.InitiateConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteConnectCommand struct {
	service ConnectService
}

func NewCompleteConnectCommand(service ConnectService) *CompleteConnectCommand {
	return &CompleteConnectCommand{service: service}
}

func (c *CompleteConnectCommand) Execute(ctx context.Context, msg CompleteConnectMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "callback service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CompleteConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExchangeCodeCommand struct {
	service ConnectService
}

func NewExchangeCodeCommand(service ConnectService) *ExchangeCodeCommand {
	return &ExchangeCodeCommand{service: service}
}

func (c *ExchangeCodeCommand) Execute(ctx context.Context, msg ExchangeCodeMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "exchange service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.ExchangeCode(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelConnectCommand struct {
	service ConnectService
}

func NewCancelConnectCommand(service ConnectService) *CancelConnectCommand {
	return &CancelConnectCommand{service: service}
}

func (c *CancelConnectCommand) Execute(ctx context.Context, msg CancelConnectMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "cancel connect service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CancelConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service ConnectService
}

func NewRefreshCommand(service ConnectService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "refresh service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconnectCommand struct {
	service ConnectService
}

func NewReconnectCommand(service ConnectService) *ReconnectCommand {
	return &ReconnectCommand{service: service}
}

func (c *ReconnectCommand) Execute(ctx context.Context, msg ReconnectMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "reconnect service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Reconnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service ConnectService
}

func NewDisconnectCommand(service ConnectService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "disconnect service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.Disconnect(ctx, msg.Request)
}

type TriggerAutomationCommand struct {
	service AutomationService
}

func NewTriggerAutomationCommand(service AutomationService) *TriggerAutomationCommand {
	return &TriggerAutomationCommand{service: service}
}

// Execute stores the trigger result even when the trigger reports failure;
// only dispatcher errors are returned.
func (c *TriggerAutomationCommand) Execute(ctx context.Context, msg TriggerAutomationMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "automation service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.TriggerAutomation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateRequestCommand struct {
	service RequestService
}

func NewCreateRequestCommand(service RequestService) *CreateRequestCommand {
	return &CreateRequestCommand{service: service}
}

func (c *CreateRequestCommand) Execute(ctx context.Context, msg CreateRequestMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "request service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateRequest(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateRequestCommand struct {
	service RequestService
}

func NewUpdateRequestCommand(service RequestService) *UpdateRequestCommand {
	return &UpdateRequestCommand{service: service}
}

func (c *UpdateRequestCommand) Execute(ctx context.Context, msg UpdateRequestMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "request service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.UpdateRequest(ctx, msg.Update)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestCancellationCommand struct {
	service RequestService
}

func NewRequestCancellationCommand(service RequestService) *RequestCancellationCommand {
	return &RequestCancellationCommand{service: service}
}

func (c *RequestCancellationCommand) Execute(ctx context.Context, msg RequestCancellationMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency(scope, "request service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.RequestCancellation(ctx, msg.UserID, msg.RequestID, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
