package query

import "github.com/goliatone/go-integrations/core"

const scope = "query"

const (
	TypeListProviders    = "integrations.query.providers.list"
	TypeListIntegrations = "integrations.query.integrations.list"
	TypeConnectStatus    = "integrations.query.connect.status"
	TypeAwaitConnect     = "integrations.query.connect.await"
	TypeRequestStatus    = "integrations.query.request.status"
	TypeIsCancelled      = "integrations.query.request.cancelled"
)

type ListProvidersMessage struct{}

func (ListProvidersMessage) Type() string { return TypeListProviders }

type ListIntegrationsMessage struct {
	UserID string
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	return core.RequireFields(scope, core.Require("user_id", m.UserID))
}

type ConnectStatusMessage struct {
	Request core.CompletionRequest
}

func (ConnectStatusMessage) Type() string { return TypeConnectStatus }

func (m ConnectStatusMessage) Validate() error {
	return validateCompletion(m.Request)
}

// AwaitConnectMessage blocks until the attempt resolves or the completion
// window closes.
type AwaitConnectMessage struct {
	Request core.CompletionRequest
}

func (AwaitConnectMessage) Type() string { return TypeAwaitConnect }

func (m AwaitConnectMessage) Validate() error {
	return validateCompletion(m.Request)
}

type RequestStatusMessage struct {
	UserID    string
	RequestID string
}

func (RequestStatusMessage) Type() string { return TypeRequestStatus }

func (m RequestStatusMessage) Validate() error {
	return validateRequestRef(m.UserID, m.RequestID)
}

type IsCancelledMessage struct {
	UserID    string
	RequestID string
}

func (IsCancelledMessage) Type() string { return TypeIsCancelled }

func (m IsCancelledMessage) Validate() error {
	return validateRequestRef(m.UserID, m.RequestID)
}

func validateCompletion(req core.CompletionRequest) error {
	return core.RequireFields(scope, core.Require("state", req.State))
}

func validateRequestRef(userID string, requestID string) error {
	return core.RequireFields(scope,
		core.Require("request_id", requestID),
		core.Require("user_id", userID),
	)
}
