package httpapi

import (
	"encoding/json"
	"fmt"
	"html"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

// integrationView is the public shape of an integration. Tokens never leave
// the service.
type integrationView struct {
	ID            string                 `json:"id"`
	Provider      string                 `json:"provider"`
	Status        core.IntegrationStatus `json:"status"`
	IsActive      bool                   `json:"is_active"`
	ExpiresAt     *time.Time             `json:"expires_at,omitempty"`
	Scope         string                 `json:"scope,omitempty"`
	Configuration map[string]any         `json:"configuration,omitempty"`
	BotID         string                 `json:"bot_id,omitempty"`
	WorkspaceName string                 `json:"workspace_name,omitempty"`
	WorkspaceID   string                 `json:"workspace_id,omitempty"`
	WorkspaceIcon string                 `json:"workspace_icon,omitempty"`
	LastUsedAt    *time.Time             `json:"last_used_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func newIntegrationView(integration core.Integration) integrationView {
	return integrationView{
		ID:            integration.ID,
		Provider:      integration.ProviderID,
		Status:        integration.Status,
		IsActive:      integration.IsActive,
		ExpiresAt:     integration.ExpiresAt,
		Scope:         integration.Scope,
		Configuration: configurationView(integration.Configuration),
		BotID:         integration.Fields.BotID,
		WorkspaceName: integration.Fields.WorkspaceName,
		WorkspaceID:   integration.Fields.WorkspaceID,
		WorkspaceIcon: integration.Fields.WorkspaceIcon,
		LastUsedAt:    integration.LastUsedAt,
		CreatedAt:     integration.CreatedAt,
		UpdatedAt:     integration.UpdatedAt,
	}
}

// configurationView flattens the provider payload and strips anything that
// looks like a credential, e.g. slack's authed_user token.
func configurationView(configuration core.ProviderConfiguration) map[string]any {
	if configuration == nil {
		return nil
	}
	raw, err := json.Marshal(configuration)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return core.RedactSensitiveMap(out)
}

func (s *Server) handleListProviders(c *gin.Context) {
	listings, err := s.queries.ListProviders.Query(c.Request.Context(), integrationquery.ListProvidersMessage{})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "providers": listings})
}

func (s *Server) handleListIntegrations(c *gin.Context) {
	integrations, err := s.listIntegrations(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]integrationView, 0, len(integrations))
	for _, integration := range integrations {
		views = append(views, newIntegrationView(integration))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "integrations": views})
}

func (s *Server) listIntegrations(c *gin.Context) ([]core.Integration, error) {
	return s.queries.ListIntegrations.Query(c.Request.Context(), integrationquery.ListIntegrationsMessage{
		UserID: userID(c),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	integrations, err := s.listIntegrations(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	provider := ""
	for _, integration := range integrations {
		if integration.ID == id {
			provider = integration.ProviderID
			break
		}
	}
	if provider == "" {
		s.writeError(c, fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id))
		return
	}

	refreshed, err := execute[integrationcommand.RefreshMessage, core.Integration](
		c.Request.Context(),
		s.commands.Refresh,
		integrationcommand.RefreshMessage{Request: core.RefreshRequest{UserID: userID(c), Provider: provider}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "integration": newIntegrationView(refreshed)})
}

func (s *Server) handleReconnect(c *gin.Context) {
	response, err := execute[integrationcommand.ReconnectMessage, core.ConnectResponse](
		c.Request.Context(),
		s.commands.Reconnect,
		integrationcommand.ReconnectMessage{Request: core.ReconnectRequest{
			UserID:        userID(c),
			IntegrationID: strings.TrimSpace(c.Param("id")),
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "connect": response})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	err := s.commands.Disconnect.Execute(c.Request.Context(), integrationcommand.DisconnectMessage{
		Request: core.DisconnectRequest{
			UserID:        userID(c),
			IntegrationID: strings.TrimSpace(c.Param("id")),
		},
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type initiateBody struct {
	Provider    string `json:"provider" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
	Reconnect   bool   `json:"reconnect"`
}

func (s *Server) handleInitiate(c *gin.Context) {
	var body initiateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, badRequest("invalid connect request: "+err.Error()))
		return
	}
	response, err := execute[integrationcommand.InitiateConnectMessage, core.ConnectResponse](
		c.Request.Context(),
		s.commands.InitiateConnect,
		integrationcommand.InitiateConnectMessage{Request: core.ConnectRequest{
			UserID:      userID(c),
			Provider:    body.Provider,
			RedirectURI: body.RedirectURI,
			Reconnect:   body.Reconnect,
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "connect": response})
}

// handleAttemptStatus reports the attempt as is, or with ?wait=true blocks
// until it resolves.
func (s *Server) handleAttemptStatus(c *gin.Context) {
	req := core.CompletionRequest{UserID: userID(c), State: strings.TrimSpace(c.Param("state"))}

	if strings.EqualFold(c.Query("wait"), "true") {
		integration, err := s.queries.AwaitConnect.Query(c.Request.Context(), integrationquery.AwaitConnectMessage{Request: req})
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "integration": newIntegrationView(integration)})
		return
	}

	attempt, err := s.queries.ConnectStatus.Query(c.Request.Context(), integrationquery.ConnectStatusMessage{Request: req})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attempt": attempt})
}

func (s *Server) handleCancelAttempt(c *gin.Context) {
	attempt, err := execute[integrationcommand.CancelConnectMessage, core.ConnectAttempt](
		c.Request.Context(),
		s.commands.CancelConnect,
		integrationcommand.CancelConnectMessage{Request: core.CompletionRequest{
			UserID: userID(c),
			State:  strings.TrimSpace(c.Param("state")),
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attempt": attempt})
}

// handleCallback finishes a connect attempt from the provider redirect and
// renders a page the browser window can be closed from.
func (s *Server) handleCallback(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	_, err := execute[integrationcommand.CompleteConnectMessage, core.Integration](
		c.Request.Context(),
		s.commands.CompleteConnect,
		integrationcommand.CompleteConnectMessage{Request: core.CallbackRequest{
			UserID:           sessionUserID(c),
			Provider:         provider,
			Code:             c.Query("code"),
			State:            c.Query("state"),
			Error:            c.Query("error"),
			ErrorDescription: c.Query("error_description"),
		}},
	)
	if err != nil {
		rich := toServiceError(err)
		status := statusFor(rich)
		if status >= http.StatusInternalServerError {
			s.logger.Error("oauth callback failed", "provider", provider, "error", err.Error())
		}
		c.Data(status, "text/html; charset=utf-8", callbackPage(provider, false, rich.Message))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", callbackPage(provider, true, ""))
}

func callbackPage(provider string, ok bool, message string) []byte {
	title := "Connection failed"
	detail := html.EscapeString(message)
	if ok {
		title = "Connected"
		detail = fmt.Sprintf("%s is now connected. You can close this window.", html.EscapeString(provider))
	}
	return []byte(fmt.Sprintf(
		"<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		title, title, detail,
	))
}

type triggerBody struct {
	AutomationID string         `json:"automation_id" binding:"required"`
	RequestID    string         `json:"request_id"`
	TriggerData  map[string]any `json:"trigger_data"`
	ExtraData    map[string]any `json:"extra_data"`
}

// data merges the legacy extra_data key under trigger_data.
func (b triggerBody) data() map[string]any {
	if len(b.ExtraData) == 0 {
		return b.TriggerData
	}
	merged := maps.Clone(b.ExtraData)
	maps.Copy(merged, b.TriggerData)
	return merged
}

// handleTrigger answers with the trigger result in both outcomes; a failed
// trigger uses the status the dispatcher recorded.
func (s *Server) handleTrigger(c *gin.Context) {
	var body triggerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, badRequest("invalid trigger request: "+err.Error()))
		return
	}
	result, err := execute[integrationcommand.TriggerAutomationMessage, core.TriggerResult](
		c.Request.Context(),
		s.commands.TriggerAutomation,
		integrationcommand.TriggerAutomationMessage{Request: core.TriggerRequest{
			AutomationID: body.AutomationID,
			UserID:       userID(c),
			BearerToken:  callerToken(c),
			ExtraData:    body.data(),
			RequestID:    body.RequestID,
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = result.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, result)
}

type createRequestBody struct {
	RequestID      string         `json:"request_id" binding:"required"`
	RequestType    string         `json:"request_type"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata"`
	ImageURL       string         `json:"image_url"`
	ConversationID string         `json:"conversation_id"`
	NetworkSuccess *bool          `json:"network_success"`
}

func (s *Server) handleCreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, badRequest("invalid request: "+err.Error()))
		return
	}
	request, err := execute[integrationcommand.CreateRequestMessage, core.AsyncRequest](
		c.Request.Context(),
		s.commands.CreateRequest,
		integrationcommand.CreateRequestMessage{Input: core.CreateRequestInput{
			RequestID:      body.RequestID,
			UserID:         userID(c),
			RequestType:    body.RequestType,
			Status:         body.Status,
			Metadata:       body.Metadata,
			ImageURL:       body.ImageURL,
			ConversationID: body.ConversationID,
			NetworkSuccess: body.NetworkSuccess,
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "request": request})
}

func (s *Server) handleRequestStatus(c *gin.Context) {
	request, err := s.queries.RequestStatus.Query(c.Request.Context(), integrationquery.RequestStatusMessage{
		UserID:    userID(c),
		RequestID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": request})
}

type updateRequestBody struct {
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata"`
	NetworkSuccess  *bool          `json:"network_success"`
	ResponseFetched *bool          `json:"response_fetched"`
}

func (s *Server) handleUpdateRequest(c *gin.Context) {
	var body updateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, badRequest("invalid request update: "+err.Error()))
		return
	}
	request, err := execute[integrationcommand.UpdateRequestMessage, core.AsyncRequest](
		c.Request.Context(),
		s.commands.UpdateRequest,
		integrationcommand.UpdateRequestMessage{Update: core.RequestUpdate{
			UserID:          userID(c),
			RequestID:       strings.TrimSpace(c.Param("id")),
			Status:          body.Status,
			Metadata:        body.Metadata,
			NetworkSuccess:  body.NetworkSuccess,
			ResponseFetched: body.ResponseFetched,
		}},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": request})
}

type cancelRequestBody struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleCancelRequest(c *gin.Context) {
	var body cancelRequestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, badRequest("invalid cancellation: "+err.Error()))
			return
		}
	}
	cancellation, err := execute[integrationcommand.RequestCancellationMessage, core.CancellationRequest](
		c.Request.Context(),
		s.commands.RequestCancellation,
		integrationcommand.RequestCancellationMessage{
			UserID:    userID(c),
			RequestID: strings.TrimSpace(c.Param("id")),
			Metadata:  body.Metadata,
		},
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "cancellation": cancellation})
}

func (s *Server) handleIsCancelled(c *gin.Context) {
	cancelled, err := s.queries.IsCancelled.Query(c.Request.Context(), integrationquery.IsCancelledMessage{
		UserID:    userID(c),
		RequestID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cancelled": cancelled})
}
