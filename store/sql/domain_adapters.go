package sqlstore

import (
	"maps"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func newIntegrationRecord(in core.UpsertIntegrationInput, configuration map[string]any, now time.Time) *integrationRecord {
	record := &integrationRecord{
		UserID:     in.UserID,
		ProviderID: in.ProviderID,
		CreatedAt:  now,
	}
	record.apply(in, configuration, now)
	return record
}

func (r *integrationRecord) apply(in core.UpsertIntegrationInput, configuration map[string]any, now time.Time) {
	status := in.Status
	if status == "" {
		status = core.IntegrationStatusPending
	}
	r.Status = string(status)
	r.IsActive = status == core.IntegrationStatusActive
	r.AccessToken = in.AccessToken
	r.RefreshToken = in.RefreshToken
	r.ExpiresAt = cloneTime(in.ExpiresAt)
	r.Scope = in.Scope
	r.Configuration = configuration
	r.BotID = in.Fields.BotID
	r.WorkspaceName = in.Fields.WorkspaceName
	r.WorkspaceID = in.Fields.WorkspaceID
	r.WorkspaceIcon = in.Fields.WorkspaceIcon
	r.LastUsedAt = cloneTime(in.LastUsedAt)
	r.UpdatedAt = now
}

func (r *integrationRecord) toDomain() (core.Integration, error) {
	if r == nil {
		return core.Integration{}, nil
	}
	configuration, err := core.DecodeConfiguration(r.ProviderID, r.Configuration)
	if err != nil {
		return core.Integration{}, err
	}
	return core.Integration{
		ID:            r.ID,
		UserID:        r.UserID,
		ProviderID:    r.ProviderID,
		Status:        core.IntegrationStatus(r.Status),
		IsActive:      r.IsActive,
		AccessToken:   r.AccessToken,
		RefreshToken:  r.RefreshToken,
		ExpiresAt:     cloneTime(r.ExpiresAt),
		Scope:         r.Scope,
		Configuration: configuration,
		Fields: core.ProviderFields{
			BotID:         r.BotID,
			WorkspaceName: r.WorkspaceName,
			WorkspaceID:   r.WorkspaceID,
			WorkspaceIcon: r.WorkspaceIcon,
		},
		LastUsedAt: cloneTime(r.LastUsedAt),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func newConnectAttemptRecord(attempt core.ConnectAttempt) *connectAttemptRecord {
	return &connectAttemptRecord{
		ID:            attempt.ID,
		State:         attempt.State,
		UserID:        attempt.UserID,
		ProviderID:    attempt.ProviderID,
		RedirectURI:   attempt.RedirectURI,
		CodeVerifier:  attempt.CodeVerifier,
		Reconnect:     attempt.Reconnect,
		Status:        string(attempt.Status),
		FailureReason: attempt.FailureReason,
		IntegrationID: attempt.IntegrationID,
		CreatedAt:     attempt.CreatedAt.UTC(),
		ExpiresAt:     attempt.ExpiresAt.UTC(),
		ResolvedAt:    cloneTime(attempt.ResolvedAt),
	}
}

func (r *connectAttemptRecord) toDomain() core.ConnectAttempt {
	if r == nil {
		return core.ConnectAttempt{}
	}
	return core.ConnectAttempt{
		ID:            r.ID,
		State:         r.State,
		UserID:        r.UserID,
		ProviderID:    r.ProviderID,
		RedirectURI:   r.RedirectURI,
		CodeVerifier:  r.CodeVerifier,
		Reconnect:     r.Reconnect,
		Status:        core.ConnectAttemptStatus(r.Status),
		FailureReason: r.FailureReason,
		IntegrationID: r.IntegrationID,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ResolvedAt:    cloneTime(r.ResolvedAt),
	}
}

func newAutomationRecord(automation core.Automation, now time.Time) *automationRecord {
	return &automationRecord{
		ID:            automation.ID,
		UserID:        automation.UserID,
		Name:          automation.Name,
		TriggerType:   automation.TriggerType,
		TriggerConfig: copyAnyMap(automation.TriggerConfig),
		Active:        automation.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *automationRecord) toDomain() core.Automation {
	if r == nil {
		return core.Automation{}
	}
	return core.Automation{
		ID:            r.ID,
		UserID:        r.UserID,
		Name:          r.Name,
		TriggerType:   r.TriggerType,
		TriggerConfig: copyAnyMap(r.TriggerConfig),
		Active:        r.Active,
	}
}

func newAsyncRequestRecord(in core.CreateRequestInput, now time.Time) *asyncRequestRecord {
	return &asyncRequestRecord{
		RequestID:      in.RequestID,
		UserID:         in.UserID,
		RequestType:    in.RequestType,
		Status:         in.InitialStatus(),
		Metadata:       copyAnyMap(in.Metadata),
		ImageURL:       in.ImageURL,
		ConversationID: in.ConversationID,
		NetworkSuccess: cloneBool(in.NetworkSuccess),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *asyncRequestRecord) toDomain() core.AsyncRequest {
	if r == nil {
		return core.AsyncRequest{}
	}
	return core.AsyncRequest{
		ID:              r.ID,
		RequestID:       r.RequestID,
		UserID:          r.UserID,
		RequestType:     r.RequestType,
		Status:          r.Status,
		Metadata:        copyAnyMap(r.Metadata),
		ImageURL:        r.ImageURL,
		ConversationID:  r.ConversationID,
		NetworkSuccess:  cloneBool(r.NetworkSuccess),
		ResponseFetched: cloneBool(r.ResponseFetched),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r *cancellationRecord) toDomain() core.CancellationRequest {
	if r == nil {
		return core.CancellationRequest{}
	}
	return core.CancellationRequest{
		ID:          r.ID,
		UserID:      r.UserID,
		RequestID:   r.RequestID,
		Status:      core.CancellationStatus(r.Status),
		Metadata:    copyAnyMap(r.Metadata),
		CreatedAt:   r.CreatedAt,
		ProcessedAt: cloneTime(r.ProcessedAt),
	}
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	return maps.Clone(input)
}

func cloneTime(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneBool(input *bool) *bool {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}
