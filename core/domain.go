package core

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

type IntegrationStatus string

const (
	IntegrationStatusPending  IntegrationStatus = "pending"
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
	IntegrationStatusFailed   IntegrationStatus = "failed"
)

func (s IntegrationStatus) Valid() bool {
	switch s {
	case IntegrationStatusPending, IntegrationStatusActive, IntegrationStatusInactive, IntegrationStatusFailed:
		return true
	default:
		return false
	}
}

// Integration is the persisted link between one user and one provider.
// There is at most one per (UserID, ProviderID).
type Integration struct {
	ID            string
	UserID        string
	ProviderID    string
	Status        IntegrationStatus
	IsActive      bool
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	Scope         string
	Configuration ProviderConfiguration
	Fields        ProviderFields
	LastUsedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransitionTo moves the integration to status and keeps IsActive in step.
func (i *Integration) TransitionTo(status IntegrationStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, status)
	}
	if i.Status != status && !integrationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, i.Status, status)
	}
	i.Status = status
	i.IsActive = status == IntegrationStatusActive
	i.UpdatedAt = now
	return nil
}

func integrationTransitionAllowed(current IntegrationStatus, next IntegrationStatus) bool {
	allowed := map[IntegrationStatus]map[IntegrationStatus]struct{}{
		"": {
			IntegrationStatusPending: {},
			IntegrationStatusActive:  {},
		},
		IntegrationStatusPending: {
			IntegrationStatusActive:   {},
			IntegrationStatusInactive: {},
			IntegrationStatusFailed:   {},
		},
		IntegrationStatusActive: {
			IntegrationStatusPending:  {},
			IntegrationStatusInactive: {},
			IntegrationStatusFailed:   {},
		},
		IntegrationStatusFailed: {
			IntegrationStatusActive:   {},
			IntegrationStatusPending:  {},
			IntegrationStatusInactive: {},
		},
		IntegrationStatusInactive: {
			IntegrationStatusActive:  {},
			IntegrationStatusPending: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// Validate checks the invariants every stored integration must satisfy.
func (i Integration) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("core: integration user id is required")
	}
	if strings.TrimSpace(i.ProviderID) == "" {
		return fmt.Errorf("core: integration provider id is required")
	}
	if !i.Status.Valid() {
		return fmt.Errorf("core: integration status %q is invalid", i.Status)
	}
	if i.IsActive != (i.Status == IntegrationStatusActive) {
		return fmt.Errorf("core: integration is_active does not mirror status %q", i.Status)
	}
	if i.Status == IntegrationStatusActive && strings.TrimSpace(i.AccessToken) == "" {
		return fmt.Errorf("core: active integration requires an access token")
	}
	return nil
}

// Expired reports whether the access token is past its expiry at now.
func (i Integration) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

type UpsertIntegrationInput struct {
	UserID        string
	ProviderID    string
	Status        IntegrationStatus
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	Scope         string
	Configuration ProviderConfiguration
	Fields        ProviderFields
	LastUsedAt    *time.Time
}

// Automation is a user-owned workflow the dispatcher can trigger.
type Automation struct {
	ID            string
	UserID        string
	Name          string
	TriggerType   string
	TriggerConfig map[string]any
	Active        bool
}

const (
	TriggerTypePolling = "polling"
	TriggerTypeManual  = "manual"
)

// TriggerService is the lowercased polled service named by the trigger
// configuration.
func (a Automation) TriggerService() string {
	if a.TriggerConfig == nil {
		return ""
	}
	value, _ := a.TriggerConfig["service"].(string)
	return strings.ToLower(strings.TrimSpace(value))
}

func (a Automation) IsPolling() bool {
	return strings.EqualFold(strings.TrimSpace(a.TriggerType), TriggerTypePolling)
}

const (
	RequestStatusPending    = "pending"
	RequestStatusProcessing = "processing"
	RequestStatusCompleted  = "completed"
	RequestStatusFailed     = "failed"
	RequestStatusCancelled  = "cancelled"
)

// IsTerminalStatus reports whether a tracked request will not change again.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// AsyncRequest records the progress of a long-running request so a client
// can resume or cancel it.
type AsyncRequest struct {
	ID              string         `json:"id"`
	RequestID       string         `json:"request_id"`
	UserID          string         `json:"user_id"`
	RequestType     string         `json:"request_type"`
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImageURL        string         `json:"image_url,omitempty"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	NetworkSuccess  *bool          `json:"network_success,omitempty"`
	ResponseFetched *bool          `json:"response_fetched,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type CreateRequestInput struct {
	RequestID      string
	UserID         string
	RequestType    string
	Status         string
	Metadata       map[string]any
	ImageURL       string
	ConversationID string
	NetworkSuccess *bool
}

// InitialStatus is the status a new request row starts in; blank means
// pending.
func (in CreateRequestInput) InitialStatus() string {
	if status := strings.TrimSpace(in.Status); status != "" {
		return status
	}
	return RequestStatusPending
}

type CancellationStatus string

const (
	CancellationStatusPending   CancellationStatus = "pending"
	CancellationStatusProcessed CancellationStatus = "processed"
)

type CancellationRequest struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	RequestID   string             `json:"request_id"`
	Status      CancellationStatus `json:"status"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	return maps.Clone(input)
}
