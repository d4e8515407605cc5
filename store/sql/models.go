package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:i"`

	ID            string         `bun:"id,pk"`
	UserID        string         `bun:"user_id,notnull"`
	ProviderID    string         `bun:"provider_id,notnull"`
	Status        string         `bun:"status,notnull"`
	IsActive      bool           `bun:"is_active,notnull"`
	AccessToken   string         `bun:"access_token,notnull"`
	RefreshToken  string         `bun:"refresh_token,notnull"`
	ExpiresAt     *time.Time     `bun:"expires_at,nullzero"`
	Scope         string         `bun:"scope,notnull"`
	Configuration map[string]any `bun:"configuration,type:jsonb,notnull"`
	BotID         string         `bun:"bot_id,notnull"`
	WorkspaceName string         `bun:"workspace_name,notnull"`
	WorkspaceID   string         `bun:"workspace_id,notnull"`
	WorkspaceIcon string         `bun:"workspace_icon,notnull"`
	LastUsedAt    *time.Time     `bun:"last_used_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type connectAttemptRecord struct {
	bun.BaseModel `bun:"table:oauth_connect_attempts,alias:oca"`

	ID            string     `bun:"id,pk"`
	State         string     `bun:"state,notnull"`
	UserID        string     `bun:"user_id,notnull"`
	ProviderID    string     `bun:"provider_id,notnull"`
	RedirectURI   string     `bun:"redirect_uri,notnull"`
	CodeVerifier  string     `bun:"code_verifier,notnull"`
	Reconnect     bool       `bun:"reconnect,notnull"`
	Status        string     `bun:"status,notnull"`
	FailureReason string     `bun:"failure_reason,notnull"`
	IntegrationID string     `bun:"integration_id,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull"`
	ResolvedAt    *time.Time `bun:"resolved_at,nullzero"`
}

type automationRecord struct {
	bun.BaseModel `bun:"table:automations,alias:a"`

	ID            string         `bun:"id,pk"`
	UserID        string         `bun:"user_id,notnull"`
	Name          string         `bun:"name,notnull"`
	TriggerType   string         `bun:"trigger_type,notnull"`
	TriggerConfig map[string]any `bun:"trigger_config,type:jsonb,notnull"`
	Active        bool           `bun:"active,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type asyncRequestRecord struct {
	bun.BaseModel `bun:"table:async_requests,alias:ar"`

	ID              string         `bun:"id,pk"`
	RequestID       string         `bun:"request_id,notnull"`
	UserID          string         `bun:"user_id,notnull"`
	RequestType     string         `bun:"request_type,notnull"`
	Status          string         `bun:"status,notnull"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	ImageURL        string         `bun:"image_url,notnull"`
	ConversationID  string         `bun:"conversation_id,notnull"`
	NetworkSuccess  *bool          `bun:"network_success"`
	ResponseFetched *bool          `bun:"response_fetched"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type cancellationRecord struct {
	bun.BaseModel `bun:"table:cancellation_requests,alias:cr"`

	ID          string         `bun:"id,pk"`
	UserID      string         `bun:"user_id,notnull"`
	RequestID   string         `bun:"request_id,notnull"`
	Status      string         `bun:"status,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt *time.Time     `bun:"processed_at,nullzero"`
}
