package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

type ConnectAttemptStatus string

const (
	ConnectAttemptPending    ConnectAttemptStatus = "pending"
	ConnectAttemptExchanging ConnectAttemptStatus = "exchanging"
	ConnectAttemptCompleted  ConnectAttemptStatus = "completed"
	ConnectAttemptFailed     ConnectAttemptStatus = "failed"
	ConnectAttemptCancelled  ConnectAttemptStatus = "cancelled"
	ConnectAttemptExpired    ConnectAttemptStatus = "expired"
)

func (s ConnectAttemptStatus) Terminal() bool {
	switch s {
	case ConnectAttemptCompleted, ConnectAttemptFailed, ConnectAttemptCancelled, ConnectAttemptExpired:
		return true
	default:
		return false
	}
}

// ConnectAttempt is one in-flight authorization, keyed by its anti-forgery
// state. The code verifier never leaves the server.
type ConnectAttempt struct {
	ID            string               `json:"id"`
	State         string               `json:"-"`
	UserID        string               `json:"user_id"`
	ProviderID    string               `json:"provider_id"`
	RedirectURI   string               `json:"-"`
	CodeVerifier  string               `json:"-"`
	Reconnect     bool                 `json:"reconnect"`
	Status        ConnectAttemptStatus `json:"status"`
	FailureReason string               `json:"failure_reason,omitempty"`
	IntegrationID string               `json:"integration_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
	ResolvedAt    *time.Time           `json:"resolved_at,omitempty"`
}

func (a ConnectAttempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

type ResolveAttemptInput struct {
	Status        ConnectAttemptStatus
	Reason        string
	IntegrationID string
	At            time.Time
}

// PendingConnectStore persists connect attempts between initiation and the
// provider callback.
type PendingConnectStore interface {
	Save(ctx context.Context, attempt ConnectAttempt) error
	Get(ctx context.Context, state string) (ConnectAttempt, error)
	// Claim atomically moves a pending attempt to exchanging so a code is
	// exchanged at most once.
	Claim(ctx context.Context, state string) (ConnectAttempt, error)
	Resolve(ctx context.Context, state string, input ResolveAttemptInput) (ConnectAttempt, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type MemoryPendingConnectStore struct {
	mu      sync.Mutex
	entries map[string]ConnectAttempt
}

func NewMemoryPendingConnectStore() *MemoryPendingConnectStore {
	return &MemoryPendingConnectStore{entries: map[string]ConnectAttempt{}}
}

func (s *MemoryPendingConnectStore) Save(_ context.Context, attempt ConnectAttempt) error {
	if s == nil {
		return fmt.Errorf("core: pending connect store is not configured")
	}
	state := strings.TrimSpace(attempt.State)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}
	if attempt.Status == "" {
		attempt.Status = ConnectAttemptPending
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[state]; exists {
		return fmt.Errorf("%w: state already in use", ErrOAuthStateInvalid)
	}
	s.entries[state] = attempt
	return nil
}

func (s *MemoryPendingConnectStore) Get(_ context.Context, state string) (ConnectAttempt, error) {
	if s == nil {
		return ConnectAttempt{}, fmt.Errorf("core: pending connect store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[strings.TrimSpace(state)]
	if !ok {
		return ConnectAttempt{}, fmt.Errorf("%w: state not found", ErrOAuthStateInvalid)
	}
	return attempt, nil
}

func (s *MemoryPendingConnectStore) Claim(_ context.Context, state string) (ConnectAttempt, error) {
	if s == nil {
		return ConnectAttempt{}, fmt.Errorf("core: pending connect store is not configured")
	}
	state = strings.TrimSpace(state)
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[state]
	if !ok {
		return ConnectAttempt{}, fmt.Errorf("%w: state not found", ErrOAuthStateInvalid)
	}
	if attempt.Status != ConnectAttemptPending {
		return ConnectAttempt{}, fmt.Errorf("%w: attempt is %s", ErrOAuthStateInvalid, attempt.Status)
	}
	attempt.Status = ConnectAttemptExchanging
	s.entries[state] = attempt
	return attempt, nil
}

func (s *MemoryPendingConnectStore) Resolve(_ context.Context, state string, input ResolveAttemptInput) (ConnectAttempt, error) {
	if s == nil {
		return ConnectAttempt{}, fmt.Errorf("core: pending connect store is not configured")
	}
	if !input.Status.Terminal() {
		return ConnectAttempt{}, fmt.Errorf("core: attempt resolution status %q is not terminal", input.Status)
	}
	state = strings.TrimSpace(state)
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[state]
	if !ok {
		return ConnectAttempt{}, fmt.Errorf("%w: state not found", ErrOAuthStateInvalid)
	}
	if attempt.Status.Terminal() {
		return attempt, fmt.Errorf("%w: attempt already %s", ErrOAuthStateInvalid, attempt.Status)
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	attempt.Status = input.Status
	attempt.FailureReason = strings.TrimSpace(input.Reason)
	if id := strings.TrimSpace(input.IntegrationID); id != "" {
		attempt.IntegrationID = id
	}
	attempt.ResolvedAt = &at
	s.entries[state] = attempt
	return attempt, nil
}

func (s *MemoryPendingConnectStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for state, attempt := range s.entries {
		if !attempt.ExpiresAt.IsZero() && attempt.ExpiresAt.Before(before) {
			delete(s.entries, state)
			purged++
		}
	}
	return purged, nil
}

func generateOAuthState() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
