package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConnectRequest struct {
	UserID      string
	Provider    string
	RedirectURI string
	Reconnect   bool
}

type ConnectResponse struct {
	Provider  string    `json:"provider"`
	AuthURL   string    `json:"auth_url"`
	State     string    `json:"state"`
	UsePKCE   bool      `json:"use_pkce"`
	Reconnect bool      `json:"reconnect"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CompletionRequest struct {
	UserID string
	State  string
}

// CallbackRequest carries the query parameters of a provider redirect.
type CallbackRequest struct {
	UserID           string
	Provider         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type ExchangeRequest struct {
	UserID   string
	Provider string
	Code     string
	State    string
}

// InitiateConnect records a connect attempt and returns the provider
// authorization URL the user must visit.
func (s *Service) InitiateConnect(ctx context.Context, req ConnectRequest) (response ConnectResponse, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"provider_id": req.Provider,
		"user_id":     req.UserID,
		"reconnect":   req.Reconnect,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "initiate_connect", err, fields)
	}()

	if strings.TrimSpace(req.UserID) == "" {
		err = s.mapError(fmt.Errorf("%w: user id is required", ErrBadInput))
		return ConnectResponse{}, err
	}
	key, cfg, err := s.configuredProvider(req.Provider)
	if err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	fields["provider_id"] = key
	if s.exchanger == nil {
		err = s.mapError(fmt.Errorf("core: token exchanger is not configured"))
		return ConnectResponse{}, err
	}

	state, err := generateOAuthState()
	if err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	redirectURI := firstNonEmpty(req.RedirectURI, cfg.RedirectURI, s.config.OAuth.CallbackURL(cfg.URLName))
	authorization, err := s.exchanger.BeginAuthorization(cfg, AuthorizationRequest{
		State:       state,
		RedirectURI: redirectURI,
	})
	if err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}

	if s.integrations != nil {
		if _, pendingErr := s.integrations.EnsurePending(ctx, req.UserID, key); pendingErr != nil {
			err = s.mapError(pendingErr)
			return ConnectResponse{}, err
		}
	}

	now := s.now()
	if purged, purgeErr := s.attempts.PurgeExpired(ctx, now); purgeErr != nil {
		s.logWarn(ctx, "connect attempt purge failed", map[string]any{"error": purgeErr.Error()})
	} else if purged > 0 {
		fields["purged_attempts"] = purged
	}

	attempt := ConnectAttempt{
		ID:           uuid.NewString(),
		State:        state,
		UserID:       req.UserID,
		ProviderID:   key,
		RedirectURI:  redirectURI,
		CodeVerifier: authorization.CodeVerifier,
		Reconnect:    req.Reconnect,
		Status:       ConnectAttemptPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.OAuth.pendingAttemptTTL()),
	}
	if err = s.attempts.Save(ctx, attempt); err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	fields["attempt_id"] = attempt.ID

	return ConnectResponse{
		Provider:  key,
		AuthURL:   authorization.URL,
		State:     state,
		UsePKCE:   cfg.UsePKCE,
		Reconnect: req.Reconnect,
		ExpiresAt: attempt.ExpiresAt,
	}, nil
}

// PollForCompletion waits until the attempt identified by req.State
// resolves, the completion window elapses, or ctx is done. A done context
// means the presenting surface went away and cancels the attempt.
func (s *Service) PollForCompletion(ctx context.Context, req CompletionRequest) (integration Integration, err error) {
	startedAt := s.now()
	fields := map[string]any{"user_id": req.UserID}
	defer func() {
		s.observeOperation(ctx, startedAt, "poll_for_completion", err, fields)
	}()

	if s.integrations == nil {
		err = s.mapError(fmt.Errorf("core: integration store is not configured"))
		return Integration{}, err
	}
	attempt, err := s.ownedAttempt(ctx, req.UserID, req.State)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["provider_id"] = attempt.ProviderID
	fields["attempt_id"] = attempt.ID

	deadline := attempt.CreatedAt.Add(s.config.OAuth.completionTimeout())
	interval := s.config.OAuth.completionPollInterval()
	for {
		integration, done, checkErr := s.checkAttempt(ctx, attempt)
		if done {
			err = s.mapError(checkErr)
			return integration, err
		}

		now := s.now()
		if !now.Before(deadline) {
			s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{Status: ConnectAttemptExpired, Reason: "completion window elapsed", At: now})
			err = s.mapError(fmt.Errorf("%w: %s", ErrOAuthTimedOut, attempt.ProviderID))
			return Integration{}, err
		}
		wait := min(interval, deadline.Sub(now))
		if sleepErr := s.sleep(ctx, wait); sleepErr != nil {
			s.resolveAttempt(context.WithoutCancel(ctx), attempt.State, ResolveAttemptInput{Status: ConnectAttemptCancelled, Reason: "caller went away", At: s.now()})
			err = s.mapError(fmt.Errorf("%w: %v", ErrOAuthCancelled, sleepErr))
			return Integration{}, err
		}

		attempt, err = s.attempts.Get(ctx, attempt.State)
		if err != nil {
			err = s.mapError(err)
			return Integration{}, err
		}
	}
}

// checkAttempt reports whether polling can stop, and with what result.
func (s *Service) checkAttempt(ctx context.Context, attempt ConnectAttempt) (Integration, bool, error) {
	switch attempt.Status {
	case ConnectAttemptCompleted:
		integration, err := s.integrations.FindByUserProvider(ctx, attempt.UserID, attempt.ProviderID)
		return integration, true, err
	case ConnectAttemptCancelled:
		return Integration{}, true, fmt.Errorf("%w: %s", ErrOAuthCancelled, attempt.ProviderID)
	case ConnectAttemptExpired:
		return Integration{}, true, fmt.Errorf("%w: %s", ErrOAuthTimedOut, attempt.ProviderID)
	case ConnectAttemptFailed:
		return Integration{}, true, fmt.Errorf("%w: %s", ErrConnectFailed, attempt.FailureReason)
	}
	if attempt.Status == ConnectAttemptPending && s.integrations != nil {
		existing, err := s.integrations.FindByUserProvider(ctx, attempt.UserID, attempt.ProviderID)
		if err == nil && existing.Status == IntegrationStatusActive && !existing.UpdatedAt.Before(attempt.CreatedAt) {
			return existing, true, nil
		}
	}
	return Integration{}, false, nil
}

// ConnectStatus is a single non-blocking look at an attempt.
func (s *Service) ConnectStatus(ctx context.Context, req CompletionRequest) (ConnectAttempt, error) {
	attempt, err := s.ownedAttempt(ctx, req.UserID, req.State)
	if err != nil {
		return ConnectAttempt{}, s.mapError(err)
	}
	now := s.now()
	if !attempt.Status.Terminal() && !now.Before(attempt.CreatedAt.Add(s.config.OAuth.completionTimeout())) {
		if resolved, resolveErr := s.attempts.Resolve(ctx, attempt.State, ResolveAttemptInput{
			Status: ConnectAttemptExpired,
			Reason: "completion window elapsed",
			At:     now,
		}); resolveErr == nil {
			attempt = resolved
		}
	}
	return attempt, nil
}

// CancelConnect abandons a non-terminal attempt. Terminal attempts are
// returned unchanged.
func (s *Service) CancelConnect(ctx context.Context, req CompletionRequest) (attempt ConnectAttempt, err error) {
	startedAt := s.now()
	fields := map[string]any{"user_id": req.UserID}
	defer func() {
		s.observeOperation(ctx, startedAt, "cancel_connect", err, fields)
	}()

	attempt, err = s.ownedAttempt(ctx, req.UserID, req.State)
	if err != nil {
		err = s.mapError(err)
		return ConnectAttempt{}, err
	}
	fields["provider_id"] = attempt.ProviderID
	if attempt.Status.Terminal() {
		return attempt, nil
	}
	resolved, resolveErr := s.attempts.Resolve(ctx, attempt.State, ResolveAttemptInput{
		Status: ConnectAttemptCancelled,
		Reason: "cancelled by user",
		At:     s.now(),
	})
	if resolveErr != nil && !errors.Is(resolveErr, ErrOAuthStateInvalid) {
		err = s.mapError(resolveErr)
		return ConnectAttempt{}, err
	}
	return resolved, nil
}

// CompleteConnect handles the provider redirect, including the denial and
// missing code cases, before exchanging the code.
func (s *Service) CompleteConnect(ctx context.Context, req CallbackRequest) (Integration, error) {
	if reason := strings.TrimSpace(req.Error); reason != "" {
		description := firstNonEmpty(req.ErrorDescription, reason)
		if strings.TrimSpace(req.State) != "" {
			s.resolveAttempt(ctx, req.State, ResolveAttemptInput{Status: ConnectAttemptFailed, Reason: description, At: s.now()})
		}
		return Integration{}, s.mapError(fmt.Errorf("%w: %s", ErrOAuthDenied, description))
	}
	if strings.TrimSpace(req.Code) == "" {
		if strings.TrimSpace(req.State) != "" {
			s.resolveAttempt(ctx, req.State, ResolveAttemptInput{Status: ConnectAttemptFailed, Reason: "missing authorization code", At: s.now()})
		}
		return Integration{}, s.mapError(fmt.Errorf("%w: authorization code is required", ErrBadInput))
	}
	return s.ExchangeCode(ctx, ExchangeRequest{
		UserID:   req.UserID,
		Provider: req.Provider,
		Code:     req.Code,
		State:    req.State,
	})
}

// ExchangeCode trades an authorization code for tokens and persists the
// integration as active. The attempt is consumed even when the exchange
// fails.
func (s *Service) ExchangeCode(ctx context.Context, req ExchangeRequest) (integration Integration, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"provider_id": req.Provider,
		"user_id":     req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "exchange_code", err, fields)
	}()

	if strings.TrimSpace(req.State) == "" {
		err = s.mapError(fmt.Errorf("%w: state is required", ErrOAuthStateInvalid))
		return Integration{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		err = s.mapError(fmt.Errorf("%w: authorization code is required", ErrBadInput))
		return Integration{}, err
	}
	key, cfg, err := s.configuredProvider(req.Provider)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["provider_id"] = key
	if s.exchanger == nil || s.integrations == nil {
		err = s.mapError(fmt.Errorf("core: token exchanger and integration store are required"))
		return Integration{}, err
	}

	attempt, err := s.attempts.Claim(ctx, req.State)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["attempt_id"] = attempt.ID
	if attempt.ProviderID != key || (strings.TrimSpace(req.UserID) != "" && attempt.UserID != req.UserID) {
		s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{Status: ConnectAttemptFailed, Reason: "state mismatch", At: s.now()})
		err = s.mapError(fmt.Errorf("%w: state does not belong to this user and provider", ErrOAuthStateInvalid))
		return Integration{}, err
	}
	fields["user_id"] = attempt.UserID
	if attempt.Expired(s.now()) {
		s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{Status: ConnectAttemptExpired, Reason: "state expired", At: s.now()})
		err = s.mapError(fmt.Errorf("%w: state expired", ErrOAuthStateInvalid))
		return Integration{}, err
	}

	token, err := s.exchanger.Exchange(ctx, cfg, CodeExchangeRequest{
		Code:         req.Code,
		RedirectURI:  attempt.RedirectURI,
		CodeVerifier: attempt.CodeVerifier,
	})
	if err != nil {
		s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{Status: ConnectAttemptFailed, Reason: err.Error(), At: s.now()})
		err = s.mapError(err)
		return Integration{}, err
	}

	now := s.now()
	scope := firstNonEmpty(token.Scope, strings.Join(cfg.Scopes, " "))
	configuration, providerFields := MapProviderData(key, token.Raw, SplitScope(scope))
	integration, err = s.integrations.Upsert(ctx, UpsertIntegrationInput{
		UserID:        attempt.UserID,
		ProviderID:    key,
		Status:        IntegrationStatusActive,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     normalizeExpiry(token, now),
		Scope:         scope,
		Configuration: configuration,
		Fields:        providerFields,
		LastUsedAt:    &now,
	})
	if err != nil {
		s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{Status: ConnectAttemptFailed, Reason: "integration persistence failed", At: s.now()})
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["integration_id"] = integration.ID
	s.resolveAttempt(ctx, attempt.State, ResolveAttemptInput{
		Status:        ConnectAttemptCompleted,
		IntegrationID: integration.ID,
		At:            s.now(),
	})

	s.scheduleFollowUps(ctx, integration, cfg)
	return integration, nil
}

func (s *Service) scheduleFollowUps(ctx context.Context, integration Integration, cfg ProviderConfig) {
	if s.followUps == nil || !s.config.FollowUp.Enabled {
		return
	}
	requests := []FollowUpRequest{}
	if cfg.FollowUp.BackfillDays > 0 {
		days := cfg.FollowUp.BackfillDays
		if s.config.FollowUp.BackfillDays > 0 {
			days = s.config.FollowUp.BackfillDays
		}
		requests = append(requests, FollowUpRequest{
			Kind:          FollowUpHealthBackfill,
			UserID:        integration.UserID,
			ProviderID:    integration.ProviderID,
			IntegrationID: integration.ID,
			Days:          days,
		})
	}
	if len(cfg.FollowUp.WebhookCollections) > 0 {
		requests = append(requests, FollowUpRequest{
			Kind:          FollowUpWebhookSubscriptions,
			UserID:        integration.UserID,
			ProviderID:    integration.ProviderID,
			IntegrationID: integration.ID,
			Collections:   append([]string(nil), cfg.FollowUp.WebhookCollections...),
		})
	}
	for _, req := range requests {
		if err := s.followUps.Schedule(ctx, req); err != nil {
			s.logWarn(ctx, "follow-up scheduling failed", map[string]any{
				"provider_id":    req.ProviderID,
				"integration_id": req.IntegrationID,
				"kind":           string(req.Kind),
				"error":          err.Error(),
			})
		}
	}
}

func (s *Service) ownedAttempt(ctx context.Context, userID string, state string) (ConnectAttempt, error) {
	if strings.TrimSpace(state) == "" {
		return ConnectAttempt{}, fmt.Errorf("%w: state is required", ErrOAuthStateInvalid)
	}
	attempt, err := s.attempts.Get(ctx, state)
	if err != nil {
		return ConnectAttempt{}, err
	}
	if attempt.UserID != strings.TrimSpace(userID) {
		return ConnectAttempt{}, fmt.Errorf("%w: state does not belong to this user", ErrOAuthStateInvalid)
	}
	return attempt, nil
}

func (s *Service) resolveAttempt(ctx context.Context, state string, input ResolveAttemptInput) {
	if _, err := s.attempts.Resolve(ctx, state, input); err != nil && !errors.Is(err, ErrOAuthStateInvalid) {
		s.logWarn(ctx, "connect attempt resolution failed", map[string]any{
			"status": string(input.Status),
			"error":  err.Error(),
		})
	}
}

// configuredProvider resolves a name to a provider with credentials.
func (s *Service) configuredProvider(name string) (string, ProviderConfig, error) {
	if s.registry == nil {
		return "", ProviderConfig{}, fmt.Errorf("%w: registry is not configured", ErrProviderNotConfigured)
	}
	cfg, err := s.registry.Config(name)
	if err != nil {
		return "", ProviderConfig{}, fmt.Errorf("%w: %w", ErrProviderNotConfigured, err)
	}
	if !cfg.Configured() {
		return "", ProviderConfig{}, fmt.Errorf("%w: %s has no client credentials", ErrProviderNotConfigured, cfg.Key)
	}
	return cfg.Key, cfg, nil
}

// normalizeExpiry prefers an absolute expiry and otherwise derives one from
// the relative lifetime.
func normalizeExpiry(token TokenEnvelope, now time.Time) *time.Time {
	if token.ExpiresAt != nil && !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt.UTC()
		return &expiresAt
	}
	if token.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
		return &expiresAt
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
