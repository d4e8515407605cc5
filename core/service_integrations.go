package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type RefreshRequest struct {
	UserID   string
	Provider string
}

type ReconnectRequest struct {
	UserID        string
	IntegrationID string
	Provider      string
}

type DisconnectRequest struct {
	UserID        string
	IntegrationID string
	Provider      string
}

// ProviderListing pairs a provider key with its presentation metadata.
type ProviderListing struct {
	Key        string             `json:"key"`
	URLName    string             `json:"url_name"`
	Descriptor ProviderDescriptor `json:"descriptor"`
	UsePKCE    bool               `json:"use_pkce"`
	Scopes     []string           `json:"scopes"`
}

// Refresh obtains a new access token with the stored refresh token.
// Provider data and workspace fields survive the refresh.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (integration Integration, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"provider_id": req.Provider,
		"user_id":     req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	if strings.TrimSpace(req.UserID) == "" {
		err = s.mapError(fmt.Errorf("%w: user id is required", ErrBadInput))
		return Integration{}, err
	}
	if s.integrations == nil || s.exchanger == nil {
		err = s.mapError(fmt.Errorf("core: integration store and token exchanger are required"))
		return Integration{}, err
	}
	key := NormalizeProviderName(req.Provider)
	if s.registry != nil {
		if resolved, resolveErr := s.registry.Resolve(req.Provider); resolveErr == nil {
			key = resolved
		}
	}
	fields["provider_id"] = key

	existing, err := s.integrations.FindByUserProvider(ctx, req.UserID, key)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["integration_id"] = existing.ID
	_, cfg, err := s.configuredProvider(key)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	if strings.TrimSpace(existing.RefreshToken) == "" {
		s.markFailed(ctx, existing)
		err = s.mapError(fmt.Errorf("%w: %s integration has no refresh token", ErrRefreshFailed, key))
		return Integration{}, err
	}

	token, err := s.exchanger.Refresh(ctx, cfg, existing.RefreshToken)
	if err != nil {
		s.markFailed(ctx, existing)
		err = s.mapError(fmt.Errorf("%w: %w", ErrRefreshFailed, err))
		return Integration{}, err
	}

	now := s.now()
	scope := firstNonEmpty(token.Scope, existing.Scope)
	_, refreshedFields := MapProviderData(key, token.Raw, SplitScope(scope))
	integration, err = s.integrations.Upsert(ctx, UpsertIntegrationInput{
		UserID:        existing.UserID,
		ProviderID:    existing.ProviderID,
		Status:        IntegrationStatusActive,
		AccessToken:   token.AccessToken,
		RefreshToken:  firstNonEmpty(token.RefreshToken, existing.RefreshToken),
		ExpiresAt:     normalizeExpiry(token, now),
		Scope:         scope,
		Configuration: existing.Configuration,
		Fields:        refreshedFields.Merge(existing.Fields),
		LastUsedAt:    &now,
	})
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	return integration, nil
}

func (s *Service) markFailed(ctx context.Context, integration Integration) {
	if err := integration.TransitionTo(IntegrationStatusFailed, s.now()); err != nil {
		return
	}
	if _, err := s.integrations.UpdateStatus(ctx, integration.ID, IntegrationStatusFailed); err != nil {
		s.logWarn(ctx, "integration failure status update failed", map[string]any{
			"integration_id": integration.ID,
			"error":          err.Error(),
		})
	}
}

// Reconnect moves an owned integration back to pending and starts a fresh
// connect flow for the same provider.
func (s *Service) Reconnect(ctx context.Context, req ReconnectRequest) (response ConnectResponse, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"provider_id":    req.Provider,
		"user_id":        req.UserID,
		"integration_id": req.IntegrationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "reconnect", err, fields)
	}()

	integration, err := s.ownedIntegration(ctx, req.UserID, req.IntegrationID)
	if err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	provider := firstNonEmpty(req.Provider, integration.ProviderID)
	if s.registry != nil {
		if key, resolveErr := s.registry.Resolve(provider); resolveErr == nil && key != integration.ProviderID {
			err = s.mapError(fmt.Errorf("%w: integration belongs to %s", ErrBadInput, integration.ProviderID))
			return ConnectResponse{}, err
		}
	}
	if err = integration.TransitionTo(IntegrationStatusPending, s.now()); err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	if _, err = s.integrations.UpdateStatus(ctx, integration.ID, IntegrationStatusPending); err != nil {
		err = s.mapError(err)
		return ConnectResponse{}, err
	}
	return s.InitiateConnect(ctx, ConnectRequest{
		UserID:    req.UserID,
		Provider:  integration.ProviderID,
		Reconnect: true,
	})
}

// Disconnect marks the integration inactive, confirms ownership, and then
// removes it.
func (s *Service) Disconnect(ctx context.Context, req DisconnectRequest) (err error) {
	startedAt := s.now()
	fields := map[string]any{
		"provider_id":    req.Provider,
		"user_id":        req.UserID,
		"integration_id": req.IntegrationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	integration, err := s.ownedIntegration(ctx, req.UserID, req.IntegrationID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["provider_id"] = integration.ProviderID
	if err = integration.TransitionTo(IntegrationStatusInactive, s.now()); err != nil {
		err = s.mapError(err)
		return err
	}
	if _, err = s.integrations.UpdateStatus(ctx, integration.ID, IntegrationStatusInactive); err != nil {
		err = s.mapError(err)
		return err
	}
	if _, verifyErr := s.integrations.FindOwned(ctx, req.UserID, integration.ID); verifyErr != nil {
		if errors.Is(verifyErr, ErrIntegrationNotFound) {
			err = s.mapError(fmt.Errorf("%w: not found or not accessible", ErrIntegrationNotFound))
			return err
		}
		err = s.mapError(verifyErr)
		return err
	}
	removed, err := s.integrations.Delete(ctx, req.UserID, integration.ID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if removed == 0 {
		err = s.mapError(fmt.Errorf("%w: %s was not removed", ErrDisconnectBlocked, integration.ID))
		return err
	}
	return nil
}

func (s *Service) ListIntegrations(ctx context.Context, userID string) ([]Integration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, s.mapError(fmt.Errorf("%w: user id is required", ErrBadInput))
	}
	if s.integrations == nil {
		return nil, s.mapError(fmt.Errorf("core: integration store is not configured"))
	}
	items, err := s.integrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return items, nil
}

// ListProviders returns the providers a user can connect right now.
func (s *Service) ListProviders() []ProviderListing {
	if s == nil || s.registry == nil {
		return nil
	}
	configs := s.registry.List()
	out := make([]ProviderListing, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Configured() {
			continue
		}
		out = append(out, ProviderListing{
			Key:        cfg.Key,
			URLName:    cfg.URLName,
			Descriptor: cfg.Descriptor,
			UsePKCE:    cfg.UsePKCE,
			Scopes:     append([]string(nil), cfg.Scopes...),
		})
	}
	return out
}

func (s *Service) ownedIntegration(ctx context.Context, userID string, integrationID string) (Integration, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(integrationID) == "" {
		return Integration{}, fmt.Errorf("%w: user id and integration id are required", ErrBadInput)
	}
	if s.integrations == nil {
		return Integration{}, fmt.Errorf("core: integration store is not configured")
	}
	return s.integrations.FindOwned(ctx, userID, integrationID)
}
