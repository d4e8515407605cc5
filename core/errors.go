package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput                  = "SERVICE_BAD_INPUT"
	ServiceErrorInternal                  = "SERVICE_INTERNAL_ERROR"
	IntegrationErrorProviderNotConfigured = "INTEGRATION_PROVIDER_NOT_CONFIGURED"
	IntegrationErrorNotFound              = "INTEGRATION_NOT_FOUND"
	IntegrationErrorOAuthStateInvalid     = "INTEGRATION_OAUTH_STATE_INVALID"
	IntegrationErrorOAuthTimedOut         = "INTEGRATION_OAUTH_TIMED_OUT"
	IntegrationErrorOAuthCancelled        = "INTEGRATION_OAUTH_CANCELLED"
	IntegrationErrorOAuthDenied           = "INTEGRATION_OAUTH_DENIED"
	IntegrationErrorConnectFailed         = "INTEGRATION_CONNECT_FAILED"
	IntegrationErrorTokenExchangeFailed   = "INTEGRATION_TOKEN_EXCHANGE_FAILED"
	IntegrationErrorRefreshFailed         = "INTEGRATION_REFRESH_FAILED"
	IntegrationErrorDisconnectBlocked     = "INTEGRATION_DISCONNECT_BLOCKED"
	IntegrationErrorInvalidTransition     = "INTEGRATION_INVALID_TRANSITION"
	AutomationErrorNotFound               = "AUTOMATION_NOT_FOUND"
	AutomationErrorPaused                 = "AUTOMATION_PAUSED"
	AutomationErrorCredentialRequired     = "AUTOMATION_CREDENTIAL_REQUIRED"
	RequestErrorNotFound                  = "REQUEST_NOT_FOUND"
	RequestErrorAlreadyExists             = "REQUEST_ALREADY_EXISTS"
)

var (
	ErrBadInput                = errors.New("core: invalid input")
	ErrProviderNotFound        = errors.New("core: provider not found")
	ErrProviderNotConfigured   = errors.New("core: provider not configured")
	ErrIntegrationNotFound     = errors.New("core: integration not found")
	ErrOAuthStateInvalid       = errors.New("core: oauth state invalid")
	ErrOAuthTimedOut           = errors.New("core: oauth completion timed out")
	ErrOAuthCancelled          = errors.New("core: oauth flow cancelled")
	ErrOAuthDenied             = errors.New("core: oauth authorization denied")
	ErrConnectFailed           = errors.New("core: connect attempt failed")
	ErrTokenExchangeFailed     = errors.New("core: token exchange failed")
	ErrRefreshFailed           = errors.New("core: token refresh failed")
	ErrDisconnectBlocked       = errors.New("core: disconnect blocked")
	ErrInvalidStatusTransition = errors.New("core: invalid integration status transition")
	ErrAutomationNotFound      = errors.New("core: automation not found")
	ErrAutomationPaused        = errors.New("core: automation is paused")
	ErrCredentialRequired      = errors.New("core: caller credential is required")
	ErrRequestNotFound         = errors.New("core: request not found")
	ErrRequestExists           = errors.New("core: request already exists")
)

// TokenExchangeFailedError carries the provider's rejection of a code or
// refresh token grant.
type TokenExchangeFailedError struct {
	Provider string
	Status   int
	Body     string
}

func (e *TokenExchangeFailedError) Error() string {
	if e == nil {
		return ErrTokenExchangeFailed.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s returned status %d", ErrTokenExchangeFailed.Error(), e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: %s", ErrTokenExchangeFailed.Error(), e.Provider)
}

func (e *TokenExchangeFailedError) Unwrap() error {
	return ErrTokenExchangeFailed
}

// DownstreamError is a non-success answer from the execution service.
type DownstreamError struct {
	Operation  string
	StatusCode int
	Message    string
	Body       string
}

func (e *DownstreamError) Error() string {
	if e == nil {
		return "core: downstream call failed"
	}
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("core: %s failed with status %d: %s", e.Operation, e.StatusCode, message)
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	var exchangeErr *TokenExchangeFailedError
	if errors.As(err, &exchangeErr) {
		textCode := IntegrationErrorTokenExchangeFailed
		if errors.Is(err, ErrRefreshFailed) {
			textCode = IntegrationErrorRefreshFailed
		}
		mapped := wrapServiceError(err, goerrors.CategoryExternal, textCode)
		mapped.Code = http.StatusBadGateway
		return mapped.WithMetadata(map[string]any{
			"provider": exchangeErr.Provider,
			"status":   exchangeErr.Status,
			"body":     exchangeErr.Body,
		})
	}
	var downstreamErr *DownstreamError
	if errors.As(err, &downstreamErr) {
		mapped := wrapServiceError(err, goerrors.CategoryExternal, ServiceErrorInternal)
		mapped.Code = downstreamStatus(downstreamErr.StatusCode)
		return mapped.WithMetadata(map[string]any{"operation": downstreamErr.Operation})
	}

	for _, candidate := range sentinelMappings {
		if errors.Is(err, candidate.sentinel) {
			mapped := wrapServiceError(err, candidate.category, candidate.textCode)
			if candidate.status > 0 {
				mapped.Code = candidate.status
			}
			return mapped
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return wrapServiceError(err, goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

type sentinelMapping struct {
	sentinel error
	category goerrors.Category
	textCode string
	status   int
}

// Order matters: wrapped chains can carry more than one sentinel and the
// first match wins.
var sentinelMappings = []sentinelMapping{
	{ErrRefreshFailed, goerrors.CategoryExternal, IntegrationErrorRefreshFailed, http.StatusBadGateway},
	{ErrTokenExchangeFailed, goerrors.CategoryExternal, IntegrationErrorTokenExchangeFailed, http.StatusBadGateway},
	{ErrProviderNotConfigured, goerrors.CategoryNotFound, IntegrationErrorProviderNotConfigured, 0},
	{ErrProviderNotFound, goerrors.CategoryNotFound, IntegrationErrorProviderNotConfigured, 0},
	{ErrIntegrationNotFound, goerrors.CategoryNotFound, IntegrationErrorNotFound, 0},
	{ErrOAuthStateInvalid, goerrors.CategoryAuth, IntegrationErrorOAuthStateInvalid, 0},
	{ErrOAuthTimedOut, goerrors.CategoryOperation, IntegrationErrorOAuthTimedOut, http.StatusRequestTimeout},
	{ErrOAuthCancelled, goerrors.CategoryConflict, IntegrationErrorOAuthCancelled, 0},
	{ErrOAuthDenied, goerrors.CategoryAuth, IntegrationErrorOAuthDenied, 0},
	{ErrConnectFailed, goerrors.CategoryExternal, IntegrationErrorConnectFailed, http.StatusBadGateway},
	{ErrDisconnectBlocked, goerrors.CategoryConflict, IntegrationErrorDisconnectBlocked, 0},
	{ErrInvalidStatusTransition, goerrors.CategoryConflict, IntegrationErrorInvalidTransition, 0},
	{ErrAutomationNotFound, goerrors.CategoryNotFound, AutomationErrorNotFound, 0},
	{ErrAutomationPaused, goerrors.CategoryBadInput, AutomationErrorPaused, 0},
	{ErrCredentialRequired, goerrors.CategoryAuth, AutomationErrorCredentialRequired, 0},
	{ErrRequestNotFound, goerrors.CategoryNotFound, RequestErrorNotFound, 0},
	{ErrRequestExists, goerrors.CategoryConflict, RequestErrorAlreadyExists, 0},
	{ErrBadInput, goerrors.CategoryBadInput, ServiceErrorBadInput, 0},
}

func downstreamStatus(status int) int {
	if status >= http.StatusBadRequest && status < 600 {
		return status
	}
	return http.StatusBadGateway
}

func wrapServiceError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return IntegrationErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntegrationErrorOAuthStateInvalid
	case goerrors.CategoryConflict:
		return IntegrationErrorInvalidTransition
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts any lifecycle, dispatcher, or tracker error into the
// transport-neutral envelope used by the HTTP and command layers.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
