// Package identity turns a caller's bearer token into the user id the
// integration service scopes its records by.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/tidwall/gjson"
)

const (
	ErrorUnauthenticated = "IDENTITY_UNAUTHENTICATED"

	defaultRequestTimeout = 10 * time.Second
	maxUserResponseBytes  = 1 << 20 // 1 MiB
)

var ErrUnauthenticated = errors.New("identity: caller is not authenticated")

type UnauthenticatedError struct {
	Cause error
}

func (e *UnauthenticatedError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrUnauthenticated.Error()
	}
	return ErrUnauthenticated.Error() + ": " + e.Cause.Error()
}

func (e *UnauthenticatedError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrUnauthenticated
	}
	return errors.Join(ErrUnauthenticated, e.Cause)
}

// ToServiceError keeps the cause out of the public message.
func (e *UnauthenticatedError) ToServiceError() *goerrors.Error {
	return goerrors.New(ErrUnauthenticated.Error(), goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthenticated)
}

func unauthenticated(cause error) error {
	return &UnauthenticatedError{Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Resolver maps a bearer token to an identity.
type Resolver interface {
	Resolve(ctx context.Context, bearerToken string) (Identity, error)
}

// TokenVerifier validates a token locally and returns its claims.
type TokenVerifier func(ctx context.Context, token string) (map[string]any, error)

type Config struct {
	// UserInfoURL answers GET with the caller's user record when presented
	// the bearer token, e.g. {auth_url}/auth/v1/user.
	UserInfoURL    string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	// TokenVerifier, when set, is consulted before the user info endpoint.
	TokenVerifier TokenVerifier
}

type UserInfoResolver struct {
	userInfoURL    string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	verifier       TokenVerifier
}

func NewResolver(cfg Config) *UserInfoResolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &UserInfoResolver{
		userInfoURL:    strings.TrimSpace(cfg.UserInfoURL),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		verifier:       cfg.TokenVerifier,
	}
}

func (r *UserInfoResolver) Resolve(ctx context.Context, bearerToken string) (Identity, error) {
	if r == nil {
		return Identity{}, unauthenticated(nil)
	}
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return Identity{}, unauthenticated(fmt.Errorf("identity: bearer token is required"))
	}

	var verifyErr error
	if r.verifier != nil {
		claims, err := r.verifier(ctx, token)
		if err == nil {
			if identity := identityFromClaims(claims); identity.UserID != "" {
				return identity, nil
			}
			err = fmt.Errorf("identity: token has no subject")
		}
		verifyErr = err
	}

	if r.userInfoURL == "" {
		if verifyErr != nil {
			return Identity{}, unauthenticated(verifyErr)
		}
		return Identity{}, unauthenticated(fmt.Errorf("identity: no user info endpoint configured"))
	}

	body, err := r.fetchUser(ctx, token)
	if err != nil {
		return Identity{}, unauthenticated(err)
	}
	identity := identityFromBody(body)
	if identity.UserID == "" {
		return Identity{}, unauthenticated(fmt.Errorf("identity: user record has no id"))
	}
	return identity, nil
}

func (r *UserInfoResolver) fetchUser(ctx context.Context, token string) ([]byte, error) {
	requestCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, r.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxUserResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("identity: read user response: %w", err)
	}
	if int64(len(body)) > maxUserResponseBytes {
		return nil, fmt.Errorf("identity: user response exceeds %d bytes", maxUserResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: user endpoint returned status %d", res.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("identity: user response is not json")
	}
	return body, nil
}

// identityFromBody accepts both a bare user record and one wrapped in
// {"user": {...}}.
func identityFromBody(body []byte) Identity {
	parsed := gjson.ParseBytes(body)
	if user := parsed.Get("user"); user.IsObject() {
		parsed = user
	}
	return Identity{
		UserID: firstString(parsed, "id", "sub"),
		Email:  firstString(parsed, "email"),
		Role:   firstString(parsed, "role"),
	}
}

func identityFromClaims(claims map[string]any) Identity {
	return Identity{
		UserID: readString(claims["sub"]),
		Email:  readString(claims["email"]),
		Role:   readString(claims["role"]),
	}
}

func firstString(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(result.Get(path).String()); value != "" {
			return value
		}
	}
	return ""
}

func readString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// StaticResolver maps fixed tokens to identities. Useful for service tokens
// and tests.
type StaticResolver map[string]Identity

func (s StaticResolver) Resolve(_ context.Context, bearerToken string) (Identity, error) {
	identity, ok := s[strings.TrimSpace(bearerToken)]
	if !ok || identity.UserID == "" {
		return Identity{}, unauthenticated(nil)
	}
	return identity, nil
}

var (
	_ Resolver = (*UserInfoResolver)(nil)
	_ Resolver = StaticResolver(nil)
)
