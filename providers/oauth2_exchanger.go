package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
	maxErrorBodyBytes          = 2048
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OAuth2ExchangerConfig struct {
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
	Now                 func() time.Time
}

// OAuth2Exchanger builds authorization URLs with x/oauth2 and performs the
// code and refresh grants with a plain form POST so provider quirks
// (Basic vs body credentials, custom headers, form encoded answers) stay
// under our control.
type OAuth2Exchanger struct {
	timeout    time.Duration
	httpClient HTTPDoer
	now        func() time.Time
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ExpiresAt        int64
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

func NewOAuth2Exchanger(cfg OAuth2ExchangerConfig) *OAuth2Exchanger {
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}
	return &OAuth2Exchanger{
		timeout:    cfg.TokenRequestTimeout,
		httpClient: httpClient,
		now:        cfg.Now,
	}
}

func (e *OAuth2Exchanger) BeginAuthorization(cfg core.ProviderConfig, req core.AuthorizationRequest) (core.Authorization, error) {
	if strings.TrimSpace(cfg.AuthorizationURL) == "" {
		return core.Authorization{}, fmt.Errorf("providers: authorization url is required for provider %q", cfg.Key)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return core.Authorization{}, fmt.Errorf("%w: %s", core.ErrProviderNotConfigured, cfg.Key)
	}
	if strings.TrimSpace(req.State) == "" {
		return core.Authorization{}, fmt.Errorf("providers: state is required")
	}

	conf := oauthConfig(cfg, req.RedirectURI)
	options := make([]oauth2.AuthCodeOption, 0, len(cfg.AdditionalParams)+1)
	for _, key := range sortedKeys(cfg.AdditionalParams) {
		options = append(options, oauth2.SetAuthURLParam(key, cfg.AdditionalParams[key]))
	}
	authorization := core.Authorization{}
	if cfg.UsePKCE {
		authorization.CodeVerifier = oauth2.GenerateVerifier()
		options = append(options, oauth2.S256ChallengeOption(authorization.CodeVerifier))
	}
	authorization.URL = conf.AuthCodeURL(req.State, options...)
	return authorization, nil
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, cfg core.ProviderConfig, req core.CodeExchangeRequest) (core.TokenEnvelope, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenEnvelope{}, fmt.Errorf("providers: auth code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := firstNonEmpty(req.RedirectURI, cfg.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if verifier := strings.TrimSpace(req.CodeVerifier); verifier != "" {
		form.Set("code_verifier", verifier)
	}
	return e.fetchToken(ctx, cfg, form)
}

func (e *OAuth2Exchanger) Refresh(ctx context.Context, cfg core.ProviderConfig, refreshToken string) (core.TokenEnvelope, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenEnvelope{}, fmt.Errorf("providers: refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return e.fetchToken(ctx, cfg, form)
}

func (e *OAuth2Exchanger) fetchToken(ctx context.Context, cfg core.ProviderConfig, form url.Values) (core.TokenEnvelope, error) {
	if e == nil || e.httpClient == nil {
		return core.TokenEnvelope{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return core.TokenEnvelope{}, fmt.Errorf("providers: token url is required for provider %q", cfg.Key)
	}

	form.Set("client_id", cfg.ClientID)
	if !cfg.UseBasicAuth && cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	requestCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.TokenEnvelope{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if cfg.UseBasicAuth && cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	}
	for _, key := range sortedKeys(cfg.CustomHeaders) {
		httpReq.Header.Set(key, cfg.CustomHeaders[key])
	}

	response, err := e.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenEnvelope{}, fmt.Errorf("%w: %s token request failed: %w", core.ErrTokenExchangeFailed, cfg.Key, err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return core.TokenEnvelope{}, fmt.Errorf("%w: read %s token response: %w", core.ErrTokenExchangeFailed, cfg.Key, readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return core.TokenEnvelope{}, fmt.Errorf("%w: %s token response exceeds %d bytes", core.ErrTokenExchangeFailed, cfg.Key, maxTokenResponseBodyBytes)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.TokenEnvelope{}, &core.TokenExchangeFailedError{
			Provider: cfg.Key,
			Status:   response.StatusCode,
			Body:     truncate(string(body), maxErrorBodyBytes),
		}
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return core.TokenEnvelope{}, fmt.Errorf("%w: decode %s token response: %w", core.ErrTokenExchangeFailed, cfg.Key, parseErr)
	}
	// Slack answers 200 with ok=false for rejected grants.
	if payload.ErrorCode != "" || strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenEnvelope{}, &core.TokenExchangeFailedError{
			Provider: cfg.Key,
			Status:   response.StatusCode,
			Body:     describeTokenError(payload),
		}
	}
	return e.envelope(payload), nil
}

func (e *OAuth2Exchanger) envelope(payload tokenEndpointPayload) core.TokenEnvelope {
	envelope := core.TokenEnvelope{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    normalizeTokenType(payload.TokenType),
		Scope:        payload.Scope,
		ExpiresIn:    payload.ExpiresIn,
		Raw:          payload.Raw,
	}
	switch {
	case payload.ExpiresAt > 0:
		expiresAt := time.Unix(payload.ExpiresAt, 0).UTC()
		envelope.ExpiresAt = &expiresAt
	case payload.ExpiresIn > 0:
		expiresAt := e.now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
		envelope.ExpiresAt = &expiresAt
	}
	return envelope
}

func oauthConfig(cfg core.ProviderConfig, redirectURI string) *oauth2.Config {
	authStyle := oauth2.AuthStyleInParams
	if cfg.UseBasicAuth {
		authStyle = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: authStyle,
		},
		RedirectURL: firstNonEmpty(redirectURI, cfg.RedirectURI),
		Scopes:      append([]string(nil), cfg.Scopes...),
	}
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "token endpoint response missing access token"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if !gjson.ValidBytes(body) {
		return tokenEndpointPayload{}, fmt.Errorf("invalid json payload")
	}
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return tokenEndpointPayload{}, err
	}
	parsed := gjson.ParseBytes(body)
	payload := tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(parsed.Get("access_token").String()),
		TokenType:        strings.TrimSpace(parsed.Get("token_type").String()),
		RefreshToken:     strings.TrimSpace(parsed.Get("refresh_token").String()),
		Scope:            strings.TrimSpace(parsed.Get("scope").String()),
		ExpiresIn:        parsed.Get("expires_in").Int(),
		ExpiresAt:        parsed.Get("expires_at").Int(),
		ErrorCode:        strings.TrimSpace(parsed.Get("error").String()),
		ErrorDescription: strings.TrimSpace(parsed.Get("error_description").String()),
		Raw:              raw,
	}
	if ok := parsed.Get("ok"); ok.Exists() && !ok.Bool() && payload.ErrorCode == "" {
		payload.ErrorCode = "provider rejected the grant"
	}
	return payload, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	raw := make(map[string]any, len(values))
	for key := range values {
		raw[key] = values.Get(key)
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		Raw:              raw,
	}, nil
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

var _ core.TokenExchanger = (*OAuth2Exchanger)(nil)
