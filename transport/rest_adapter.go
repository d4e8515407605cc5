package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	KindREST = "rest"

	defaultClientTimeout = 30 * time.Second
	defaultBodyLimit     = int64(10 << 20) // 10 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter calls the downstream execution and sync functions. Every call
// is a single attempt.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// Do sends req and returns any HTTP answer as a Response. Only transport
// failures are errors; non-2xx statuses are left to the caller.
func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	meta := req.describe()
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, meta)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: build request", http.StatusBadRequest, meta)
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: "+meta["operation"].(string)+" request failed", http.StatusBadGateway, meta)
	}
	defer httpRes.Body.Close()

	limit := req.MaxResponseBodyBytes
	if limit <= 0 {
		limit = a.MaxResponseBodyBytes
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	body, err := readLimited(httpRes.Body, limit)
	if err != nil {
		meta["status_code"] = httpRes.StatusCode
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, meta)
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"operation":   meta["operation"],
			"duration_ms": time.Since(startedAt).Milliseconds(),
		},
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("absolute url is required, got %q", target)
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, parsed.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for _, headers := range []map[string]string{a.DefaultHeaders, req.Headers} {
		for key, value := range headers {
			if key = strings.TrimSpace(key); key != "" {
				httpReq.Header.Set(key, strings.TrimSpace(value))
			}
		}
	}
	if token := strings.TrimSpace(req.BearerToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// readLimited reads at most limit bytes and fails when the body is longer.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", limit)
	}
	return raw, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

// PostJSON builds a bearer-authenticated JSON POST for a named downstream
// operation.
func PostJSON(operation string, target string, bearerToken string, payload any) (Request, error) {
	req := Request{
		Operation:   operation,
		Method:      http.MethodPost,
		URL:         target,
		BearerToken: bearerToken,
		Headers:     map[string]string{"Accept": "application/json"},
	}
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: encode json body", http.StatusBadRequest, req.describe())
	}
	req.Body = body
	req.Headers["Content-Type"] = "application/json"
	return req, nil
}

var _ Adapter = (*RESTAdapter)(nil)
