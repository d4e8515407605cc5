package transport

import (
	"context"
	"net/url"
	"strings"
	"time"
)

type Request struct {
	// Operation names the downstream call in errors and response metadata,
	// e.g. poll, process, manual or health_backfill.
	Operation            string
	Method               string
	URL                  string
	BearerToken          string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// describe is the error metadata for req. The query string and credentials
// are left out.
func (r Request) describe() map[string]any {
	operation := strings.TrimSpace(r.Operation)
	if operation == "" {
		operation = "request"
	}
	meta := map[string]any{
		"adapter":   KindREST,
		"operation": operation,
	}
	if parsed, err := url.Parse(strings.TrimSpace(r.URL)); err == nil && parsed.Host != "" {
		meta["host"] = parsed.Host
		meta["path"] = parsed.Path
	}
	return meta
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Success reports a 2xx answer.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Adapter interface {
	Kind() string
	Do(ctx context.Context, req Request) (Response, error)
}
