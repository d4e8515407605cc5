// Package execution calls the downstream automation execution service: the
// scheduler poll, the per-user event processor, and the manual executor.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/tidwall/gjson"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const (
	OperationPoll    = "poll"
	OperationProcess = "process"
	OperationExecute = "execute"

	defaultRequestTimeout = 60 * time.Second
	maxMessageBytes       = 2048
)

// Client implements core.ExecutionClient over a transport adapter.
type Client struct {
	cfg     core.DispatcherConfig
	adapter transport.Adapter
}

type Option func(*Client)

func WithAdapter(adapter transport.Adapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func NewClient(cfg core.DispatcherConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("execution: base url is required")
	}
	defaults := core.DefaultConfig().Dispatcher
	if strings.TrimSpace(cfg.PollPath) == "" {
		cfg.PollPath = defaults.PollPath
	}
	if strings.TrimSpace(cfg.ProcessPath) == "" {
		cfg.ProcessPath = defaults.ProcessPath
	}
	if strings.TrimSpace(cfg.ManualPath) == "" {
		cfg.ManualPath = defaults.ManualPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	client := &Client{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.adapter == nil {
		client.adapter = transport.NewRESTAdapter(&http.Client{Timeout: cfg.RequestTimeout})
	}
	return client, nil
}

// PollAutomation force-polls one automation, ignoring its schedule.
func (c *Client) PollAutomation(ctx context.Context, automationID string) (core.PollOutcome, error) {
	body, err := c.serviceCall(ctx, OperationPoll, c.cfg.PollPath, map[string]any{
		"automation_id": automationID,
	})
	if err != nil {
		return core.PollOutcome{}, err
	}
	return core.PollOutcome{
		ItemsFound:    firstInt(body, "data.items_found", "data.total_items_found"),
		EventsCreated: firstInt(body, "data.events_created", "data.total_events_created"),
	}, nil
}

// ProcessEvents drains pending events for a user, optionally scoped to one
// service.
func (c *Client) ProcessEvents(ctx context.Context, userID string, serviceName string) (core.ProcessOutcome, error) {
	payload := map[string]any{"user_id": userID}
	if service := strings.ToLower(strings.TrimSpace(serviceName)); service != "" {
		payload["service_name"] = service
	}
	body, err := c.serviceCall(ctx, OperationProcess, c.cfg.ProcessPath, payload)
	if err != nil {
		return core.ProcessOutcome{}, err
	}
	return core.ProcessOutcome{
		Successful: int(gjson.GetBytes(body, "data.successful").Int()),
		Failed:     int(gjson.GetBytes(body, "data.failed").Int()),
	}, nil
}

// ExecuteAutomation runs a manual execution on behalf of the caller, whose
// bearer token is forwarded as is.
func (c *Client) ExecuteAutomation(ctx context.Context, req core.ManualExecution) (core.ExecutionOutcome, error) {
	if strings.TrimSpace(req.BearerToken) == "" {
		return core.ExecutionOutcome{}, fmt.Errorf("%w: bearer token is required", core.ErrCredentialRequired)
	}
	payload := map[string]any{
		"automation_id": req.AutomationID,
		"trigger_data":  req.TriggerData,
		"test_mode":     req.TestMode,
	}
	res, err := c.post(ctx, OperationExecute, c.cfg.ManualPath, req.BearerToken, payload)
	if err != nil {
		return core.ExecutionOutcome{}, err
	}
	if !res.Success() {
		return core.ExecutionOutcome{}, &core.DownstreamError{
			Operation:  OperationExecute,
			StatusCode: res.StatusCode,
			Message:    executionErrorMessage(res.Body),
			Body:       truncate(string(res.Body)),
		}
	}

	parsed := gjson.ParseBytes(res.Body)
	outcome := core.ExecutionOutcome{
		ExecutionID:     firstString(res.Body, "execution_id", "data.execution_id"),
		ActionsExecuted: int(parsed.Get("data.result.actions_executed").Int()),
	}
	result := parsed.Get("data")
	if !result.Exists() || !result.IsObject() {
		result = parsed
	}
	if result.IsObject() {
		decoded := map[string]any{}
		if err := json.Unmarshal([]byte(result.Raw), &decoded); err == nil {
			outcome.Result = decoded
		}
	}
	return outcome, nil
}

func (c *Client) serviceCall(ctx context.Context, operation string, path string, payload map[string]any) ([]byte, error) {
	if strings.TrimSpace(c.cfg.ServiceToken) == "" {
		return nil, &core.DownstreamError{
			Operation:  operation,
			StatusCode: http.StatusInternalServerError,
			Message:    "Service configuration error",
		}
	}
	res, err := c.post(ctx, operation, path, c.cfg.ServiceToken, payload)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, &core.DownstreamError{
			Operation:  operation,
			StatusCode: res.StatusCode,
			Message:    truncate(string(res.Body)),
			Body:       truncate(string(res.Body)),
		}
	}
	return res.Body, nil
}

func (c *Client) post(ctx context.Context, operation string, path string, bearer string, payload any) (transport.Response, error) {
	req, err := transport.PostJSON(operation, c.endpoint(path), bearer, payload)
	if err != nil {
		return transport.Response{}, err
	}
	req.Timeout = c.cfg.RequestTimeout
	res, err := c.adapter.Do(ctx, req)
	if err != nil {
		status := http.StatusBadGateway
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.Code >= http.StatusBadRequest {
			status = rich.Code
		}
		return transport.Response{}, &core.DownstreamError{
			Operation:  operation,
			StatusCode: status,
			Message:    err.Error(),
		}
	}
	return res, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/") + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

// executionErrorMessage prefers the structured error, then the message,
// and falls back to the raw text for non-JSON bodies.
func executionErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		text := truncate(string(body))
		if text == "" {
			return "Execution failed"
		}
		return "Execution failed: " + text
	}
	if message := firstString(body, "error", "message"); message != "" {
		return message
	}
	return "Execution failed"
}

func firstInt(body []byte, paths ...string) int {
	for _, path := range paths {
		if value := gjson.GetBytes(body, path); value.Exists() && value.Type != gjson.Null {
			return int(value.Int())
		}
	}
	return 0
}

func firstString(body []byte, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(gjson.GetBytes(body, path).String()); value != "" {
			return value
		}
	}
	return ""
}

func truncate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxMessageBytes {
		return value
	}
	return value[:maxMessageBytes]
}

var _ core.ExecutionClient = (*Client)(nil)
