package followup

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
	"github.com/tidwall/gjson"
)

// BackfillConfig addresses the health-data-sync endpoint.
type BackfillConfig struct {
	BaseURL      string
	Path         string
	ServiceToken string
	Timeout      time.Duration
}

// BackfillConfigFrom reads the endpoint settings from the service config.
func BackfillConfigFrom(cfg core.Config) BackfillConfig {
	return BackfillConfig{
		BaseURL:      cfg.Dispatcher.BaseURL,
		Path:         cfg.FollowUp.HealthSyncPath,
		ServiceToken: cfg.Dispatcher.ServiceToken,
		Timeout:      cfg.Dispatcher.RequestTimeout,
	}
}

// BackfillHandler asks the health sync service to pull historical data for
// a freshly connected integration.
type BackfillHandler struct {
	cfg      BackfillConfig
	adapter  transport.Adapter
	registry core.Registry
}

func NewBackfillHandler(cfg BackfillConfig, adapter transport.Adapter, registry core.Registry) (*BackfillHandler, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("followup: base url is required")
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = core.DefaultConfig().FollowUp.HealthSyncPath
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &BackfillHandler{cfg: cfg, adapter: adapter, registry: registry}, nil
}

func (h *BackfillHandler) Handle(ctx context.Context, req core.FollowUpRequest) error {
	if strings.TrimSpace(h.cfg.ServiceToken) == "" {
		return fmt.Errorf("followup: service token is not configured")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("followup: backfill for %s has no user", req.IntegrationID)
	}
	days := req.Days
	if days <= 0 {
		days = core.DefaultConfig().FollowUp.BackfillDays
	}
	endpoint := strings.TrimRight(strings.TrimSpace(h.cfg.BaseURL), "/") + "/" + strings.TrimLeft(strings.TrimSpace(h.cfg.Path), "/")
	httpReq, err := transport.PostJSON("health_backfill", endpoint, h.cfg.ServiceToken, map[string]any{
		"action":       "backfill",
		"user_id":      req.UserID,
		"days":         days,
		"service_name": h.serviceName(req.ProviderID),
	})
	if err != nil {
		return err
	}
	httpReq.Timeout = h.cfg.Timeout

	res, err := h.adapter.Do(ctx, httpReq)
	if err != nil {
		return err
	}
	if !res.Success() {
		return &core.DownstreamError{
			Operation:  "health_backfill",
			StatusCode: res.StatusCode,
			Message:    syncErrorMessage(res.Body),
			Body:       string(res.Body),
		}
	}
	if result := gjson.GetBytes(res.Body, "success"); result.Exists() && !result.Bool() {
		return &core.DownstreamError{
			Operation:  "health_backfill",
			StatusCode: http.StatusBadGateway,
			Message:    syncErrorMessage(res.Body),
			Body:       string(res.Body),
		}
	}
	return nil
}

// serviceName uses the display name the sync service keys its providers by.
func (h *BackfillHandler) serviceName(providerID string) string {
	if h.registry != nil {
		if descriptor, err := h.registry.Descriptor(providerID); err == nil && descriptor.DisplayName != "" {
			return descriptor.DisplayName
		}
	}
	name := strings.TrimSpace(providerID)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func syncErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "message"} {
			if value := strings.TrimSpace(gjson.GetBytes(body, path).String()); value != "" {
				return value
			}
		}
		return "health sync failed"
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return "health sync failed: " + text
	}
	return "health sync failed"
}
