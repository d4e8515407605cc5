package followup

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// SubscriptionRecorder stores the webhook collections a fitbit integration
// should be subscribed to on its configuration.
type SubscriptionRecorder struct {
	store core.IntegrationStore
}

func NewSubscriptionRecorder(store core.IntegrationStore) *SubscriptionRecorder {
	return &SubscriptionRecorder{store: store}
}

func (r *SubscriptionRecorder) Handle(ctx context.Context, req core.FollowUpRequest) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("followup: integration store is not configured")
	}
	integration, err := r.store.Get(ctx, req.IntegrationID)
	if err != nil {
		return err
	}
	cfg, ok := integration.Configuration.(core.FitbitConfiguration)
	if !ok {
		return fmt.Errorf("followup: integration %s has no fitbit configuration", integration.ID)
	}
	merged, changed := mergeCollections(cfg.WebhookSubscriptions, req.Collections)
	if !changed {
		return nil
	}
	cfg.WebhookSubscriptions = merged
	_, err = r.store.UpdateConfiguration(ctx, integration.ID, cfg)
	return err
}

func mergeCollections(existing []string, additions []string) ([]string, bool) {
	out := append([]string{}, existing...)
	seen := make(map[string]struct{}, len(existing))
	for _, value := range existing {
		seen[value] = struct{}{}
	}
	changed := false
	for _, value := range additions {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
		changed = true
	}
	return out, changed
}
