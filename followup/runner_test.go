package followup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/core"
)

func TestRunnerAcksSuccessfulWork(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	runner := NewRunner(q)
	var handled core.FollowUpRequest
	runner.Handle(core.FollowUpHealthBackfill, HandlerFunc(func(_ context.Context, req core.FollowUpRequest) error {
		handled = req
		return nil
	}))

	scheduler := gojob.NewScheduler(q)
	if err := scheduler.Schedule(ctx, core.FollowUpRequest{
		Kind:          core.FollowUpHealthBackfill,
		UserID:        "u1",
		ProviderID:    "oura",
		IntegrationID: "int_1",
		Days:          7,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := runner.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handled.IntegrationID != "int_1" || handled.Days != 7 {
		t.Fatalf("unexpected handled request %#v", handled)
	}
	if q.Len() != 0 || len(q.DeadLetters()) != 0 {
		t.Fatalf("expected queue to be drained")
	}
}

func TestRunnerRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	runner := NewRunner(q,
		WithRetryDelay(0),
		WithRetryPolicy(gojob.RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
	)
	calls := 0
	runner.Handle(core.FollowUpHealthBackfill, HandlerFunc(func(context.Context, core.FollowUpRequest) error {
		calls++
		return errors.New("sync unavailable")
	}))
	_ = gojob.NewScheduler(q).Schedule(ctx, core.FollowUpRequest{Kind: core.FollowUpHealthBackfill, IntegrationID: "int_1"})

	if err := runner.ProcessNext(ctx); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if q.Len() != 1 {
		t.Fatalf("expected message to be requeued after first failure")
	}
	if err := runner.ProcessNext(ctx); err == nil {
		t.Fatalf("expected second attempt to fail")
	}
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
	letters := q.DeadLetters()
	if len(letters) != 1 || letters[0].Reason != "sync unavailable" {
		t.Fatalf("expected dead letter after max attempts, got %#v", letters)
	}
}

func TestRunnerDeadLettersUnhandledKinds(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	runner := NewRunner(q)
	_ = gojob.NewScheduler(q).Schedule(ctx, core.FollowUpRequest{Kind: core.FollowUpWebhookSubscriptions, IntegrationID: "int_1"})

	if err := runner.ProcessNext(ctx); err == nil {
		t.Fatalf("expected missing handler error")
	}
	if len(q.DeadLetters()) != 1 {
		t.Fatalf("expected dead letter for unhandled kind")
	}
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(4)
	runner := NewRunner(q)
	var handled atomic.Int32
	runner.Handle(core.FollowUpHealthBackfill, HandlerFunc(func(context.Context, core.FollowUpRequest) error {
		handled.Add(1)
		return nil
	}))
	_ = gojob.NewScheduler(q).Schedule(context.Background(), core.FollowUpRequest{Kind: core.FollowUpHealthBackfill, IntegrationID: "int_1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for handled.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop")
	}
	if handled.Load() != 1 {
		t.Fatalf("expected one handled job, got %d", handled.Load())
	}
}

func TestWorkerBackfillsAndRecordsSubscriptions(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-role" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	cfg := core.DefaultConfig()
	cfg.Dispatcher.BaseURL = server.URL
	cfg.Dispatcher.ServiceToken = "service-role"
	store := newFakeIntegrationStore(core.Integration{
		ID:            "int_fitbit",
		UserID:        "u1",
		ProviderID:    "fitbit",
		Configuration: core.FitbitConfiguration{WebhookSubscriptions: []string{}},
	})
	worker, err := NewWorker(WorkerDeps{Config: cfg, Store: store})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	ctx := context.Background()
	_ = worker.Scheduler.Schedule(ctx, core.FollowUpRequest{Kind: core.FollowUpHealthBackfill, UserID: "u1", ProviderID: "fitbit", IntegrationID: "int_fitbit", Days: 7})
	_ = worker.Scheduler.Schedule(ctx, core.FollowUpRequest{Kind: core.FollowUpWebhookSubscriptions, UserID: "u1", ProviderID: "fitbit", IntegrationID: "int_fitbit", Collections: []string{"sleep", "body"}})

	for i := 0; i < 2; i++ {
		if err := worker.Runner.ProcessNext(ctx); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if payload["action"] != "backfill" || payload["service_name"] != "Fitbit" || payload["days"] != float64(7) {
		t.Fatalf("unexpected backfill payload %#v", payload)
	}
	cfgOut := store.integrations["int_fitbit"].Configuration.(core.FitbitConfiguration)
	if len(cfgOut.WebhookSubscriptions) != 2 || cfgOut.WebhookSubscriptions[0] != "sleep" {
		t.Fatalf("unexpected subscriptions %#v", cfgOut.WebhookSubscriptions)
	}
}
