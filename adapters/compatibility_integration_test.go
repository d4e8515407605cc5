package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/followup"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("integrations", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueuer := &compatEnqueuer{}
	scheduler := gojob.NewScheduler(enqueuer)
	if err := scheduler.Schedule(ctx, core.FollowUpRequest{
		Kind:          core.FollowUpHealthBackfill,
		UserID:        "usr_1",
		ProviderID:    "oura",
		IntegrationID: "int_1",
		Days:          30,
	}); err != nil {
		t.Fatalf("schedule via gojob scheduler: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != gojob.JobIDHealthBackfill {
		t.Fatalf("expected go-job message mapping through scheduler")
	}
	if enqueuer.last.IdempotencyKey != gojob.JobIDHealthBackfill+":int_1" {
		t.Fatalf("unexpected idempotency key %q", enqueuer.last.IdempotencyKey)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("integrations.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_FollowUpQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := followup.NewMemoryQueue(4)
	defer q.Close()
	scheduler := gojob.NewScheduler(q)

	req := core.FollowUpRequest{
		Kind:          core.FollowUpWebhookSubscriptions,
		UserID:        "usr_1",
		ProviderID:    "fitbit",
		IntegrationID: "int_fitbit",
		Collections:   []string{"activities", "sleep"},
	}
	for i := 0; i < 2; i++ {
		if err := scheduler.Schedule(ctx, req); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("expected duplicate follow-up to collapse, got %d queued", q.Len())
	}

	delivery, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got, err := gojob.FromExecutionMessage(delivery.Message())
	if err != nil {
		t.Fatalf("decode execution message: %v", err)
	}
	if got.Kind != req.Kind || got.IntegrationID != req.IntegrationID || len(got.Collections) != 2 {
		t.Fatalf("unexpected round-tripped request: %#v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestRuntimeCompatibility_CommandDispatchThroughWrappers(t *testing.T) {
	svc := &compatRequestService{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	sub, err := gocommand.RegisterAndSubscribe[integrationcommand.RequestCancellationMessage](
		adapter,
		integrationcommand.NewRequestCancellationCommand(svc),
	)
	if err != nil {
		t.Fatalf("register cancellation wrapper: %v", err)
	}
	defer sub.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(context.Background(), integrationcommand.RequestCancellationMessage{
		UserID:    "usr_1",
		RequestID: "req_1",
		Metadata:  map[string]any{"reason": "user"},
	}); err != nil {
		t.Fatalf("dispatch cancellation: %v", err)
	}
	if svc.cancelCalls != 1 || svc.lastRequestID != "req_1" {
		t.Fatalf("expected cancellation wrapper invocation, got %#v", svc)
	}

	if err := gocommand.Dispatch(context.Background(), integrationcommand.RequestCancellationMessage{UserID: "usr_1"}); err == nil {
		t.Fatalf("expected validation error for missing request id")
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("expected invalid message to stop before the service")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "integrations.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type compatRequestService struct {
	cancelCalls   int
	lastRequestID string
}

func (s *compatRequestService) CreateRequest(context.Context, core.CreateRequestInput) (core.AsyncRequest, error) {
	return core.AsyncRequest{}, nil
}

func (s *compatRequestService) UpdateRequest(context.Context, core.RequestUpdate) (core.AsyncRequest, error) {
	return core.AsyncRequest{}, nil
}

func (s *compatRequestService) RequestCancellation(_ context.Context, _ string, requestID string, _ map[string]any) (core.CancellationRequest, error) {
	s.cancelCalls++
	s.lastRequestID = requestID
	return core.CancellationRequest{RequestID: requestID}, nil
}
