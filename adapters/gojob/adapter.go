package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDHealthBackfill       = "integrations.followup.backfill"
	JobIDWebhookSubscriptions = "integrations.followup.webhook_subscriptions"
)

const (
	paramUserID        = "user_id"
	paramProviderID    = "provider_id"
	paramIntegrationID = "integration_id"
	paramDays          = "days"
	paramCollections   = "collections"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// JobIDForKind returns the go-job id used for a follow-up kind.
func JobIDForKind(kind core.FollowUpKind) (string, error) {
	switch kind {
	case core.FollowUpHealthBackfill:
		return JobIDHealthBackfill, nil
	case core.FollowUpWebhookSubscriptions:
		return JobIDWebhookSubscriptions, nil
	default:
		return "", fmt.Errorf("gojob: unsupported follow-up kind %q", kind)
	}
}

// ToExecutionMessage maps a follow-up request to a go-job message. The
// idempotency key collapses duplicate work for the same integration.
func ToExecutionMessage(req core.FollowUpRequest) (*job.ExecutionMessage, error) {
	jobID, err := JobIDForKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.IntegrationID) == "" {
		return nil, fmt.Errorf("gojob: integration id is required")
	}
	params := map[string]any{
		paramUserID:        strings.TrimSpace(req.UserID),
		paramProviderID:    strings.TrimSpace(req.ProviderID),
		paramIntegrationID: strings.TrimSpace(req.IntegrationID),
	}
	if req.Days > 0 {
		params[paramDays] = req.Days
	}
	if len(req.Collections) > 0 {
		params[paramCollections] = append([]string(nil), req.Collections...)
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     params,
		IdempotencyKey: jobID + ":" + strings.TrimSpace(req.IntegrationID),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}, nil
}

// FromExecutionMessage maps a go-job message back into a follow-up request.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.FollowUpRequest, error) {
	if msg == nil {
		return core.FollowUpRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	var kind core.FollowUpKind
	switch strings.TrimSpace(msg.JobID) {
	case JobIDHealthBackfill:
		kind = core.FollowUpHealthBackfill
	case JobIDWebhookSubscriptions:
		kind = core.FollowUpWebhookSubscriptions
	default:
		return core.FollowUpRequest{}, fmt.Errorf("gojob: unknown job id %q", msg.JobID)
	}
	params := msg.Parameters
	req := core.FollowUpRequest{
		Kind:          kind,
		UserID:        paramString(params, paramUserID),
		ProviderID:    paramString(params, paramProviderID),
		IntegrationID: paramString(params, paramIntegrationID),
		Days:          paramInt(params, paramDays),
		Collections:   paramStrings(params, paramCollections),
	}
	if req.IntegrationID == "" {
		return core.FollowUpRequest{}, fmt.Errorf("gojob: message %q has no integration id", msg.JobID)
	}
	return req, nil
}

// Scheduler implements core.FollowUpScheduler on top of a go-job enqueuer.
type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func (s *Scheduler) Schedule(ctx context.Context, req core.FollowUpRequest) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := ToExecutionMessage(req)
	if err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, msg)
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *job.ExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return d.delivery.Message()
}

// Request decodes the delivered message.
func (d *DeliveryAdapter) Request() (core.FollowUpRequest, error) {
	return FromExecutionMessage(d.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts queue.NackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, d.policy.NormalizeAttempt(opts, attempt))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (*DeliveryAdapter, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "follow-up job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "follow-up job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "follow-up job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "follow-up job retrying", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, msg string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	args := eventArgs(event)
	logger := h.logger.WithContext(ctx)
	switch level {
	case "debug":
		logger.Debug(msg, args...)
	case "warn":
		logger.Warn(msg, args...)
	case "error":
		logger.Error(msg, args...)
	default:
		logger.Info(msg, args...)
	}
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt}
	if message != nil {
		args = append(args, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
		if id := paramString(message.Parameters, paramIntegrationID); id != "" {
			args = append(args, "integration_id", id)
		}
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Duration > 0 {
		args = append(args, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	switch value := params[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func paramInt(params map[string]any, key string) int {
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		parsed, _ := strconv.Atoi(strings.TrimSpace(value))
		return parsed
	default:
		return 0
	}
}

// paramStrings accepts both []string and the []any shape produced by a
// JSON round trip through a persistent queue.
func paramStrings(params map[string]any, key string) []string {
	switch value := params[key].(type) {
	case []string:
		return append([]string(nil), value...)
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
				out = append(out, strings.TrimSpace(text))
			}
		}
		return out
	default:
		return nil
	}
}

var (
	_ core.FollowUpScheduler = (*Scheduler)(nil)
	_ worker.Hook            = (*LoggingHook)(nil)
)
