package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultRetryDelay = 5 * time.Second

// Handler performs one kind of follow-up work.
type Handler interface {
	Handle(ctx context.Context, req core.FollowUpRequest) error
}

type HandlerFunc func(ctx context.Context, req core.FollowUpRequest) error

func (f HandlerFunc) Handle(ctx context.Context, req core.FollowUpRequest) error {
	return f(ctx, req)
}

// Runner drains a follow-up queue and dispatches each delivery to the
// handler registered for its kind.
type Runner struct {
	dequeuer   *gojob.DequeuerAdapter
	policy     gojob.RetryPolicy
	retryDelay time.Duration
	hook       worker.Hook
	logger     glog.Logger
	jobLogger  job.Logger
	now        func() time.Time

	mu       sync.Mutex
	handlers map[core.FollowUpKind]Handler
	attempts map[string]int
}

type RunnerOption func(*Runner)

func WithRetryPolicy(policy gojob.RetryPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = policy
	}
}

// WithRetryDelay sets the base delay; attempt n waits n times as long.
func WithRetryDelay(delay time.Duration) RunnerOption {
	return func(r *Runner) {
		if delay >= 0 {
			r.retryDelay = delay
		}
	}
}

func WithWorkerHook(hook worker.Hook) RunnerOption {
	return func(r *Runner) {
		if hook != nil {
			r.hook = hook
		}
	}
}

func WithLogger(provider glog.LoggerProvider, logger glog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger, r.jobLogger = gologger.ForFollowUp(provider, logger)
	}
}

func NewRunner(dequeuer queue.Dequeuer, opts ...RunnerOption) *Runner {
	runner := &Runner{
		policy:     gojob.RetryPolicy{MaxAttempts: 3, MaxDelay: time.Minute, DeadLetterOnMax: true},
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		handlers:   map[core.FollowUpKind]Handler{},
		attempts:   map[string]int{},
	}
	runner.logger, runner.jobLogger = gologger.ForFollowUp(nil, nil)
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	if runner.hook == nil {
		runner.hook = gojob.NewLoggingHook(runner.logger)
	}
	runner.dequeuer = gojob.NewDequeuerAdapter(dequeuer, runner.policy)
	return runner
}

// Handle registers the handler for kind, replacing any earlier one.
func (r *Runner) Handle(kind core.FollowUpKind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Run processes deliveries until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.jobLogger.Info("follow-up runner started")
	defer r.jobLogger.Info("follow-up runner stopped")
	for {
		err := r.ProcessNext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrQueueClosed) {
			return nil
		}
	}
}

// ProcessNext handles a single delivery. Handler failures are nacked and
// also returned so callers can observe them.
func (r *Runner) ProcessNext(ctx context.Context) error {
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	req, err := delivery.Request()
	if err != nil {
		r.jobLogger.Error("follow-up message rejected", "error", err.Error())
		return errors.Join(err, delivery.NackForAttempt(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}, 0))
	}
	handler := r.handler(req.Kind)
	if handler == nil {
		err := fmt.Errorf("followup: no handler for %q", req.Kind)
		return errors.Join(err, delivery.NackForAttempt(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}, 0))
	}

	attempt := r.attempt(msg)
	startedAt := r.now()
	event := worker.Event{Message: msg, Attempt: attempt, StartedAt: startedAt}
	r.hook.OnStart(ctx, event)

	handleErr := handler.Handle(ctx, req)
	event.Duration = r.now().Sub(startedAt)
	if handleErr == nil {
		r.forget(msg)
		r.hook.OnSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	nack := queue.NackOptions{
		Delay:   r.retryDelay * time.Duration(attempt),
		Requeue: true,
		Reason:  handleErr.Error(),
	}
	normalized := r.policy.NormalizeAttempt(nack, attempt)
	event.Err = handleErr
	event.Delay = normalized.Delay
	if normalized.Requeue {
		r.hook.OnRetry(ctx, event)
	} else {
		r.forget(msg)
		r.hook.OnFailure(ctx, event)
	}
	return errors.Join(handleErr, delivery.NackForAttempt(ctx, nack, attempt))
}

func (r *Runner) handler(kind core.FollowUpKind) Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers[kind]
}

func (r *Runner) attempt(msg *job.ExecutionMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := msg.IdempotencyKey
	r.attempts[key]++
	return r.attempts[key]
}

func (r *Runner) forget(msg *job.ExecutionMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, msg.IdempotencyKey)
}
