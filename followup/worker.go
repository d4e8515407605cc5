package followup

import (
	"context"

	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

// Worker bundles an in-process queue, the scheduler that feeds it and the
// runner that drains it.
type Worker struct {
	Queue     *MemoryQueue
	Scheduler *gojob.Scheduler
	Runner    *Runner
}

type WorkerDeps struct {
	Config    core.Config
	Store     core.IntegrationStore
	Registry  core.Registry
	Transport transport.Adapter
	Capacity  int
}

// NewWorker wires the backfill handler and subscription recorder to a
// fresh memory queue.
func NewWorker(deps WorkerDeps, opts ...RunnerOption) (*Worker, error) {
	q := NewMemoryQueue(deps.Capacity)
	runner := NewRunner(q, opts...)

	backfill, err := NewBackfillHandler(BackfillConfigFrom(deps.Config), deps.Transport, deps.Registry)
	if err != nil {
		return nil, err
	}
	runner.Handle(core.FollowUpHealthBackfill, backfill)
	runner.Handle(core.FollowUpWebhookSubscriptions, NewSubscriptionRecorder(deps.Store))

	return &Worker{
		Queue:     q,
		Scheduler: gojob.NewScheduler(q),
		Runner:    runner,
	}, nil
}

// Start drains the queue in the background until ctx is done, then closes
// the queue.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Queue.Close()
		_ = w.Runner.Run(ctx)
	}()
	return done
}
