package followup

import (
	"context"
	"errors"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

var (
	ErrQueueFull   = errors.New("followup: queue is full")
	ErrQueueClosed = errors.New("followup: queue is closed")
)

const defaultQueueCapacity = 256

// DeadLetter is a message that exhausted its retries or could not be
// handled at all.
type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
	At      time.Time
}

// MemoryQueue is an in-process go-job queue. Messages sharing an
// idempotency key are dropped while an earlier copy is queued or in flight.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       chan *job.ExecutionMessage
	pending     map[string]struct{}
	deadLetters []DeadLetter
	closed      bool
	timers      map[*time.Timer]struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &MemoryQueue{
		ready:   make(chan *job.ExecutionMessage, capacity),
		pending: map[string]struct{}{},
		timers:  map[*time.Timer]struct{}{},
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return errors.New("followup: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	key := msg.IdempotencyKey
	if key != "" {
		if _, exists := q.pending[key]; exists {
			return nil
		}
	}
	select {
	case q.ready <- msg:
	default:
		return ErrQueueFull
	}
	if key != "" {
		q.pending[key] = struct{}{}
	}
	return nil
}

// Dequeue blocks until a message is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-q.ready:
		if !ok {
			return nil, ErrQueueClosed
		}
		return &memoryDelivery{queue: q, msg: msg}, nil
	}
}

// Len reports messages waiting to be dequeued.
func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

// Close stops delayed requeues and rejects further enqueues. Messages
// already queued can still be drained.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	close(q.ready)
}

func (q *MemoryQueue) release(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, msg.IdempotencyKey)
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, msg.IdempotencyKey)
	q.deadLetters = append(q.deadLetters, DeadLetter{Message: msg, Reason: reason, At: time.Now().UTC()})
}

func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if delay <= 0 {
		return q.pushLocked(msg)
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		if q.closed {
			return
		}
		if err := q.pushLocked(msg); err != nil {
			q.deadLetters = append(q.deadLetters, DeadLetter{Message: msg, Reason: err.Error(), At: time.Now().UTC()})
			delete(q.pending, msg.IdempotencyKey)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) pushLocked(msg *job.ExecutionMessage) error {
	select {
	case q.ready <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	done  bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	if d.done {
		return nil
	}
	d.done = true
	d.queue.release(d.msg)
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if d.done {
		return nil
	}
	d.done = true
	if opts.DeadLetter || !opts.Requeue {
		d.queue.deadLetter(d.msg, opts.Reason)
		return nil
	}
	return d.queue.requeue(d.msg, opts.Delay)
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
