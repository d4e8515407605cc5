package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxThrottledRequests = 1024

// Tracker records the lifecycle of long-running requests and the
// cancellation requests raised against them.
type Tracker struct {
	observer
	requests      RequestStore
	cancellations CancellationStore
	config        TrackerConfig
	now           func() time.Time
	throttle      *statusLogThrottle
}

func NewTracker(logger Logger, metrics MetricsRecorder, requests RequestStore, cancellations CancellationStore, cfg TrackerConfig) *Tracker {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return newTracker(observer{logger: logger, metricsRecorder: metrics}, requests, cancellations, cfg, nil)
}

func newTracker(obs observer, requests RequestStore, cancellations CancellationStore, cfg TrackerConfig, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.StatusLogInterval <= 0 {
		cfg.StatusLogInterval = defaultStatusLogInterval
	}
	return &Tracker{
		observer:      obs,
		requests:      requests,
		cancellations: cancellations,
		config:        cfg,
		now:           clock,
		throttle:      newStatusLogThrottle(cfg.StatusLogInterval),
	}
}

func (t *Tracker) CreateRequest(ctx context.Context, in CreateRequestInput) (request AsyncRequest, err error) {
	startedAt := t.now()
	fields := map[string]any{
		"request_id":   in.RequestID,
		"user_id":      in.UserID,
		"request_type": in.RequestType,
	}
	defer func() {
		t.observeOperation(ctx, startedAt, "create_request", err, fields)
	}()

	if strings.TrimSpace(in.RequestID) == "" || strings.TrimSpace(in.UserID) == "" {
		return AsyncRequest{}, fmt.Errorf("%w: request id and user id are required", ErrBadInput)
	}
	if strings.TrimSpace(in.RequestType) == "" {
		return AsyncRequest{}, fmt.Errorf("%w: request type is required", ErrBadInput)
	}
	return t.requests.Create(ctx, in)
}

// GetStatus reads a request. Its log line is throttled per request id
// because clients poll it in tight loops.
func (t *Tracker) GetStatus(ctx context.Context, requestID string) (AsyncRequest, error) {
	request, err := t.requests.Get(ctx, requestID)
	if err != nil {
		return AsyncRequest{}, err
	}
	t.throttle.do(requestID, func() {
		t.logInfo(ctx, "request status checked", map[string]any{
			"request_id": request.RequestID,
			"status":     request.Status,
		})
	})
	return request, nil
}

func (t *Tracker) UpdateStatus(ctx context.Context, requestID string, status string, metadata map[string]any) (request AsyncRequest, err error) {
	startedAt := t.now()
	fields := map[string]any{"request_id": requestID, "request_status": status}
	defer func() {
		t.observeOperation(ctx, startedAt, "update_request_status", err, fields)
	}()

	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return AsyncRequest{}, fmt.Errorf("%w: status is required", ErrBadInput)
	}
	request, err = t.requests.UpdateStatus(ctx, requestID, status, metadata)
	if err != nil {
		return AsyncRequest{}, err
	}
	if IsTerminalStatus(status) {
		t.throttle.forget(requestID)
	}
	return request, nil
}

func (t *Tracker) UpdateNetworkSuccess(ctx context.Context, requestID string, success bool) error {
	return t.requests.UpdateNetworkSuccess(ctx, requestID, success)
}

func (t *Tracker) UpdateResponseFetched(ctx context.Context, requestID string, fetched bool) error {
	return t.requests.UpdateResponseFetched(ctx, requestID, fetched)
}

// RequestCancellation records a pending cancellation. The request itself is
// not stopped here; running work checks IsCancelled at its checkpoints.
func (t *Tracker) RequestCancellation(ctx context.Context, userID string, requestID string, metadata map[string]any) (cancellation CancellationRequest, err error) {
	startedAt := t.now()
	fields := map[string]any{"request_id": requestID, "user_id": userID}
	defer func() {
		t.observeOperation(ctx, startedAt, "request_cancellation", err, fields)
	}()

	if t.cancellations == nil {
		return CancellationRequest{}, fmt.Errorf("core: cancellation store is not configured")
	}
	if err = t.checkOwner(ctx, userID, requestID); err != nil {
		return CancellationRequest{}, err
	}
	return t.cancellations.Create(ctx, userID, requestID, metadata)
}

// checkOwner rejects userID when a tracked request with requestID belongs to
// someone else. Untracked ids pass: cancellation may be raised before the
// request row exists, or for work that is never tracked.
func (t *Tracker) checkOwner(ctx context.Context, userID string, requestID string) error {
	request, err := t.requests.Get(ctx, requestID)
	if errors.Is(err, ErrRequestNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if request.UserID != strings.TrimSpace(userID) {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return nil
}

// IsCancelled reports whether a cancellation is pending for requestID.
func (t *Tracker) IsCancelled(ctx context.Context, requestID string) (bool, error) {
	if t.cancellations == nil {
		return false, nil
	}
	return t.cancellations.HasPending(ctx, requestID)
}

func (t *Tracker) MarkCancellationProcessed(ctx context.Context, requestID string) error {
	if t.cancellations == nil {
		return nil
	}
	_, err := t.cancellations.MarkProcessed(ctx, requestID)
	return err
}

// AwaitRequest polls until the request reaches a terminal status or ctx is
// done.
func (t *Tracker) AwaitRequest(ctx context.Context, requestID string, interval time.Duration) (AsyncRequest, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		request, err := t.GetStatus(ctx, requestID)
		if err != nil {
			return AsyncRequest{}, err
		}
		if IsTerminalStatus(request.Status) {
			return request, nil
		}
		select {
		case <-ctx.Done():
			return request, ctx.Err()
		case <-ticker.C:
		}
	}
}

// statusLogThrottle allows one log line per request id per interval.
type statusLogThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	entries  map[string]*rate.Sometimes
}

func newStatusLogThrottle(interval time.Duration) *statusLogThrottle {
	return &statusLogThrottle{interval: interval, entries: map[string]*rate.Sometimes{}}
}

func (t *statusLogThrottle) do(key string, fn func()) {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok {
		if len(t.entries) >= maxThrottledRequests {
			t.entries = map[string]*rate.Sometimes{}
		}
		entry = &rate.Sometimes{Interval: t.interval}
		t.entries[key] = entry
	}
	t.mu.Unlock()
	entry.Do(fn)
}

func (t *statusLogThrottle) forget(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}
