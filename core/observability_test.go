package core

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: maps.Clone(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: maps.Clone(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	return maps.Clone(input)
}

func TestServiceObservability_ConnectSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	h := newTestHarness(t, nil,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	_, err := h.svc.InitiateConnect(context.Background(), ConnectRequest{UserID: "u1", Provider: "notion"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if !hasCounter(metrics.counters, "integrations.initiate_connect.total", "success") {
		t.Fatalf("expected integrations.initiate_connect.total success counter")
	}
	if !hasHistogram(metrics.histograms, "integrations.initiate_connect.duration_ms", "success") {
		t.Fatalf("expected integrations.initiate_connect.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "initiate_connect succeeded", "initiate_connect") {
		t.Fatalf("expected initiate_connect succeeded structured log")
	}
	for _, counter := range metrics.counters {
		if counter.name == "integrations.initiate_connect.total" && counter.tags["provider_id"] != "notion" {
			t.Fatalf("expected provider tag on counter, got %#v", counter.tags)
		}
	}
}

func TestServiceObservability_ExchangeFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	h := newTestHarness(t, nil,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	h.exchanger.exchangeErr = &TokenExchangeFailedError{Provider: "notion", Status: 400, Body: "bad code"}

	ctx := context.Background()
	started, err := h.svc.InitiateConnect(ctx, ConnectRequest{UserID: "u1", Provider: "notion"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := h.svc.ExchangeCode(ctx, ExchangeRequest{Provider: "notion", Code: "c", State: started.State}); err == nil {
		t.Fatalf("expected exchange failure")
	}

	if !hasCounter(metrics.counters, "integrations.exchange_code.total", "failure") {
		t.Fatalf("expected integrations.exchange_code.total failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "exchange_code failed", "exchange_code") {
		t.Fatalf("expected exchange_code failed structured log")
	}
}

func TestServiceObservability_TriggerFailureCountsAsFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	h := newTestHarness(t, map[string]Automation{
		"auto_1": {ID: "auto_1", UserID: "u1", TriggerType: TriggerTypeManual, Active: true},
	}, WithMetricsRecorder(metrics))
	h.execution.executeErr = &DownstreamError{Operation: "execute", StatusCode: 500, Message: "boom"}

	result, err := h.svc.TriggerAutomation(context.Background(), TriggerRequest{
		AutomationID: "auto_1",
		UserID:       "u1",
		BearerToken:  "user-jwt",
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if result.Success {
		t.Fatalf("expected unsuccessful result")
	}

	found := false
	for _, counter := range metrics.counters {
		if counter.name == "integrations.trigger.total" && counter.tags["status"] == "failure" {
			found = counter.tags["trigger_type"] == TriggerTypeManual
		}
	}
	if !found {
		t.Fatalf("expected failure counter tagged with trigger type, got %#v", metrics.counters)
	}
}

func TestObserveOperation_RedactsSecrets(t *testing.T) {
	logger := newCaptureLogger()
	obs := observer{logger: logger, metricsRecorder: NopMetricsRecorder{}}

	obs.observeOperation(context.Background(), time.Now(), "refresh", nil, map[string]any{
		"provider_id":   "slack",
		"access_token":  "xoxb-secret",
		"code":          "auth-code",
		"client_secret": "shh",
		"user_id":       "u1",
	})

	logs := logger.snapshot()
	if len(logs) != 1 {
		t.Fatalf("expected one log line, got %d", len(logs))
	}
	fields := logs[0].fields
	for _, key := range []string{"access_token", "code", "client_secret"} {
		if fields[key] != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %#v", key, fields[key])
		}
	}
	if fields["provider_id"] != "slack" || fields["user_id"] != "u1" {
		t.Fatalf("expected traceability fields to survive, got %#v", fields)
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestOperationName(t *testing.T) {
	for in, want := range map[string]string{
		" Initiate Connect ": "initiate_connect",
		"health-backfill":    "health_backfill",
		"":                   "unknown",
	} {
		if got := operationName(in); got != want {
			t.Fatalf("operationName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveOperation_WarnLevelKeepsSortedArgs(t *testing.T) {
	logger := newCaptureLogger()
	obs := observer{logger: logger}

	obs.logWarn(context.Background(), "tracking failed", map[string]any{"request_id": "r1", "bearer": "x"})

	logs := logger.snapshot()
	if len(logs) != 1 || logs[0].level != "warn" {
		t.Fatalf("expected one warn line, got %#v", logs)
	}
	if logs[0].fields["request_id"] != "r1" || logs[0].fields["bearer"] != RedactedValue {
		t.Fatalf("unexpected fields %#v", logs[0].fields)
	}
}
