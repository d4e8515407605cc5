package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

const metricPrefix = "integrations."

// Fields copied from log context onto metric tags when present.
var metricTagFields = []string{"provider_id", "trigger_type"}

// NopMetricsRecorder drops every sample. It is the default recorder.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)         {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type logLevel int

const (
	levelInfo logLevel = iota
	levelWarn
	levelError
)

// observer is embedded by the lifecycle service, dispatcher and tracker so
// every operation reports the same log line and metric pair.
type observer struct {
	logger          Logger
	metricsRecorder MetricsRecorder
}

// observeOperation emits <operation>.total and <operation>.duration_ms tagged
// with the outcome, then one structured log line. fields are redacted first.
func (o observer) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	operation = operationName(operation)
	elapsed := time.Since(startedAt).Milliseconds()
	status, level, verb := "success", levelInfo, "succeeded"
	if err != nil {
		status, level, verb = "failure", levelError, "failed"
	}

	entry := RedactSensitiveMap(fields)
	entry["event_type"] = operation
	entry["status"] = status
	entry["duration_ms"] = elapsed
	if err != nil {
		entry["error"] = err.Error()
	}

	if o.metricsRecorder != nil {
		tags := map[string]string{"operation": operation, "status": status}
		for _, key := range metricTagFields {
			if value, ok := entry[key].(string); ok && strings.TrimSpace(value) != "" {
				tags[key] = value
			}
		}
		o.metricsRecorder.IncCounter(ctx, metricPrefix+operation+".total", 1, maps.Clone(tags))
		o.metricsRecorder.ObserveHistogram(ctx, metricPrefix+operation+".duration_ms", float64(elapsed), tags)
	}
	o.log(ctx, level, operation+" "+verb, entry)
}

func (o observer) logInfo(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, levelInfo, message, fields)
}

func (o observer) logWarn(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, levelWarn, message, fields)
}

// log writes message with redacted fields. Loggers that accept structured
// fields get them attached; all loggers also get sorted key/value args.
func (o observer) log(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	safe := RedactSensitiveMap(fields)
	if structured, ok := logger.(FieldsLogger); ok {
		logger = structured.WithFields(maps.Clone(safe))
	}

	args := make([]any, 0, len(safe)*2)
	for _, key := range slices.Sorted(maps.Keys(safe)) {
		args = append(args, key, safe[key])
	}
	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// operationName turns "Initiate Connect" or "initiate-connect" into
// initiate_connect.
func operationName(operation string) string {
	name := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if name == "" {
		return "unknown"
	}
	return name
}
