package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"
)

const (
	StagePoll      = "poll"
	StageProcess   = "process"
	StageExecute   = "execute"
	StageCancelled = "cancelled"

	triggerRequestType = "automation_trigger"
)

type TriggerRequest struct {
	AutomationID string
	UserID       string
	BearerToken  string
	ExtraData    map[string]any
	// RequestID enables progress tracking and cancellation when set.
	RequestID string
}

type PollResult struct {
	ItemsFound    int `json:"items_found"`
	EventsCreated int `json:"events_created"`
}

type ProcessResult struct {
	EventsProcessed int `json:"events_processed"`
	EventsFailed    int `json:"events_failed"`
}

// TriggerResult is the outcome of a trigger. Pipeline failures are carried
// here with Success false; only lookup failures are returned as errors.
type TriggerResult struct {
	Success       bool           `json:"success"`
	TriggerType   string         `json:"trigger_type,omitempty"`
	PollResult    *PollResult    `json:"poll_result,omitempty"`
	ProcessResult *ProcessResult `json:"process_result,omitempty"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	FailedStage   string         `json:"failed_stage,omitempty"`
	StatusCode    int            `json:"-"`
}

type DispatcherDependencies struct {
	Automations AutomationStore
	Execution   ExecutionClient
	Tracker     *Tracker
	Config      DispatcherConfig
	Clock       func() time.Time
	Sleeper     Sleeper
}

// Dispatcher runs an automation through either the polling pipeline (poll,
// settle, process) or a direct execution.
type Dispatcher struct {
	observer
	automations AutomationStore
	execution   ExecutionClient
	tracker     *Tracker
	config      DispatcherConfig
	now         func() time.Time
	sleep       Sleeper
}

func NewDispatcher(logger Logger, metrics MetricsRecorder, deps DispatcherDependencies) *Dispatcher {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return newDispatcher(observer{logger: logger, metricsRecorder: metrics}, deps)
}

func newDispatcher(obs observer, deps DispatcherDependencies) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Sleeper == nil {
		deps.Sleeper = sleepContext
	}
	if deps.Config.SettleDelay < 0 {
		deps.Config.SettleDelay = 0
	}
	return &Dispatcher{
		observer:    obs,
		automations: deps.Automations,
		execution:   deps.Execution,
		tracker:     deps.Tracker,
		config:      deps.Config,
		now:         deps.Clock,
		sleep:       deps.Sleeper,
	}
}

func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (result TriggerResult, err error) {
	startedAt := d.now()
	fields := map[string]any{
		"automation_id": req.AutomationID,
		"user_id":       req.UserID,
		"request_id":    req.RequestID,
	}
	defer func() {
		fields["trigger_type"] = result.TriggerType
		fields["success"] = result.Success
		observed := err
		if observed == nil && !result.Success {
			fields["failed_stage"] = result.FailedStage
			observed = errors.New(result.Error)
		}
		d.observeOperation(ctx, startedAt, "trigger", observed, fields)
	}()

	if strings.TrimSpace(req.AutomationID) == "" {
		return TriggerResult{}, fmt.Errorf("%w: automation_id is required", ErrBadInput)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return TriggerResult{}, fmt.Errorf("%w: user id is required", ErrBadInput)
	}
	if d.automations == nil || d.execution == nil {
		return TriggerResult{}, fmt.Errorf("core: automation store and execution client are required")
	}

	automation, err := d.automations.FindOwned(ctx, req.UserID, req.AutomationID)
	if err != nil {
		return TriggerResult{}, err
	}
	if !automation.Active {
		return TriggerResult{}, fmt.Errorf("%w: %s", ErrAutomationPaused, automation.ID)
	}

	d.beginTracking(ctx, req, automation)
	if automation.IsPolling() {
		result = d.runPolling(ctx, req, automation)
	} else {
		if strings.TrimSpace(req.BearerToken) == "" {
			d.finishTracking(ctx, req, TriggerResult{Error: ErrCredentialRequired.Error()})
			return TriggerResult{}, ErrCredentialRequired
		}
		result = d.runDirect(ctx, req, automation)
	}
	d.finishTracking(ctx, req, result)
	return result, nil
}

func (d *Dispatcher) runPolling(ctx context.Context, req TriggerRequest, automation Automation) TriggerResult {
	result := TriggerResult{TriggerType: TriggerTypePolling}

	polled, err := d.execution.PollAutomation(ctx, automation.ID)
	if err != nil {
		return stageFailure(result, StagePoll, "Polling failed: ", err)
	}
	result.PollResult = &PollResult{ItemsFound: polled.ItemsFound, EventsCreated: polled.EventsCreated}

	if err := d.sleep(ctx, d.config.SettleDelay); err != nil {
		return stageFailure(result, StageProcess, "Event processing failed: ", err)
	}
	if d.cancelled(ctx, req) {
		result.FailedStage = StageCancelled
		result.Error = "Automation trigger cancelled"
		result.StatusCode = http.StatusConflict
		return result
	}

	processed, err := d.execution.ProcessEvents(ctx, automation.UserID, automation.TriggerService())
	if err != nil {
		return stageFailure(result, StageProcess, "Event processing failed: ", err)
	}
	result.ProcessResult = &ProcessResult{EventsProcessed: processed.Successful, EventsFailed: processed.Failed}
	result.Success = true
	result.Message = fmt.Sprintf("Polled %d items, processed %d events", polled.ItemsFound, processed.Successful)
	return result
}

func (d *Dispatcher) runDirect(ctx context.Context, req TriggerRequest, automation Automation) TriggerResult {
	result := TriggerResult{TriggerType: TriggerTypeManual}
	triggerData := map[string]any{
		"trigger_type": TriggerTypeManual,
		"triggered_at": d.now().UTC().Format(time.RFC3339Nano),
		"triggered_by": firstNonEmpty(d.config.Origin, "web_ui"),
	}
	// Caller data is applied last and may replace the defaults above.
	maps.Copy(triggerData, req.ExtraData)

	executed, err := d.execution.ExecuteAutomation(ctx, ManualExecution{
		AutomationID: automation.ID,
		BearerToken:  req.BearerToken,
		TriggerData:  triggerData,
	})
	if err != nil {
		return stageFailure(result, StageExecute, "", err)
	}
	result.Success = true
	result.ExecutionID = executed.ExecutionID
	result.Result = executed.Result
	result.Message = fmt.Sprintf("Executed %d actions", executed.ActionsExecuted)
	return result
}

// stageFailure folds a downstream failure into the result, passing the
// downstream status through when there is one.
func stageFailure(result TriggerResult, stage string, prefix string, err error) TriggerResult {
	result.Success = false
	result.FailedStage = stage
	result.StatusCode = http.StatusInternalServerError
	message := err.Error()
	var downstream *DownstreamError
	if errors.As(err, &downstream) {
		message = strings.TrimSpace(downstream.Message)
		if downstream.StatusCode >= http.StatusBadRequest {
			result.StatusCode = downstream.StatusCode
		}
	}
	if message == "" {
		message = "Execution failed"
	}
	result.Error = prefix + message
	return result
}

func (d *Dispatcher) beginTracking(ctx context.Context, req TriggerRequest, automation Automation) {
	if d.tracker == nil || strings.TrimSpace(req.RequestID) == "" {
		return
	}
	_, err := d.tracker.CreateRequest(ctx, CreateRequestInput{
		RequestID:   req.RequestID,
		UserID:      req.UserID,
		RequestType: triggerRequestType,
		Metadata: map[string]any{
			"automation_id": automation.ID,
			"trigger_type":  strings.ToLower(strings.TrimSpace(automation.TriggerType)),
		},
	})
	if err != nil && !errors.Is(err, ErrRequestExists) {
		d.logWarn(ctx, "trigger request tracking failed", map[string]any{"request_id": req.RequestID, "error": err.Error()})
		return
	}
	if _, err := d.tracker.UpdateStatus(ctx, req.RequestID, RequestStatusProcessing, nil); err != nil {
		d.logWarn(ctx, "trigger request tracking failed", map[string]any{"request_id": req.RequestID, "error": err.Error()})
	}
}

func (d *Dispatcher) finishTracking(ctx context.Context, req TriggerRequest, result TriggerResult) {
	if d.tracker == nil || strings.TrimSpace(req.RequestID) == "" {
		return
	}
	status := RequestStatusCompleted
	metadata := map[string]any{"success": result.Success}
	switch {
	case result.FailedStage == StageCancelled:
		status = RequestStatusCancelled
	case !result.Success:
		status = RequestStatusFailed
		metadata["error"] = result.Error
		metadata["failed_stage"] = result.FailedStage
	}
	if result.ExecutionID != "" {
		metadata["execution_id"] = result.ExecutionID
	}
	if _, err := d.tracker.UpdateStatus(ctx, req.RequestID, status, metadata); err != nil {
		d.logWarn(ctx, "trigger request tracking failed", map[string]any{"request_id": req.RequestID, "error": err.Error()})
	}
}

// cancelled checks for a pending cancellation and acknowledges it.
func (d *Dispatcher) cancelled(ctx context.Context, req TriggerRequest) bool {
	if d.tracker == nil || strings.TrimSpace(req.RequestID) == "" {
		return false
	}
	cancelled, err := d.tracker.IsCancelled(ctx, req.RequestID)
	if err != nil || !cancelled {
		return false
	}
	if err := d.tracker.MarkCancellationProcessed(ctx, req.RequestID); err != nil {
		d.logWarn(ctx, "cancellation acknowledgement failed", map[string]any{"request_id": req.RequestID, "error": err.Error()})
	}
	return true
}
