package core

import (
	"context"
	"fmt"
)

var errTrackingDisabled = fmt.Errorf("core: request tracking is not configured")

func (s *Service) TriggerAutomation(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	result, err := s.dispatcher.Trigger(ctx, req)
	if err != nil {
		return TriggerResult{}, s.mapError(err)
	}
	return result, nil
}

func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (AsyncRequest, error) {
	if s.tracker == nil {
		return AsyncRequest{}, s.mapError(errTrackingDisabled)
	}
	request, err := s.tracker.CreateRequest(ctx, in)
	return request, s.mapError(err)
}

// RequestStatus returns the request only when userID owns it.
func (s *Service) RequestStatus(ctx context.Context, userID string, requestID string) (AsyncRequest, error) {
	if s.tracker == nil {
		return AsyncRequest{}, s.mapError(errTrackingDisabled)
	}
	request, err := s.tracker.GetStatus(ctx, requestID)
	if err != nil {
		return AsyncRequest{}, s.mapError(err)
	}
	if request.UserID != userID {
		return AsyncRequest{}, s.mapError(fmt.Errorf("%w: %s", ErrRequestNotFound, requestID))
	}
	return request, nil
}

type RequestUpdate struct {
	UserID          string
	RequestID       string
	Status          string
	Metadata        map[string]any
	NetworkSuccess  *bool
	ResponseFetched *bool
}

// UpdateRequest applies whichever fields of update are set.
func (s *Service) UpdateRequest(ctx context.Context, update RequestUpdate) (AsyncRequest, error) {
	request, err := s.RequestStatus(ctx, update.UserID, update.RequestID)
	if err != nil {
		return AsyncRequest{}, err
	}
	if update.Status != "" || len(update.Metadata) > 0 {
		status := update.Status
		if status == "" {
			status = request.Status
		}
		if request, err = s.tracker.UpdateStatus(ctx, update.RequestID, status, update.Metadata); err != nil {
			return AsyncRequest{}, s.mapError(err)
		}
	}
	if update.NetworkSuccess != nil {
		if err = s.tracker.UpdateNetworkSuccess(ctx, update.RequestID, *update.NetworkSuccess); err != nil {
			return AsyncRequest{}, s.mapError(err)
		}
		request.NetworkSuccess = update.NetworkSuccess
	}
	if update.ResponseFetched != nil {
		if err = s.tracker.UpdateResponseFetched(ctx, update.RequestID, *update.ResponseFetched); err != nil {
			return AsyncRequest{}, s.mapError(err)
		}
		request.ResponseFetched = update.ResponseFetched
	}
	return request, nil
}

func (s *Service) RequestCancellation(ctx context.Context, userID string, requestID string, metadata map[string]any) (CancellationRequest, error) {
	if s.tracker == nil {
		return CancellationRequest{}, s.mapError(errTrackingDisabled)
	}
	cancellation, err := s.tracker.RequestCancellation(ctx, userID, requestID, metadata)
	return cancellation, s.mapError(err)
}

// IsCancelled does not require a tracked request, so a cancellation raised
// before the request row is written is still visible.
func (s *Service) IsCancelled(ctx context.Context, userID string, requestID string) (bool, error) {
	if s.tracker == nil {
		return false, s.mapError(errTrackingDisabled)
	}
	if err := s.tracker.checkOwner(ctx, userID, requestID); err != nil {
		return false, s.mapError(err)
	}
	cancelled, err := s.tracker.IsCancelled(ctx, requestID)
	return cancelled, s.mapError(err)
}
