package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type ProviderLister interface {
	ListProviders() []core.ProviderListing
}

type IntegrationReader interface {
	ListIntegrations(ctx context.Context, userID string) ([]core.Integration, error)
}

type ConnectReader interface {
	ConnectStatus(ctx context.Context, req core.CompletionRequest) (core.ConnectAttempt, error)
	PollForCompletion(ctx context.Context, req core.CompletionRequest) (core.Integration, error)
}

type RequestReader interface {
	RequestStatus(ctx context.Context, userID string, requestID string) (core.AsyncRequest, error)
	IsCancelled(ctx context.Context, userID string, requestID string) (bool, error)
}

type ListProvidersQuery struct {
	lister ProviderLister
}

func NewListProvidersQuery(lister ProviderLister) *ListProvidersQuery {
	return &ListProvidersQuery{lister: lister}
}

func (q *ListProvidersQuery) Query(_ context.Context, _ ListProvidersMessage) ([]core.ProviderListing, error) {
	if q == nil || q.lister == nil {
		return nil, core.MissingDependency(scope, "provider lister")
	}
	return q.lister.ListProviders(), nil
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, core.MissingDependency(scope, "integration reader")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListIntegrations(ctx, msg.UserID)
}

type ConnectStatusQuery struct {
	reader ConnectReader
}

func NewConnectStatusQuery(reader ConnectReader) *ConnectStatusQuery {
	return &ConnectStatusQuery{reader: reader}
}

func (q *ConnectStatusQuery) Query(ctx context.Context, msg ConnectStatusMessage) (core.ConnectAttempt, error) {
	if q == nil || q.reader == nil {
		return core.ConnectAttempt{}, core.MissingDependency(scope, "connect reader")
	}
	if err := msg.Validate(); err != nil {
		return core.ConnectAttempt{}, err
	}
	return q.reader.ConnectStatus(ctx, msg.Request)
}

type AwaitConnectQuery struct {
	reader ConnectReader
}

func NewAwaitConnectQuery(reader ConnectReader) *AwaitConnectQuery {
	return &AwaitConnectQuery{reader: reader}
}

func (q *AwaitConnectQuery) Query(ctx context.Context, msg AwaitConnectMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, core.MissingDependency(scope, "connect reader")
	}
	if err := msg.Validate(); err != nil {
		return core.Integration{}, err
	}
	return q.reader.PollForCompletion(ctx, msg.Request)
}

type RequestStatusQuery struct {
	reader RequestReader
}

func NewRequestStatusQuery(reader RequestReader) *RequestStatusQuery {
	return &RequestStatusQuery{reader: reader}
}

func (q *RequestStatusQuery) Query(ctx context.Context, msg RequestStatusMessage) (core.AsyncRequest, error) {
	if q == nil || q.reader == nil {
		return core.AsyncRequest{}, core.MissingDependency(scope, "request reader")
	}
	if err := msg.Validate(); err != nil {
		return core.AsyncRequest{}, err
	}
	return q.reader.RequestStatus(ctx, msg.UserID, msg.RequestID)
}

type IsCancelledQuery struct {
	reader RequestReader
}

func NewIsCancelledQuery(reader RequestReader) *IsCancelledQuery {
	return &IsCancelledQuery{reader: reader}
}

func (q *IsCancelledQuery) Query(ctx context.Context, msg IsCancelledMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, core.MissingDependency(scope, "request reader")
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	return q.reader.IsCancelled(ctx, msg.UserID, msg.RequestID)
}
