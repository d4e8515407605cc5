package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const asyncRequestCacheKeyPrefix = "go-integrations::async_request::v1"

// CachedRequestStore serves request reads from a cache. Every write goes to
// the base store first and then evicts the cached entry.
type CachedRequestStore struct {
	base  core.RequestStore
	cache repositorycache.CacheService
}

func NewCachedRequestStore(base core.RequestStore, cacheService repositorycache.CacheService) (*CachedRequestStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base request store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: request cache service is required")
	}
	return &CachedRequestStore{base: base, cache: cacheService}, nil
}

// AsyncRequestCacheKey returns go-integrations::async_request::v1::<request_id>
// with the id URL-path escaped.
func AsyncRequestCacheKey(requestID string) (string, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", fmt.Errorf("%w: request id is required", core.ErrBadInput)
	}
	return asyncRequestCacheKeyPrefix + "::" + url.PathEscape(requestID), nil
}

func (s *CachedRequestStore) Create(ctx context.Context, in core.CreateRequestInput) (core.AsyncRequest, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AsyncRequest{}, fmt.Errorf("sqlstore: cached request store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.AsyncRequest{}, err
	}
	if err := s.evict(ctx, created.RequestID); err != nil {
		return core.AsyncRequest{}, err
	}
	return created, nil
}

func (s *CachedRequestStore) Get(ctx context.Context, requestID string) (core.AsyncRequest, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AsyncRequest{}, fmt.Errorf("sqlstore: cached request store is not configured")
	}
	cacheKey, err := AsyncRequestCacheKey(requestID)
	if err != nil {
		return core.AsyncRequest{}, err
	}
	request, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.AsyncRequest, error) {
		fetched, fetchErr := s.base.Get(ctx, requestID)
		if fetchErr != nil {
			return core.AsyncRequest{}, fetchErr
		}
		return cloneAsyncRequest(fetched), nil
	})
	if err != nil {
		return core.AsyncRequest{}, err
	}
	return cloneAsyncRequest(request), nil
}

func (s *CachedRequestStore) UpdateStatus(ctx context.Context, requestID string, status string, metadata map[string]any) (core.AsyncRequest, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AsyncRequest{}, fmt.Errorf("sqlstore: cached request store is not configured")
	}
	updated, err := s.base.UpdateStatus(ctx, requestID, status, metadata)
	if err != nil {
		return core.AsyncRequest{}, err
	}
	if err := s.evict(ctx, requestID); err != nil {
		return core.AsyncRequest{}, err
	}
	return updated, nil
}

func (s *CachedRequestStore) UpdateNetworkSuccess(ctx context.Context, requestID string, success bool) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached request store is not configured")
	}
	if err := s.base.UpdateNetworkSuccess(ctx, requestID, success); err != nil {
		return err
	}
	return s.evict(ctx, requestID)
}

func (s *CachedRequestStore) UpdateResponseFetched(ctx context.Context, requestID string, fetched bool) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached request store is not configured")
	}
	if err := s.base.UpdateResponseFetched(ctx, requestID, fetched); err != nil {
		return err
	}
	return s.evict(ctx, requestID)
}

func (s *CachedRequestStore) evict(ctx context.Context, requestID string) error {
	cacheKey, err := AsyncRequestCacheKey(requestID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneAsyncRequest(request core.AsyncRequest) core.AsyncRequest {
	cloned := request
	cloned.Metadata = copyAnyMap(request.Metadata)
	cloned.NetworkSuccess = cloneBool(request.NetworkSuccess)
	cloned.ResponseFetched = cloneBool(request.ResponseFetched)
	return cloned
}
