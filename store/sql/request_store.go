package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RequestStore struct {
	db   *bun.DB
	repo repository.Repository[*asyncRequestRecord]
	now  func() time.Time
}

func NewRequestStore(db *bun.DB) (*RequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*asyncRequestRecord](db, asyncRequestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid request repository wiring: %w", err)
		}
	}
	return &RequestStore{db: db, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *RequestStore) Create(ctx context.Context, in core.CreateRequestInput) (core.AsyncRequest, error) {
	if s == nil || s.repo == nil {
		return core.AsyncRequest{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	in.RequestID = strings.TrimSpace(in.RequestID)
	if in.RequestID == "" {
		return core.AsyncRequest{}, fmt.Errorf("%w: request id is required", core.ErrBadInput)
	}
	record := newAsyncRequestRecord(in, s.now())
	record.ID = uuid.NewString()
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.AsyncRequest{}, fmt.Errorf("%w: %s", core.ErrRequestExists, in.RequestID)
		}
		return core.AsyncRequest{}, err
	}
	return created.toDomain(), nil
}

func (s *RequestStore) Get(ctx context.Context, requestID string) (core.AsyncRequest, error) {
	record, err := s.find(ctx, s.db, requestID)
	if err != nil {
		return core.AsyncRequest{}, err
	}
	return record.toDomain(), nil
}

// UpdateStatus sets the status and merges metadata keys into the stored
// metadata.
func (s *RequestStore) UpdateStatus(ctx context.Context, requestID string, status string, metadata map[string]any) (core.AsyncRequest, error) {
	if s == nil || s.db == nil {
		return core.AsyncRequest{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	var out core.AsyncRequest
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.find(ctx, tx, requestID)
		if err != nil {
			return err
		}
		record.Status = strings.TrimSpace(status)
		merged := copyAnyMap(record.Metadata)
		for key, value := range metadata {
			merged[key] = value
		}
		record.Metadata = merged
		record.UpdatedAt = s.now()
		if _, err := tx.NewUpdate().
			Model(record).
			Column("status", "metadata", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	return out, err
}

func (s *RequestStore) UpdateNetworkSuccess(ctx context.Context, requestID string, success bool) error {
	return s.setFlag(ctx, requestID, "network_success", success)
}

func (s *RequestStore) UpdateResponseFetched(ctx context.Context, requestID string, fetched bool) error {
	return s.setFlag(ctx, requestID, "response_fetched", fetched)
}

func (s *RequestStore) setFlag(ctx context.Context, requestID string, column string, value bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: request store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	res, err := s.db.NewUpdate().
		Model((*asyncRequestRecord)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", s.now()).
		Where("request_id = ?", requestID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrRequestNotFound, requestID)
	}
	return nil
}

func (s *RequestStore) find(ctx context.Context, db bun.IDB, requestID string) (*asyncRequestRecord, error) {
	if s == nil || db == nil {
		return nil, fmt.Errorf("sqlstore: request store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	record := &asyncRequestRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.request_id = ?", requestID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, core.ErrRequestNotFound, requestID)
	}
	return record, nil
}

type CancellationStore struct {
	db   *bun.DB
	repo repository.Repository[*cancellationRecord]
	now  func() time.Time
}

func NewCancellationStore(db *bun.DB) (*CancellationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cancellationRecord](db, cancellationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cancellation repository wiring: %w", err)
		}
	}
	return &CancellationStore{db: db, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *CancellationStore) Create(ctx context.Context, userID string, requestID string, metadata map[string]any) (core.CancellationRequest, error) {
	if s == nil || s.repo == nil {
		return core.CancellationRequest{}, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return core.CancellationRequest{}, fmt.Errorf("%w: request id is required", core.ErrBadInput)
	}
	created, err := s.repo.Create(ctx, &cancellationRecord{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		RequestID: requestID,
		Status:    string(core.CancellationStatusPending),
		Metadata:  copyAnyMap(metadata),
		CreatedAt: s.now(),
	})
	if err != nil {
		return core.CancellationRequest{}, err
	}
	return created.toDomain(), nil
}

func (s *CancellationStore) HasPending(ctx context.Context, requestID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	return s.db.NewSelect().
		Model((*cancellationRecord)(nil)).
		Where("?TableAlias.request_id = ?", strings.TrimSpace(requestID)).
		Where("?TableAlias.status = ?", string(core.CancellationStatusPending)).
		Exists(ctx)
}

// MarkProcessed closes every pending cancellation for the request and
// reports how many rows changed.
func (s *CancellationStore) MarkProcessed(ctx context.Context, requestID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*cancellationRecord)(nil)).
		Set("status = ?", string(core.CancellationStatusProcessed)).
		Set("processed_at = ?", s.now()).
		Where("request_id = ?", strings.TrimSpace(requestID)).
		Where("status = ?", string(core.CancellationStatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByRequest returns every cancellation filed for a request, oldest
// first.
func (s *CancellationStore) ListByRequest(ctx context.Context, requestID string) ([]core.CancellationRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("request_id", "=", strings.TrimSpace(requestID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.CancellationRequest, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
