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

type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
	now  func() time.Time
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{db: db, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Upsert writes the integration for (user, provider), creating it on first
// use. The write is a single INSERT .. ON CONFLICT so concurrent callers for
// the same pair converge on one row without aborting the transaction.
func (s *IntegrationStore) Upsert(ctx context.Context, in core.UpsertIntegrationInput) (core.Integration, error) {
	return s.write(ctx, in, true)
}

// EnsurePending returns the existing (user, provider) row, inserting a
// pending one when none exists. An existing row is never overwritten.
func (s *IntegrationStore) EnsurePending(ctx context.Context, userID string, providerID string) (core.Integration, error) {
	return s.write(ctx, core.UpsertIntegrationInput{
		UserID:     userID,
		ProviderID: providerID,
		Status:     core.IntegrationStatusPending,
	}, false)
}

func (s *IntegrationStore) write(ctx context.Context, in core.UpsertIntegrationInput, overwrite bool) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	if in.UserID == "" || in.ProviderID == "" {
		return core.Integration{}, fmt.Errorf("%w: user id and provider id are required", core.ErrBadInput)
	}
	if in.Status != "" && !in.Status.Valid() {
		return core.Integration{}, fmt.Errorf("%w: %q", core.ErrInvalidStatusTransition, in.Status)
	}
	configuration, err := core.EncodeConfiguration(in.Configuration)
	if err != nil {
		return core.Integration{}, err
	}

	record := newIntegrationRecord(in, configuration, s.now())
	record.ID = uuid.NewString()
	var out *integrationRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := tx.NewInsert().Model(record)
		if overwrite {
			query = query.On("CONFLICT (user_id, provider_id) DO UPDATE")
			for _, column := range integrationUpsertColumns {
				query = query.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
			}
		} else {
			query = query.On("CONFLICT (user_id, provider_id) DO NOTHING")
		}
		if _, err := query.Exec(ctx); err != nil {
			return err
		}
		stored, err := findIntegrationTx(ctx, tx, in.UserID, in.ProviderID)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("%w: %s/%s", core.ErrIntegrationNotFound, in.UserID, in.ProviderID)
		}
		out = stored
		return nil
	})
	if err != nil {
		return core.Integration{}, err
	}
	return out.toDomain()
}

// integrationUpsertColumns are overwritten when Upsert hits an existing
// (user, provider) row. id and created_at keep their first values.
var integrationUpsertColumns = []string{
	"status",
	"is_active",
	"access_token",
	"refresh_token",
	"expires_at",
	"scope",
	"configuration",
	"bot_id",
	"workspace_name",
	"workspace_id",
	"workspace_icon",
	"last_used_at",
	"updated_at",
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	return s.selectOne(ctx, strings.TrimSpace(id), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", strings.TrimSpace(id))
	})
}

func (s *IntegrationStore) FindOwned(ctx context.Context, userID string, id string) (core.Integration, error) {
	return s.selectOne(ctx, strings.TrimSpace(id), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", strings.TrimSpace(id)).
			Where("?TableAlias.user_id = ?", strings.TrimSpace(userID))
	})
}

func (s *IntegrationStore) FindByUserProvider(ctx context.Context, userID string, providerID string) (core.Integration, error) {
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	return s.selectOne(ctx, userID+"/"+providerID, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.provider_id = ?", providerID)
	})
}

// ListByUser returns the user's integrations, newest first.
func (s *IntegrationStore) ListByUser(ctx context.Context, userID string) ([]core.Integration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		integration, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, integration)
	}
	return out, nil
}

func (s *IntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus) (core.Integration, error) {
	if !status.Valid() {
		return core.Integration{}, fmt.Errorf("%w: %q", core.ErrInvalidStatusTransition, status)
	}
	return s.update(ctx, id, func(record *integrationRecord) error {
		record.Status = string(status)
		record.IsActive = status == core.IntegrationStatusActive
		return nil
	})
}

func (s *IntegrationStore) UpdateConfiguration(ctx context.Context, id string, cfg core.ProviderConfiguration) (core.Integration, error) {
	configuration, err := core.EncodeConfiguration(cfg)
	if err != nil {
		return core.Integration{}, err
	}
	return s.update(ctx, id, func(record *integrationRecord) error {
		record.Configuration = configuration
		return nil
	})
}

func (s *IntegrationStore) Delete(ctx context.Context, userID string, id string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: integration store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*integrationRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *IntegrationStore) update(ctx context.Context, id string, mutate func(*integrationRecord) error) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	record, err := s.selectRecord(ctx, id, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	})
	if err != nil {
		return core.Integration{}, err
	}
	if err := mutate(record); err != nil {
		return core.Integration{}, err
	}
	record.UpdatedAt = s.now()
	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(id)); err != nil {
		return core.Integration{}, err
	}
	return record.toDomain()
}

func (s *IntegrationStore) selectOne(ctx context.Context, subject string, where func(*bun.SelectQuery) *bun.SelectQuery) (core.Integration, error) {
	record, err := s.selectRecord(ctx, subject, where)
	if err != nil {
		return core.Integration{}, err
	}
	return record.toDomain()
}

func (s *IntegrationStore) selectRecord(ctx context.Context, subject string, where func(*bun.SelectQuery) *bun.SelectQuery) (*integrationRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record := &integrationRecord{}
	if err := where(s.db.NewSelect().Model(record)).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, core.ErrIntegrationNotFound, subject)
	}
	return record, nil
}

func findIntegrationTx(ctx context.Context, tx bun.Tx, userID string, providerID string) (*integrationRecord, error) {
	record := &integrationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
