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

// PendingConnectStore persists connect attempts so a callback can land on
// any instance.
type PendingConnectStore struct {
	db   *bun.DB
	repo repository.Repository[*connectAttemptRecord]
}

func NewPendingConnectStore(db *bun.DB) (*PendingConnectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*connectAttemptRecord](db, connectAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connect attempt repository wiring: %w", err)
		}
	}
	return &PendingConnectStore{db: db, repo: repo}, nil
}

func (s *PendingConnectStore) Save(ctx context.Context, attempt core.ConnectAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: pending connect store is not configured")
	}
	attempt.State = strings.TrimSpace(attempt.State)
	if attempt.State == "" {
		return fmt.Errorf("%w: oauth state is required", core.ErrBadInput)
	}
	if strings.TrimSpace(attempt.ID) == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Status == "" {
		attempt.Status = core.ConnectAttemptPending
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if _, err := s.repo.Create(ctx, newConnectAttemptRecord(attempt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: state already in use", core.ErrOAuthStateInvalid)
		}
		return err
	}
	return nil
}

func (s *PendingConnectStore) Get(ctx context.Context, state string) (core.ConnectAttempt, error) {
	if s == nil || s.db == nil {
		return core.ConnectAttempt{}, fmt.Errorf("sqlstore: pending connect store is not configured")
	}
	record, err := findAttempt(ctx, s.db, strings.TrimSpace(state))
	if err != nil {
		return core.ConnectAttempt{}, err
	}
	return record.toDomain(), nil
}

// Claim flips pending to exchanging with a conditional update, so only one
// caller can win the code exchange for a state.
func (s *PendingConnectStore) Claim(ctx context.Context, state string) (core.ConnectAttempt, error) {
	if s == nil || s.db == nil {
		return core.ConnectAttempt{}, fmt.Errorf("sqlstore: pending connect store is not configured")
	}
	state = strings.TrimSpace(state)
	res, err := s.db.NewUpdate().
		Model((*connectAttemptRecord)(nil)).
		Set("status = ?", string(core.ConnectAttemptExchanging)).
		Where("state = ?", state).
		Where("status = ?", string(core.ConnectAttemptPending)).
		Exec(ctx)
	if err != nil {
		return core.ConnectAttempt{}, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return core.ConnectAttempt{}, err
	}
	record, err := findAttempt(ctx, s.db, state)
	if err != nil {
		return core.ConnectAttempt{}, err
	}
	if claimed == 0 {
		return core.ConnectAttempt{}, fmt.Errorf("%w: attempt is %s", core.ErrOAuthStateInvalid, record.Status)
	}
	return record.toDomain(), nil
}

func (s *PendingConnectStore) Resolve(ctx context.Context, state string, input core.ResolveAttemptInput) (core.ConnectAttempt, error) {
	if s == nil || s.db == nil {
		return core.ConnectAttempt{}, fmt.Errorf("sqlstore: pending connect store is not configured")
	}
	if !input.Status.Terminal() {
		return core.ConnectAttempt{}, fmt.Errorf("sqlstore: attempt resolution status %q is not terminal", input.Status)
	}
	state = strings.TrimSpace(state)
	at := input.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	var out core.ConnectAttempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findAttempt(ctx, tx, state)
		if err != nil {
			return err
		}
		if core.ConnectAttemptStatus(record.Status).Terminal() {
			out = record.toDomain()
			return fmt.Errorf("%w: attempt already %s", core.ErrOAuthStateInvalid, record.Status)
		}
		record.Status = string(input.Status)
		record.FailureReason = strings.TrimSpace(input.Reason)
		if id := strings.TrimSpace(input.IntegrationID); id != "" {
			record.IntegrationID = id
		}
		record.ResolvedAt = &at
		if _, err := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	return out, err
}

func (s *PendingConnectStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res, err := s.db.NewDelete().
		Model((*connectAttemptRecord)(nil)).
		Where("expires_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func findAttempt(ctx context.Context, db bun.IDB, state string) (*connectAttemptRecord, error) {
	record := &connectAttemptRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.state = ?", state).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: state not found", core.ErrOAuthStateInvalid)
		}
		return nil, err
	}
	return record, nil
}
