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

type AutomationStore struct {
	db   *bun.DB
	repo repository.Repository[*automationRecord]
}

func NewAutomationStore(db *bun.DB) (*AutomationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*automationRecord](db, automationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid automation repository wiring: %w", err)
		}
	}
	return &AutomationStore{db: db, repo: repo}, nil
}

// Create stores an automation. Automations are authored elsewhere; this
// exists for seeding and tooling.
func (s *AutomationStore) Create(ctx context.Context, automation core.Automation) (core.Automation, error) {
	if s == nil || s.repo == nil {
		return core.Automation{}, fmt.Errorf("sqlstore: automation store is not configured")
	}
	if strings.TrimSpace(automation.UserID) == "" || strings.TrimSpace(automation.TriggerType) == "" {
		return core.Automation{}, fmt.Errorf("%w: user id and trigger type are required", core.ErrBadInput)
	}
	if strings.TrimSpace(automation.ID) == "" {
		automation.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, newAutomationRecord(automation, time.Now().UTC()))
	if err != nil {
		return core.Automation{}, err
	}
	return created.toDomain(), nil
}

func (s *AutomationStore) FindOwned(ctx context.Context, userID string, automationID string) (core.Automation, error) {
	if s == nil || s.db == nil {
		return core.Automation{}, fmt.Errorf("sqlstore: automation store is not configured")
	}
	automationID = strings.TrimSpace(automationID)
	record := &automationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", automationID).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Automation{}, notFound(err, core.ErrAutomationNotFound, automationID)
	}
	return record.toDomain(), nil
}
