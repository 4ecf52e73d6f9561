package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/watchrelay/watchrelay/core"
)

// DeliveryLedger is the durable dedup set of delivered event ids.
// MarkDelivered relies on the unique event_id constraint, so two processes
// writing the same id converge on one row.
type DeliveryLedger struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
	now  func() time.Time
}

func NewDeliveryLedger(db *bun.DB) (*DeliveryLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryLedger{
		db:   db,
		repo: repo,
		now:  time.Now,
	}, nil
}

func (l *DeliveryLedger) IsDelivered(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}
	exists, err := l.db.NewSelect().
		Model((*deliveryRecord)(nil)).
		Where("?TableAlias.event_id = ?", eventID).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (l *DeliveryLedger) MarkDelivered(ctx context.Context, eventID string) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}

	now := l.now().UTC()
	record := &deliveryRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		DeliveredAt: now,
		CreatedAt:   now,
	}
	if _, err := l.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (l *DeliveryLedger) PurgeOlderThan(ctx context.Context, horizon time.Duration) (int, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	if horizon <= 0 {
		return 0, fmt.Errorf("sqlstore: purge horizon must be positive")
	}

	cutoff := l.now().UTC().Add(-horizon)
	result, err := l.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("delivered_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.DeliveryLedger = (*DeliveryLedger)(nil)
