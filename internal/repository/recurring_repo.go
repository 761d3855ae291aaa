package repository

import (
	"context"
	"time"

	"TourneySync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecurringRepository stores recurring-game templates. The (venue,
// weekday) gate lives in the query, not in scoring: cross-day templates
// are never even candidates.
type RecurringRepository interface {
	ListByVenueAndWeekday(ctx context.Context, tenantID, venueID uint64, dayOfWeek int) ([]*model.RecurringGameTemplate, error)
	GetByID(ctx context.Context, id uint64) (*model.RecurringGameTemplate, error)
	// UpsertBySlotKey is idempotent on (tenant_id, slot_key).
	UpsertBySlotKey(ctx context.Context, t *model.RecurringGameTemplate) error
	IncrementOccurrence(ctx context.Context, id uint64, at time.Time) error
	// CountSlotOccurrences counts prior enriched games in the same
	// (venue, weekday) slot with a similar start time, the repetition
	// evidence for proposing a new template.
	CountSlotOccurrences(ctx context.Context, tenantID, venueID uint64, dayOfWeek int) (int, error)
}

type recurringRepository struct {
	db *gorm.DB
}

func NewRecurringRepository(db *gorm.DB) RecurringRepository {
	return &recurringRepository{db: db}
}

func (r *recurringRepository) ListByVenueAndWeekday(ctx context.Context, tenantID, venueID uint64, dayOfWeek int) ([]*model.RecurringGameTemplate, error) {
	var templates []*model.RecurringGameTemplate
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND venue_id = ? AND day_of_week = ?", tenantID, venueID, dayOfWeek).
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *recurringRepository) GetByID(ctx context.Context, id uint64) (*model.RecurringGameTemplate, error) {
	var t model.RecurringGameTemplate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *recurringRepository) UpsertBySlotKey(ctx context.Context, t *model.RecurringGameTemplate) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(t).Error; err != nil {
		return err
	}
	if t.ID == 0 {
		return r.db.WithContext(ctx).Model(t).
			Where("tenant_id = ? AND slot_key = ?", t.TenantID, t.SlotKey).
			Select("id").First(t).Error
	}
	return nil
}

func (r *recurringRepository) IncrementOccurrence(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.RecurringGameTemplate{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"occurrence_count": gorm.Expr("occurrence_count + 1"),
			"last_seen_at":     at,
			"updated_at":       at,
		}).Error
}

func (r *recurringRepository) CountSlotOccurrences(ctx context.Context, tenantID, venueID uint64, dayOfWeek int) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.EnrichedRecord{}).
		Where("tenant_id = ? AND venue_id = ? AND EXTRACT(DOW FROM start_time) = ? AND is_parent = ?",
			tenantID, venueID, dayOfWeek, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
