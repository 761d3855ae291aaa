package repository

import (
	"context"
	"time"

	"TourneySync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VenueRepository is the canonical venue store.
type VenueRepository interface {
	ListByTenant(ctx context.Context, tenantID uint64) ([]*model.Venue, error)
	GetByID(ctx context.Context, id uint64) (*model.Venue, error)
	// UpsertByNormalizedName converges concurrent create-if-missing calls
	// onto one row: the loser of the race lands on the winner's id.
	UpsertByNormalizedName(ctx context.Context, v *model.Venue) error
	// IncrementRollup bumps game_count and last_data_refreshed_at after
	// an auto-assign.
	IncrementRollup(ctx context.Context, id uint64, at time.Time) error
}

type venueRepository struct {
	db *gorm.DB
}

func NewVenueRepository(db *gorm.DB) VenueRepository {
	return &venueRepository{db: db}
}

func (r *venueRepository) ListByTenant(ctx context.Context, tenantID uint64) ([]*model.Venue, error) {
	var venues []*model.Venue
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&venues).Error; err != nil {
		return nil, err
	}
	return venues, nil
}

func (r *venueRepository) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	var v model.Venue
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *venueRepository) UpsertByNormalizedName(ctx context.Context, v *model.Venue) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "normalized_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(v).Error; err != nil {
		return err
	}
	if v.ID == 0 {
		return r.db.WithContext(ctx).Model(v).
			Where("tenant_id = ? AND normalized_name = ?", v.TenantID, v.NormalizedName).
			Select("id").First(v).Error
	}
	return nil
}

func (r *venueRepository) IncrementRollup(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Venue{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"game_count":             gorm.Expr("game_count + 1"),
			"last_data_refreshed_at": at,
			"updated_at":             at,
		}).Error
}
