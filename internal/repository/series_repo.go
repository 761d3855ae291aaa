package repository

import (
	"context"
	"time"

	"TourneySync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeriesRepository stores series titles and their dated instances.
type SeriesRepository interface {
	ListTitlesByTenant(ctx context.Context, tenantID uint64) ([]*model.SeriesTitle, error)
	// UpsertTitle is idempotent on (tenant_id, normalized_name).
	UpsertTitle(ctx context.Context, t *model.SeriesTitle) error

	GetSeries(ctx context.Context, tenantID, titleID uint64, year int) (*model.TournamentSeries, error)
	ListSeriesByTitle(ctx context.Context, titleID uint64) ([]*model.TournamentSeries, error)
	GetSeriesByID(ctx context.Context, id uint64) (*model.TournamentSeries, error)
	// UpsertSeries is idempotent on (tenant_id, series_title_id, year).
	UpsertSeries(ctx context.Context, s *model.TournamentSeries) error
	IncrementRollup(ctx context.Context, id uint64, at time.Time) error
}

type seriesRepository struct {
	db *gorm.DB
}

func NewSeriesRepository(db *gorm.DB) SeriesRepository {
	return &seriesRepository{db: db}
}

func (r *seriesRepository) ListTitlesByTenant(ctx context.Context, tenantID uint64) ([]*model.SeriesTitle, error) {
	var titles []*model.SeriesTitle
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&titles).Error; err != nil {
		return nil, err
	}
	return titles, nil
}

func (r *seriesRepository) UpsertTitle(ctx context.Context, t *model.SeriesTitle) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "normalized_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(t).Error; err != nil {
		return err
	}
	if t.ID == 0 {
		return r.db.WithContext(ctx).Model(t).
			Where("tenant_id = ? AND normalized_name = ?", t.TenantID, t.NormalizedName).
			Select("id").First(t).Error
	}
	return nil
}

func (r *seriesRepository) GetSeries(ctx context.Context, tenantID, titleID uint64, year int) (*model.TournamentSeries, error) {
	var s model.TournamentSeries
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND series_title_id = ? AND year = ?", tenantID, titleID, year).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *seriesRepository) ListSeriesByTitle(ctx context.Context, titleID uint64) ([]*model.TournamentSeries, error) {
	var list []*model.TournamentSeries
	if err := r.db.WithContext(ctx).Where("series_title_id = ?", titleID).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *seriesRepository) GetSeriesByID(ctx context.Context, id uint64) (*model.TournamentSeries, error) {
	var s model.TournamentSeries
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *seriesRepository) UpsertSeries(ctx context.Context, s *model.TournamentSeries) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "series_title_id"}, {Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(s).Error; err != nil {
		return err
	}
	if s.ID == 0 {
		return r.db.WithContext(ctx).Model(s).
			Where("tenant_id = ? AND series_title_id = ? AND year = ?", s.TenantID, s.SeriesTitleID, s.Year).
			Select("id").First(s).Error
	}
	return nil
}

func (r *seriesRepository) IncrementRollup(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.TournamentSeries{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"game_count":   gorm.Expr("game_count + 1"),
			"last_seen_at": at,
			"updated_at":   at,
		}).Error
}
