package repository

import (
	"context"
	"time"

	"TourneySync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordFilter narrows enriched-record queries. Tenant is always
// required; cross-tenant reads are rejected upstream, never filtered.
type RecordFilter struct {
	TenantID    uint64
	Status      model.GameStatus
	VenueID     *uint64
	SeriesID    *uint64
	ParentsOnly bool
	FromTime    *time.Time
	ToTime      *time.Time
}

// RecordRepository covers both raw intake rows and enriched records.
type RecordRepository interface {
	// UpsertRaw is idempotent on (tenant_id, external_id); re-ingesting
	// the same observation refreshes the mutable columns in place.
	UpsertRaw(ctx context.Context, rec *model.RawRecord) error
	GetRawByID(ctx context.Context, id uint64) (*model.RawRecord, error)
	ListPendingRaw(ctx context.Context, tenantID uint64, limit int) ([]*model.RawRecord, error)

	// SaveEnrichedWithRaw persists the enriched record and flips the raw
	// row's ingest state in one transaction. The enriched row upserts on
	// raw_id so re-enrichment rewrites rather than duplicates.
	SaveEnrichedWithRaw(ctx context.Context, rec *model.EnrichedRecord, rawID uint64, state model.IngestState) error
	MarkRawFailed(ctx context.Context, rawID uint64) error

	GetEnrichedByID(ctx context.Context, id uint64) (*model.EnrichedRecord, error)
	GetEnrichedByUUID(ctx context.Context, uuid string) (*model.EnrichedRecord, error)
	GetEnrichedByRawID(ctx context.Context, rawID uint64) (*model.EnrichedRecord, error)
	ListEnriched(ctx context.Context, filter RecordFilter, page, pageSize int) ([]*model.EnrichedRecord, int64, error)
	// ListEnrichedInWindow returns finished candidate games for social
	// reconciliation within [from, to].
	ListEnrichedInWindow(ctx context.Context, tenantID uint64, from, to time.Time, limit int) ([]*model.EnrichedRecord, error)
	ListEnrichedIDs(ctx context.Context, filter RecordFilter, limit int) ([]uint64, error)
	UpdateEnriched(ctx context.Context, rec *model.EnrichedRecord) error

	// Consolidation group access. Parents are enriched rows with
	// is_parent=true; children reference them by parent_id only.
	GetParentByKey(ctx context.Context, tenantID uint64, key string) (*model.EnrichedRecord, error)
	ListChildren(ctx context.Context, parentID uint64) ([]*model.EnrichedRecord, error)
	DeleteEnriched(ctx context.Context, id uint64) error
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) UpsertRaw(ctx context.Context, rec *model.RawRecord) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "raw_venue_text", "raw_venue_city", "raw_series_text", "event_number",
			"game_type", "variant", "buy_in", "guarantee", "start_time", "end_time",
			"status", "entries", "rebuys", "addons", "prize_pool", "prizepool_paid", "updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return err
	}
	if rec.ID == 0 {
		return r.db.WithContext(ctx).Model(rec).
			Where("tenant_id = ? AND external_id = ?", rec.TenantID, rec.ExternalID).
			Select("id").First(rec).Error
	}
	return nil
}

func (r *recordRepository) GetRawByID(ctx context.Context, id uint64) (*model.RawRecord, error) {
	var rec model.RawRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) ListPendingRaw(ctx context.Context, tenantID uint64, limit int) ([]*model.RawRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	var recs []*model.RawRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND ingest_state = ?", tenantID, model.IngestPending).
		Order("start_time ASC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *recordRepository) SaveEnrichedWithRaw(ctx context.Context, rec *model.EnrichedRecord, rawID uint64, state model.IngestState) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertEnriched(tx, rec); err != nil {
			return err
		}
		return tx.Model(&model.RawRecord{}).Where("id = ?", rawID).
			Update("ingest_state", state).Error
	})
}

func upsertEnriched(tx *gorm.DB, rec *model.EnrichedRecord) error {
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "game_type", "variant", "buy_in", "guarantee", "start_time", "end_time", "status",
			"venue_id", "venue_status", "venue_confidence", "venue_reason",
			"series_id", "series_status", "series_confidence", "series_reason",
			"recurring_id", "recurring_status", "recurring_confidence", "recurring_reason",
			"consolidation_key", "consolidation_strategy", "parent_id", "flight_label",
			"is_partial_data", "entries", "rebuys", "addons", "prize_pool", "prizepool_paid",
			"tickets_awarded", "ticket_value_total", "enrichment_meta", "updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return err
	}
	if rec.ID == 0 {
		return tx.Model(rec).Where("record_uuid = ?", rec.RecordUUID).Select("id").First(rec).Error
	}
	return nil
}

func (r *recordRepository) MarkRawFailed(ctx context.Context, rawID uint64) error {
	return r.db.WithContext(ctx).Model(&model.RawRecord{}).
		Where("id = ?", rawID).Update("ingest_state", model.IngestFailed).Error
}

func (r *recordRepository) GetEnrichedByID(ctx context.Context, id uint64) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) GetEnrichedByUUID(ctx context.Context, uuid string) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	if err := r.db.WithContext(ctx).Where("record_uuid = ?", uuid).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) GetEnrichedByRawID(ctx context.Context, rawID uint64) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	if err := r.db.WithContext(ctx).Where("raw_id = ?", rawID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) filtered(ctx context.Context, filter RecordFilter) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.EnrichedRecord{}).
		Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.VenueID != nil {
		db = db.Where("venue_id = ?", *filter.VenueID)
	}
	if filter.SeriesID != nil {
		db = db.Where("series_id = ?", *filter.SeriesID)
	}
	if filter.ParentsOnly {
		db = db.Where("is_parent = ?", true)
	}
	if filter.FromTime != nil {
		db = db.Where("start_time >= ?", *filter.FromTime)
	}
	if filter.ToTime != nil {
		db = db.Where("start_time <= ?", *filter.ToTime)
	}
	return db
}

func (r *recordRepository) ListEnriched(ctx context.Context, filter RecordFilter, page, pageSize int) ([]*model.EnrichedRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.filtered(ctx, filter)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var recs []*model.EnrichedRecord
	if err := db.Order("start_time ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *recordRepository) ListEnrichedInWindow(ctx context.Context, tenantID uint64, from, to time.Time, limit int) ([]*model.EnrichedRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	var recs []*model.EnrichedRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND start_time >= ? AND start_time <= ? AND is_parent = ?", tenantID, from, to, false).
		Order("start_time ASC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *recordRepository) ListEnrichedIDs(ctx context.Context, filter RecordFilter, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 10000
	}
	var ids []uint64
	if err := r.filtered(ctx, filter).Order("id ASC").Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *recordRepository) UpdateEnriched(ctx context.Context, rec *model.EnrichedRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *recordRepository) GetParentByKey(ctx context.Context, tenantID uint64, key string) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND consolidation_key = ? AND is_parent = ?", tenantID, key, true).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) ListChildren(ctx context.Context, parentID uint64) ([]*model.EnrichedRecord, error) {
	var recs []*model.EnrichedRecord
	if err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("start_time ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *recordRepository) DeleteEnriched(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.EnrichedRecord{}, id).Error
}
