package repository

import (
	"context"

	"TourneySync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SocialRepository stores social posts, post-game links and the computed
// reconciliation records.
type SocialRepository interface {
	// UpsertPost is idempotent on (tenant_id, external_id).
	UpsertPost(ctx context.Context, p *model.SocialPost) error
	GetPostByID(ctx context.Context, id uint64) (*model.SocialPost, error)
	ListPostIDs(ctx context.Context, tenantID uint64, limit int) ([]uint64, error)

	// UpsertLink is idempotent on (post_id, record_id).
	UpsertLink(ctx context.Context, l *model.PostGameLink) error
	ListLinksByPost(ctx context.Context, postID uint64) ([]*model.PostGameLink, error)
	GetPrimaryLink(ctx context.Context, postID uint64) (*model.PostGameLink, error)
	ClearPrimary(ctx context.Context, postID uint64) error

	UpsertReconciliation(ctx context.Context, rec *model.ReconciliationRecord) error
	GetReconciliationByLink(ctx context.Context, linkID uint64) (*model.ReconciliationRecord, error)
	DeleteReconciliationByLink(ctx context.Context, linkID uint64) error
	// ListStaleReconciliations returns links whose game changed after the
	// last recompute; the cron sweep re-runs these.
	ListStaleReconciliations(ctx context.Context, tenantID uint64, limit int) ([]uint64, error)
}

type socialRepository struct {
	db *gorm.DB
}

func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

func (r *socialRepository) UpsertPost(ctx context.Context, p *model.SocialPost) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source", "posted_at", "venue_text", "event_date", "buy_in", "placements", "updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}
	if p.ID == 0 {
		return r.db.WithContext(ctx).Model(p).
			Where("tenant_id = ? AND external_id = ?", p.TenantID, p.ExternalID).
			Select("id").First(p).Error
	}
	return nil
}

func (r *socialRepository) GetPostByID(ctx context.Context, id uint64) (*model.SocialPost, error) {
	var p model.SocialPost
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *socialRepository) ListPostIDs(ctx context.Context, tenantID uint64, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 10000
	}
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&model.SocialPost{}).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *socialRepository) UpsertLink(ctx context.Context, l *model.PostGameLink) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"confidence", "is_primary_game", "reason"}),
	}).Create(l).Error; err != nil {
		return err
	}
	if l.ID == 0 {
		return r.db.WithContext(ctx).Model(l).
			Where("post_id = ? AND record_id = ?", l.PostID, l.RecordID).
			Select("id").First(l).Error
	}
	return nil
}

func (r *socialRepository) ListLinksByPost(ctx context.Context, postID uint64) ([]*model.PostGameLink, error) {
	var links []*model.PostGameLink
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).
		Order("confidence DESC, id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *socialRepository) GetPrimaryLink(ctx context.Context, postID uint64) (*model.PostGameLink, error) {
	var l model.PostGameLink
	if err := r.db.WithContext(ctx).
		Where("post_id = ? AND is_primary_game = ?", postID, true).
		First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *socialRepository) ClearPrimary(ctx context.Context, postID uint64) error {
	return r.db.WithContext(ctx).Model(&model.PostGameLink{}).
		Where("post_id = ?", postID).
		Update("is_primary_game", false).Error
}

func (r *socialRepository) UpsertReconciliation(ctx context.Context, rec *model.ReconciliationRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "link_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cash_difference", "ticket_count_difference", "ticket_value_difference",
			"severity", "report", "recomputed_at",
		}),
	}).Create(rec).Error
}

func (r *socialRepository) GetReconciliationByLink(ctx context.Context, linkID uint64) (*model.ReconciliationRecord, error) {
	var rec model.ReconciliationRecord
	if err := r.db.WithContext(ctx).Where("link_id = ?", linkID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *socialRepository) DeleteReconciliationByLink(ctx context.Context, linkID uint64) error {
	return r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Delete(&model.ReconciliationRecord{}).Error
}

func (r *socialRepository) ListStaleReconciliations(ctx context.Context, tenantID uint64, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 500
	}
	var postIDs []uint64
	err := r.db.WithContext(ctx).Model(&model.PostGameLink{}).
		Joins("JOIN reconciliation_records ON reconciliation_records.link_id = post_game_links.id").
		Joins("JOIN enriched_records ON enriched_records.id = post_game_links.record_id").
		Joins("JOIN social_posts ON social_posts.id = post_game_links.post_id").
		Where("social_posts.tenant_id = ? AND post_game_links.is_primary_game = ?", tenantID, true).
		Where("enriched_records.updated_at > reconciliation_records.recomputed_at").
		Limit(limit).
		Pluck("post_game_links.post_id", &postIDs).Error
	if err != nil {
		return nil, err
	}
	return postIDs, nil
}
