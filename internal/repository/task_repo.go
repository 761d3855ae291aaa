package repository

import (
	"context"
	"time"

	"TourneySync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskRepository persists background tasks. Only the owning runner
// mutates a task after submission; everyone else reads.
type TaskRepository interface {
	Create(ctx context.Context, t *model.BackgroundTask) error
	GetByUUID(ctx context.Context, uuid string) (*model.BackgroundTask, error)
	ListByTenant(ctx context.Context, tenantID uint64, limit int) ([]*model.BackgroundTask, error)
	UpdateProgress(ctx context.Context, id uint64, processed, failed int, percent float64) error
	MarkRunning(ctx context.Context, id uint64, targetCount int) error
	Finish(ctx context.Context, id uint64, status model.TaskStatus, payload datatypes.JSON, errMsg string) error
	RequestCancel(ctx context.Context, uuid string, tenantID uint64) error
	// CancelPending reports whether cancellation was requested; checked
	// by the runner between batches, never mid-item.
	CancelPending(ctx context.Context, id uint64) (bool, error)
	// FailInterrupted marks RUNNING tasks as FAILED at startup; a fresh
	// process cannot resume another process's in-flight batches.
	FailInterrupted(ctx context.Context) (int64, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, t *model.BackgroundTask) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *taskRepository) GetByUUID(ctx context.Context, uuid string) (*model.BackgroundTask, error) {
	var t model.BackgroundTask
	if err := r.db.WithContext(ctx).Where("task_uuid = ?", uuid).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) ListByTenant(ctx context.Context, tenantID uint64, limit int) ([]*model.BackgroundTask, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var tasks []*model.BackgroundTask
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).
		Order("created_at DESC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) UpdateProgress(ctx context.Context, id uint64, processed, failed int, percent float64) error {
	return r.db.WithContext(ctx).Model(&model.BackgroundTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_count":  processed,
			"failed_count":     failed,
			"progress_percent": percent,
			"updated_at":       time.Now(),
		}).Error
}

func (r *taskRepository) MarkRunning(ctx context.Context, id uint64, targetCount int) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.BackgroundTask{}).
		Where("id = ? AND status = ?", id, model.TaskQueued).
		Updates(map[string]interface{}{
			"status":       model.TaskRunning,
			"target_count": targetCount,
			"started_at":   now,
			"updated_at":   now,
		}).Error
}

func (r *taskRepository) Finish(ctx context.Context, id uint64, status model.TaskStatus, payload datatypes.JSON, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.BackgroundTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"result_payload": payload,
			"error_message":  errMsg,
			"finished_at":    now,
			"updated_at":     now,
		}).Error
}

func (r *taskRepository) RequestCancel(ctx context.Context, uuid string, tenantID uint64) error {
	return r.db.WithContext(ctx).Model(&model.BackgroundTask{}).
		Where("task_uuid = ? AND tenant_id = ?", uuid, tenantID).
		Update("cancel_requested", true).Error
}

func (r *taskRepository) CancelPending(ctx context.Context, id uint64) (bool, error) {
	var t model.BackgroundTask
	if err := r.db.WithContext(ctx).Select("cancel_requested").
		Where("id = ?", id).First(&t).Error; err != nil {
		return false, err
	}
	return t.CancelRequested, nil
}

func (r *taskRepository) FailInterrupted(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.BackgroundTask{}).
		Where("status = ?", model.TaskRunning).
		Updates(map[string]interface{}{
			"status":        model.TaskFailed,
			"error_message": "interrupted by process restart",
			"finished_at":   time.Now(),
		})
	return res.RowsAffected, res.Error
}
