package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// TaskSelector narrows a bulk task's targets. Explicit IDs win; when
// empty, the filter fields select.
type TaskSelector struct {
	IDs      []uint64   `json:"ids,omitempty"`
	VenueID  *uint64    `json:"venue_id,omitempty"`
	SeriesID *uint64    `json:"series_id,omitempty"`
	FromTime *time.Time `json:"from_time,omitempty"`
	ToTime   *time.Time `json:"to_time,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// itemError is one failed target inside result_payload.
type itemError struct {
	ID    uint64 `json:"id"`
	Error string `json:"error"`
}

// TaskService runs bulk operations asynchronously. Submit returns
// immediately with a QUEUED task; a runner goroutine works through the
// targets in batches and the caller polls Status.
type TaskService struct {
	tasks     repository.TaskRepository
	records   repository.RecordRepository
	social    repository.SocialRepository
	enrich    *EnrichService
	reconcile *ReconcileService
	cfg       *config.Config
	logger    *logrus.Logger

	wg sync.WaitGroup
}

func NewTaskService(
	tasks repository.TaskRepository,
	records repository.RecordRepository,
	social repository.SocialRepository,
	enrich *EnrichService,
	reconcile *ReconcileService,
	cfg *config.Config,
	logger *logrus.Logger,
) *TaskService {
	return &TaskService{
		tasks:     tasks,
		records:   records,
		social:    social,
		enrich:    enrich,
		reconcile: reconcile,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit persists a QUEUED task and starts its runner. The returned
// task is a snapshot; poll Status for progress.
func (s *TaskService) Submit(ctx context.Context, tenantID uint64, taskType model.TaskType, selector TaskSelector) (*model.BackgroundTask, error) {
	switch taskType {
	case model.TaskBulkReassignVenue, model.TaskBulkDetectRecurring, model.TaskBulkReconcilePosts, model.TaskBulkReEnrich:
	default:
		return nil, fmt.Errorf("unknown task type %q: %w", taskType, ErrInvariantViolation)
	}
	raw, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("marshal selector: %w", err)
	}
	task := &model.BackgroundTask{
		TaskUUID:       uuid.NewString(),
		TenantID:       tenantID,
		Type:           taskType,
		Status:         model.TaskQueued,
		TargetSelector: datatypes.JSON(raw),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the task outlives the
		// submitting HTTP call.
		s.run(context.Background(), task, selector)
	}()
	return task, nil
}

// Status returns the task, tenant-checked.
func (s *TaskService) Status(ctx context.Context, tenantID uint64, taskUUID string) (*model.BackgroundTask, error) {
	task, err := s.tasks.GetByUUID(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	if task.TenantID != tenantID {
		return nil, ErrCrossTenant
	}
	return task, nil
}

// List returns a tenant's recent tasks.
func (s *TaskService) List(ctx context.Context, tenantID uint64, limit int) ([]*model.BackgroundTask, error) {
	return s.tasks.ListByTenant(ctx, tenantID, limit)
}

// Cancel flags the task; the runner honors it at the next batch
// boundary. Cancelling a terminal task is a no-op.
func (s *TaskService) Cancel(ctx context.Context, tenantID uint64, taskUUID string) (*model.BackgroundTask, error) {
	task, err := s.Status(ctx, tenantID, taskUUID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}
	if err := s.tasks.RequestCancel(ctx, taskUUID, tenantID); err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	return s.Status(ctx, tenantID, taskUUID)
}

// Wait blocks until all in-flight runners exit. Shutdown path only.
func (s *TaskService) Wait() { s.wg.Wait() }

func (s *TaskService) run(ctx context.Context, task *model.BackgroundTask, selector TaskSelector) {
	log := s.logger.WithFields(logrus.Fields{
		"task_uuid": task.TaskUUID,
		"task_type": task.Type,
		"tenant_id": task.TenantID,
	})

	targets, err := s.resolveTargets(ctx, task, selector)
	if err != nil {
		log.WithError(err).Error("resolve task targets")
		s.finish(ctx, task.ID, model.TaskFailed, nil, err.Error())
		return
	}
	if err := s.tasks.MarkRunning(ctx, task.ID, len(targets)); err != nil {
		// Never leave the task QUEUED with no runner behind it.
		log.WithError(err).Error("mark task running")
		s.finish(ctx, task.ID, model.TaskFailed, nil, fmt.Sprintf("mark running: %v", err))
		return
	}
	log.Infof("task started: %d targets", len(targets))

	processed, failed := 0, 0
	var mu sync.Mutex
	var itemErrors []itemError
	cancelled := false

	batchSize := s.cfg.Tasks.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(targets); start += batchSize {
		// Cancellation is honored between batches only; in-flight items
		// always finish.
		if wantCancel, err := s.tasks.CancelPending(ctx, task.ID); err == nil && wantCancel {
			cancelled = true
			break
		}
		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Tasks.Workers)
		for _, id := range targets[start:end] {
			id := id
			g.Go(func() error {
				err := s.dispatch(gctx, task, id)
				mu.Lock()
				defer mu.Unlock()
				processed++
				if err != nil {
					failed++
					itemErrors = append(itemErrors, itemError{ID: id, Error: err.Error()})
				}
				// Item failures never abort the batch.
				return nil
			})
		}
		_ = g.Wait()

		percent := float64(processed) / float64(len(targets)) * 100
		if err := s.tasks.UpdateProgress(ctx, task.ID, processed, failed, percent); err != nil {
			log.WithError(err).Warn("update task progress")
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"processed": processed,
		"failed":    failed,
		"errors":    itemErrors,
	})
	status := finalStatus(cancelled, processed, failed, len(targets))
	s.finish(ctx, task.ID, status, payload, "")
	log.WithFields(logrus.Fields{
		"status":    status,
		"processed": processed,
		"failed":    failed,
	}).Info("task finished")
}

// finalStatus: cancellation dominates; otherwise all-failed is FAILED,
// any-failed is PARTIAL_SUCCESS, clean is COMPLETED.
func finalStatus(cancelled bool, processed, failed, total int) model.TaskStatus {
	if cancelled {
		return model.TaskCancelled
	}
	if failed == 0 {
		return model.TaskCompleted
	}
	if failed >= total && total > 0 {
		return model.TaskFailed
	}
	return model.TaskPartialSuccess
}

func (s *TaskService) finish(ctx context.Context, id uint64, status model.TaskStatus, payload datatypes.JSON, errMsg string) {
	if err := s.tasks.Finish(ctx, id, status, payload, errMsg); err != nil {
		s.logger.WithError(err).WithField("task_id", id).Error("finish task")
	}
}

func (s *TaskService) resolveTargets(ctx context.Context, task *model.BackgroundTask, selector TaskSelector) ([]uint64, error) {
	if len(selector.IDs) > 0 {
		return selector.IDs, nil
	}
	limit := selector.Limit
	if task.Type == model.TaskBulkReconcilePosts {
		return s.social.ListPostIDs(ctx, task.TenantID, limit)
	}
	return s.records.ListEnrichedIDs(ctx, repository.RecordFilter{
		TenantID: task.TenantID,
		VenueID:  selector.VenueID,
		SeriesID: selector.SeriesID,
		FromTime: selector.FromTime,
		ToTime:   selector.ToTime,
	}, limit)
}

func (s *TaskService) dispatch(ctx context.Context, task *model.BackgroundTask, id uint64) error {
	switch task.Type {
	case model.TaskBulkReassignVenue:
		return s.enrich.ReResolveVenue(ctx, task.TenantID, id)
	case model.TaskBulkDetectRecurring:
		return s.enrich.ReResolveRecurring(ctx, task.TenantID, id)
	case model.TaskBulkReEnrich:
		_, err := s.enrich.ReEnrich(ctx, task.TenantID, id)
		return err
	case model.TaskBulkReconcilePosts:
		_, err := s.reconcile.ReconcilePost(ctx, task.TenantID, id)
		return err
	}
	return fmt.Errorf("unknown task type %q: %w", task.Type, ErrInvariantViolation)
}
