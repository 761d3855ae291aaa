package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus is the background task state machine:
// QUEUED -> RUNNING -> (COMPLETED | FAILED | PARTIAL_SUCCESS | CANCELLED).
// Terminal states are never left.
type TaskStatus string

const (
	TaskQueued         TaskStatus = "QUEUED"
	TaskRunning        TaskStatus = "RUNNING"
	TaskCompleted      TaskStatus = "COMPLETED"
	TaskFailed         TaskStatus = "FAILED"
	TaskCancelled      TaskStatus = "CANCELLED"
	TaskPartialSuccess TaskStatus = "PARTIAL_SUCCESS"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskPartialSuccess:
		return true
	}
	return false
}

// TaskType enumerates the supported bulk operations.
type TaskType string

const (
	TaskBulkReassignVenue   TaskType = "bulk_reassign_venue"
	TaskBulkDetectRecurring TaskType = "bulk_detect_recurring"
	TaskBulkReconcilePosts  TaskType = "bulk_reconcile_posts"
	TaskBulkReEnrich        TaskType = "bulk_re_enrich"
)

// BackgroundTask is one persisted unit of asynchronous work. Mutated
// only by its own runner; callers poll instead of blocking.
type BackgroundTask struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	TaskUUID        string         `gorm:"column:task_uuid;type:varchar(64);uniqueIndex;not null"`
	TenantID        uint64         `gorm:"column:tenant_id;type:bigint;not null;index"`
	Type            TaskType       `gorm:"column:type;type:varchar(32);not null"`
	Status          TaskStatus     `gorm:"column:status;type:varchar(16);default:QUEUED;index"`
	TargetSelector  datatypes.JSON `gorm:"column:target_selector;type:jsonb"`
	TargetCount     int            `gorm:"column:target_count;type:int;default:0"`
	ProcessedCount  int            `gorm:"column:processed_count;type:int;default:0"`
	FailedCount     int            `gorm:"column:failed_count;type:int;default:0"`
	ProgressPercent float64        `gorm:"column:progress_percent;type:decimal(5,2);default:0"`
	ResultPayload   datatypes.JSON `gorm:"column:result_payload;type:jsonb"` // per-item errors live here
	ErrorMessage    string         `gorm:"column:error_message;type:text"`
	CancelRequested bool           `gorm:"column:cancel_requested;type:boolean;default:false"`
	StartedAt       *time.Time     `gorm:"column:started_at;type:timestamp"`
	FinishedAt      *time.Time     `gorm:"column:finished_at;type:timestamp"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (BackgroundTask) TableName() string { return "background_tasks" }
