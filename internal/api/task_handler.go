package api

import (
	"net/http"
	"strconv"

	"TourneySync/internal/model"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler submits and tracks background bulk operations. The task
// service is shared with main (which owns the interrupted-task sweep),
// so it is injected rather than built here.
type TaskHandler struct {
	taskService *service.TaskService
	logger      *logrus.Logger
}

func NewTaskHandler(taskService *service.TaskService, logger *logrus.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, logger: logger}
}

type submitTaskRequest struct {
	Type     model.TaskType       `json:"type" binding:"required"`
	Selector service.TaskSelector `json:"selector"`
}

// SubmitTask queues a bulk operation and returns immediately.
// POST /api/tasks
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.taskService.Submit(c.Request.Context(), tenantID, req.Type, req.Selector)
	if err != nil {
		h.logger.WithError(err).Error("SubmitTask failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

// GetTask returns one task by uuid.
// GET /api/tasks/:task_uuid
func (h *TaskHandler) GetTask(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	task, err := h.taskService.Status(c.Request.Context(), tenantID, c.Param("task_uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasks returns a tenant's recent tasks.
// GET /api/tasks?limit=50
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tasks, err := h.taskService.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CancelTask requests cancellation; takes effect at the next batch
// boundary.
// POST /api/tasks/:task_uuid/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	task, err := h.taskService.Cancel(c.Request.Context(), tenantID, c.Param("task_uuid"))
	if err != nil {
		h.logger.WithError(err).Error("CancelTask failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
