package api

import (
	"net/http"

	"TourneySync/internal/config"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IngestHandler accepts scraped batches from the fetch collaborator.
type IngestHandler struct {
	ingestService *service.IngestService
	logger        *logrus.Logger
}

func NewIngestHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *IngestHandler {
	records := repository.NewRecordRepository(db)
	social := repository.NewSocialRepository(db)
	svc := service.NewIngestService(records, social, buildEnrichService(db, logger, cfg), logger)
	return &IngestHandler{ingestService: svc, logger: logger}
}

type ingestRecordsRequest struct {
	EnrichNow bool               `json:"enrich_now"`
	Records   []*model.RawRecord `json:"records" binding:"required"`
}

// IngestRecords accepts a batch of raw game observations.
// POST /api/ingest/records
func (h *IngestHandler) IngestRecords(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req ingestRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.ingestService.IngestRecords(c.Request.Context(), tenantID, req.Records, req.EnrichNow)
	if err != nil {
		h.logger.WithError(err).Error("IngestRecords failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type ingestPostsRequest struct {
	Posts []*model.SocialPost `json:"posts" binding:"required"`
}

// IngestPosts accepts a batch of social result posts.
// POST /api/ingest/posts
func (h *IngestHandler) IngestPosts(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req ingestPostsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.ingestService.IngestPosts(c.Request.Context(), tenantID, req.Posts)
	if err != nil {
		h.logger.WithError(err).Error("IngestPosts failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
