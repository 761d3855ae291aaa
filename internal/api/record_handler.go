package api

import (
	"net/http"
	"strconv"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordHandler serves enriched records, consolidation groups and the
// manual-assignment operations.
type RecordHandler struct {
	records       repository.RecordRepository
	enrichService *service.EnrichService
	consolidation *service.ConsolidationService
	logger        *logrus.Logger
}

func NewRecordHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *RecordHandler {
	records := repository.NewRecordRepository(db)
	return &RecordHandler{
		records:       records,
		enrichService: buildEnrichService(db, logger, cfg),
		consolidation: service.NewConsolidationService(records, cfg, logger),
		logger:        logger,
	}
}

// ListRecords browses enriched records.
// GET /api/records?status=finished&venue_id=3&parents_only=true&page=1&page_size=20
func (h *RecordHandler) ListRecords(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	filter := repository.RecordFilter{
		TenantID:    tenantID,
		Status:      model.GameStatus(c.Query("status")),
		ParentsOnly: c.Query("parents_only") == "true",
	}
	if raw := c.Query("venue_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.VenueID = &id
		}
	}
	if raw := c.Query("series_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.SeriesID = &id
		}
	}
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.FromTime = &t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.ToTime = &t
		}
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	recs, total, err := h.records.ListEnriched(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListRecords failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "page_size": pageSize, "records": recs})
}

// GetRecord returns one enriched record by uuid.
// GET /api/records/:record_uuid
func (h *RecordHandler) GetRecord(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	rec, err := h.records.GetEnrichedByUUID(c.Request.Context(), c.Param("record_uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec.TenantID != tenantID {
		respondError(c, service.ErrCrossTenant)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetGroup returns a consolidation parent with its children, resolving
// either a parent uuid or a child uuid to the group.
// GET /api/records/:record_uuid/group
func (h *RecordHandler) GetGroup(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	rec, err := h.records.GetEnrichedByUUID(c.Request.Context(), c.Param("record_uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec.TenantID != tenantID {
		respondError(c, service.ErrCrossTenant)
		return
	}
	parent := rec
	if !rec.IsParent {
		if rec.ParentID == nil {
			c.JSON(http.StatusOK, gin.H{"parent": nil, "children": []*model.EnrichedRecord{rec}})
			return
		}
		if parent, err = h.records.GetEnrichedByID(c.Request.Context(), *rec.ParentID); err != nil {
			respondError(c, err)
			return
		}
	}
	children, err := h.records.ListChildren(c.Request.Context(), parent.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parent": parent, "children": children})
}

// recordIDFromUUID resolves the :record_uuid path segment to the row id.
func (h *RecordHandler) recordIDFromUUID(c *gin.Context) (uint64, bool) {
	rec, err := h.records.GetEnrichedByUUID(c.Request.Context(), c.Param("record_uuid"))
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	return rec.ID, true
}

type assignVenueRequest struct {
	VenueID uint64 `json:"venue_id" binding:"required"`
}

// AssignVenue confirms a venue for a pending record.
// POST /api/records/:record_uuid/venue
func (h *RecordHandler) AssignVenue(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	recordID, ok := h.recordIDFromUUID(c)
	if !ok {
		return
	}
	var req assignVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.enrichService.ManualAssignVenue(c.Request.Context(), tenantID, recordID, req.VenueID)
	if err != nil {
		h.logger.WithError(err).Error("AssignVenue failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ReEnrich re-runs the full pipeline for one record.
// POST /api/records/:record_uuid/re-enrich
func (h *RecordHandler) ReEnrich(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	recordID, ok := h.recordIDFromUUID(c)
	if !ok {
		return
	}
	rec, err := h.enrichService.ReEnrich(c.Request.Context(), tenantID, recordID)
	if err != nil {
		h.logger.WithError(err).Error("ReEnrich failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RemoveFromGroup detaches a child from its consolidation parent and
// reports whether the emptied synthetic parent should go. The delete
// itself is the caller's decision.
// POST /api/records/:record_uuid/detach
func (h *RecordHandler) RemoveFromGroup(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	recordID, ok := h.recordIDFromUUID(c)
	if !ok {
		return
	}
	result, err := h.consolidation.RemoveChild(c.Request.Context(), tenantID, recordID)
	if err != nil {
		h.logger.WithError(err).Error("RemoveFromGroup failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
