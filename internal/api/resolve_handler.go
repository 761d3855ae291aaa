package api

import (
	"net/http"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResolveHandler exposes the resolvers in dry-run mode: score and rank
// without creating entities or moving rollups. Review tooling uses this
// to preview what enrichment would decide.
type ResolveHandler struct {
	venueService     *service.VenueService
	seriesService    *service.SeriesService
	recurringService *service.RecurringService
	logger           *logrus.Logger
}

func NewResolveHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *ResolveHandler {
	return &ResolveHandler{
		venueService:     service.NewVenueService(repository.NewVenueRepository(db), cfg, logger),
		seriesService:    service.NewSeriesService(repository.NewSeriesRepository(db), cfg, logger),
		recurringService: service.NewRecurringService(repository.NewRecurringRepository(db), cfg, logger),
		logger:           logger,
	}
}

type resolveVenueRequest struct {
	Name string `json:"name" binding:"required"`
	City string `json:"city"`
}

// ResolveVenue previews venue resolution for a raw name.
// POST /api/resolve/venue
func (h *ResolveHandler) ResolveVenue(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req resolveVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.venueService.Resolve(c.Request.Context(), tenantID, req.Name, req.City)
	if err != nil {
		h.logger.WithError(err).Error("ResolveVenue failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type resolveSeriesRequest struct {
	Title string `json:"title" binding:"required"`
	Year  int    `json:"year"`
}

// ResolveSeries previews series resolution for raw series text.
// POST /api/resolve/series
func (h *ResolveHandler) ResolveSeries(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req resolveSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	year := req.Year
	if year == 0 {
		year = service.ExtractYear(req.Title, time.Now())
	}
	out, err := h.seriesService.Resolve(c.Request.Context(), tenantID, req.Title, year, nil, false)
	if err != nil {
		h.logger.WithError(err).Error("ResolveSeries failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type resolveRecurringRequest struct {
	VenueID   uint64    `json:"venue_id" binding:"required"`
	Name      string    `json:"name" binding:"required"`
	GameType  string    `json:"game_type"`
	Variant   string    `json:"variant"`
	BuyIn     *float64  `json:"buy_in"`
	Guarantee *float64  `json:"guarantee"`
	StartTime time.Time `json:"start_time" binding:"required"`
}

// ResolveRecurring previews recurring-game resolution for a slot.
// POST /api/resolve/recurring
func (h *ResolveHandler) ResolveRecurring(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req resolveRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := &model.RawRecord{
		Name:      req.Name,
		GameType:  req.GameType,
		Variant:   req.Variant,
		BuyIn:     req.BuyIn,
		Guarantee: req.Guarantee,
		StartTime: req.StartTime,
	}
	out, err := h.recurringService.Resolve(c.Request.Context(), tenantID, req.VenueID, rec, false)
	if err != nil {
		h.logger.WithError(err).Error("ResolveRecurring failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
