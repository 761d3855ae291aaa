package api

import (
	"errors"
	"net/http"
	"strconv"

	"TourneySync/internal/config"
	"TourneySync/internal/repository"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// tenantFrom reads the tenant from the X-Tenant-Id header. Every data
// route requires it; an id belonging to another tenant surfaces as 403
// from the services, never as an empty result.
func tenantFrom(c *gin.Context) (uint64, bool) {
	raw := c.GetHeader("X-Tenant-Id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-Id header is required"})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-Id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCrossTenant):
		c.JSON(http.StatusForbidden, gin.H{"error": "resource belongs to another tenant"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrDataConflict), errors.Is(err, service.ErrInvariantViolation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// buildEnrichService wires the resolver stack once per handler.
func buildEnrichService(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *service.EnrichService {
	records := repository.NewRecordRepository(db)
	venues := repository.NewVenueRepository(db)
	series := repository.NewSeriesRepository(db)
	recurring := repository.NewRecurringRepository(db)
	return service.NewEnrichService(
		records,
		service.NewVenueService(venues, cfg, logger),
		service.NewSeriesService(series, cfg, logger),
		service.NewRecurringService(recurring, cfg, logger),
		service.NewConsolidationService(records, cfg, logger),
		cfg,
		logger,
	)
}
