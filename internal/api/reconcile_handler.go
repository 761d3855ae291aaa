package api

import (
	"net/http"

	"TourneySync/internal/config"
	"TourneySync/internal/repository"
	"TourneySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileHandler triggers post-to-game reconciliation and serves the
// resulting links and discrepancy reports.
type ReconcileHandler struct {
	reconcileService *service.ReconcileService
	social           repository.SocialRepository
	logger           *logrus.Logger
}

func NewReconcileHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *ReconcileHandler {
	social := repository.NewSocialRepository(db)
	svc := service.NewReconcileService(social,
		repository.NewRecordRepository(db),
		repository.NewVenueRepository(db), cfg, logger)
	return &ReconcileHandler{reconcileService: svc, social: social, logger: logger}
}

// ReconcilePost links one post to its games and recomputes the
// discrepancy report. Returns 200 with a null report when no game
// clears the auto-link threshold.
// POST /api/posts/:id/reconcile
func (h *ReconcileHandler) ReconcilePost(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.reconcileService.ReconcilePost(c.Request.Context(), tenantID, postID)
	if err != nil {
		h.logger.WithError(err).Error("ReconcilePost failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// GetPostLinks returns a post's game links plus the reconciliation
// record for the primary link, if any.
// GET /api/posts/:id/links
func (h *ReconcileHandler) GetPostLinks(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	post, err := h.social.GetPostByID(c.Request.Context(), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	if post.TenantID != tenantID {
		respondError(c, service.ErrCrossTenant)
		return
	}
	links, err := h.social.ListLinksByPost(c.Request.Context(), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"post": post, "links": links}
	if primary, err := h.social.GetPrimaryLink(c.Request.Context(), postID); err == nil {
		resp["primary_link_id"] = primary.ID
		if rec, err := h.social.GetReconciliationByLink(c.Request.Context(), primary.ID); err == nil {
			resp["reconciliation"] = rec
		}
	}
	c.JSON(http.StatusOK, resp)
}
