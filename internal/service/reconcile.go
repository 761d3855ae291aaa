package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileService links social result posts to games and cross-checks
// the numeric claims. A MAJOR discrepancy only produces a report; the
// game record is never auto-corrected.
type ReconcileService struct {
	social  repository.SocialRepository
	records repository.RecordRepository
	venues  repository.VenueRepository
	cfg     *config.Config
	logger  *logrus.Logger
}

func NewReconcileService(social repository.SocialRepository, records repository.RecordRepository, venues repository.VenueRepository, cfg *config.Config, logger *logrus.Logger) *ReconcileService {
	return &ReconcileService{social: social, records: records, venues: venues, cfg: cfg, logger: logger}
}

// ReconcilePost matches one post against games inside the date window
// and recomputes the discrepancy record for the primary link. A post
// with no candidate above the secondary floor stays unlinked; that is a
// state, not an error.
func (s *ReconcileService) ReconcilePost(ctx context.Context, tenantID, postID uint64) (*model.ReconciliationRecord, error) {
	post, err := s.social.GetPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post.TenantID != tenantID {
		return nil, ErrCrossTenant
	}

	window := time.Duration(s.cfg.Reconcile.DateWindowDays) * 24 * time.Hour
	games, err := s.records.ListEnrichedInWindow(ctx, tenantID, post.EventDate.Add(-window), post.EventDate.Add(window), 200)
	if err != nil {
		return nil, fmt.Errorf("list candidate games: %w", err)
	}

	venueNames := make(map[uint64]string)
	cands := make([]match.Candidate, 0, len(games))
	gameByID := make(map[uint64]*model.EnrichedRecord, len(games))
	for _, g := range games {
		gameByID[g.ID] = g
		cands = append(cands, s.scoreGame(ctx, post, g, venueNames))
	}
	match.SortCandidates(cands)

	// A re-run owns the primary slot: demote the old primary before
	// scoring, so a pass that no longer produces one leaves nothing
	// stale behind.
	prior, err := s.social.GetPrimaryLink(ctx, post.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load prior primary: %w", err)
	}
	if prior != nil {
		if err := s.social.ClearPrimary(ctx, post.ID); err != nil {
			return nil, fmt.Errorf("clear primary: %w", err)
		}
	}

	var primary *model.PostGameLink
	linked := 0
	for i, c := range cands {
		if c.Confidence < s.cfg.Reconcile.SecondaryFloor {
			break
		}
		isPrimary := i == 0 && c.Confidence >= s.cfg.Reconcile.AutoLinkThreshold
		link := &model.PostGameLink{
			PostID:        post.ID,
			RecordID:      c.TargetID,
			Confidence:    c.Confidence,
			IsPrimaryGame: isPrimary,
			Reason:        c.Reason,
		}
		if err := s.social.UpsertLink(ctx, link); err != nil {
			return nil, fmt.Errorf("save link: %w", err)
		}
		if isPrimary {
			primary = link
		}
		linked++
	}
	// The demoted link's reconciliation no longer describes a primary
	// pairing; drop it unless the same link won again.
	if prior != nil && (primary == nil || primary.ID != prior.ID) {
		if err := s.social.DeleteReconciliationByLink(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("drop stale reconciliation: %w", err)
		}
	}
	if primary == nil {
		s.logger.WithFields(logrus.Fields{
			"post_id":    post.ID,
			"candidates": linked,
		}).Info("no game above auto-link threshold")
		return nil, nil
	}

	rec := s.compare(post, gameByID[primary.RecordID])
	rec.LinkID = primary.ID
	if err := s.social.UpsertReconciliation(ctx, rec); err != nil {
		return nil, fmt.Errorf("save reconciliation: %w", err)
	}
	return rec, nil
}

func (s *ReconcileService) scoreGame(ctx context.Context, post *model.SocialPost, g *model.EnrichedRecord, venueNames map[uint64]string) match.Candidate {
	dayDiff := math.Abs(post.EventDate.Sub(g.StartTime).Hours()) / 24
	dateScore := 1 - math.Min(1, dayDiff/float64(s.cfg.Reconcile.DateWindowDays+1))

	venueScore := 0.5
	if post.VenueText != "" && g.VenueID != nil {
		name, ok := venueNames[*g.VenueID]
		if !ok {
			if v, err := s.venues.GetByID(ctx, *g.VenueID); err == nil {
				name = v.Name
			}
			venueNames[*g.VenueID] = name
		}
		if name != "" {
			venueScore = match.Similarity(post.VenueText, name)
		}
	}

	buyInScore := 0.5
	if post.BuyIn != nil && g.BuyIn != nil {
		if *post.BuyIn == *g.BuyIn {
			buyInScore = 1
		} else {
			buyInScore = 0
		}
	}

	signals := []match.Signal{
		match.DateProximitySignal(dateScore, 0.4),
		match.NameSignal(venueScore, 0.35),
		match.BuyInSignal(buyInScore, 0.25),
	}
	return match.Candidate{
		TargetID:   g.ID,
		Name:       g.Name,
		Confidence: match.Score(signals),
		UpdatedAt:  g.UpdatedAt,
		Signals:    signals,
		Reason:     fmt.Sprintf("date %.2f venue %.2f buy-in %.2f", dateScore, venueScore, buyInScore),
	}
}

// compare computes the deltas between the post's aggregated claims and
// the game's authoritative financials and classifies the severity.
func (s *ReconcileService) compare(post *model.SocialPost, game *model.EnrichedRecord) *model.ReconciliationRecord {
	claimCash, claimTickets, claimTicketValue := sumPlacements(post.Placements)

	gamePaid := 0.0
	if game.PrizepoolPaid != nil {
		gamePaid = *game.PrizepoolPaid
	} else if game.PrizePool != nil {
		gamePaid = *game.PrizePool
	}

	cashDiff := claimCash - gamePaid
	ticketCountDiff := claimTickets - game.TicketsAwarded
	ticketValueDiff := claimTicketValue - game.TicketValueTotal

	severity := s.classify(cashDiff, ticketCountDiff, ticketValueDiff, gamePaid)

	report := fmt.Sprintf("post claims $%.2f cash, %d tickets ($%.2f); game shows $%.2f paid, %d tickets ($%.2f)",
		claimCash, claimTickets, claimTicketValue, gamePaid, game.TicketsAwarded, game.TicketValueTotal)

	return &model.ReconciliationRecord{
		CashDifference:        cashDiff,
		TicketCountDifference: ticketCountDiff,
		TicketValueDifference: ticketValueDiff,
		Severity:              severity,
		Report:                report,
		RecomputedAt:          time.Now(),
	}
}

// classify: NONE inside the tight tolerance, MAJOR on any ticket-count
// mismatch or a cash delta beyond both the absolute and percentage
// bounds, MINOR between.
func (s *ReconcileService) classify(cashDiff float64, ticketCountDiff int, ticketValueDiff, gamePaid float64) model.Severity {
	absCash := math.Abs(cashDiff)
	absTicketValue := math.Abs(ticketValueDiff)
	if absCash <= s.cfg.Reconcile.CashToleranceAbs && ticketCountDiff == 0 && absTicketValue <= s.cfg.Reconcile.CashToleranceAbs {
		return model.SeverityNone
	}
	if ticketCountDiff != 0 {
		return model.SeverityMajor
	}
	pct := absCash / math.Max(gamePaid, 1)
	if absCash > s.cfg.Reconcile.CashMajorAbs && pct > s.cfg.Reconcile.CashMajorPct {
		return model.SeverityMajor
	}
	return model.SeverityMinor
}

func sumPlacements(raw []byte) (cash float64, tickets int, ticketValue float64) {
	if len(raw) == 0 {
		return 0, 0, 0
	}
	var placements []model.Placement
	if err := json.Unmarshal(raw, &placements); err != nil {
		return 0, 0, 0
	}
	for _, p := range placements {
		cash += p.CashPrize
		tickets += p.TicketCount
		ticketValue += p.TicketValue
	}
	return cash, tickets, ticketValue
}

// SweepStale re-reconciles posts whose linked game changed since the
// last recompute. Wired to the cron schedule in main.
func (s *ReconcileService) SweepStale(ctx context.Context, tenantID uint64) {
	postIDs, err := s.social.ListStaleReconciliations(ctx, tenantID, 500)
	if err != nil {
		s.logger.WithError(err).Warn("list stale reconciliations")
		return
	}
	redone := 0
	for _, id := range postIDs {
		if _, err := s.ReconcilePost(ctx, tenantID, id); err != nil {
			s.logger.WithError(err).WithField("post_id", id).Warn("re-reconcile")
			continue
		}
		redone++
	}
	if redone > 0 {
		s.logger.Infof("reconciliation sweep: recomputed %d of %d stale posts", redone, len(postIDs))
	}
}
