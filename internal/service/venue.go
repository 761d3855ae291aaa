package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// VenueService resolves raw venue text to a canonical Venue within one
// tenant.
type VenueService struct {
	venues repository.VenueRepository
	cfg    *config.Config
	logger *logrus.Logger
}

func NewVenueService(venues repository.VenueRepository, cfg *config.Config, logger *logrus.Logger) *VenueService {
	return &VenueService{venues: venues, cfg: cfg, logger: logger}
}

// Resolve matches rawName (plus optional city) against the tenant's
// canonical venues and applies the threshold policy. Resolution is
// read-only; rollup counters move via RecordAssignment when the caller
// actually links a record.
func (s *VenueService) Resolve(ctx context.Context, tenantID uint64, rawName, rawCity string) (match.Outcome[model.Venue], error) {
	if match.Normalize(rawName) == "" {
		return match.Outcome[model.Venue]{Status: model.Unassigned, Reason: "empty venue text"}, nil
	}
	venues, err := s.venues.ListByTenant(ctx, tenantID)
	if err != nil {
		return match.Outcome[model.Venue]{}, fmt.Errorf("list venues: %w", err)
	}

	cands := make([]match.Candidate, 0, len(venues))
	for _, v := range venues {
		cands = append(cands, scoreVenue(v, rawName, rawCity))
	}
	out := match.Resolve[model.Venue](cands,
		s.cfg.Resolver.AutoVenueThreshold,
		s.cfg.Resolver.SuggestThreshold,
		s.cfg.Resolver.AmbiguityMargin,
		s.cfg.Resolver.MaxCandidates)
	return out, nil
}

// RecordAssignment bumps the venue's rollup counters. The orchestrator
// calls this once per record-to-venue transition, never per resolution
// pass, so re-enrichment and retries keep the counters honest.
func (s *VenueService) RecordAssignment(ctx context.Context, venueID uint64, at time.Time) error {
	return s.venues.IncrementRollup(ctx, venueID, at)
}

// scoreVenue compares raw text against the canonical name, every alias,
// and the address/city when the raw side carries one.
func scoreVenue(v *model.Venue, rawName, rawCity string) match.Candidate {
	nameSim := match.Similarity(rawName, v.Name)
	reason := fmt.Sprintf("name similarity %.2f against %q", nameSim, v.Name)
	for _, alias := range decodeAliases(v.Aliases) {
		if sim := match.Similarity(rawName, alias); sim > nameSim {
			nameSim = sim
			reason = fmt.Sprintf("alias similarity %.2f against %q", sim, alias)
		}
	}

	var signals []match.Signal
	if rawCity != "" && v.City != "" {
		signals = []match.Signal{
			match.NameSignal(nameSim, 0.7),
			match.AddressSignal(match.Similarity(rawCity, v.City), 0.3),
		}
	} else {
		signals = []match.Signal{match.NameSignal(nameSim, 1.0)}
	}

	return match.Candidate{
		TargetID:   v.ID,
		Name:       v.Name,
		Confidence: match.Score(signals),
		UpdatedAt:  v.UpdatedAt,
		Signals:    signals,
		Reason:     reason,
	}
}

func decodeAliases(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var aliases []string
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return nil
	}
	return aliases
}

// CreateIfMissing converges concurrent create attempts for the same
// normalized name onto a single row; the loser of the race comes back
// with the winner's id.
func (s *VenueService) CreateIfMissing(ctx context.Context, tenantID uint64, name, address, city string) (*model.Venue, error) {
	normalized := match.Normalize(name)
	if normalized == "" {
		return nil, fmt.Errorf("venue name is empty: %w", ErrInvariantViolation)
	}
	v := &model.Venue{
		TenantID:       tenantID,
		Name:           name,
		NormalizedName: normalized,
		Address:        address,
		City:           city,
	}
	if err := s.venues.UpsertByNormalizedName(ctx, v); err != nil {
		return nil, fmt.Errorf("upsert venue: %w", err)
	}
	return v, nil
}

// AssignManually records a human decision for a pending candidate.
func (s *VenueService) AssignManually(ctx context.Context, tenantID, venueID uint64) (match.Outcome[model.Venue], error) {
	v, err := s.venues.GetByID(ctx, venueID)
	if err != nil {
		return match.Outcome[model.Venue]{}, fmt.Errorf("load venue: %w", err)
	}
	if v.TenantID != tenantID {
		return match.Outcome[model.Venue]{}, ErrCrossTenant
	}
	id := v.ID
	return match.Outcome[model.Venue]{
		Status:     model.ManuallyAssigned,
		TargetID:   &id,
		Target:     v,
		Confidence: 1.0,
		Reason:     "manually confirmed",
	}, nil
}
