package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// SeriesService resolves series text two-stage: the year-independent
// title first (safe to create when unmatched), then the dated instance
// under it. Cross-year matches are never auto-assigned.
type SeriesService struct {
	series repository.SeriesRepository
	cfg    *config.Config
	logger *logrus.Logger
}

func NewSeriesService(series repository.SeriesRepository, cfg *config.Config, logger *logrus.Logger) *SeriesService {
	return &SeriesService{series: series, cfg: cfg, logger: logger}
}

var yearToken = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ExtractYear pulls a 4-digit year from series text, falling back to the
// record's start time.
func ExtractYear(titleText string, fallback time.Time) int {
	if m := yearToken.FindString(titleText); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return fallback.Year()
}

// stripYear removes year tokens so "WPO 2024" and "WPO 2025" share one
// title entity.
func stripYear(titleText string) string {
	return yearToken.ReplaceAllString(titleText, " ")
}

// Resolve matches (titleText, year) against known series. commit=false
// is the dry-run mode: nothing is created. Rollup counters move via
// RecordAssignment when the caller links a record.
func (s *SeriesService) Resolve(ctx context.Context, tenantID uint64, titleText string, year int, venueID *uint64, commit bool) (match.Outcome[model.TournamentSeries], error) {
	normalized := match.Normalize(stripYear(titleText))
	if normalized == "" {
		return match.Outcome[model.TournamentSeries]{Status: model.Unassigned, Reason: "empty series text"}, nil
	}

	titles, err := s.series.ListTitlesByTenant(ctx, tenantID)
	if err != nil {
		return match.Outcome[model.TournamentSeries]{}, fmt.Errorf("list series titles: %w", err)
	}

	// Stage 1: resolve the title.
	var title *model.SeriesTitle
	bestSim := 0.0
	for _, t := range titles {
		sim := match.Similarity(normalized, t.NormalizedName)
		for _, alias := range decodeAliases(t.Aliases) {
			if as := match.Similarity(titleText, alias); as > sim {
				sim = as
			}
		}
		if sim > bestSim {
			bestSim, title = sim, t
		}
	}
	titleExact := title != nil && title.NormalizedName == normalized
	if titleExact {
		bestSim = 1.0
	}

	if title == nil || bestSim < s.cfg.Resolver.SuggestThreshold {
		// Unmatched title: creating the title itself is low risk.
		if !commit {
			return match.Outcome[model.TournamentSeries]{
				Status: model.Unassigned,
				Reason: fmt.Sprintf("no series title matched %q", titleText),
			}, nil
		}
		title = &model.SeriesTitle{TenantID: tenantID, Title: stripYearSpacing(titleText), NormalizedName: normalized}
		if err := s.series.UpsertTitle(ctx, title); err != nil {
			return match.Outcome[model.TournamentSeries]{}, fmt.Errorf("create series title: %w", err)
		}
		bestSim = 1.0
	}

	// Stage 2: resolve the dated instance under the title.
	instances, err := s.series.ListSeriesByTitle(ctx, title.ID)
	if err != nil {
		return match.Outcome[model.TournamentSeries]{}, fmt.Errorf("list series instances: %w", err)
	}

	sameYearExists := false
	cands := make([]match.Candidate, 0, len(instances))
	for _, inst := range instances {
		if inst.Year == year {
			sameYearExists = true
		}
		yearScore := 0.0
		if inst.Year == year {
			yearScore = 1.0
		}
		signals := []match.Signal{
			match.TitleSignal(bestSim, 0.6),
			match.YearSignal(yearScore, 0.4),
		}
		conf := match.Score(signals)
		if inst.Year != year {
			// Cross-year instances stay below the auto threshold no
			// matter how strong the title match is.
			if ceiling := s.cfg.Resolver.AutoSeriesThreshold - 0.01; conf > ceiling {
				conf = ceiling
			}
		}
		cands = append(cands, match.Candidate{
			TargetID:   inst.ID,
			Name:       fmt.Sprintf("%s %d", title.Title, inst.Year),
			Confidence: conf,
			UpdatedAt:  inst.UpdatedAt,
			Signals:    signals,
			Reason:     fmt.Sprintf("title similarity %.2f, year %d", bestSim, inst.Year),
		})
	}

	out := match.Resolve[model.TournamentSeries](cands,
		s.cfg.Resolver.AutoSeriesThreshold,
		s.cfg.Resolver.SuggestThreshold,
		s.cfg.Resolver.AmbiguityMargin,
		s.cfg.Resolver.MaxCandidates)

	if out.Status == model.AutoAssigned {
		return out, nil
	}
	if out.Status == model.PendingAssignment {
		// Pending on cross-year candidates only does not block a strong
		// title from minting this year's instance; series repeat annually.
		if sameYearExists || bestSim < s.cfg.Resolver.AutoSeriesThreshold {
			return out, nil
		}
	}

	// Title resolved but no instance for this year yet: create it, but
	// only off a title match strong enough to auto-assign (the created
	// instance inherits that confidence).
	if bestSim < s.cfg.Resolver.AutoSeriesThreshold {
		return match.Outcome[model.TournamentSeries]{
			Status:     model.Unassigned,
			Confidence: 0,
			Reason:     fmt.Sprintf("title match %.2f too weak to create a %d instance", bestSim, year),
		}, nil
	}
	if !commit {
		return match.Outcome[model.TournamentSeries]{
			Status: model.Unassigned,
			Reason: fmt.Sprintf("title %q matched but no %d instance exists", title.Title, year),
		}, nil
	}
	inst := &model.TournamentSeries{
		TenantID:      tenantID,
		SeriesTitleID: title.ID,
		Year:          year,
		VenueID:       venueID,
	}
	if err := s.series.UpsertSeries(ctx, inst); err != nil {
		return match.Outcome[model.TournamentSeries]{}, fmt.Errorf("create series instance: %w", err)
	}
	id := inst.ID
	return match.Outcome[model.TournamentSeries]{
		Status:     model.AutoAssigned,
		TargetID:   &id,
		Target:     inst,
		Confidence: bestSim,
		Reason:     fmt.Sprintf("created %d instance under title %q", year, title.Title),
		WasCreated: true,
	}, nil
}

// RecordAssignment bumps the instance's rollup counters, once per
// record-to-series transition.
func (s *SeriesService) RecordAssignment(ctx context.Context, seriesID uint64, at time.Time) error {
	return s.series.IncrementRollup(ctx, seriesID, at)
}

var multiSpaceSeries = regexp.MustCompile(`\s+`)

func stripYearSpacing(titleText string) string {
	return strings.TrimSpace(multiSpaceSeries.ReplaceAllString(stripYear(titleText), " "))
}
