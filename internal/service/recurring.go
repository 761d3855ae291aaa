package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// RecurringService matches records to recurring-game templates. The
// (venue, weekday) pair is a hard gate — cross-day matching is never
// attempted — and this is the only resolver allowed to synthesize a new
// canonical entity without manual confirmation.
type RecurringService struct {
	recurring repository.RecurringRepository
	cfg       *config.Config
	logger    *logrus.Logger
}

func NewRecurringService(recurring repository.RecurringRepository, cfg *config.Config, logger *logrus.Logger) *RecurringService {
	return &RecurringService{recurring: recurring, cfg: cfg, logger: logger}
}

// Resolve matches the record's slot against existing templates; when no
// template exists and the slot has enough prior repetitions, a new
// template is proposed (WasCreated=true) instead of leaving the record
// unassigned.
func (s *RecurringService) Resolve(ctx context.Context, tenantID, venueID uint64, rec *model.RawRecord, commit bool) (match.Outcome[model.RecurringGameTemplate], error) {
	weekday := int(rec.StartTime.UTC().Weekday())
	startMinute := rec.StartTime.UTC().Hour()*60 + rec.StartTime.UTC().Minute()

	templates, err := s.recurring.ListByVenueAndWeekday(ctx, tenantID, venueID, weekday)
	if err != nil {
		return match.Outcome[model.RecurringGameTemplate]{}, fmt.Errorf("list templates: %w", err)
	}

	base, _ := splitFlight(rec.Name)
	cands := make([]match.Candidate, 0, len(templates))
	for _, t := range templates {
		signals := []match.Signal{
			match.NameSignal(match.Similarity(base, t.Name), 0.45),
			match.VariantSignal(exactMatchScore(rec.Variant, t.Variant), 0.2),
			match.BuyInSignal(proximityScore(rec.BuyIn, t.TypicalBuyIn), 0.2),
			match.StartTimeSignal(startTimeScore(startMinute, t.StartMinute), 0.15),
		}
		cands = append(cands, match.Candidate{
			TargetID:   t.ID,
			Name:       t.Name,
			Confidence: match.Score(signals),
			UpdatedAt:  t.UpdatedAt,
			Signals:    signals,
			Reason:     fmt.Sprintf("slot match against template %q", t.Name),
		})
	}

	out := match.Resolve[model.RecurringGameTemplate](cands,
		s.cfg.Resolver.AutoRecurringThreshold,
		s.cfg.Resolver.SuggestThreshold,
		s.cfg.Resolver.AmbiguityMargin,
		s.cfg.Resolver.MaxCandidates)

	if out.Status == model.AutoAssigned {
		tmpl, err := s.recurring.GetByID(ctx, *out.TargetID)
		if err != nil {
			return match.Outcome[model.RecurringGameTemplate]{}, fmt.Errorf("load template: %w", err)
		}
		// A matched instance drifting past the buy-in tolerance is
		// flagged with notes, not rejected.
		if note := s.deviationNote(rec, tmpl); note != "" {
			out.Reason = "DEVIATION_FLAGGED: " + note
		}
		return out, nil
	}
	if out.Status == model.PendingAssignment {
		return out, nil
	}

	// No template matched: propose one once the slot repeats often
	// enough.
	prior, err := s.recurring.CountSlotOccurrences(ctx, tenantID, venueID, weekday)
	if err != nil {
		return match.Outcome[model.RecurringGameTemplate]{}, fmt.Errorf("count slot occurrences: %w", err)
	}
	if prior < s.cfg.Resolver.MinRecurringRepeats {
		return match.Outcome[model.RecurringGameTemplate]{
			Status: model.Unassigned,
			Reason: fmt.Sprintf("no template; only %d prior occurrences in slot", prior),
		}, nil
	}
	tmpl := &model.RecurringGameTemplate{
		TenantID:         tenantID,
		VenueID:          venueID,
		SlotKey:          fmt.Sprintf("%s|%d|dow%d", match.Slug(base), venueID, weekday),
		Name:             base,
		DayOfWeek:        weekday,
		StartMinute:      startMinute,
		GameType:         rec.GameType,
		Variant:          rec.Variant,
		TypicalBuyIn:     rec.BuyIn,
		TypicalGuarantee: rec.Guarantee,
	}
	if !commit {
		return match.Outcome[model.RecurringGameTemplate]{
			Status:     model.Unassigned,
			Target:     tmpl,
			Reason:     fmt.Sprintf("would create template %q after %d repetitions", base, prior),
			WasCreated: true,
		}, nil
	}
	if err := s.recurring.UpsertBySlotKey(ctx, tmpl); err != nil {
		return match.Outcome[model.RecurringGameTemplate]{}, fmt.Errorf("create template: %w", err)
	}
	id := tmpl.ID
	return match.Outcome[model.RecurringGameTemplate]{
		Status:     model.AutoAssigned,
		TargetID:   &id,
		Target:     tmpl,
		Confidence: 1.0,
		Reason:     fmt.Sprintf("template created after %d repetitions in slot", prior),
		WasCreated: true,
	}, nil
}

// RecordOccurrence bumps the template's occurrence counter, once per
// record-to-template transition.
func (s *RecurringService) RecordOccurrence(ctx context.Context, templateID uint64, at time.Time) error {
	return s.recurring.IncrementOccurrence(ctx, templateID, at)
}

func (s *RecurringService) deviationNote(rec *model.RawRecord, tmpl *model.RecurringGameTemplate) string {
	if rec.BuyIn != nil && tmpl.TypicalBuyIn != nil && *tmpl.TypicalBuyIn > 0 {
		if diff := math.Abs(*rec.BuyIn-*tmpl.TypicalBuyIn) / *tmpl.TypicalBuyIn; diff > s.cfg.Resolver.BuyInDeviationPct {
			return fmt.Sprintf("buy-in %.2f deviates %.0f%% from typical %.2f", *rec.BuyIn, diff*100, *tmpl.TypicalBuyIn)
		}
	}
	if rec.Guarantee != nil && tmpl.TypicalGuarantee != nil && *tmpl.TypicalGuarantee > 0 {
		if diff := math.Abs(*rec.Guarantee-*tmpl.TypicalGuarantee) / *tmpl.TypicalGuarantee; diff > s.cfg.Resolver.BuyInDeviationPct {
			return fmt.Sprintf("guarantee %.2f deviates %.0f%% from typical %.2f", *rec.Guarantee, diff*100, *tmpl.TypicalGuarantee)
		}
	}
	return ""
}

func exactMatchScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0.5 // missing data is neutral, not disqualifying
	}
	if match.Normalize(a) == match.Normalize(b) {
		return 1
	}
	return 0
}

func proximityScore(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	bigger := math.Max(*a, *b)
	if bigger == 0 {
		return 1
	}
	return 1 - math.Min(1, math.Abs(*a-*b)/bigger)
}

func startTimeScore(a, b int) float64 {
	diff := math.Abs(float64(a - b))
	return 1 - math.Min(1, diff/180)
}
