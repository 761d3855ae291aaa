package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnrichService composes the resolvers into one enrich-and-save
// operation per raw record. The operation either fully commits or the
// raw record stays unconsumed and safe to retry; a half-applied record
// is treated as a failure, never left in place.
type EnrichService struct {
	records       repository.RecordRepository
	venueSvc      *VenueService
	seriesSvc     *SeriesService
	recurringSvc  *RecurringService
	consolidation *ConsolidationService
	cfg           *config.Config
	logger        *logrus.Logger
}

func NewEnrichService(
	records repository.RecordRepository,
	venueSvc *VenueService,
	seriesSvc *SeriesService,
	recurringSvc *RecurringService,
	consolidation *ConsolidationService,
	cfg *config.Config,
	logger *logrus.Logger,
) *EnrichService {
	return &EnrichService{
		records:       records,
		venueSvc:      venueSvc,
		seriesSvc:     seriesSvc,
		recurringSvc:  recurringSvc,
		consolidation: consolidation,
		cfg:           cfg,
		logger:        logger,
	}
}

// decisionTrail is the enrichment_meta payload: every resolution
// decision taken for the record, in order.
type decisionTrail struct {
	Assignments   []model.Assignment `json:"assignments"`
	Strategy      string             `json:"consolidation_strategy"`
	Key           string             `json:"consolidation_key"`
	FlightLabel   string             `json:"flight_label,omitempty"`
	DerivedFields []string           `json:"derived_fields,omitempty"`
	EnrichedAt    time.Time          `json:"enriched_at"`
}

// EnrichAndSave runs the full pipeline for one raw record. Transient
// persistence failures are retried as a whole with backoff; taxonomy
// errors (conflict, invariant, cross-tenant) are not.
func (s *EnrichService) EnrichAndSave(ctx context.Context, tenantID, rawID uint64) (*model.EnrichedRecord, error) {
	var rec *model.EnrichedRecord
	var err error
	backoff := s.cfg.Resolver.RetryBackoff
	for attempt := 1; ; attempt++ {
		rec, err = s.enrichOnce(ctx, tenantID, rawID)
		if err == nil || !retryable(err) || attempt >= s.cfg.Resolver.RetryAttempts {
			break
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"raw_id":  rawID,
			"attempt": attempt,
		}).Warn("enrichment retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		// A cross-tenant caller must not flip another tenant's row.
		if !errors.Is(err, ErrCrossTenant) {
			if markErr := s.records.MarkRawFailed(ctx, rawID); markErr != nil {
				s.logger.WithError(markErr).WithField("raw_id", rawID).Warn("mark raw failed")
			}
		}
		return nil, err
	}
	return rec, nil
}

// retryable: anything not in the error taxonomy is presumed transient
// I/O. Taxonomy errors are deterministic and retrying cannot fix them.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrCrossTenant),
		errors.Is(err, ErrDataConflict),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (s *EnrichService) enrichOnce(ctx context.Context, tenantID, rawID uint64) (*model.EnrichedRecord, error) {
	raw, err := s.records.GetRawByID(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("load raw record: %w", err)
	}
	if raw.TenantID != tenantID {
		return nil, ErrCrossTenant
	}

	// Re-enriching reuses the prior row's uuid, so the upsert rewrites
	// instead of duplicating and the result stays byte-identical for
	// unchanged inputs. The prior row is also the baseline for rollup
	// bumps and group refolds below.
	var prior *model.EnrichedRecord
	if p, err := s.records.GetEnrichedByRawID(ctx, rawID); err == nil {
		prior = p
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup prior enrichment: %w", err)
	}
	recordUUID := uuid.NewString()
	if prior != nil {
		recordUUID = prior.RecordUUID
	}

	rec := &model.EnrichedRecord{
		RecordUUID:    recordUUID,
		TenantID:      raw.TenantID,
		RawID:         raw.ID,
		Name:          raw.Name,
		GameType:      raw.GameType,
		Variant:       raw.Variant,
		BuyIn:         raw.BuyIn,
		Guarantee:     raw.Guarantee,
		StartTime:     raw.StartTime,
		EndTime:       raw.EndTime,
		Status:        raw.Status,
		Entries:       raw.Entries,
		Rebuys:        raw.Rebuys,
		Addons:        raw.Addons,
		PrizePool:     raw.PrizePool,
		PrizepoolPaid: raw.PrizepoolPaid,
	}

	trail := decisionTrail{EnrichedAt: time.Now().UTC()}

	// Venue first: the name-pattern consolidation key needs the venue id.
	venueOut, err := s.venueSvc.Resolve(ctx, tenantID, raw.RawVenueText, raw.RawVenueCity)
	if err != nil {
		return nil, fmt.Errorf("resolve venue: %w", err)
	}
	applyVenue(rec, venueOut)
	trail.Assignments = append(trail.Assignments, assignment("venue", venueOut.TargetID, venueOut.Status, venueOut.Confidence, venueOut.Reason))

	derived := DeriveConsolidationKey(raw, rec.VenueID)
	rec.ConsolidationKey = derived.Key
	rec.ConsolidationStrategy = derived.Strategy
	rec.FlightLabel = derived.FlightLabel
	trail.Strategy = derived.Strategy
	trail.Key = derived.Key
	trail.FlightLabel = derived.FlightLabel

	// Series for series-like records; recurring-game otherwise (needs a
	// resolved venue).
	if seriesLike(raw, derived.Strategy) {
		year := ExtractYear(raw.RawSeriesText, raw.StartTime)
		seriesOut, err := s.seriesSvc.Resolve(ctx, tenantID, raw.RawSeriesText, year, rec.VenueID, true)
		if err != nil {
			return nil, fmt.Errorf("resolve series: %w", err)
		}
		applySeries(rec, seriesOut)
		rec.RecurringStatus = model.NotApplicable
		trail.Assignments = append(trail.Assignments, assignment("series", seriesOut.TargetID, seriesOut.Status, seriesOut.Confidence, seriesOut.Reason))
	} else {
		rec.SeriesStatus = model.NotApplicable
		rec.SeriesReason = "record is not series-like"
		if rec.VenueID != nil {
			recOut, err := s.recurringSvc.Resolve(ctx, tenantID, *rec.VenueID, raw, true)
			if err != nil {
				return nil, fmt.Errorf("resolve recurring game: %w", err)
			}
			applyRecurring(rec, recOut)
			trail.Assignments = append(trail.Assignments, assignment("recurring", recOut.TargetID, recOut.Status, recOut.Confidence, recOut.Reason))
		} else {
			rec.RecurringStatus = model.Unassigned
			rec.RecurringReason = "venue unresolved"
		}
	}

	trail.DerivedFields = deriveFinancials(rec)

	meta, err := json.Marshal(trail)
	if err != nil {
		return nil, fmt.Errorf("marshal decision trail: %w", err)
	}
	rec.EnrichmentMeta = datatypes.JSON(meta)

	if err := s.records.SaveEnrichedWithRaw(ctx, rec, raw.ID, model.IngestEnriched); err != nil {
		return nil, fmt.Errorf("save enriched record: %w", err)
	}
	if err := s.bumpRollups(ctx, prior, rec); err != nil {
		return nil, err
	}

	if _, err := s.consolidation.Fold(ctx, rec); err != nil {
		return nil, fmt.Errorf("fold consolidation group: %w", err)
	}
	// A changed key strands the old group with this record's numbers
	// still summed in; recompute it now that the child has moved on.
	if prior != nil && prior.ConsolidationKey != "" && prior.ConsolidationKey != rec.ConsolidationKey {
		if err := s.consolidation.Refold(ctx, rec.TenantID, prior.ConsolidationKey); err != nil {
			return nil, fmt.Errorf("refold prior group: %w", err)
		}
	}
	return rec, nil
}

// bumpRollups moves the per-entity counters for assignments that are new
// on this pass. Comparing against the prior enriched row keeps
// re-enrichment, bulk re-runs and the orchestrator's own retries from
// counting the same record twice. Counters are monotonic: a reassigned
// record bumps its new target and leaves the old one untouched.
func (s *EnrichService) bumpRollups(ctx context.Context, prior, rec *model.EnrichedRecord) error {
	var priorVenue, priorSeries, priorRecurring *uint64
	if prior != nil {
		priorVenue, priorSeries, priorRecurring = prior.VenueID, prior.SeriesID, prior.RecurringID
	}
	now := time.Now()
	if assigned(rec.VenueStatus) && targetChanged(priorVenue, rec.VenueID) {
		if err := s.venueSvc.RecordAssignment(ctx, *rec.VenueID, now); err != nil {
			return fmt.Errorf("venue rollup: %w", err)
		}
	}
	if assigned(rec.SeriesStatus) && targetChanged(priorSeries, rec.SeriesID) {
		if err := s.seriesSvc.RecordAssignment(ctx, *rec.SeriesID, now); err != nil {
			return fmt.Errorf("series rollup: %w", err)
		}
	}
	if assigned(rec.RecurringStatus) && targetChanged(priorRecurring, rec.RecurringID) {
		if err := s.recurringSvc.RecordOccurrence(ctx, *rec.RecurringID, now); err != nil {
			return fmt.Errorf("recurring rollup: %w", err)
		}
	}
	return nil
}

func assigned(status model.AssignmentStatus) bool {
	return status == model.AutoAssigned || status == model.ManuallyAssigned
}

func targetChanged(prior, current *uint64) bool {
	return current != nil && (prior == nil || *prior != *current)
}

// seriesLike: explicit series text or an explicit event pairing marks a
// series event; weekly games never carry either.
func seriesLike(raw *model.RawRecord, strategy string) bool {
	return raw.RawSeriesText != "" || strategy == StrategyExplicitEvent
}

// deriveFinancials fills fields computable from resolved inputs and
// reports which ones were derived.
func deriveFinancials(rec *model.EnrichedRecord) []string {
	var derived []string
	if rec.PrizePool == nil && rec.Entries != nil && rec.BuyIn != nil {
		total := float64(*rec.Entries) * *rec.BuyIn
		if rec.Rebuys != nil {
			total += float64(*rec.Rebuys) * *rec.BuyIn
		}
		rec.PrizePool = &total
		derived = append(derived, "prize_pool")
	}
	if rec.PrizePool != nil && rec.Guarantee != nil && *rec.PrizePool < *rec.Guarantee {
		// Guarantee overlays: the house covers the shortfall.
		rec.PrizePool = rec.Guarantee
		derived = append(derived, "prize_pool_guarantee_overlay")
	}
	return derived
}

func assignment(dim string, targetID *uint64, status model.AssignmentStatus, confidence float64, reason string) model.Assignment {
	return model.Assignment{Dimension: dim, TargetID: targetID, Status: status, Confidence: confidence, Reason: reason}
}

func applyVenue(rec *model.EnrichedRecord, out match.Outcome[model.Venue]) {
	rec.VenueID = out.TargetID
	rec.VenueStatus = out.Status
	rec.VenueConfidence = out.Confidence
	rec.VenueReason = out.Reason
}

func applySeries(rec *model.EnrichedRecord, out match.Outcome[model.TournamentSeries]) {
	rec.SeriesID = out.TargetID
	rec.SeriesStatus = out.Status
	rec.SeriesConfidence = out.Confidence
	rec.SeriesReason = out.Reason
}

func applyRecurring(rec *model.EnrichedRecord, out match.Outcome[model.RecurringGameTemplate]) {
	rec.RecurringID = out.TargetID
	rec.RecurringStatus = out.Status
	rec.RecurringConfidence = out.Confidence
	rec.RecurringReason = out.Reason
}

// ReEnrich re-runs the full pipeline for an already-enriched record.
// This is the explicit re-resolution path for retroactive
// reclassification (e.g. series -> non-series): dimensions are
// recomputed from scratch, and the superseded decisions survive only in
// the prior decision trail.
func (s *EnrichService) ReEnrich(ctx context.Context, tenantID, recordID uint64) (*model.EnrichedRecord, error) {
	rec, err := s.records.GetEnrichedByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load enriched record: %w", err)
	}
	if rec.TenantID != tenantID {
		return nil, ErrCrossTenant
	}
	if rec.IsParent {
		return nil, fmt.Errorf("record %d is a consolidation parent: %w", recordID, ErrInvariantViolation)
	}
	return s.EnrichAndSave(ctx, tenantID, rec.RawID)
}

// ReResolveVenue recomputes only the venue dimension, used by the bulk
// reassignment task after venue merges or alias updates.
func (s *EnrichService) ReResolveVenue(ctx context.Context, tenantID, recordID uint64) error {
	rec, err := s.records.GetEnrichedByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load enriched record: %w", err)
	}
	if rec.TenantID != tenantID {
		return ErrCrossTenant
	}
	// Manual decisions outrank recomputation.
	if rec.VenueStatus == model.ManuallyAssigned {
		return nil
	}
	raw, err := s.records.GetRawByID(ctx, rec.RawID)
	if err != nil {
		return fmt.Errorf("load raw record: %w", err)
	}
	out, err := s.venueSvc.Resolve(ctx, tenantID, raw.RawVenueText, raw.RawVenueCity)
	if err != nil {
		return err
	}
	priorVenue := rec.VenueID
	applyVenue(rec, out)
	if err := s.records.UpdateEnriched(ctx, rec); err != nil {
		return err
	}
	if assigned(rec.VenueStatus) && targetChanged(priorVenue, rec.VenueID) {
		return s.venueSvc.RecordAssignment(ctx, *rec.VenueID, time.Now())
	}
	return nil
}

// ReResolveRecurring recomputes only the recurring-game dimension, used
// by the bulk detection task once slots have accumulated history.
func (s *EnrichService) ReResolveRecurring(ctx context.Context, tenantID, recordID uint64) error {
	rec, err := s.records.GetEnrichedByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load enriched record: %w", err)
	}
	if rec.TenantID != tenantID {
		return ErrCrossTenant
	}
	if rec.SeriesStatus != model.NotApplicable || rec.VenueID == nil {
		return nil
	}
	raw, err := s.records.GetRawByID(ctx, rec.RawID)
	if err != nil {
		return fmt.Errorf("load raw record: %w", err)
	}
	out, err := s.recurringSvc.Resolve(ctx, tenantID, *rec.VenueID, raw, true)
	if err != nil {
		return err
	}
	priorRecurring := rec.RecurringID
	applyRecurring(rec, out)
	if err := s.records.UpdateEnriched(ctx, rec); err != nil {
		return err
	}
	if assigned(rec.RecurringStatus) && targetChanged(priorRecurring, rec.RecurringID) {
		return s.recurringSvc.RecordOccurrence(ctx, *rec.RecurringID, time.Now())
	}
	return nil
}

// ManualAssignVenue confirms a pending candidate as the record's venue.
func (s *EnrichService) ManualAssignVenue(ctx context.Context, tenantID, recordID, venueID uint64) (*model.EnrichedRecord, error) {
	rec, err := s.records.GetEnrichedByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load enriched record: %w", err)
	}
	if rec.TenantID != tenantID {
		return nil, ErrCrossTenant
	}
	out, err := s.venueSvc.AssignManually(ctx, tenantID, venueID)
	if err != nil {
		return nil, err
	}
	priorVenue := rec.VenueID
	applyVenue(rec, out)
	if err := s.records.UpdateEnriched(ctx, rec); err != nil {
		return nil, fmt.Errorf("save manual assignment: %w", err)
	}
	if targetChanged(priorVenue, rec.VenueID) {
		if err := s.venueSvc.RecordAssignment(ctx, *rec.VenueID, time.Now()); err != nil {
			return nil, fmt.Errorf("venue rollup: %w", err)
		}
	}
	return rec, nil
}
