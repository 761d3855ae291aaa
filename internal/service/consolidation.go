package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/match"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Key derivation strategies, in precedence order.
const (
	StrategyExplicitEvent = "explicit_event"
	StrategyNamePattern   = "name_pattern"
	StrategyStandalone    = "standalone"
)

// flightPattern captures a trailing multi-day qualifier: "Day 1",
// "Day 1A", "Flight B", "day2".
var flightPattern = regexp.MustCompile(`(?i)[\s,\-–]+(day|flight)\s*([0-9]+)?\s*([a-z])?\s*$`)

// DerivedKey is the result of consolidation-key derivation.
type DerivedKey struct {
	Key         string
	Strategy    string
	BaseName    string // record name with the flight qualifier stripped
	FlightLabel string // e.g. "1", "1a", "b"; empty for standalone
}

// DeriveConsolidationKey computes the stable key identifying "the same
// underlying event across flights". Pure and deterministic: no
// randomness, no clock, no I/O — re-ingesting the same raw data always
// derives the same key.
func DeriveConsolidationKey(rec *model.RawRecord, venueID *uint64) DerivedKey {
	// (a) explicit series/event pairing beats name heuristics.
	if rec.RawSeriesText != "" && rec.EventNumber != "" {
		base, flight := splitFlight(rec.Name)
		return DerivedKey{
			Key:         fmt.Sprintf("%s|ev%s", match.Slug(rec.RawSeriesText), strings.ToLower(rec.EventNumber)),
			Strategy:    StrategyExplicitEvent,
			BaseName:    base,
			FlightLabel: flight,
		}
	}
	// (b) trailing day/flight qualifier + a resolved venue.
	if base, flight := splitFlight(rec.Name); flight != "" && venueID != nil {
		year, week := rec.StartTime.UTC().ISOWeek()
		return DerivedKey{
			Key:         fmt.Sprintf("%s|%d|%d-W%02d", match.Slug(base), *venueID, year, week),
			Strategy:    StrategyNamePattern,
			BaseName:    base,
			FlightLabel: flight,
		}
	}
	// (c) not part of any group; the record is its own key.
	return DerivedKey{
		Key:      fmt.Sprintf("record|%d|%s", rec.TenantID, rec.ExternalID),
		Strategy: StrategyStandalone,
		BaseName: rec.Name,
	}
}

// splitFlight strips the trailing flight qualifier and returns the base
// name plus the normalized flight label ("1a", "2", "b").
func splitFlight(name string) (base, flight string) {
	m := flightPattern.FindStringSubmatchIndex(name)
	if m == nil {
		return strings.TrimSpace(name), ""
	}
	base = strings.TrimSpace(name[:m[0]])
	day := submatch(name, m, 2)
	letter := strings.ToLower(submatch(name, m, 3))
	flight = strings.ToLower(day + letter)
	if flight == "" {
		return strings.TrimSpace(name), ""
	}
	return base, flight
}

func submatch(s string, idx []int, n int) string {
	if idx[2*n] < 0 {
		return ""
	}
	return s[idx[2*n]:idx[2*n+1]]
}

// ConsolidationService folds flight records into parent events. Folding
// is serialized per key (striped locks) so concurrent children of one
// group never race on the parent's aggregates; distinct groups proceed
// in parallel.
type ConsolidationService struct {
	records repository.RecordRepository
	cfg     *config.Config
	logger  *logrus.Logger
	locks   [64]sync.Mutex
}

func NewConsolidationService(records repository.RecordRepository, cfg *config.Config, logger *logrus.Logger) *ConsolidationService {
	return &ConsolidationService{records: records, cfg: cfg, logger: logger}
}

func (s *ConsolidationService) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// Fold attaches a persisted child record to its consolidation group,
// creating the synthetic parent if the key is new, and recomputes the
// parent's aggregates. A child arriving after the parent finished
// reopens the group rather than being dropped.
func (s *ConsolidationService) Fold(ctx context.Context, child *model.EnrichedRecord) (*model.EnrichedRecord, error) {
	if child.ConsolidationKey == "" || child.ConsolidationStrategy == StrategyStandalone {
		return nil, nil
	}
	mu := s.lockFor(child.ConsolidationKey)
	mu.Lock()
	defer mu.Unlock()

	parent, err := s.records.GetParentByKey(ctx, child.TenantID, child.ConsolidationKey)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		parent = s.newParent(child)
		if err := s.records.UpdateEnriched(ctx, parent); err != nil {
			return nil, fmt.Errorf("create consolidation parent: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup consolidation parent: %w", err)
	}

	if parent.TenantID != child.TenantID {
		return nil, fmt.Errorf("parent %d belongs to another tenant: %w", parent.ID, ErrCrossTenant)
	}

	child.ParentID = &parent.ID
	if err := s.records.UpdateEnriched(ctx, child); err != nil {
		return nil, fmt.Errorf("link child %d: %w", child.ID, err)
	}

	children, err := s.records.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	if len(children) > s.cfg.Consolidate.MaxGroupChildren {
		return nil, fmt.Errorf("group %q exceeds child cap %d: %w",
			child.ConsolidationKey, s.cfg.Consolidate.MaxGroupChildren, ErrInvariantViolation)
	}
	if err := recomputeParent(parent, children); err != nil {
		return nil, err
	}
	if err := s.records.UpdateEnriched(ctx, parent); err != nil {
		return nil, fmt.Errorf("update parent %d: %w", parent.ID, err)
	}
	return parent, nil
}

// Refold recomputes a group's aggregates after a member moved to a
// different key. A synthetic parent left with no children is removed
// outright: unlike RemoveChild there is no caller here to act on a
// deleteParent flag.
func (s *ConsolidationService) Refold(ctx context.Context, tenantID uint64, key string) error {
	if key == "" {
		return nil
	}
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	parent, err := s.records.GetParentByKey(ctx, tenantID, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup consolidation parent: %w", err)
	}
	children, err := s.records.ListChildren(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}
	if len(children) == 0 && parent.RawID == 0 {
		if err := s.records.DeleteEnriched(ctx, parent.ID); err != nil {
			return fmt.Errorf("delete empty parent %d: %w", parent.ID, err)
		}
		s.logger.WithField("consolidation_key", key).Info("empty consolidation group removed")
		return nil
	}
	if err := recomputeParent(parent, children); err != nil {
		return err
	}
	if err := s.records.UpdateEnriched(ctx, parent); err != nil {
		return fmt.Errorf("update parent %d: %w", parent.ID, err)
	}
	return nil
}

// newParent seeds a synthetic parent from the first observed child.
// RawID stays 0: the parent has no independent raw source.
func (s *ConsolidationService) newParent(child *model.EnrichedRecord) *model.EnrichedRecord {
	return &model.EnrichedRecord{
		RecordUUID:            "grp-" + child.RecordUUID,
		TenantID:              child.TenantID,
		Name:                  baseNameOf(child),
		GameType:              child.GameType,
		Variant:               child.Variant,
		BuyIn:                 child.BuyIn,
		Guarantee:             child.Guarantee,
		StartTime:             child.StartTime,
		Status:                child.Status,
		VenueID:               child.VenueID,
		VenueStatus:           child.VenueStatus,
		VenueConfidence:       child.VenueConfidence,
		VenueReason:           child.VenueReason,
		SeriesID:              child.SeriesID,
		SeriesStatus:          child.SeriesStatus,
		ConsolidationKey:      child.ConsolidationKey,
		ConsolidationStrategy: child.ConsolidationStrategy,
		IsParent:              true,
		IsPartialData:         true,
	}
}

func baseNameOf(child *model.EnrichedRecord) string {
	if base, flight := splitFlight(child.Name); flight != "" {
		return base
	}
	return child.Name
}

// recomputeParent rebuilds the parent's aggregates from its children:
// totals sum non-null values only, status is the most advanced child
// status, and is_partial_data compares observed flights against the set
// implied by the highest day/letter seen.
func recomputeParent(parent *model.EnrichedRecord, children []*model.EnrichedRecord) error {
	var entries, rebuys, addons int
	var entriesSeen, rebuysSeen, addonsSeen bool
	var prizePool, prizePaid float64
	var poolSeen, paidSeen bool
	tickets := 0
	ticketValue := 0.0

	for _, c := range children {
		if c.Entries != nil {
			if *c.Entries < 0 {
				return fmt.Errorf("child %d has negative entries: %w", c.ID, ErrDataConflict)
			}
			entries += *c.Entries
			entriesSeen = true
		}
		if c.Rebuys != nil {
			rebuys += *c.Rebuys
			rebuysSeen = true
		}
		if c.Addons != nil {
			addons += *c.Addons
			addonsSeen = true
		}
		if c.PrizePool != nil {
			if *c.PrizePool < 0 {
				return fmt.Errorf("child %d has negative prize pool: %w", c.ID, ErrDataConflict)
			}
			prizePool += *c.PrizePool
			poolSeen = true
		}
		if c.PrizepoolPaid != nil {
			prizePaid += *c.PrizepoolPaid
			paidSeen = true
		}
		tickets += c.TicketsAwarded
		ticketValue += c.TicketValueTotal
	}

	parent.Entries, parent.Rebuys, parent.Addons = nil, nil, nil
	parent.PrizePool, parent.PrizepoolPaid = nil, nil
	if entriesSeen {
		parent.Entries = &entries
	}
	if rebuysSeen {
		parent.Rebuys = &rebuys
	}
	if addonsSeen {
		parent.Addons = &addons
	}
	if poolSeen {
		parent.PrizePool = &prizePool
	}
	if paidSeen {
		parent.PrizepoolPaid = &prizePaid
	}
	parent.TicketsAwarded = tickets
	parent.TicketValueTotal = ticketValue

	if len(children) > 0 {
		start := children[0].StartTime
		var end *time.Time
		for _, c := range children {
			if c.StartTime.Before(start) {
				start = c.StartTime
			}
			if c.EndTime != nil && (end == nil || c.EndTime.After(*end)) {
				end = c.EndTime
			}
		}
		parent.StartTime = start
		parent.EndTime = end
	}

	parent.Status = mostAdvancedStatus(children)
	parent.IsPartialData = flightSetIncomplete(children)
	return nil
}

// mostAdvancedStatus: any running child keeps the parent running; the
// parent only finishes when every child finished.
func mostAdvancedStatus(children []*model.EnrichedRecord) model.GameStatus {
	if len(children) == 0 {
		return model.GameScheduled
	}
	allFinished, allCancelled := true, true
	anyStarted := false
	for _, c := range children {
		if c.Status != model.GameFinished {
			allFinished = false
		}
		if c.Status != model.GameCancelled {
			allCancelled = false
		}
		if c.Status == model.GameRunning || c.Status == model.GameFinished {
			anyStarted = true
		}
	}
	switch {
	case allFinished:
		return model.GameFinished
	case allCancelled:
		return model.GameCancelled
	case anyStarted:
		return model.GameRunning
	default:
		return model.GameScheduled
	}
}

// flightSetIncomplete derives the expected flight set from the highest
// day number and the highest letter seen per day: observing "1a" and
// "1c" implies "1b" exists; observing "2" implies a "1".
func flightSetIncomplete(children []*model.EnrichedRecord) bool {
	observed := make(map[string]struct{})
	maxDay := 0
	maxLetter := make(map[int]byte)
	for _, c := range children {
		day, letter := parseFlightLabel(c.FlightLabel)
		if day == 0 && letter == 0 {
			continue
		}
		if day == 0 {
			day = 1 // bare "Flight A" means day 1
		}
		if day > maxDay {
			maxDay = day
		}
		if letter != 0 && letter > maxLetter[day] {
			maxLetter[day] = letter
		}
		observed[flightKey(day, letter)] = struct{}{}
	}
	if len(observed) == 0 {
		return false
	}
	for day := 1; day <= maxDay; day++ {
		top := maxLetter[day]
		if top == 0 {
			if _, ok := observed[flightKey(day, 0)]; !ok {
				return true
			}
			continue
		}
		for l := byte('a'); l <= top; l++ {
			if _, ok := observed[flightKey(day, l)]; !ok {
				return true
			}
		}
	}
	return false
}

func parseFlightLabel(label string) (day int, letter byte) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return 0, 0
	}
	i := 0
	for i < len(label) && label[i] >= '0' && label[i] <= '9' {
		i++
	}
	if i > 0 {
		day, _ = strconv.Atoi(label[:i])
	}
	if i < len(label) && label[i] >= 'a' && label[i] <= 'z' {
		letter = label[i]
	}
	return day, letter
}

func flightKey(day int, letter byte) string {
	if letter == 0 {
		return strconv.Itoa(day)
	}
	return strconv.Itoa(day) + string(letter)
}

// RemoveChildResult reports the outcome of unlinking a child. The
// deleteParent policy flag is surfaced to the caller and never applied
// here.
type RemoveChildResult struct {
	DeleteParent bool
	Parent       *model.EnrichedRecord
}

// RemoveChild deletes a child record and recomputes its group. Removing
// the last child of a synthetic parent surfaces deleteParent=true.
func (s *ConsolidationService) RemoveChild(ctx context.Context, tenantID, childID uint64) (*RemoveChildResult, error) {
	child, err := s.records.GetEnrichedByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("load child: %w", err)
	}
	if child.TenantID != tenantID {
		return nil, ErrCrossTenant
	}
	if child.ParentID == nil {
		if err := s.records.DeleteEnriched(ctx, childID); err != nil {
			return nil, err
		}
		return &RemoveChildResult{}, nil
	}

	mu := s.lockFor(child.ConsolidationKey)
	mu.Lock()
	defer mu.Unlock()

	parent, err := s.records.GetEnrichedByID(ctx, *child.ParentID)
	if err != nil {
		return nil, fmt.Errorf("load parent: %w", err)
	}
	if err := s.records.DeleteEnriched(ctx, childID); err != nil {
		return nil, err
	}
	children, err := s.records.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		// Synthetic parents never had independent data; real ones keep
		// whatever they observed on their own.
		return &RemoveChildResult{DeleteParent: parent.RawID == 0, Parent: parent}, nil
	}
	if err := recomputeParent(parent, children); err != nil {
		return nil, err
	}
	if err := s.records.UpdateEnriched(ctx, parent); err != nil {
		return nil, err
	}
	return &RemoveChildResult{Parent: parent}, nil
}
