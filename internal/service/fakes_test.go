package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"TourneySync/internal/config"
	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// In-memory fakes for the repository interfaces. They reproduce the
// upsert convergence semantics of the real postgres-backed
// implementations: a second insert on the same idempotency key lands on
// the first row's id.

type fakeVenueRepo struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Venue
}

func newFakeVenueRepo() *fakeVenueRepo {
	return &fakeVenueRepo{rows: make(map[uint64]*model.Venue)}
}

func (f *fakeVenueRepo) ListByTenant(_ context.Context, tenantID uint64) ([]*model.Venue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Venue
	for _, v := range f.rows {
		if v.TenantID == tenantID {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeVenueRepo) GetByID(_ context.Context, id uint64) (*model.Venue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *v
	return &c, nil
}

func (f *fakeVenueRepo) UpsertByNormalizedName(_ context.Context, v *model.Venue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.TenantID == v.TenantID && row.NormalizedName == v.NormalizedName {
			v.ID = row.ID
			return nil
		}
	}
	f.nextID++
	v.ID = f.nextID
	c := *v
	f.rows[v.ID] = &c
	return nil
}

func (f *fakeVenueRepo) IncrementRollup(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.GameCount++
	v.LastDataRefreshedAt = &at
	return nil
}

type fakeSeriesRepo struct {
	mu     sync.Mutex
	nextID uint64
	titles map[uint64]*model.SeriesTitle
	series map[uint64]*model.TournamentSeries
}

func newFakeSeriesRepo() *fakeSeriesRepo {
	return &fakeSeriesRepo{
		titles: make(map[uint64]*model.SeriesTitle),
		series: make(map[uint64]*model.TournamentSeries),
	}
}

func (f *fakeSeriesRepo) ListTitlesByTenant(_ context.Context, tenantID uint64) ([]*model.SeriesTitle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.SeriesTitle
	for _, t := range f.titles {
		if t.TenantID == tenantID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeSeriesRepo) UpsertTitle(_ context.Context, t *model.SeriesTitle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.titles {
		if row.TenantID == t.TenantID && row.NormalizedName == t.NormalizedName {
			t.ID = row.ID
			return nil
		}
	}
	f.nextID++
	t.ID = f.nextID
	c := *t
	f.titles[t.ID] = &c
	return nil
}

func (f *fakeSeriesRepo) GetSeries(_ context.Context, tenantID, titleID uint64, year int) (*model.TournamentSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.series {
		if s.TenantID == tenantID && s.SeriesTitleID == titleID && s.Year == year {
			c := *s
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSeriesRepo) ListSeriesByTitle(_ context.Context, titleID uint64) ([]*model.TournamentSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.TournamentSeries
	for _, s := range f.series {
		if s.SeriesTitleID == titleID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeSeriesRepo) GetSeriesByID(_ context.Context, id uint64) (*model.TournamentSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSeriesRepo) UpsertSeries(_ context.Context, s *model.TournamentSeries) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.series {
		if row.TenantID == s.TenantID && row.SeriesTitleID == s.SeriesTitleID && row.Year == s.Year {
			s.ID = row.ID
			return nil
		}
	}
	f.nextID++
	s.ID = f.nextID
	c := *s
	f.series[s.ID] = &c
	return nil
}

func (f *fakeSeriesRepo) IncrementRollup(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.GameCount++
	s.LastSeenAt = &at
	return nil
}

type fakeRecurringRepo struct {
	mu         sync.Mutex
	nextID     uint64
	rows       map[uint64]*model.RecurringGameTemplate
	slotCounts map[string]int // "venueID|dow" -> prior occurrences
}

func newFakeRecurringRepo() *fakeRecurringRepo {
	return &fakeRecurringRepo{
		rows:       make(map[uint64]*model.RecurringGameTemplate),
		slotCounts: make(map[string]int),
	}
}

func slotCountKey(venueID uint64, dow int) string {
	return fmt.Sprintf("%d|%d", venueID, dow)
}

func (f *fakeRecurringRepo) setSlotCount(venueID uint64, dow, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCounts[slotCountKey(venueID, dow)] = n
}

func (f *fakeRecurringRepo) ListByVenueAndWeekday(_ context.Context, tenantID, venueID uint64, dayOfWeek int) ([]*model.RecurringGameTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.RecurringGameTemplate
	for _, t := range f.rows {
		if t.TenantID == tenantID && t.VenueID == venueID && t.DayOfWeek == dayOfWeek {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRecurringRepo) GetByID(_ context.Context, id uint64) (*model.RecurringGameTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeRecurringRepo) UpsertBySlotKey(_ context.Context, t *model.RecurringGameTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.TenantID == t.TenantID && row.SlotKey == t.SlotKey {
			t.ID = row.ID
			return nil
		}
	}
	f.nextID++
	t.ID = f.nextID
	c := *t
	f.rows[t.ID] = &c
	return nil
}

func (f *fakeRecurringRepo) IncrementOccurrence(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.OccurrenceCount++
	t.LastSeenAt = &at
	return nil
}

func (f *fakeRecurringRepo) CountSlotOccurrences(_ context.Context, _, venueID uint64, dayOfWeek int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotCounts[slotCountKey(venueID, dayOfWeek)], nil
}

type fakeRecordRepo struct {
	mu       sync.Mutex
	nextID   uint64
	raw      map[uint64]*model.RawRecord
	enriched map[uint64]*model.EnrichedRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{
		raw:      make(map[uint64]*model.RawRecord),
		enriched: make(map[uint64]*model.EnrichedRecord),
	}
}

func (f *fakeRecordRepo) UpsertRaw(_ context.Context, rec *model.RawRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.raw {
		if row.TenantID == rec.TenantID && row.ExternalID == rec.ExternalID {
			rec.ID = row.ID
			rec.IngestState = row.IngestState
			c := *rec
			f.raw[rec.ID] = &c
			return nil
		}
	}
	f.nextID++
	rec.ID = f.nextID
	c := *rec
	f.raw[rec.ID] = &c
	return nil
}

func (f *fakeRecordRepo) GetRawByID(_ context.Context, id uint64) (*model.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.raw[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRecordRepo) ListPendingRaw(_ context.Context, tenantID uint64, limit int) ([]*model.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.RawRecord
	for _, r := range f.raw {
		if r.TenantID == tenantID && r.IngestState == model.IngestPending {
			c := *r
			out = append(out, &c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) SaveEnrichedWithRaw(_ context.Context, rec *model.EnrichedRecord, rawID uint64, state model.IngestState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertEnrichedLocked(rec)
	if raw, ok := f.raw[rawID]; ok {
		raw.IngestState = state
	}
	return nil
}

func (f *fakeRecordRepo) upsertEnrichedLocked(rec *model.EnrichedRecord) {
	for _, row := range f.enriched {
		if row.RecordUUID == rec.RecordUUID {
			rec.ID = row.ID
			rec.CreatedAt = row.CreatedAt
			break
		}
	}
	if rec.ID == 0 {
		f.nextID++
		rec.ID = f.nextID
	}
	rec.UpdatedAt = time.Now()
	c := *rec
	f.enriched[rec.ID] = &c
}

func (f *fakeRecordRepo) MarkRawFailed(_ context.Context, rawID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.raw[rawID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	raw.IngestState = model.IngestFailed
	return nil
}

func (f *fakeRecordRepo) GetEnrichedByID(_ context.Context, id uint64) (*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.enriched[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRecordRepo) GetEnrichedByUUID(_ context.Context, uuid string) (*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.enriched {
		if r.RecordUUID == uuid {
			c := *r
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRecordRepo) GetEnrichedByRawID(_ context.Context, rawID uint64) (*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.enriched {
		if r.RawID == rawID && !r.IsParent {
			c := *r
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRecordRepo) ListEnriched(_ context.Context, filter repository.RecordFilter, page, pageSize int) ([]*model.EnrichedRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.EnrichedRecord
	for _, r := range f.enriched {
		if r.TenantID == filter.TenantID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRecordRepo) ListEnrichedInWindow(_ context.Context, tenantID uint64, from, to time.Time, limit int) ([]*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.EnrichedRecord
	for _, r := range f.enriched {
		if r.TenantID == tenantID && !r.IsParent &&
			!r.StartTime.Before(from) && !r.StartTime.After(to) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListEnrichedIDs(_ context.Context, filter repository.RecordFilter, limit int) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id, r := range f.enriched {
		if r.TenantID != filter.TenantID {
			continue
		}
		if filter.VenueID != nil && (r.VenueID == nil || *r.VenueID != *filter.VenueID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRecordRepo) UpdateEnriched(_ context.Context, rec *model.EnrichedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertEnrichedLocked(rec)
	return nil
}

func (f *fakeRecordRepo) GetParentByKey(_ context.Context, tenantID uint64, key string) (*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.enriched {
		if r.TenantID == tenantID && r.ConsolidationKey == key && r.IsParent {
			c := *r
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRecordRepo) ListChildren(_ context.Context, parentID uint64) ([]*model.EnrichedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.EnrichedRecord
	for _, r := range f.enriched {
		if r.ParentID != nil && *r.ParentID == parentID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) DeleteEnriched(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.enriched, id)
	return nil
}

type fakeSocialRepo struct {
	mu              sync.Mutex
	nextID          uint64
	posts           map[uint64]*model.SocialPost
	links           map[uint64]*model.PostGameLink
	reconciliations map[uint64]*model.ReconciliationRecord // by link id
}

func newFakeSocialRepo() *fakeSocialRepo {
	return &fakeSocialRepo{
		posts:           make(map[uint64]*model.SocialPost),
		links:           make(map[uint64]*model.PostGameLink),
		reconciliations: make(map[uint64]*model.ReconciliationRecord),
	}
}

func (f *fakeSocialRepo) UpsertPost(_ context.Context, p *model.SocialPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.posts {
		if row.TenantID == p.TenantID && row.ExternalID == p.ExternalID {
			p.ID = row.ID
			c := *p
			f.posts[p.ID] = &c
			return nil
		}
	}
	f.nextID++
	p.ID = f.nextID
	c := *p
	f.posts[p.ID] = &c
	return nil
}

func (f *fakeSocialRepo) GetPostByID(_ context.Context, id uint64) (*model.SocialPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakeSocialRepo) ListPostIDs(_ context.Context, tenantID uint64, limit int) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id, p := range f.posts {
		if p.TenantID == tenantID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSocialRepo) UpsertLink(_ context.Context, l *model.PostGameLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.links {
		if row.PostID == l.PostID && row.RecordID == l.RecordID {
			l.ID = row.ID
			c := *l
			f.links[l.ID] = &c
			return nil
		}
	}
	f.nextID++
	l.ID = f.nextID
	c := *l
	f.links[l.ID] = &c
	return nil
}

func (f *fakeSocialRepo) ListLinksByPost(_ context.Context, postID uint64) ([]*model.PostGameLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PostGameLink
	for _, l := range f.links {
		if l.PostID == postID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeSocialRepo) GetPrimaryLink(_ context.Context, postID uint64) (*model.PostGameLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.PostID == postID && l.IsPrimaryGame {
			c := *l
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSocialRepo) ClearPrimary(_ context.Context, postID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.PostID == postID {
			l.IsPrimaryGame = false
		}
	}
	return nil
}

func (f *fakeSocialRepo) UpsertReconciliation(_ context.Context, rec *model.ReconciliationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prior, ok := f.reconciliations[rec.LinkID]; ok {
		rec.ID = prior.ID
	} else {
		f.nextID++
		rec.ID = f.nextID
	}
	c := *rec
	f.reconciliations[rec.LinkID] = &c
	return nil
}

func (f *fakeSocialRepo) GetReconciliationByLink(_ context.Context, linkID uint64) (*model.ReconciliationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.reconciliations[linkID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *rec
	return &c, nil
}

func (f *fakeSocialRepo) DeleteReconciliationByLink(_ context.Context, linkID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reconciliations, linkID)
	return nil
}

func (f *fakeSocialRepo) ListStaleReconciliations(_ context.Context, tenantID uint64, limit int) ([]uint64, error) {
	return nil, nil
}

type fakeTaskRepo struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.BackgroundTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{rows: make(map[uint64]*model.BackgroundTask)}
}

func (f *fakeTaskRepo) Create(_ context.Context, t *model.BackgroundTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	c := *t
	f.rows[t.ID] = &c
	return nil
}

func (f *fakeTaskRepo) GetByUUID(_ context.Context, uuid string) (*model.BackgroundTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TaskUUID == uuid {
			c := *t
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTaskRepo) ListByTenant(_ context.Context, tenantID uint64, limit int) ([]*model.BackgroundTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.BackgroundTask
	for _, t := range f.rows {
		if t.TenantID == tenantID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) UpdateProgress(_ context.Context, id uint64, processed, failed int, percent float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.ProcessedCount = processed
	t.FailedCount = failed
	t.ProgressPercent = percent
	return nil
}

func (f *fakeTaskRepo) MarkRunning(_ context.Context, id uint64, targetCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if t.Status != model.TaskQueued {
		return nil
	}
	now := time.Now()
	t.Status = model.TaskRunning
	t.TargetCount = targetCount
	t.StartedAt = &now
	return nil
}

func (f *fakeTaskRepo) Finish(_ context.Context, id uint64, status model.TaskStatus, payload datatypes.JSON, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	t.Status = status
	t.ResultPayload = payload
	t.ErrorMessage = errMsg
	t.FinishedAt = &now
	return nil
}

func (f *fakeTaskRepo) RequestCancel(_ context.Context, uuid string, tenantID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TaskUUID == uuid && t.TenantID == tenantID {
			t.CancelRequested = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeTaskRepo) CancelPending(_ context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	return t.CancelRequested, nil
}

func (f *fakeTaskRepo) FailInterrupted(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.rows {
		if t.Status == model.TaskRunning {
			t.Status = model.TaskFailed
			t.ErrorMessage = "interrupted by process restart"
			n++
		}
	}
	return n, nil
}
