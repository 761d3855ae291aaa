package service

import (
	"context"
	"fmt"

	"TourneySync/internal/model"
	"TourneySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// IngestService is the intake door for scraped batches. It never
// resolves anything itself: raw rows land pending and the enrichment
// pipeline consumes them.
type IngestService struct {
	records repository.RecordRepository
	social  repository.SocialRepository
	enrich  *EnrichService
	logger  *logrus.Logger
}

func NewIngestService(records repository.RecordRepository, social repository.SocialRepository, enrich *EnrichService, logger *logrus.Logger) *IngestService {
	return &IngestService{records: records, social: social, enrich: enrich, logger: logger}
}

// IngestResult summarizes one batch intake.
type IngestResult struct {
	Received int      `json:"received"`
	Deduped  int      `json:"deduped"`
	Stored   int      `json:"stored"`
	Enriched int      `json:"enriched"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// IngestRecords stores a scraped batch and, when enrichNow is set, runs
// each stored row through enrichment immediately. A scraper retrying the
// same page produces the identical end state.
func (s *IngestService) IngestRecords(ctx context.Context, tenantID uint64, batch []*model.RawRecord, enrichNow bool) (*IngestResult, error) {
	res := &IngestResult{Received: len(batch)}

	deduped := dedupBatch(batch)
	res.Deduped = len(batch) - len(deduped)

	for _, rec := range deduped {
		rec.TenantID = tenantID
		if rec.ExternalID == "" || rec.Name == "" || rec.StartTime.IsZero() {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("record %q: missing external_id, name or start_time", rec.ExternalID))
			continue
		}
		rec.IngestState = model.IngestPending
		if err := s.records.UpsertRaw(ctx, rec); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("record %q: %v", rec.ExternalID, err))
			continue
		}
		res.Stored++
		if enrichNow {
			if _, err := s.enrich.EnrichAndSave(ctx, tenantID, rec.ID); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("record %q: enrich: %v", rec.ExternalID, err))
				continue
			}
			res.Enriched++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"received":  res.Received,
		"stored":    res.Stored,
		"enriched":  res.Enriched,
		"failed":    res.Failed,
	}).Info("record batch ingested")
	return res, nil
}

// dedupBatch keeps the last occurrence per external id. Scrapers that
// paginate overlapping windows routinely repeat rows inside one batch;
// the later observation wins.
func dedupBatch(batch []*model.RawRecord) []*model.RawRecord {
	index := make(map[string]int, len(batch))
	out := make([]*model.RawRecord, 0, len(batch))
	for _, rec := range batch {
		if pos, ok := index[rec.ExternalID]; ok {
			out[pos] = rec
			continue
		}
		index[rec.ExternalID] = len(out)
		out = append(out, rec)
	}
	return out
}

// IngestPosts stores scraped social result posts, idempotent on
// (tenant_id, external_id). Reconciliation runs separately.
func (s *IngestService) IngestPosts(ctx context.Context, tenantID uint64, posts []*model.SocialPost) (*IngestResult, error) {
	res := &IngestResult{Received: len(posts)}
	for _, p := range posts {
		p.TenantID = tenantID
		if p.ExternalID == "" || p.EventDate.IsZero() {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("post %q: missing external_id or event_date", p.ExternalID))
			continue
		}
		if err := s.social.UpsertPost(ctx, p); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("post %q: %v", p.ExternalID, err))
			continue
		}
		res.Stored++
	}
	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"received":  res.Received,
		"stored":    res.Stored,
		"failed":    res.Failed,
	}).Info("post batch ingested")
	return res, nil
}

// DrainPending enriches up to limit pending raw rows for a tenant.
// Used by the cron sweep so rows queued with enrichNow=false still get
// processed.
func (s *IngestService) DrainPending(ctx context.Context, tenantID uint64, limit int) (int, int) {
	pending, err := s.records.ListPendingRaw(ctx, tenantID, limit)
	if err != nil {
		s.logger.WithError(err).Warn("list pending raw records")
		return 0, 0
	}
	ok, failed := 0, 0
	for _, raw := range pending {
		if _, err := s.enrich.EnrichAndSave(ctx, tenantID, raw.ID); err != nil {
			s.logger.WithError(err).WithField("raw_id", raw.ID).Warn("drain enrichment")
			failed++
			continue
		}
		ok++
	}
	if ok+failed > 0 {
		s.logger.Infof("pending drain: enriched %d, failed %d", ok, failed)
	}
	return ok, failed
}
