package service

import (
	"context"
	"testing"
	"time"

	"TourneySync/internal/match"
	"TourneySync/internal/model"
)

func TestExtractYear(t *testing.T) {
	fallback := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := ExtractYear("Winter Poker Open 2023", fallback); got != 2023 {
		t.Errorf("got %d, want 2023 from title text", got)
	}
	if got := ExtractYear("Winter Poker Open", fallback); got != 2024 {
		t.Errorf("got %d, want fallback 2024", got)
	}
	if got := ExtractYear("Event #42 Special 2025", fallback); got != 2025 {
		t.Errorf("got %d, want 2025", got)
	}
}

func newSeriesFixture() (*SeriesService, *fakeSeriesRepo) {
	repo := newFakeSeriesRepo()
	return NewSeriesService(repo, testConfig(), testLogger()), repo
}

func seedSeries(t *testing.T, repo *fakeSeriesRepo, tenantID uint64, title string, years ...int) *model.SeriesTitle {
	t.Helper()
	st := &model.SeriesTitle{TenantID: tenantID, Title: title, NormalizedName: match.Normalize(title)}
	if err := repo.UpsertTitle(context.Background(), st); err != nil {
		t.Fatalf("seed title: %v", err)
	}
	for _, y := range years {
		inst := &model.TournamentSeries{TenantID: tenantID, SeriesTitleID: st.ID, Year: y}
		if err := repo.UpsertSeries(context.Background(), inst); err != nil {
			t.Fatalf("seed instance %d: %v", y, err)
		}
	}
	return st
}

func TestSeriesResolveSameYearAutoAssigns(t *testing.T) {
	svc, repo := newSeriesFixture()
	seedSeries(t, repo, 1, "Winter Poker Open", 2024)

	out, err := svc.Resolve(context.Background(), 1, "Winter Poker Open 2024", 2024, nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != model.AutoAssigned {
		t.Fatalf("status = %s, want AUTO_ASSIGNED", out.Status)
	}
	inst, _ := repo.GetSeriesByID(context.Background(), *out.TargetID)
	if inst.Year != 2024 {
		t.Errorf("assigned year = %d, want 2024", inst.Year)
	}
	if inst.GameCount != 0 {
		t.Errorf("game_count = %d, resolution alone must not move rollups", inst.GameCount)
	}
}

func TestSeriesRecordAssignmentBumpsRollup(t *testing.T) {
	svc, repo := newSeriesFixture()
	st := seedSeries(t, repo, 1, "Winter Poker Open")
	inst := &model.TournamentSeries{TenantID: 1, SeriesTitleID: st.ID, Year: 2024}
	if err := repo.UpsertSeries(context.Background(), inst); err != nil {
		t.Fatalf("seed instance: %v", err)
	}

	if err := svc.RecordAssignment(context.Background(), inst.ID, time.Now()); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	stored, _ := repo.GetSeriesByID(context.Background(), inst.ID)
	if stored.GameCount != 1 {
		t.Errorf("game_count = %d, want 1", stored.GameCount)
	}
	if stored.LastSeenAt == nil {
		t.Error("last_seen_at not set")
	}
}

func TestSeriesResolveCrossYearNeverAuto(t *testing.T) {
	svc, repo := newSeriesFixture()
	seedSeries(t, repo, 1, "Winter Poker Open", 2023)
	// Only a 2023 instance exists; with a 2023 instance on file the 2024
	// lookup must not silently land on last year's series.
	cfg := testConfig()

	out, err := svc.Resolve(context.Background(), 1, "Winter Poker Open", 2024, nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status == model.AutoAssigned && out.TargetID != nil {
		inst, _ := repo.GetSeriesByID(context.Background(), *out.TargetID)
		if inst.Year == 2023 {
			t.Fatalf("auto-assigned to the 2023 instance for a 2024 record")
		}
	}
	for _, c := range out.Candidates {
		inst, err := repo.GetSeriesByID(context.Background(), c.TargetID)
		if err != nil {
			continue
		}
		if inst.Year != 2024 && c.Confidence >= cfg.Resolver.AutoSeriesThreshold {
			t.Errorf("cross-year candidate scored %v, must stay below %v", c.Confidence, cfg.Resolver.AutoSeriesThreshold)
		}
	}
}

func TestSeriesResolveCreatesMissingYearInstance(t *testing.T) {
	svc, repo := newSeriesFixture()
	st := seedSeries(t, repo, 1, "Winter Poker Open", 2023)

	out, err := svc.Resolve(context.Background(), 1, "Winter Poker Open", 2024, nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != model.AutoAssigned || !out.WasCreated {
		t.Fatalf("got %s created=%v, want AUTO_ASSIGNED with a fresh instance", out.Status, out.WasCreated)
	}
	inst, _ := repo.GetSeriesByID(context.Background(), *out.TargetID)
	if inst.Year != 2024 || inst.SeriesTitleID != st.ID {
		t.Errorf("created instance = year %d title %d, want 2024 under title %d", inst.Year, inst.SeriesTitleID, st.ID)
	}
}

func TestSeriesResolveWeakTitleDoesNotCreate(t *testing.T) {
	svc, repo := newSeriesFixture()
	seedSeries(t, repo, 1, "Winter Poker Open")

	// Similar but not close enough to auto-assign: creating a 2024
	// instance off this match would mint an assignment below threshold.
	out, err := svc.Resolve(context.Background(), 1, "Winter Poker Opn Champs", 2024, nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status == model.AutoAssigned {
		t.Fatalf("weak title match must not auto-assign (conf %.3f)", out.Confidence)
	}
	if len(repo.series) != 0 {
		t.Error("weak title match must not create instances")
	}
}

func TestSeriesResolveNewTitleCreatedOnCommit(t *testing.T) {
	svc, repo := newSeriesFixture()

	out, err := svc.Resolve(context.Background(), 1, "Spring Deepstack Series 2024", 2024, nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != model.AutoAssigned || !out.WasCreated {
		t.Fatalf("got %s created=%v, want fresh title + instance", out.Status, out.WasCreated)
	}
	titles, _ := repo.ListTitlesByTenant(context.Background(), 1)
	if len(titles) != 1 {
		t.Fatalf("titles = %d, want 1", len(titles))
	}
	// The year token must not leak into the canonical title identity.
	if titles[0].NormalizedName != "spring deepstack series" {
		t.Errorf("normalized title = %q, want year stripped", titles[0].NormalizedName)
	}
}

func TestSeriesResolveDryRunCreatesNothing(t *testing.T) {
	svc, repo := newSeriesFixture()

	out, err := svc.Resolve(context.Background(), 1, "Spring Deepstack Series", 2024, nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != model.Unassigned {
		t.Fatalf("status = %s, want UNASSIGNED in dry-run", out.Status)
	}
	if len(repo.titles) != 0 || len(repo.series) != 0 {
		t.Error("dry-run must not create titles or instances")
	}
}

func TestSeriesSharedTitleAcrossYears(t *testing.T) {
	svc, repo := newSeriesFixture()

	if _, err := svc.Resolve(context.Background(), 1, "Winter Poker Open 2023", 2023, nil, true); err != nil {
		t.Fatalf("resolve 2023: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), 1, "Winter Poker Open 2024", 2024, nil, true); err != nil {
		t.Fatalf("resolve 2024: %v", err)
	}
	titles, _ := repo.ListTitlesByTenant(context.Background(), 1)
	if len(titles) != 1 {
		t.Fatalf("titles = %d, want one shared across years", len(titles))
	}
	instances, _ := repo.ListSeriesByTitle(context.Background(), titles[0].ID)
	if len(instances) != 2 {
		t.Errorf("instances = %d, want 2023 and 2024", len(instances))
	}
}
