package match

import (
	"testing"
	"time"

	"TourneySync/internal/model"
)

func TestScoreWeightedSum(t *testing.T) {
	signals := []Signal{
		NameSignal(1.0, 0.7),
		AddressSignal(0.5, 0.3),
	}
	if got := Score(signals); got != 0.85 {
		t.Errorf("Score = %v, want 0.85", got)
	}
}

func TestScoreClamps(t *testing.T) {
	if got := Score([]Signal{NameSignal(1, 0.8), TitleSignal(1, 0.8)}); got != 1 {
		t.Errorf("overweighted score = %v, want clamp to 1", got)
	}
	if got := Score(nil); got != 0 {
		t.Errorf("empty signals = %v, want 0", got)
	}
}

func TestSignalConstructorsClampSubScore(t *testing.T) {
	if s := NameSignal(1.5, 0.5); s.SubScore != 1 {
		t.Errorf("sub-score not clamped high: %v", s.SubScore)
	}
	if s := BuyInSignal(-0.2, 0.5); s.SubScore != 0 {
		t.Errorf("sub-score not clamped low: %v", s.SubScore)
	}
}

func TestSortCandidatesDeterministic(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{TargetID: 3, Confidence: 0.7, UpdatedAt: older},
		{TargetID: 1, Confidence: 0.9, UpdatedAt: older},
		{TargetID: 2, Confidence: 0.7, UpdatedAt: newer},
		{TargetID: 4, Confidence: 0.7, UpdatedAt: older},
	}
	SortCandidates(cands)
	wantOrder := []uint64{1, 2, 3, 4}
	for i, want := range wantOrder {
		if cands[i].TargetID != want {
			t.Fatalf("position %d: got id %d, want %d", i, cands[i].TargetID, want)
		}
	}
}

func TestAmbiguous(t *testing.T) {
	close := []Candidate{{Confidence: 0.90}, {Confidence: 0.88}}
	if !Ambiguous(close, 0.05) {
		t.Error("candidates 0.02 apart should be ambiguous at margin 0.05")
	}
	clear := []Candidate{{Confidence: 0.90}, {Confidence: 0.60}}
	if Ambiguous(clear, 0.05) {
		t.Error("candidates 0.30 apart should not be ambiguous")
	}
	if Ambiguous([]Candidate{{Confidence: 0.9}}, 0.05) {
		t.Error("single candidate can never be ambiguous")
	}
}

func TestResolveAutoAssign(t *testing.T) {
	cands := []Candidate{
		{TargetID: 7, Confidence: 0.92},
		{TargetID: 8, Confidence: 0.40},
	}
	out := Resolve[model.Venue](cands, 0.85, 0.5, 0.05, 5)
	if out.Status != model.AutoAssigned {
		t.Fatalf("status = %s, want AUTO_ASSIGNED", out.Status)
	}
	if out.TargetID == nil || *out.TargetID != 7 {
		t.Errorf("target = %v, want 7", out.TargetID)
	}
	if out.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", out.Confidence)
	}
}

func TestResolveAmbiguityForcesPending(t *testing.T) {
	cands := []Candidate{
		{TargetID: 1, Confidence: 0.90},
		{TargetID: 2, Confidence: 0.89},
	}
	out := Resolve[model.Venue](cands, 0.85, 0.5, 0.05, 5)
	if out.Status != model.PendingAssignment {
		t.Fatalf("status = %s, want PENDING_ASSIGNMENT", out.Status)
	}
	if out.TargetID != nil {
		t.Error("ambiguous outcome must not carry an assignment")
	}
	if len(out.Candidates) != 2 {
		t.Errorf("candidates = %d, want both retained for review", len(out.Candidates))
	}
}

func TestResolveSuggestBand(t *testing.T) {
	cands := []Candidate{{TargetID: 1, Confidence: 0.6}}
	out := Resolve[model.Venue](cands, 0.85, 0.5, 0.05, 5)
	if out.Status != model.PendingAssignment {
		t.Fatalf("status = %s, want PENDING_ASSIGNMENT", out.Status)
	}
}

func TestResolveBelowFloor(t *testing.T) {
	cands := []Candidate{{TargetID: 1, Confidence: 0.3}}
	out := Resolve[model.Venue](cands, 0.85, 0.5, 0.05, 5)
	if out.Status != model.Unassigned {
		t.Fatalf("status = %s, want UNASSIGNED", out.Status)
	}
	out = Resolve[model.Venue](nil, 0.85, 0.5, 0.05, 5)
	if out.Status != model.Unassigned {
		t.Fatalf("empty candidates: status = %s, want UNASSIGNED", out.Status)
	}
}

func TestResolveTruncatesCandidates(t *testing.T) {
	var cands []Candidate
	for i := 1; i <= 10; i++ {
		cands = append(cands, Candidate{TargetID: uint64(i), Confidence: 0.6 - float64(i)*0.01})
	}
	out := Resolve[model.Venue](cands, 0.85, 0.5, 0.05, 5)
	if len(out.Candidates) != 5 {
		t.Errorf("candidates = %d, want capped at 5", len(out.Candidates))
	}
}
