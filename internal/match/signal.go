package match

import (
	"sort"
	"time"

	"TourneySync/internal/model"
)

// SignalKind is the closed set of match signals. Each resolver builds
// its signal slice from these constructors only, so adding a kind forces
// every consumer through the compiler.
type SignalKind string

const (
	SignalName          SignalKind = "name"
	SignalAlias         SignalKind = "alias"
	SignalAddress       SignalKind = "address"
	SignalTitle         SignalKind = "title"
	SignalYear          SignalKind = "year"
	SignalVariant       SignalKind = "variant"
	SignalBuyIn         SignalKind = "buy_in"
	SignalStartTime     SignalKind = "start_time"
	SignalDateProximity SignalKind = "date_proximity"
)

// Signal is one scored dimension of a candidate/target comparison.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	SubScore float64    `json:"sub_score"` // [0,1]
	Weight   float64    `json:"weight"`
}

// NameSignal and friends are the only way to build signals.
func NameSignal(score, weight float64) Signal  { return Signal{SignalName, clamp01(score), weight} }
func AliasSignal(score, weight float64) Signal { return Signal{SignalAlias, clamp01(score), weight} }
func AddressSignal(score, weight float64) Signal {
	return Signal{SignalAddress, clamp01(score), weight}
}
func TitleSignal(score, weight float64) Signal { return Signal{SignalTitle, clamp01(score), weight} }
func YearSignal(score, weight float64) Signal  { return Signal{SignalYear, clamp01(score), weight} }
func VariantSignal(score, weight float64) Signal {
	return Signal{SignalVariant, clamp01(score), weight}
}
func BuyInSignal(score, weight float64) Signal { return Signal{SignalBuyIn, clamp01(score), weight} }
func StartTimeSignal(score, weight float64) Signal {
	return Signal{SignalStartTime, clamp01(score), weight}
}
func DateProximitySignal(score, weight float64) Signal {
	return Signal{SignalDateProximity, clamp01(score), weight}
}

// Score combines signals as a weighted sum clamped to [0,1]. Pure and
// reproducible: identical inputs always yield the identical score.
func Score(signals []Signal) float64 {
	var sum float64
	for _, s := range signals {
		sum += s.SubScore * s.Weight
	}
	return clamp01(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Candidate is one scored target of a resolution attempt.
type Candidate struct {
	TargetID   uint64    `json:"target_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"-"`
	Signals    []Signal  `json:"signals,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// SortCandidates orders candidates by (confidence desc, updated-at desc,
// id asc). The id fallback keeps ordering deterministic for ties.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		if !cands[i].UpdatedAt.Equal(cands[j].UpdatedAt) {
			return cands[i].UpdatedAt.After(cands[j].UpdatedAt)
		}
		return cands[i].TargetID < cands[j].TargetID
	})
}

// Ambiguous reports whether the sorted candidate list has a top pair
// inside the indistinguishability band. Ambiguity forces
// PENDING_ASSIGNMENT even above the auto threshold.
func Ambiguous(cands []Candidate, margin float64) bool {
	return len(cands) >= 2 && cands[0].Confidence-cands[1].Confidence < margin
}

// Outcome is the shared resolution result for the venue, series and
// recurring dimensions (status + confidence + candidates), implemented
// once and parameterized by the target entity.
type Outcome[T any] struct {
	Status     model.AssignmentStatus
	TargetID   *uint64
	Target     *T
	Confidence float64
	Reason     string
	Candidates []Candidate
	WasCreated bool
}

// Resolve applies the shared threshold policy to a sorted candidate
// list: >= auto assigns (unless ambiguous), >= suggest yields pending
// with candidates, below yields unassigned.
func Resolve[T any](cands []Candidate, auto, suggest, margin float64, maxCandidates int) Outcome[T] {
	SortCandidates(cands)
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}
	if len(cands) == 0 || cands[0].Confidence < suggest {
		return Outcome[T]{Status: model.Unassigned, Reason: "no candidate above suggest floor"}
	}
	top := cands[0]
	if top.Confidence >= auto && !Ambiguous(cands, margin) {
		id := top.TargetID
		return Outcome[T]{
			Status:     model.AutoAssigned,
			TargetID:   &id,
			Confidence: top.Confidence,
			Reason:     top.Reason,
			Candidates: cands,
		}
	}
	reason := top.Reason
	if top.Confidence >= auto {
		reason = "top candidates indistinguishable"
	}
	return Outcome[T]{
		Status:     model.PendingAssignment,
		Confidence: top.Confidence,
		Reason:     reason,
		Candidates: cands,
	}
}
