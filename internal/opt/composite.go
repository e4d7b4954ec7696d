package opt

import (
	"sort"
	"time"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// Scored carries one trainset through the pipeline: its weighted composite
// score, the per-criterion breakdown, and any hard disqualifications.
type Scored struct {
	Trainset          model.Trainset
	Composite         float64
	Subs              map[string]Result
	Reasons           []string
	Disqualified      bool
	DisqualifyReasons []string
	MileageKM         float64
	ShuntingCost      float64
	CriticalBranding  bool
}

// ScoreTrainset runs every criterion for one trainset and folds the results
// into a composite. Pure with respect to the snapshot.
func ScoreTrainset(t model.Trainset, snap *model.Snapshot, date time.Time, p config.Policy, criteria []Criterion) Scored {
	s := Scored{
		Trainset:  t,
		Subs:      make(map[string]Result, len(criteria)),
		MileageKM: t.MileageKM,
	}
	if rec, ok := snap.Mileage[t.ID]; ok {
		s.MileageKM = rec.CumulativeKM
	}
	for i := range snap.Bays {
		if snap.Bays[i].TrainsetID == t.ID {
			s.ShuntingCost = snap.Bays[i].ShuntingCost
			break
		}
	}
	for _, b := range snap.Branding[t.ID] {
		if b.Priority == model.BrandingCritical && b.ShortfallHours() > 0 &&
			!date.Before(b.StartsAt) && !date.After(b.EndsAt) {
			s.CriticalBranding = true
			break
		}
	}
	for _, c := range criteria {
		r := c.Score(t, snap, date)
		s.Subs[c.Name()] = r
		s.Composite += c.Weight(p.Weights) * r.Score
		s.Reasons = append(s.Reasons, r.Reasons...)
		if r.Disqualify {
			s.Disqualified = true
			s.DisqualifyReasons = append(s.DisqualifyReasons, r.Reasons...)
		}
	}
	return s
}

// SplitEligible applies the eligibility filter: scored trainsets carrying a
// disqualifying flag are routed out of contention regardless of composite
// score. Both partitions come back in deterministic id order.
func SplitEligible(scored []Scored) (eligible, disqualified []Scored) {
	for _, s := range scored {
		if s.Disqualified {
			disqualified = append(disqualified, s)
		} else {
			eligible = append(eligible, s)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Trainset.ID < eligible[j].Trainset.ID })
	sort.Slice(disqualified, func(i, j int) bool { return disqualified[i].Trainset.ID < disqualified[j].Trainset.ID })
	return eligible, disqualified
}

// rankLess is the deterministic selection order: composite descending, then
// lower mileage, lower shunting cost, and finally trainset id.
func rankLess(a, b Scored) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	if a.MileageKM != b.MileageKM {
		return a.MileageKM < b.MileageKM
	}
	if a.ShuntingCost != b.ShuntingCost {
		return a.ShuntingCost < b.ShuntingCost
	}
	return a.Trainset.ID < b.Trainset.ID
}

// RankEligible sorts candidates by rankLess without mutating the input.
func RankEligible(eligible []Scored) []Scored {
	out := append([]Scored(nil), eligible...)
	sort.Slice(out, func(i, j int) bool { return rankLess(out[i], out[j]) })
	return out
}
