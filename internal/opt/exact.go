package opt

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// ErrInfeasible is returned when no selection can satisfy the hard
// constraints (exactly N trainsets, one bay each). Callers fall back to the
// greedy strategy rather than surfacing this to the API.
var ErrInfeasible = errors.New("no feasible selection under hard constraints")

// ErrSolverTimeout is returned when the time budget expires before any
// incumbent solution is found.
var ErrSolverTimeout = errors.New("solver timed out without a solution")

// SolveStats describes one exact-solver run for the metrics registry.
type SolveStats struct {
	Nodes      int64
	Pruned     int64
	Incumbents int
	Duration   time.Duration
	Status     string
}

const nodeCheckInterval = 4096

// SolveExact searches for the selection of exactly RequiredTrainsets eligible
// trainsets, each assigned one stabling bay, maximizing
//
//	sum(composite) - lambda*sum(shunting cost) + soft terms
//
// where the soft terms reward critical-branding coverage and penalize depot
// imbalance and an under-represented newer-train share. Branch and bound over
// the candidate list, candidates in composite-descending order so strong
// incumbents appear early. Cancellation via ctx is mandatory: on deadline the
// best incumbent so far is returned with status FEASIBLE.
func SolveExact(ctx context.Context, eligible []Scored, bays []model.StablingBay, cons model.Constraints, p config.Policy) (Selection, SolveStats, error) {
	start := time.Now()
	n := cons.RequiredTrainsets
	stats := SolveStats{Status: model.SolveInfeasible}
	if n <= 0 || n > len(eligible) {
		stats.Duration = time.Since(start)
		return Selection{}, stats, ErrInfeasible
	}

	cands := append([]Scored(nil), eligible...)
	sort.Slice(cands, func(i, j int) bool { return rankLess(cands[i], cands[j]) })

	ownBay := map[int]model.StablingBay{}
	var freeBays []model.StablingBay
	for _, b := range bays {
		if b.TrainsetID != 0 {
			ownBay[b.TrainsetID] = b
		} else if !b.Occupied {
			freeBays = append(freeBays, b)
		}
	}
	sort.Slice(freeBays, func(i, j int) bool {
		if freeBays[i].ShuntingCost != freeBays[j].ShuntingCost {
			return freeBays[i].ShuntingCost < freeBays[j].ShuntingCost
		}
		return freeBays[i].ID < freeBays[j].ID
	})
	// prefix sums of the cheapest k free-bay costs
	freePrefix := make([]float64, len(freeBays)+1)
	for i, b := range freeBays {
		freePrefix[i+1] = freePrefix[i] + b.ShuntingCost
	}

	// per-candidate value ceiling for the admissible bound: composite plus the
	// largest bonus a single selection can contribute
	ceil := make([]float64, len(cands))
	for i, c := range cands {
		ceil[i] = c.Composite
		if c.CriticalBranding {
			ceil[i] += p.BrandingCoverWeight
		}
	}
	// suffix[i] = sum of the top (n) ceilings from i onward is approximated by
	// plain suffix sums; candidates are near-sorted by value so this stays tight
	suffix := make([]float64, len(cands)+1)
	for i := len(cands) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + ceil[i]
	}

	newerNeed := int(math.Ceil(p.NewerTrainMinRatio * float64(n)))

	type incumbentT struct {
		picked []int
		value  float64
	}
	var best *incumbentT
	picked := make([]int, 0, n)
	deadlineHit := false

	leafValue := func(idx []int) (float64, bool) {
		total := 0.0
		bayless := 0
		depotCount := map[string]int{}
		newer := 0
		branded := 0
		for _, ci := range idx {
			c := cands[ci]
			total += c.Composite
			if b, ok := ownBay[c.Trainset.ID]; ok {
				total -= p.ShuntingPenalty * b.ShuntingCost
			} else {
				bayless++
			}
			depotCount[c.Trainset.Depot]++
			if c.Trainset.CommissionedYear >= p.NewerTrainMinYear {
				newer++
			}
			if c.CriticalBranding {
				branded++
			}
		}
		if bayless > len(freeBays) {
			return 0, false
		}
		total -= p.ShuntingPenalty * freePrefix[bayless]
		total += p.BrandingCoverWeight * float64(branded)
		if len(depotCount) > 1 {
			maxD, minD := 0, math.MaxInt32
			for _, v := range depotCount {
				if v > maxD {
					maxD = v
				}
				if v < minD {
					minD = v
				}
			}
			total -= p.DepotBalanceWeight * float64(maxD-minD)
		}
		if newer < newerNeed {
			total -= p.AgeMixWeight * float64(newerNeed-newer)
		}
		return total, true
	}

	var walk func(i int, chosen int, value float64)
	walk = func(i int, chosen int, value float64) {
		stats.Nodes++
		if stats.Nodes%nodeCheckInterval == 0 && ctx.Err() != nil {
			deadlineHit = true
		}
		if deadlineHit {
			return
		}
		if chosen == n {
			v, ok := leafValue(picked)
			if !ok {
				return
			}
			if best == nil || v > best.value {
				best = &incumbentT{picked: append([]int(nil), picked...), value: v}
				stats.Incumbents++
			}
			return
		}
		if i >= len(cands) || len(cands)-i < n-chosen {
			return
		}
		// admissible bound: current raw score plus the best remaining ceilings;
		// penalties only lower the leaf value
		if best != nil && value+suffix[i] <= best.value {
			stats.Pruned++
			return
		}
		picked = append(picked, i)
		walk(i+1, chosen+1, value+ceil[i])
		picked = picked[:len(picked)-1]
		walk(i+1, chosen, value)
	}
	walk(0, 0, 0)

	stats.Duration = time.Since(start)
	if best == nil {
		if deadlineHit {
			return Selection{}, stats, ErrSolverTimeout
		}
		return Selection{}, stats, ErrInfeasible
	}
	if deadlineHit {
		stats.Status = model.SolveFeasible
	} else {
		stats.Status = model.SolveOptimal
	}

	sel := Selection{
		Strategy: "exact",
		Status:   stats.Status,
		Bays:     map[int]model.StablingBay{},
	}
	selected := map[int]bool{}
	for _, ci := range best.picked {
		sel.Induction = append(sel.Induction, cands[ci])
		selected[ci] = true
	}
	sort.Slice(sel.Induction, func(i, j int) bool { return rankLess(sel.Induction[i], sel.Induction[j]) })

	// bay assignment: own bay first, then cheapest free bays in rank order
	free := append([]model.StablingBay(nil), freeBays...)
	for _, s := range sel.Induction {
		if b, ok := ownBay[s.Trainset.ID]; ok {
			sel.Bays[s.Trainset.ID] = b
			continue
		}
		if len(free) > 0 {
			sel.Bays[s.Trainset.ID] = free[0]
			free = free[1:]
		}
	}

	var rest []Scored
	for ci := range cands {
		if !selected[ci] {
			rest = append(rest, cands[ci])
		}
	}
	rest = RankEligible(rest)
	standby := cons.MaxStandby
	if standby > len(rest) {
		standby = len(rest)
	}
	sel.Standby = rest[:standby]
	sel.Surplus = rest[standby:]
	sel.Objective = best.value
	return sel, stats, nil
}
