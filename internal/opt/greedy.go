package opt

import (
	"fmt"
	"sort"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// Selection is the partition produced by either strategy, with bay
// assignments for the induction set.
type Selection struct {
	Induction []Scored
	Standby   []Scored
	Surplus   []Scored // eligible but not selected; reported under maintenance
	Bays      map[int]model.StablingBay
	Status    string
	Objective float64
	Strategy  string
	FellBack  bool
	Warnings  []string
}

// SelectGreedy ranks eligible trainsets by composite score with deterministic
// tie-breaks and fills the three lists. Never fails: a shortfall against the
// required count surfaces as a warning, not an error.
func SelectGreedy(eligible []Scored, bays []model.StablingBay, cons model.Constraints, p config.Policy) Selection {
	ranked := RankEligible(eligible)
	sel := Selection{
		Strategy: "greedy",
		Status:   model.SolveFeasible,
		Bays:     map[int]model.StablingBay{},
	}
	n := cons.RequiredTrainsets
	if n > len(ranked) {
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("only %d eligible trainsets for %d required", len(ranked), n))
		n = len(ranked)
	}
	sel.Induction = ranked[:n]
	rest := ranked[n:]
	standby := cons.MaxStandby
	if standby > len(rest) {
		standby = len(rest)
	}
	sel.Standby = rest[:standby]
	sel.Surplus = rest[standby:]

	assignBaysGreedy(&sel, bays)
	sel.Objective = objectiveValue(sel, p)
	return sel
}

// assignBaysGreedy keeps a trainset in its current bay when it has one and
// otherwise takes the cheapest unclaimed bay, ordered by (cost, id) for
// determinism.
func assignBaysGreedy(sel *Selection, bays []model.StablingBay) {
	claimed := map[int]bool{}
	byTrain := map[int]model.StablingBay{}
	for _, b := range bays {
		if b.TrainsetID != 0 {
			byTrain[b.TrainsetID] = b
		}
	}
	var unassigned []Scored
	for _, s := range sel.Induction {
		if b, ok := byTrain[s.Trainset.ID]; ok && !claimed[b.ID] {
			sel.Bays[s.Trainset.ID] = b
			claimed[b.ID] = true
			continue
		}
		unassigned = append(unassigned, s)
	}
	if len(unassigned) == 0 {
		return
	}
	open := make([]model.StablingBay, 0, len(bays))
	for _, b := range bays {
		if !claimed[b.ID] && b.TrainsetID == 0 && !b.Occupied {
			open = append(open, b)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].ShuntingCost != open[j].ShuntingCost {
			return open[i].ShuntingCost < open[j].ShuntingCost
		}
		return open[i].ID < open[j].ID
	})
	for _, s := range unassigned {
		if len(open) == 0 {
			sel.Warnings = append(sel.Warnings, fmt.Sprintf("no free stabling bay for trainset %s", s.Trainset.RakeNumber))
			continue
		}
		sel.Bays[s.Trainset.ID] = open[0]
		open = open[1:]
	}
}

// objectiveValue reports the same objective the exact solver maximizes:
// total composite score minus the shunting penalty over assigned bays.
func objectiveValue(sel Selection, p config.Policy) float64 {
	total := 0.0
	for _, s := range sel.Induction {
		total += s.Composite
		if b, ok := sel.Bays[s.Trainset.ID]; ok {
			total -= p.ShuntingPenalty * b.ShuntingCost
		}
	}
	return total
}
