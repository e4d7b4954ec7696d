package opt

import (
	"context"
	"errors"
	"testing"
	"time"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

func scoredSet(composites ...float64) []Scored {
	var out []Scored
	for i, c := range composites {
		out = append(out, Scored{
			Trainset:  model.Trainset{ID: i + 1, RakeNumber: rakeName(i + 1), Depot: "Muttom", CommissionedYear: 2022},
			Composite: c,
		})
	}
	return out
}

func ownBays(n int) []model.StablingBay {
	var out []model.StablingBay
	for i := 1; i <= n; i++ {
		out = append(out, model.StablingBay{ID: i, Name: rakeName(i) + "-bay", Depot: "Muttom", Occupied: true, ShuntingCost: 1, TrainsetID: i})
	}
	return out
}

func TestSolveExactPicksTopComposites(t *testing.T) {
	p := config.Default()
	eligible := scoredSet(90, 40, 85, 30, 70)
	cons := model.Constraints{RequiredTrainsets: 3, MaxStandby: 1}

	sel, stats, err := SolveExact(context.Background(), eligible, ownBays(5), cons, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if stats.Status != model.SolveOptimal {
		t.Fatalf("status = %s, want OPTIMAL", stats.Status)
	}
	got := map[int]bool{}
	for _, s := range sel.Induction {
		got[s.Trainset.ID] = true
	}
	// equal shunting costs and soft terms, so the top three composites win
	for _, id := range []int{1, 3, 5} {
		if !got[id] {
			t.Fatalf("expected trainset %d selected, got %v", id, got)
		}
	}
	if len(sel.Standby) != 1 || len(sel.Surplus) != 1 {
		t.Fatalf("remainder split wrong: standby=%d surplus=%d", len(sel.Standby), len(sel.Surplus))
	}
}

func TestSolveExactInfeasibleWhenShort(t *testing.T) {
	p := config.Default()
	eligible := scoredSet(90, 80)
	cons := model.Constraints{RequiredTrainsets: 5}

	_, _, err := SolveExact(context.Background(), eligible, ownBays(2), cons, p)
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
}

func TestSolveExactAssignsFreeBaysToBayless(t *testing.T) {
	p := config.Default()
	eligible := scoredSet(90, 80, 70)
	// only trainsets 1 and 2 own bays; one free bay remains for number 3
	bays := ownBays(2)
	bays = append(bays,
		model.StablingBay{ID: 10, Name: "SB-10", Depot: "Muttom", ShuntingCost: 4},
		model.StablingBay{ID: 11, Name: "SB-11", Depot: "Muttom", ShuntingCost: 2},
	)
	cons := model.Constraints{RequiredTrainsets: 3}

	sel, _, err := SolveExact(context.Background(), eligible, bays, cons, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	b, ok := sel.Bays[3]
	if !ok {
		t.Fatalf("bayless trainset 3 got no bay")
	}
	if b.ID != 11 {
		t.Fatalf("expected cheapest free bay 11, got %d", b.ID)
	}
}

func TestSolveExactHonorsCancelledContext(t *testing.T) {
	p := config.Default()
	// enough candidates that the walk passes a node-count check
	comps := make([]float64, 26)
	for i := range comps {
		comps[i] = float64(100 - i)
	}
	eligible := scoredSet(comps...)
	cons := model.Constraints{RequiredTrainsets: 13}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sel, stats, err := SolveExact(ctx, eligible, ownBays(len(comps)), cons, p)
	if err == nil && stats.Status == model.SolveOptimal {
		// the walk may finish a small tree before the first deadline check;
		// an optimal result is acceptable, a hang is not
		if len(sel.Induction) != 13 {
			t.Fatalf("optimal result with wrong selection size %d", len(sel.Induction))
		}
		return
	}
	if err != nil && !errors.Is(err, ErrSolverTimeout) {
		t.Fatalf("err = %v, want ErrSolverTimeout or best-effort result", err)
	}
}

func TestGreedyShortfallWarnsAndFills(t *testing.T) {
	p := config.Default()
	eligible := scoredSet(90, 80, 70)
	cons := model.Constraints{RequiredTrainsets: 5, MaxStandby: 2}

	sel := SelectGreedy(eligible, ownBays(3), cons, p)
	if len(sel.Induction) != 3 {
		t.Fatalf("expected all 3 inducted, got %d", len(sel.Induction))
	}
	if len(sel.Warnings) == 0 {
		t.Fatalf("expected a shortfall warning")
	}
	if len(sel.Standby) != 0 || len(sel.Surplus) != 0 {
		t.Fatalf("nothing should remain for standby/surplus")
	}
}

func TestRankLessTieBreaks(t *testing.T) {
	a := Scored{Trainset: model.Trainset{ID: 2}, Composite: 80, MileageKM: 100}
	b := Scored{Trainset: model.Trainset{ID: 1}, Composite: 80, MileageKM: 200}
	if !rankLess(a, b) {
		t.Fatalf("lower mileage must rank first at equal composite")
	}
	c := Scored{Trainset: model.Trainset{ID: 1}, Composite: 80, MileageKM: 100, ShuntingCost: 5}
	d := Scored{Trainset: model.Trainset{ID: 2}, Composite: 80, MileageKM: 100, ShuntingCost: 1}
	if rankLess(c, d) {
		t.Fatalf("lower shunting cost must rank first at equal composite and mileage")
	}
	e := Scored{Trainset: model.Trainset{ID: 1}, Composite: 80}
	f := Scored{Trainset: model.Trainset{ID: 2}, Composite: 80}
	if !rankLess(e, f) {
		t.Fatalf("lower id must rank first as the final tie-break")
	}
}

func TestSolveStatsRecorded(t *testing.T) {
	RecordSolve("t_x", "2026-09-01", "exact", SolveStats{Nodes: 10, Status: model.SolveOptimal, Duration: time.Millisecond})
	got := GetSolveStats("t_x", "2026-09-01")
	if got["exact"].Nodes != 10 {
		t.Fatalf("stats not recorded: %+v", got)
	}
}
