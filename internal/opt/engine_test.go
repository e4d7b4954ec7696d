package opt

import (
	"context"
	"testing"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// fleetSnapshot builds n fully certified trainsets with own bays and spread
// mileage so composites differ deterministically.
func fleetSnapshot(n int) *model.Snapshot {
	snap := emptySnapshot()
	for i := 1; i <= n; i++ {
		t := model.Trainset{
			ID:               i,
			RakeNumber:       rakeName(i),
			CommissionedYear: 2016 + i%9,
			Depot:            "Muttom",
			MileageKM:        float64(60000 + i*5000),
			LastCleanedAt:    testDate.AddDate(0, 0, -2),
		}
		snap.Trainsets = append(snap.Trainsets, t)
		snap.Certificates[i] = fullCerts(i, testDate.AddDate(0, 6, 0))
		snap.Bays = append(snap.Bays, model.StablingBay{
			ID: i, Name: rakeName(i) + "-bay", Depot: "Muttom", Position: i,
			Occupied: true, ShuntingCost: float64(1 + i%5), TrainsetID: i,
		})
	}
	return snap
}

func rakeName(i int) string {
	return string([]byte{'T', 'S', '-', byte('0' + i/10), byte('0' + i%10)})
}

func genRequest(required int) model.GenerateRequest {
	return model.GenerateRequest{
		TenantID:   "t_test",
		TargetDate: "2026-09-01",
		Constraints: model.Constraints{
			RequiredTrainsets: required,
			MaxStandby:        5,
			MaxMaintenance:    10,
		},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(30)

	req := genRequest(18)
	req.Strategy = "greedy" // pin the strategy so runs cannot race a solver deadline
	a, err := e.Generate(context.Background(), snap, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := e.Generate(context.Background(), snap, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a.InductionList) != len(b.InductionList) {
		t.Fatalf("induction sizes differ: %d vs %d", len(a.InductionList), len(b.InductionList))
	}
	for i := range a.InductionList {
		if a.InductionList[i].TrainsetID != b.InductionList[i].TrainsetID {
			t.Fatalf("induction order differs at %d: %d vs %d", i, a.InductionList[i].TrainsetID, b.InductionList[i].TrainsetID)
		}
	}
	if a.ObjectiveValue != b.ObjectiveValue {
		t.Fatalf("objective differs: %v vs %v", a.ObjectiveValue, b.ObjectiveValue)
	}
}

func TestGenerateListsPartitionFleet(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(30)

	req := genRequest(18)
	req.Strategy = "greedy"
	sched, err := e.Generate(context.Background(), snap, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	seen := map[int]string{}
	add := func(list string, entries []model.ScheduleEntry) {
		for _, en := range entries {
			if prev, dup := seen[en.TrainsetID]; dup {
				t.Fatalf("trainset %d in both %s and %s", en.TrainsetID, prev, list)
			}
			seen[en.TrainsetID] = list
		}
	}
	add("induction", sched.InductionList)
	add("standby", sched.StandbyList)
	add("maintenance", sched.MaintenanceList)
	if len(seen) != len(snap.Trainsets) {
		t.Fatalf("lists cover %d of %d trainsets", len(seen), len(snap.Trainsets))
	}
	if len(sched.InductionList) != 18 {
		t.Fatalf("expected 18 inducted, got %d", len(sched.InductionList))
	}
	if sched.Summary.Coverage != 100 {
		t.Fatalf("expected full coverage, got %v", sched.Summary.Coverage)
	}
}

func TestGenerateDisqualifiedLandInMaintenance(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(10)
	// expire one signalling cert, add one emergency job
	snap.Certificates[3][1].ValidTo = testDate.AddDate(0, 0, -5)
	snap.JobCards[7] = []model.JobCard{{ID: 700, TrainsetID: 7, Priority: model.JobPriorityEmergency, Status: model.JobOpen}}

	sched, err := e.Generate(context.Background(), snap, genRequest(6))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	inMaint := map[int]bool{}
	for _, en := range sched.MaintenanceList {
		inMaint[en.TrainsetID] = true
	}
	if !inMaint[3] || !inMaint[7] {
		t.Fatalf("trainsets 3 and 7 must be in maintenance, got %v", inMaint)
	}
	for _, en := range append(sched.InductionList, sched.StandbyList...) {
		if en.TrainsetID == 3 || en.TrainsetID == 7 {
			t.Fatalf("disqualified trainset %d inducted or on standby", en.TrainsetID)
		}
	}
}

func TestGenerateShortfallIsWarningNotError(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(10)

	sched, err := e.Generate(context.Background(), snap, genRequest(25))
	if err != nil {
		t.Fatalf("shortfall must not error: %v", err)
	}
	if len(sched.InductionList) != 10 {
		t.Fatalf("expected all 10 eligible inducted, got %d", len(sched.InductionList))
	}
	if sched.Summary.Coverage >= 100 {
		t.Fatalf("coverage must reflect the gap, got %v", sched.Summary.Coverage)
	}
	if len(sched.Reasoning.Alerts) == 0 {
		t.Fatalf("expected an insufficient-fleet alert")
	}
}

func TestGenerateGreedyStrategyHonored(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(12)
	req := genRequest(8)
	req.Strategy = "greedy"

	sched, err := e.Generate(context.Background(), snap, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sched.Strategy != "greedy" {
		t.Fatalf("strategy = %q, want greedy", sched.Strategy)
	}
}

func TestGenerateExactReportsOptimal(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(12)

	sched, err := e.Generate(context.Background(), snap, genRequest(6))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sched.Strategy != "exact" || sched.SolutionStatus != model.SolveOptimal {
		t.Fatalf("expected exact/OPTIMAL, got %s/%s", sched.Strategy, sched.SolutionStatus)
	}
	for _, en := range sched.InductionList {
		if en.Bay == "" {
			t.Fatalf("inducted trainset %d has no bay", en.TrainsetID)
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	e := NewEngine(config.Default(), nil)
	snap := fleetSnapshot(5)

	req := genRequest(3)
	req.TargetDate = "not-a-date"
	if _, err := e.Generate(context.Background(), snap, req); err == nil {
		t.Fatalf("expected error for malformed date")
	}

	req = genRequest(0)
	if _, err := e.Generate(context.Background(), snap, req); err == nil {
		t.Fatalf("expected error for zero required count")
	}
}

func TestValidateConstraints(t *testing.T) {
	res := ValidateConstraints(model.Constraints{RequiredTrainsets: 18, MaxStandby: 5, MaxMaintenance: 7}, 30)
	if !res.Valid || len(res.Warnings) != 0 {
		t.Fatalf("sane constraints should validate cleanly, got %+v", res)
	}

	res = ValidateConstraints(model.Constraints{RequiredTrainsets: 0}, 30)
	if res.Valid {
		t.Fatalf("zero required must be invalid")
	}

	res = ValidateConstraints(model.Constraints{RequiredTrainsets: 40, MaxStandby: 5}, 30)
	if !res.Valid || len(res.Warnings) == 0 {
		t.Fatalf("oversubscribed fleet should warn but stay valid, got %+v", res)
	}
}
