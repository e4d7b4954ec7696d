// Package sim runs what-if scenarios for contingency planning. Every run
// works on a deep copy of the fleet snapshot; persisted data and the live
// scheduling path are never touched.
package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"metrosched/internal/model"
	"metrosched/internal/opt"
)

// Coverage-delta thresholds (percentage points) for the impact buckets.
const (
	moderateImpactPts = 5.0
	highImpactPts     = 15.0
)

type Simulator struct {
	Engine *opt.Engine
}

func New(e *opt.Engine) *Simulator { return &Simulator{Engine: e} }

// Run executes the full pipeline against both the unmodified baseline and a
// mutated copy of the snapshot, then diffs the two schedules.
func (s *Simulator) Run(ctx context.Context, snap *model.Snapshot, baseCons model.Constraints, sc model.Scenario) (model.SimulationResult, error) {
	date, err := time.Parse("2006-01-02", sc.TargetDate)
	if err != nil {
		return model.SimulationResult{}, fmt.Errorf("invalid targetDate %q: %w", sc.TargetDate, err)
	}

	cons := baseCons
	if sc.Constraints != nil {
		cons = *sc.Constraints
	}

	baseline, err := s.Engine.Generate(ctx, snap, model.GenerateRequest{
		TargetDate:  sc.TargetDate,
		Constraints: baseCons,
	})
	if err != nil {
		return model.SimulationResult{}, err
	}

	mutated := snap.Clone()
	applyModifications(mutated, sc.Modifications, date)

	scenario, err := s.Engine.Generate(ctx, mutated, model.GenerateRequest{
		TargetDate:  sc.TargetDate,
		Constraints: cons,
	})
	if err != nil {
		return model.SimulationResult{}, err
	}

	return model.SimulationResult{
		ScenarioID: uuid.New().String(),
		Schedule:   scenario,
		Baseline:   baseline,
		Impact:     diff(baseline, scenario),
	}, nil
}

// applyModifications injects the scenario's synthetic deltas into the cloned
// snapshot. Explicit trainset targets win; otherwise targets are taken in
// ascending id order so scenario runs stay deterministic.
func applyModifications(snap *model.Snapshot, mods model.Modifications, date time.Time) {
	targets := mods.TrainsetIDs
	if len(targets) == 0 {
		ids := make([]int, 0, len(snap.Trainsets))
		for _, t := range snap.Trainsets {
			ids = append(ids, t.ID)
		}
		sort.Ints(ids)
		targets = ids
	}

	for i := 0; i < mods.ExpireCertificates && i < len(targets); i++ {
		id := targets[i]
		certs := snap.Certificates[id]
		expired := false
		for ci := range certs {
			if certs[ci].Type == model.CertRollingStock {
				certs[ci].ValidTo = date.AddDate(0, 0, -1)
				expired = true
			}
		}
		if !expired {
			snap.Certificates[id] = append(certs, model.FitnessCertificate{
				TrainsetID: id,
				Type:       model.CertRollingStock,
				ValidFrom:  date.AddDate(0, -6, 0),
				ValidTo:    date.AddDate(0, 0, -1),
			})
		}
	}
	for i := 0; i < mods.InjectEmergencyJobs && i < len(targets); i++ {
		id := targets[i]
		snap.JobCards[id] = append(snap.JobCards[id], model.JobCard{
			TrainsetID: id,
			Type:       "simulated_failure",
			Priority:   model.JobPriorityEmergency,
			Status:     model.JobOpen,
			DueDate:    date,
		})
	}
	for i := 0; i < mods.HoldForCleaning && i < len(targets); i++ {
		id := targets[i]
		snap.Cleaning[id] = append(snap.Cleaning[id], model.CleaningSlot{
			TrainsetID: id,
			Status:     model.CleaningInProgress,
			StartsAt:   date.Add(-2 * time.Hour),
			EndsAt:     date.Add(22 * time.Hour),
		})
	}
}

// diff counts list-membership changes between baseline and scenario and
// buckets the coverage swing.
func diff(baseline, scenario model.Schedule) model.ImpactAnalysis {
	before := baseline.Members()
	after := scenario.Members()
	changed := 0
	for id, list := range before {
		if after[id] != list {
			changed++
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			changed++
		}
	}
	delta := scenario.Summary.Coverage - baseline.Summary.Coverage
	impact := model.ImpactLow
	switch {
	case math.Abs(delta) >= highImpactPts:
		impact = model.ImpactHigh
	case math.Abs(delta) >= moderateImpactPts:
		impact = model.ImpactModerate
	}
	return model.ImpactAnalysis{
		TrainsetsChanged:  changed,
		CoverageDelta:     delta,
		PerformanceImpact: impact,
	}
}
