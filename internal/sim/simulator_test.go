package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrosched/internal/config"
	"metrosched/internal/model"
	"metrosched/internal/opt"
	"metrosched/internal/store"
)

func testSetup(t *testing.T) (*Simulator, *model.Snapshot) {
	t.Helper()
	snap := store.SeedFleet(20, time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC))
	return New(opt.NewEngine(config.Default(), nil)), snap
}

func baseConstraints() model.Constraints {
	return model.Constraints{RequiredTrainsets: 10, MaxStandby: 4, MaxMaintenance: 6}
}

func TestRunLeavesSnapshotUntouched(t *testing.T) {
	s, snap := testSetup(t)
	before := snap.Clone()

	_, err := s.Run(context.Background(), snap, baseConstraints(), model.Scenario{
		TargetDate:    "2026-09-02",
		Modifications: model.Modifications{ExpireCertificates: 3, InjectEmergencyJobs: 2, HoldForCleaning: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, before.Trainsets, snap.Trainsets)
	assert.Equal(t, before.Certificates, snap.Certificates)
	assert.Equal(t, before.JobCards, snap.JobCards)
	assert.Equal(t, before.Cleaning, snap.Cleaning)
}

func TestRunProducesBaselineAndScenario(t *testing.T) {
	s, snap := testSetup(t)

	res, err := s.Run(context.Background(), snap, baseConstraints(), model.Scenario{
		Name:          "mass cert expiry",
		TargetDate:    "2026-09-02",
		Modifications: model.Modifications{ExpireCertificates: 6},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ScenarioID)
	assert.NotEmpty(t, res.Baseline.InductionList)
	// expiring certificates can only shrink the eligible pool
	assert.LessOrEqual(t, res.Schedule.Summary.Coverage, res.Baseline.Summary.Coverage)
}

func TestRunTargetsExplicitTrainsets(t *testing.T) {
	s, snap := testSetup(t)

	// target two trainsets the baseline inducts
	base, err := s.Engine.Generate(context.Background(), snap, model.GenerateRequest{
		TargetDate: "2026-09-02", Constraints: baseConstraints(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, base.InductionList)
	targets := []int{base.InductionList[0].TrainsetID, base.InductionList[1].TrainsetID}

	res, err := s.Run(context.Background(), snap, baseConstraints(), model.Scenario{
		TargetDate: "2026-09-02",
		Modifications: model.Modifications{
			InjectEmergencyJobs: 2,
			TrainsetIDs:         targets,
		},
	})
	require.NoError(t, err)

	members := res.Schedule.Members()
	for _, id := range targets {
		assert.Equal(t, model.StatusMaintenance, members[id], "trainset %d should drop to maintenance", id)
	}
	assert.GreaterOrEqual(t, res.Impact.TrainsetsChanged, 2)
}

func TestRunConstraintOverride(t *testing.T) {
	s, snap := testSetup(t)

	over := model.Constraints{RequiredTrainsets: 14, MaxStandby: 2, MaxMaintenance: 6}
	res, err := s.Run(context.Background(), snap, baseConstraints(), model.Scenario{
		TargetDate:  "2026-09-02",
		Constraints: &over,
	})
	require.NoError(t, err)
	assert.Equal(t, 14, res.Schedule.Summary.TotalRequired)
	assert.Equal(t, 10, res.Baseline.Summary.TotalRequired)
}

func TestRunRejectsBadDate(t *testing.T) {
	s, snap := testSetup(t)
	_, err := s.Run(context.Background(), snap, baseConstraints(), model.Scenario{TargetDate: "02-09-2026"})
	assert.Error(t, err)
}

func TestImpactBuckets(t *testing.T) {
	mk := func(cov float64) model.Schedule {
		return model.Schedule{Summary: model.ScheduleSummary{Coverage: cov}}
	}
	assert.Equal(t, model.ImpactLow, diff(mk(100), mk(98)).PerformanceImpact)
	assert.Equal(t, model.ImpactModerate, diff(mk(100), mk(92)).PerformanceImpact)
	assert.Equal(t, model.ImpactHigh, diff(mk(100), mk(80)).PerformanceImpact)
	assert.Equal(t, -20.0, diff(mk(100), mk(80)).CoverageDelta)
}
