package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"metrosched/internal/model"
)

func scheduleWith(id int, list string, coverage float64) model.Schedule {
	s := model.Schedule{Summary: model.ScheduleSummary{Coverage: coverage}}
	e := model.ScheduleEntry{TrainsetID: id}
	switch list {
	case model.StatusInService:
		s.InductionList = append(s.InductionList, e)
	case model.StatusStandby:
		s.StandbyList = append(s.StandbyList, e)
	case model.StatusMaintenance:
		s.MaintenanceList = append(s.MaintenanceList, e)
	}
	return s
}

func TestPerformanceEmpty(t *testing.T) {
	out := Performance(nil)
	assert.Equal(t, 0, out.TotalSchedules)
	assert.Equal(t, 0.0, out.AverageCoverage)
}

func TestPerformanceAverageRounds(t *testing.T) {
	out := Performance([]model.Schedule{
		scheduleWith(1, model.StatusInService, 100),
		scheduleWith(1, model.StatusInService, 85),
		scheduleWith(1, model.StatusInService, 92),
	})
	assert.Equal(t, 3, out.TotalSchedules)
	assert.Equal(t, 92.33, out.AverageCoverage)
}

func TestTrainsetCountsLists(t *testing.T) {
	hist := []model.Schedule{
		scheduleWith(4, model.StatusInService, 100),
		scheduleWith(4, model.StatusStandby, 100),
		scheduleWith(4, model.StatusInService, 100),
		scheduleWith(4, model.StatusMaintenance, 100),
		scheduleWith(9, model.StatusInService, 100), // different trainset, ignored
	}
	out := Trainset(4, hist)
	assert.Equal(t, 4, out.TotalAppearances)
	assert.Equal(t, 2, out.InductionCount)
	assert.Equal(t, 1, out.StandbyCount)
	assert.Equal(t, 1, out.MaintenanceCount)
	assert.Equal(t, "stable", out.PerformanceTrend)
}

func history(id int, lists ...string) []model.Schedule {
	out := make([]model.Schedule, 0, len(lists))
	for _, l := range lists {
		out = append(out, scheduleWith(id, l, 100))
	}
	return out
}

func TestTrainsetTrendImproving(t *testing.T) {
	// 3 earlier maintenance runs, then 7 straight inductions
	hist := history(2,
		model.StatusMaintenance, model.StatusMaintenance, model.StatusMaintenance,
		model.StatusInService, model.StatusInService, model.StatusInService,
		model.StatusInService, model.StatusInService, model.StatusInService,
		model.StatusInService,
	)
	assert.Equal(t, "improving", Trainset(2, hist).PerformanceTrend)
}

func TestTrainsetTrendDeclining(t *testing.T) {
	hist := history(2,
		model.StatusInService, model.StatusInService, model.StatusInService,
		model.StatusMaintenance, model.StatusMaintenance, model.StatusMaintenance,
		model.StatusMaintenance, model.StatusMaintenance, model.StatusMaintenance,
		model.StatusMaintenance,
	)
	assert.Equal(t, "declining", Trainset(2, hist).PerformanceTrend)
}

func TestTrainsetTrendNeedsHistory(t *testing.T) {
	// at or under the window size there is nothing to compare against
	hist := history(2,
		model.StatusMaintenance, model.StatusInService, model.StatusInService,
		model.StatusInService, model.StatusInService, model.StatusInService,
		model.StatusInService,
	)
	assert.Equal(t, "stable", Trainset(2, hist).PerformanceTrend)
}
