// Package analytics derives read models from persisted schedules.
package analytics

import (
	"math"

	"metrosched/internal/model"
)

// Performance aggregates fleet-wide outcomes across schedules.
func Performance(schedules []model.Schedule) model.PerformanceAnalytics {
	out := model.PerformanceAnalytics{TotalSchedules: len(schedules)}
	if len(schedules) == 0 {
		return out
	}
	total := 0.0
	for _, s := range schedules {
		total += s.Summary.Coverage
	}
	out.AverageCoverage = math.Round(total/float64(len(schedules))*100) / 100
	return out
}

// trendWindow is how many recent schedules the trend comparison looks at.
const trendWindow = 7

// Trainset counts one trainset's list appearances and classifies its
// placement trend. Schedules are expected oldest first; the trend compares
// induction frequency in the most recent window against the rest of the
// history.
func Trainset(id int, schedules []model.Schedule) model.TrainsetAnalytics {
	out := model.TrainsetAnalytics{TrainsetID: id, PerformanceTrend: "stable"}
	inducted := make([]bool, 0, len(schedules))
	for _, s := range schedules {
		list, ok := s.Members()[id]
		if !ok {
			continue
		}
		out.TotalAppearances++
		switch list {
		case model.StatusInService:
			out.InductionCount++
		case model.StatusStandby:
			out.StandbyCount++
		case model.StatusMaintenance:
			out.MaintenanceCount++
		}
		inducted = append(inducted, list == model.StatusInService)
	}
	out.PerformanceTrend = trend(inducted)
	return out
}

func trend(inducted []bool) string {
	if len(inducted) <= trendWindow {
		return "stable"
	}
	recent := inducted[len(inducted)-trendWindow:]
	earlier := inducted[:len(inducted)-trendWindow]
	rr := rate(recent)
	er := rate(earlier)
	switch {
	case rr > er+0.15:
		return "improving"
	case rr < er-0.15:
		return "declining"
	default:
		return "stable"
	}
}

func rate(v []bool) float64 {
	if len(v) == 0 {
		return 0
	}
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return float64(n) / float64(len(v))
}
