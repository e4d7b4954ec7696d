package opt

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"metrosched/internal/config"
	"metrosched/internal/metrics"
	"metrosched/internal/model"
)

// Engine runs the full induction pipeline: concurrent criterion scoring,
// eligibility filtering, selection (exact with greedy fallback), and schedule
// assembly. An Engine is safe for concurrent use; every run works on its own
// snapshot.
type Engine struct {
	Policy  config.Policy
	Log     *logrus.Logger
	Workers int
}

func NewEngine(p config.Policy, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{Policy: p, Log: log, Workers: runtime.NumCPU()}
}

// ScoreAll scores every trainset in the snapshot across a worker pool.
// Scoring is independent per trainset; results come back in input order.
func (e *Engine) ScoreAll(snap *model.Snapshot, date time.Time) []Scored {
	criteria := Criteria(e.Policy)
	out := make([]Scored, len(snap.Trainsets))
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(snap.Trainsets) {
		workers = len(snap.Trainsets)
	}
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				out[i] = ScoreTrainset(snap.Trainsets[i], snap, date, e.Policy, criteria)
			}
		}()
	}
	for i := range snap.Trainsets {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return out
}

// Generate produces the schedule for one target date. It never returns an
// error for infeasibility or shortfall; those surface as warnings and a
// coverage gap. Only malformed input errors out.
func (e *Engine) Generate(ctx context.Context, snap *model.Snapshot, req model.GenerateRequest) (model.Schedule, error) {
	date, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		return model.Schedule{}, fmt.Errorf("invalid targetDate %q: %w", req.TargetDate, err)
	}
	if req.Constraints.RequiredTrainsets <= 0 {
		return model.Schedule{}, fmt.Errorf("requiredTrainsets must be > 0")
	}

	started := time.Now()
	scored := e.ScoreAll(snap, date)
	eligible, disqualified := SplitEligible(scored)

	sel := e.selectStrategy(ctx, req, eligible, snap.Bays)

	sched := e.assemble(req, sel, disqualified, len(snap.Trainsets))
	metrics.SolveDuration.WithLabelValues(sel.Strategy).Observe(time.Since(started).Seconds())
	metrics.ScheduleCoverage.Set(sched.Summary.Coverage)
	e.Log.WithFields(logrus.Fields{
		"date":     req.TargetDate,
		"strategy": sel.Strategy,
		"status":   sel.Status,
		"coverage": sched.Summary.Coverage,
		"took":     time.Since(started).String(),
	}).Info("schedule generated")
	return sched, nil
}

// selectStrategy runs the requested strategy, degrading from exact to greedy
// on infeasibility or timeout. The greedy path always yields a schedule.
func (e *Engine) selectStrategy(ctx context.Context, req model.GenerateRequest, eligible []Scored, bays []model.StablingBay) Selection {
	if req.Strategy == "greedy" {
		return SelectGreedy(eligible, bays, req.Constraints, e.Policy)
	}
	if req.Constraints.RequiredTrainsets > len(eligible) {
		// exact needs exactly N; a shortfall is a coverage gap, not an error
		sel := SelectGreedy(eligible, bays, req.Constraints, e.Policy)
		return sel
	}
	timeout := time.Duration(e.Policy.SolverTimeoutMs) * time.Millisecond
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sel, stats, err := SolveExact(solveCtx, eligible, bays, req.Constraints, e.Policy)
	RecordSolve(req.TenantID, req.TargetDate, "exact", stats)
	if err != nil {
		metrics.SolverFallbacks.Inc()
		e.Log.WithFields(logrus.Fields{
			"date":  req.TargetDate,
			"nodes": stats.Nodes,
			"cause": err.Error(),
		}).Warn("exact solver unavailable, using greedy fallback")
		sel = SelectGreedy(eligible, bays, req.Constraints, e.Policy)
		sel.FellBack = true
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("exact solver fell back to greedy: %s", err.Error()))
	}
	return sel
}

func (e *Engine) assemble(req model.GenerateRequest, sel Selection, disqualified []Scored, fleetSize int) model.Schedule {
	sched := model.Schedule{
		ID:             uuid.New().String(),
		TenantID:       req.TenantID,
		TargetDate:     req.TargetDate,
		Status:         "generated",
		Strategy:       sel.Strategy,
		SolutionStatus: sel.Status,
		ObjectiveValue: sel.Objective,
		GeneratedAt:    time.Now().UTC(),
	}

	for _, s := range sel.Induction {
		entry := entryFor(s)
		if b, ok := sel.Bays[s.Trainset.ID]; ok {
			entry.Bay = b.Name
		}
		sched.InductionList = append(sched.InductionList, entry)
	}
	for _, s := range sel.Standby {
		sched.StandbyList = append(sched.StandbyList, entryFor(s))
	}
	// maintenance is a catch-all: disqualified first, then unselected surplus;
	// the cap is reporting guidance and never excludes a trainset
	maint := append(append([]Scored(nil), disqualified...), sel.Surplus...)
	sort.Slice(maint, func(i, j int) bool { return maint[i].Trainset.ID < maint[j].Trainset.ID })
	for _, s := range maint {
		sched.MaintenanceList = append(sched.MaintenanceList, entryFor(s))
	}

	required := req.Constraints.RequiredTrainsets
	coverage := math.Round(float64(len(sched.InductionList)) / float64(required) * 100)
	if coverage > 100 {
		coverage = 100
	}
	sched.Summary = model.ScheduleSummary{
		TotalAvailable:   fleetSize,
		TotalRequired:    required,
		TotalStandby:     len(sched.StandbyList),
		TotalMaintenance: len(sched.MaintenanceList),
		Coverage:         coverage,
	}
	sched.Reasoning = e.reasoning(req, sel, disqualified, sched)
	return sched
}

func entryFor(s Scored) model.ScheduleEntry {
	reasons := s.Reasons
	if len(reasons) == 0 {
		reasons = []string{}
	}
	return model.ScheduleEntry{
		TrainsetID: s.Trainset.ID,
		RakeNumber: s.Trainset.RakeNumber,
		Score:      math.Round(s.Composite*100) / 100,
		Reasons:    reasons,
	}
}

func (e *Engine) reasoning(req model.GenerateRequest, sel Selection, disqualified []Scored, sched model.Schedule) model.ScheduleReasoning {
	r := model.ScheduleReasoning{
		KeyFactors:      []string{},
		Recommendations: []string{},
		Alerts:          []string{},
	}
	r.OptimizationSummary = fmt.Sprintf(
		"%s strategy selected %d of %d required trainsets (%s, objective %.1f)",
		sel.Strategy, len(sched.InductionList), req.Constraints.RequiredTrainsets, sel.Status, sel.Objective)

	w := e.Policy.Weights
	r.KeyFactors = append(r.KeyFactors,
		fmt.Sprintf("fitness certificates weighted %.0f%%, job cards %.0f%%", w.Fitness*100, w.JobCards*100),
		fmt.Sprintf("branding %.0f%%, mileage balance %.0f%%, cleaning %.0f%%, stabling %.0f%%",
			w.Branding*100, w.Mileage*100, w.Cleaning*100, w.Stabling*100))
	if len(disqualified) > 0 {
		r.KeyFactors = append(r.KeyFactors, fmt.Sprintf("%d trainsets disqualified by hard rules", len(disqualified)))
	}

	if sched.Summary.Coverage < 100 {
		r.Alerts = append(r.Alerts, fmt.Sprintf(
			"insufficient eligible trainsets: %d inducted of %d required (coverage %.0f%%)",
			len(sched.InductionList), req.Constraints.RequiredTrainsets, sched.Summary.Coverage))
		r.Recommendations = append(r.Recommendations, "expedite certificate renewals or job-card closures to restore coverage")
	}
	if req.Constraints.MaxMaintenance > 0 && len(sched.MaintenanceList) > req.Constraints.MaxMaintenance {
		r.Alerts = append(r.Alerts, fmt.Sprintf(
			"maintenance list (%d) exceeds the planned capacity of %d",
			len(sched.MaintenanceList), req.Constraints.MaxMaintenance))
	}
	for _, warn := range sel.Warnings {
		r.Alerts = append(r.Alerts, warn)
	}
	expiring := 0
	for _, s := range sel.Induction {
		if sub, ok := s.Subs["fitness"]; ok && sub.Score < 100 && !sub.Disqualify {
			expiring++
		}
	}
	if expiring > 0 {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf("%d inducted trainsets have certificates inside the expiry window; schedule renewals", expiring))
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = append(r.Recommendations, "fleet posture nominal; no action required")
	}
	return r
}

// ValidateConstraints flags internally inconsistent constraint combinations
// before a run is attempted. Invalid means the run would be rejected;
// warnings describe combinations that run but degrade.
func ValidateConstraints(cons model.Constraints, fleetSize int) model.ValidationResult {
	res := model.ValidationResult{Valid: true, Warnings: []string{}}
	if cons.RequiredTrainsets <= 0 {
		res.Valid = false
		res.Warnings = append(res.Warnings, "requiredTrainsets must be > 0")
	}
	if cons.MaxStandby < 0 {
		res.Valid = false
		res.Warnings = append(res.Warnings, "maxStandby must be >= 0")
	}
	if cons.MaxMaintenance < 0 {
		res.Valid = false
		res.Warnings = append(res.Warnings, "maxMaintenance must be >= 0")
	}
	if cons.RequiredTrainsets > fleetSize {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"requiredTrainsets (%d) exceeds fleet size (%d); coverage will fall short", cons.RequiredTrainsets, fleetSize))
	}
	if cons.RequiredTrainsets+cons.MaxStandby > fleetSize {
		res.Warnings = append(res.Warnings, "required plus standby targets exceed fleet size")
	}
	return res
}
