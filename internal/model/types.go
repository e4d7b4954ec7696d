package model

import "time"

// Core domain types for the induction planner. All snapshot entities are
// owned by upstream systems; the optimizer reads them and emits decisions.

// Trainset lifecycle statuses.
const (
	StatusInService   = "in_service"
	StatusStandby     = "standby"
	StatusMaintenance = "maintenance"
	StatusCritical    = "critical"
)

// Fitness certificate types. A trainset needs a valid certificate of every
// required type before it may enter passenger service.
const (
	CertRollingStock = "rolling_stock"
	CertSignalling   = "signalling"
	CertTelecom      = "telecom"
)

// RequiredCertTypes lists the certificate types checked for service eligibility.
var RequiredCertTypes = []string{CertRollingStock, CertSignalling, CertTelecom}

// Certificate derived statuses relative to the target date.
const (
	CertValid    = "valid"
	CertExpiring = "expiring"
	CertExpired  = "expired"
)

// Job card priorities and statuses.
const (
	JobPriorityLow       = "low"
	JobPriorityMedium    = "medium"
	JobPriorityHigh      = "high"
	JobPriorityEmergency = "emergency"

	JobOpen       = "open"
	JobInProgress = "in_progress"
	JobClosed     = "closed"
)

// Branding campaign priorities.
const (
	BrandingCritical = "critical"
	BrandingNormal   = "normal"
)

// Cleaning slot statuses.
const (
	CleaningScheduled  = "scheduled"
	CleaningInProgress = "in_progress"
	CleaningCompleted  = "completed"
	CleaningOverdue    = "overdue"
)

type Trainset struct {
	ID               int       `json:"id"`
	RakeNumber       string    `json:"rakeNumber"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	Model            string    `json:"model,omitempty"`
	CommissionedYear int       `json:"commissionedYear,omitempty"`
	Depot            string    `json:"depot"`
	Status           string    `json:"status"`
	MileageKM        float64   `json:"mileageKm"`
	LastCleanedAt    time.Time `json:"lastCleanedAt,omitempty"`
	BrandingPriority int       `json:"brandingPriority,omitempty"` // 1..10
	BayOccupied      bool      `json:"bayOccupied,omitempty"`
}

type FitnessCertificate struct {
	ID         int       `json:"id"`
	TrainsetID int       `json:"trainsetId"`
	Type       string    `json:"type"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidTo    time.Time `json:"validTo"`
}

// StatusAt derives valid/expiring/expired for a certificate relative to now,
// using warnDays as the expiring window.
func (c FitnessCertificate) StatusAt(now time.Time, warnDays int) string {
	if !c.ValidTo.After(now) || c.ValidFrom.After(now) {
		return CertExpired
	}
	if c.ValidTo.Before(now.AddDate(0, 0, warnDays)) {
		return CertExpiring
	}
	return CertValid
}

type JobCard struct {
	ID         int       `json:"id"`
	TrainsetID int       `json:"trainsetId"`
	Type       string    `json:"type,omitempty"`
	Priority   string    `json:"priority"`
	PriorityN  int       `json:"priorityNum,omitempty"` // 1..5 numeric scale, optional
	Status     string    `json:"status"`
	DueDate    time.Time `json:"dueDate,omitempty"`
}

// OpenAndBlocking reports whether the job card keeps a trainset out of
// service: any non-closed card at emergency priority, or at or above
// criticalMin on the numeric scale.
func (j JobCard) OpenAndBlocking(criticalMin int) bool {
	if j.Status == JobClosed {
		return false
	}
	return j.Priority == JobPriorityEmergency || (j.PriorityN > 0 && j.PriorityN >= criticalMin)
}

type BrandingCampaign struct {
	ID            int       `json:"id"`
	TrainsetID    int       `json:"trainsetId"`
	Advertiser    string    `json:"advertiser,omitempty"`
	Priority      string    `json:"priority"`
	TargetHours   float64   `json:"targetHours"`
	AchievedHours float64   `json:"achievedHours"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
}

// ShortfallHours returns the remaining exposure owed to the advertiser.
func (b BrandingCampaign) ShortfallHours() float64 {
	d := b.TargetHours - b.AchievedHours
	if d < 0 {
		return 0
	}
	return d
}

type MileageRecord struct {
	TrainsetID   int     `json:"trainsetId"`
	CumulativeKM float64 `json:"cumulativeKm"`
	BrakeWearPct float64 `json:"brakeWearPct"` // 0..100, higher is more worn
	BogieWearPct float64 `json:"bogieWearPct"` // 0..100
	HVACHours    float64 `json:"hvacHours"`
}

type CleaningSlot struct {
	ID         int       `json:"id"`
	TrainsetID int       `json:"trainsetId"`
	Status     string    `json:"status"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
}

// Covers reports whether the slot window overlaps the given date (day granularity).
func (s CleaningSlot) Covers(date time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)
	return s.StartsAt.Before(next) && s.EndsAt.After(day)
}

type StablingBay struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Depot        string  `json:"depot"`
	Position     int     `json:"position"`
	Occupied     bool    `json:"occupied"`
	ShuntingCost float64 `json:"shuntingCost"`
	TrainsetID   int     `json:"trainsetId,omitempty"` // current occupant, 0 if none
}

// Snapshot is the immutable fleet state an optimization run works on.
// Related records are keyed by trainset id.
type Snapshot struct {
	TakenAt      time.Time                    `json:"takenAt"`
	Trainsets    []Trainset                   `json:"trainsets"`
	Certificates map[int][]FitnessCertificate `json:"certificates"`
	JobCards     map[int][]JobCard            `json:"jobCards"`
	Branding     map[int][]BrandingCampaign   `json:"branding"`
	Mileage      map[int]MileageRecord        `json:"mileage"`
	Cleaning     map[int][]CleaningSlot       `json:"cleaning"`
	Bays         []StablingBay                `json:"bays"`
}

// Clone deep-copies the snapshot so simulations can mutate it freely.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		TakenAt:      s.TakenAt,
		Trainsets:    append([]Trainset(nil), s.Trainsets...),
		Certificates: make(map[int][]FitnessCertificate, len(s.Certificates)),
		JobCards:     make(map[int][]JobCard, len(s.JobCards)),
		Branding:     make(map[int][]BrandingCampaign, len(s.Branding)),
		Mileage:      make(map[int]MileageRecord, len(s.Mileage)),
		Cleaning:     make(map[int][]CleaningSlot, len(s.Cleaning)),
		Bays:         append([]StablingBay(nil), s.Bays...),
	}
	for k, v := range s.Certificates {
		out.Certificates[k] = append([]FitnessCertificate(nil), v...)
	}
	for k, v := range s.JobCards {
		out.JobCards[k] = append([]JobCard(nil), v...)
	}
	for k, v := range s.Branding {
		out.Branding[k] = append([]BrandingCampaign(nil), v...)
	}
	for k, v := range s.Mileage {
		out.Mileage[k] = v
	}
	for k, v := range s.Cleaning {
		out.Cleaning[k] = append([]CleaningSlot(nil), v...)
	}
	return out
}

// FleetMeanMileage is the mean cumulative mileage across the snapshot,
// preferring mileage records and falling back to the trainset odometer.
func (s *Snapshot) FleetMeanMileage() float64 {
	if len(s.Trainsets) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range s.Trainsets {
		if m, ok := s.Mileage[t.ID]; ok {
			total += m.CumulativeKM
		} else {
			total += t.MileageKM
		}
	}
	return total / float64(len(s.Trainsets))
}

// Constraints are the target counts for one generation run.
type Constraints struct {
	RequiredTrainsets int `json:"requiredTrainsets"`
	MaxStandby        int `json:"maxStandby"`
	MaxMaintenance    int `json:"maxMaintenance"`
}

type GenerateRequest struct {
	TenantID    string      `json:"tenantId,omitempty"`
	TargetDate  string      `json:"targetDate"` // YYYY-MM-DD
	Constraints Constraints `json:"constraints"`
	Strategy    string      `json:"strategy,omitempty"` // exact, greedy; empty = exact with fallback
	TimeoutMs   int         `json:"timeoutMs,omitempty"`
}

// ScheduleEntry is one trainset's placement with its score and rationale.
type ScheduleEntry struct {
	TrainsetID int      `json:"trainsetId"`
	RakeNumber string   `json:"rakeNumber"`
	Score      float64  `json:"score"`
	Bay        string   `json:"bay,omitempty"` // induction entries only
	Reasons    []string `json:"reasoning"`
}

type ScheduleSummary struct {
	TotalAvailable   int     `json:"total_available"`
	TotalRequired    int     `json:"total_required"`
	TotalStandby     int     `json:"total_standby"`
	TotalMaintenance int     `json:"total_maintenance"`
	Coverage         float64 `json:"coverage"` // percent, informationally capped at 100
}

type ScheduleReasoning struct {
	OptimizationSummary string   `json:"optimization_summary"`
	KeyFactors          []string `json:"key_factors"`
	Recommendations     []string `json:"recommendations"`
	Alerts              []string `json:"alerts"`
}

// Solver statuses reported by the exact strategy.
const (
	SolveOptimal    = "OPTIMAL"
	SolveFeasible   = "FEASIBLE"
	SolveInfeasible = "INFEASIBLE"
)

// Schedule is the output contract of one generation run. Regenerating for the
// same date overwrites the previously persisted schedule.
type Schedule struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenantId,omitempty"`
	TargetDate      string            `json:"date"`
	Status          string            `json:"status"`
	Strategy        string            `json:"strategy"`
	SolutionStatus  string            `json:"solutionStatus"`
	ObjectiveValue  float64           `json:"objectiveValue"`
	InductionList   []ScheduleEntry   `json:"induction_list"`
	StandbyList     []ScheduleEntry   `json:"standby_list"`
	MaintenanceList []ScheduleEntry   `json:"maintenance_list"`
	Summary         ScheduleSummary   `json:"summary"`
	Reasoning       ScheduleReasoning `json:"reasoning"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// Members returns every trainset id in the schedule keyed to its list name.
func (s *Schedule) Members() map[int]string {
	out := make(map[int]string, len(s.InductionList)+len(s.StandbyList)+len(s.MaintenanceList))
	for _, e := range s.InductionList {
		out[e.TrainsetID] = StatusInService
	}
	for _, e := range s.StandbyList {
		out[e.TrainsetID] = StatusStandby
	}
	for _, e := range s.MaintenanceList {
		out[e.TrainsetID] = StatusMaintenance
	}
	return out
}

// Scenario describes a what-if run: synthetic deltas applied to a copy of the
// snapshot, never to live records.
type Scenario struct {
	Name          string        `json:"name,omitempty"`
	TargetDate    string        `json:"targetDate"`
	Constraints   *Constraints  `json:"constraints,omitempty"` // nil = baseline constraints
	Modifications Modifications `json:"modifications"`
}

type Modifications struct {
	ExpireCertificates  int   `json:"expireCertificates,omitempty"` // N additional expired rolling-stock certs
	InjectEmergencyJobs int   `json:"injectEmergencyJobs,omitempty"`
	HoldForCleaning     int   `json:"holdForCleaning,omitempty"`
	TrainsetIDs         []int `json:"trainsetIds,omitempty"` // explicit targets; defaults to lowest ids first
}

// Performance impact buckets for simulations.
const (
	ImpactLow      = "low"
	ImpactModerate = "moderate"
	ImpactHigh     = "high"
)

type ImpactAnalysis struct {
	TrainsetsChanged  int     `json:"trainsetsChanged"`
	CoverageDelta     float64 `json:"coverageDelta"` // points, scenario minus baseline
	PerformanceImpact string  `json:"performance_impact"`
}

type SimulationResult struct {
	ScenarioID string         `json:"scenarioId"`
	Schedule   Schedule       `json:"schedule"`
	Baseline   Schedule       `json:"baseline"`
	Impact     ImpactAnalysis `json:"impact_analysis"`
}

type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
}

// Analytics read models.
type PerformanceAnalytics struct {
	TotalSchedules  int     `json:"total_schedules"`
	AverageCoverage float64 `json:"average_coverage"`
}

type TrainsetAnalytics struct {
	TrainsetID       int    `json:"trainsetId"`
	TotalAppearances int    `json:"total_appearances"`
	InductionCount   int    `json:"induction_count"`
	StandbyCount     int    `json:"standby_count"`
	MaintenanceCount int    `json:"maintenance_count"`
	PerformanceTrend string `json:"performance_trend"` // improving, stable, declining
}

// Webhook subscription models for the notification layer.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
