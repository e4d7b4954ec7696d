package opt

import (
	"fmt"
	"time"

	"metrosched/internal/config"
	"metrosched/internal/model"
)

// Result is one criterion's verdict for one trainset. Disqualify marks the
// trainset ineligible for service regardless of the composite score; Reason
// then carries the operator-facing explanation verbatim.
type Result struct {
	Score      float64
	Reasons    []string
	Disqualify bool
}

// Criterion scores one operational dimension of a trainset against the
// snapshot. Implementations are pure: no criterion reads another's output.
type Criterion interface {
	Name() string
	Weight(w config.Weights) float64
	Score(t model.Trainset, snap *model.Snapshot, date time.Time) Result
}

// Criteria returns the full scorer set for a policy, in composite order.
func Criteria(p config.Policy) []Criterion {
	return []Criterion{
		fitnessCriterion{warnDays: p.CertExpiryWarnDays},
		jobCardCriterion{criticalMin: p.JobPriorityCriticalMin},
		brandingCriterion{endgameDays: p.BrandingEndgameDays},
		mileageCriterion{},
		cleaningCriterion{staleDays: p.CleaningStaleDays},
		stablingCriterion{},
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// fitnessCriterion checks certificate coverage across all required types.
type fitnessCriterion struct {
	warnDays int
}

func (fitnessCriterion) Name() string                        { return "fitness" }
func (fitnessCriterion) Weight(w config.Weights) float64     { return w.Fitness }

func (c fitnessCriterion) Score(t model.Trainset, snap *model.Snapshot, date time.Time) Result {
	certs := snap.Certificates[t.ID]
	if len(certs) == 0 {
		return Result{
			Score:      0,
			Reasons:    []string{"no fitness certificates on file"},
			Disqualify: true,
		}
	}
	res := Result{Score: 100}
	nearest := 0.0
	nearestSet := false
	for _, typ := range model.RequiredCertTypes {
		best, ok := authoritativeCert(certs, typ, date)
		if !ok {
			res.Disqualify = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("missing %s certificate", typ))
			continue
		}
		switch best.StatusAt(date, c.warnDays) {
		case model.CertExpired:
			res.Disqualify = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s certificate expired on %s", typ, best.ValidTo.Format("2006-01-02")))
		case model.CertExpiring:
			days := best.ValidTo.Sub(date).Hours() / 24
			if !nearestSet || days < nearest {
				nearest = days
				nearestSet = true
			}
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s certificate expires in %d days", typ, int(days)))
		}
	}
	if res.Disqualify {
		res.Score = 0
		return res
	}
	if nearestSet {
		// linear decay toward the nearest expiry inside the warn window
		res.Score = clampScore(100 * nearest / float64(c.warnDays))
	} else {
		res.Reasons = append(res.Reasons, "all fitness certificates valid")
	}
	return res
}

// authoritativeCert picks the governing certificate for a type. A cert active
// at the date always beats an inactive one, so a renewal whose validity has
// not started yet cannot shadow the cert currently in force; within the same
// activity class the later expiry wins.
func authoritativeCert(certs []model.FitnessCertificate, typ string, date time.Time) (model.FitnessCertificate, bool) {
	active := func(c model.FitnessCertificate) bool {
		return !c.ValidFrom.After(date) && c.ValidTo.After(date)
	}
	var best model.FitnessCertificate
	found := false
	for _, c := range certs {
		if c.Type != typ {
			continue
		}
		switch {
		case !found:
			best = c
		case active(c) != active(best):
			if !active(c) {
				continue
			}
			best = c
		case c.ValidTo.After(best.ValidTo):
			best = c
		}
		found = true
	}
	return best, found
}

// jobCardCriterion penalizes open work orders by count and severity.
type jobCardCriterion struct {
	criticalMin int
}

func (jobCardCriterion) Name() string                    { return "jobCards" }
func (jobCardCriterion) Weight(w config.Weights) float64 { return w.JobCards }

func (c jobCardCriterion) Score(t model.Trainset, snap *model.Snapshot, date time.Time) Result {
	res := Result{Score: 100}
	open := 0
	penalty := 0.0
	for _, j := range snap.JobCards[t.ID] {
		if j.Status == model.JobClosed {
			continue
		}
		if j.OpenAndBlocking(c.criticalMin) {
			res.Disqualify = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("open %s-priority job card #%d", j.Priority, j.ID))
			continue
		}
		open++
		switch j.Priority {
		case model.JobPriorityHigh:
			penalty += 20
		case model.JobPriorityMedium:
			penalty += 10
		default:
			penalty += 5
		}
		if !j.DueDate.IsZero() && j.DueDate.Before(date) {
			penalty += 10
			res.Reasons = append(res.Reasons, fmt.Sprintf("job card #%d overdue since %s", j.ID, j.DueDate.Format("2006-01-02")))
		}
	}
	if res.Disqualify {
		res.Score = 0
		return res
	}
	if open == 0 {
		res.Reasons = append(res.Reasons, "no open job cards")
		return res
	}
	res.Score = clampScore(100 - penalty)
	res.Reasons = append(res.Reasons, fmt.Sprintf("%d open job cards", open))
	return res
}

// brandingCriterion raises urgency for under-delivered exposure commitments.
type brandingCriterion struct {
	endgameDays int
}

func (brandingCriterion) Name() string                    { return "branding" }
func (brandingCriterion) Weight(w config.Weights) float64 { return w.Branding }

func (c brandingCriterion) Score(t model.Trainset, snap *model.Snapshot, date time.Time) Result {
	active := 0
	best := 0.0
	res := Result{}
	for _, b := range snap.Branding[t.ID] {
		if date.Before(b.StartsAt) || date.After(b.EndsAt) {
			continue
		}
		active++
		if b.TargetHours <= 0 {
			continue
		}
		shortfall := b.ShortfallHours()
		score := 100 * shortfall / b.TargetHours
		if b.Priority == model.BrandingCritical {
			score *= 1.25
			if b.EndsAt.Sub(date) <= time.Duration(c.endgameDays)*24*time.Hour {
				score *= 1.2
				res.Reasons = append(res.Reasons, fmt.Sprintf("critical campaign %q ends %s with %.0fh exposure owed", b.Advertiser, b.EndsAt.Format("2006-01-02"), shortfall))
			} else if shortfall > 0 {
				res.Reasons = append(res.Reasons, fmt.Sprintf("critical campaign %q under-delivered by %.0fh", b.Advertiser, shortfall))
			}
		}
		if score > best {
			best = score
		}
	}
	if active == 0 {
		res.Reasons = append(res.Reasons, "no active branding campaigns")
		return res
	}
	res.Score = clampScore(best)
	if len(res.Reasons) == 0 {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d active branding campaigns on track", active))
	}
	return res
}

// mileageCriterion implements round-robin wear equalization: trainsets below
// the fleet mean score higher so accumulated wear spreads evenly.
type mileageCriterion struct{}

func (mileageCriterion) Name() string                    { return "mileage" }
func (mileageCriterion) Weight(w config.Weights) float64 { return w.Mileage }

func (mileageCriterion) Score(t model.Trainset, snap *model.Snapshot, _ time.Time) Result {
	mean := snap.FleetMeanMileage()
	km := t.MileageKM
	rec, hasRec := snap.Mileage[t.ID]
	if hasRec {
		km = rec.CumulativeKM
	}
	res := Result{Score: 50}
	if mean > 0 {
		res.Score = clampScore(50 + 50*(mean-km)/mean)
	}
	if hasRec {
		wear := (rec.BrakeWearPct + rec.BogieWearPct) / 2
		res.Score = clampScore(res.Score - wear*0.2)
		if wear > 70 {
			res.Reasons = append(res.Reasons, fmt.Sprintf("component wear at %.0f%%", wear))
		}
	}
	switch {
	case km < mean:
		res.Reasons = append(res.Reasons, fmt.Sprintf("mileage %.0f km below fleet mean", mean-km))
	case km > mean:
		res.Reasons = append(res.Reasons, fmt.Sprintf("mileage %.0f km above fleet mean", km-mean))
	default:
		res.Reasons = append(res.Reasons, "mileage at fleet mean")
	}
	return res
}

// cleaningCriterion blocks trainsets mid-clean and rewards recent cleaning.
type cleaningCriterion struct {
	staleDays int
}

func (cleaningCriterion) Name() string                    { return "cleaning" }
func (cleaningCriterion) Weight(w config.Weights) float64 { return w.Cleaning }

func (c cleaningCriterion) Score(t model.Trainset, snap *model.Snapshot, date time.Time) Result {
	for _, s := range snap.Cleaning[t.ID] {
		if s.Status == model.CleaningInProgress && s.Covers(date) {
			return Result{
				Score:      0,
				Reasons:    []string{fmt.Sprintf("deep cleaning in progress until %s", s.EndsAt.Format("2006-01-02 15:04"))},
				Disqualify: true,
			}
		}
	}
	if t.LastCleanedAt.IsZero() {
		return Result{Score: 0, Reasons: []string{"no cleaning record on file"}}
	}
	days := date.Sub(t.LastCleanedAt).Hours() / 24
	res := Result{Score: clampScore(100 * (1 - days/float64(c.staleDays)))}
	if days > float64(c.staleDays) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("last cleaned %d days ago, past the %d-day window", int(days), c.staleDays))
	} else {
		res.Reasons = append(res.Reasons, fmt.Sprintf("cleaned %d days ago", int(days)))
	}
	return res
}

// stablingCriterion prefers trainsets that are cheap to move out of their bay.
type stablingCriterion struct{}

func (stablingCriterion) Name() string                    { return "stabling" }
func (stablingCriterion) Weight(w config.Weights) float64 { return w.Stabling }

func (stablingCriterion) Score(t model.Trainset, snap *model.Snapshot, _ time.Time) Result {
	var bay *model.StablingBay
	maxCost := 0.0
	free := 0
	for i := range snap.Bays {
		b := &snap.Bays[i]
		if b.ShuntingCost > maxCost {
			maxCost = b.ShuntingCost
		}
		if !b.Occupied {
			free++
		}
		if b.TrainsetID == t.ID {
			bay = b
		}
	}
	if bay == nil {
		return Result{Score: 0, Reasons: []string{"no stabling assignment on file"}}
	}
	costScore := 100.0
	if maxCost > 0 {
		costScore = 100 * (1 - bay.ShuntingCost/maxCost)
	}
	availScore := 0.0
	if len(snap.Bays) > 0 {
		availScore = 100 * float64(free) / float64(len(snap.Bays))
	}
	res := Result{Score: clampScore(0.7*costScore + 0.3*availScore)}
	res.Reasons = append(res.Reasons, fmt.Sprintf("stabled at %s, shunting cost %.1f", bay.Name, bay.ShuntingCost))
	return res
}
