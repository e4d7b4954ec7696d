// Package config holds the scoring policy: criterion weights and the
// disqualification thresholds that are operator policy rather than code.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights are the composite-score contributions per criterion. They must sum
// to 1.0 within a small tolerance.
type Weights struct {
	Fitness  float64 `yaml:"fitness" json:"fitness"`
	JobCards float64 `yaml:"jobCards" json:"jobCards"`
	Branding float64 `yaml:"branding" json:"branding"`
	Mileage  float64 `yaml:"mileage" json:"mileage"`
	Cleaning float64 `yaml:"cleaning" json:"cleaning"`
	Stabling float64 `yaml:"stabling" json:"stabling"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Fitness + w.JobCards + w.Branding + w.Mileage + w.Cleaning + w.Stabling
}

// Policy bundles weights, thresholds and solver tuning for one deployment.
type Policy struct {
	Weights Weights `yaml:"weights" json:"weights"`

	// CertExpiryWarnDays is the window in which a certificate counts as
	// "expiring"; fitness sub-scores decay linearly inside it.
	CertExpiryWarnDays int `yaml:"certExpiryWarnDays" json:"certExpiryWarnDays"`

	// JobPriorityCriticalMin is the numeric priority (1..5 scale) at or above
	// which an open job card disqualifies a trainset outright.
	JobPriorityCriticalMin int `yaml:"jobPriorityCriticalMin" json:"jobPriorityCriticalMin"`

	// CleaningStaleDays is the age of the last cleaning at which the
	// cleaning sub-score reaches zero.
	CleaningStaleDays int `yaml:"cleaningStaleDays" json:"cleaningStaleDays"`

	// BrandingEndgameDays scales critical-campaign urgency up as a campaign's
	// end date comes inside this window.
	BrandingEndgameDays int `yaml:"brandingEndgameDays" json:"brandingEndgameDays"`

	// ShuntingPenalty is lambda in the exact objective: score units deducted
	// per unit of shunting cost on the assigned bay.
	ShuntingPenalty float64 `yaml:"shuntingPenalty" json:"shuntingPenalty"`

	// Soft-term weights for the exact solver.
	DepotBalanceWeight     float64 `yaml:"depotBalanceWeight" json:"depotBalanceWeight"`
	AgeMixWeight           float64 `yaml:"ageMixWeight" json:"ageMixWeight"`
	BrandingCoverWeight    float64 `yaml:"brandingCoverWeight" json:"brandingCoverWeight"`
	NewerTrainMinYear      int     `yaml:"newerTrainMinYear" json:"newerTrainMinYear"`
	NewerTrainMinRatio     float64 `yaml:"newerTrainMinRatio" json:"newerTrainMinRatio"`

	// SolverTimeoutMs bounds the exact solver; on expiry the engine degrades
	// to the greedy strategy.
	SolverTimeoutMs int `yaml:"solverTimeoutMs" json:"solverTimeoutMs"`
}

// Default returns the documented default policy.
func Default() Policy {
	return Policy{
		Weights: Weights{
			Fitness:  0.30,
			JobCards: 0.25,
			Branding: 0.15,
			Mileage:  0.15,
			Cleaning: 0.10,
			Stabling: 0.05,
		},
		CertExpiryWarnDays:     30,
		JobPriorityCriticalMin: 4,
		CleaningStaleDays:      14,
		BrandingEndgameDays:    7,
		ShuntingPenalty:        0.05,
		DepotBalanceWeight:     5,
		AgeMixWeight:           5,
		BrandingCoverWeight:    8,
		NewerTrainMinYear:      2020,
		NewerTrainMinRatio:     0.25,
		SolverTimeoutMs:        2000,
	}
}

// Load reads a policy YAML file, layering it over the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks weight normalization and threshold sanity.
func (p Policy) Validate() error {
	if s := p.Weights.Sum(); s < 0.99 || s > 1.01 {
		return fmt.Errorf("criterion weights must sum to 1.0, got %.3f", s)
	}
	for name, v := range map[string]float64{
		"fitness":  p.Weights.Fitness,
		"jobCards": p.Weights.JobCards,
		"branding": p.Weights.Branding,
		"mileage":  p.Weights.Mileage,
		"cleaning": p.Weights.Cleaning,
		"stabling": p.Weights.Stabling,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be >= 0", name)
		}
	}
	if p.CertExpiryWarnDays <= 0 {
		return fmt.Errorf("certExpiryWarnDays must be > 0")
	}
	if p.JobPriorityCriticalMin < 1 || p.JobPriorityCriticalMin > 5 {
		return fmt.Errorf("jobPriorityCriticalMin must be in [1,5]")
	}
	if p.CleaningStaleDays <= 0 {
		return fmt.Errorf("cleaningStaleDays must be > 0")
	}
	if p.ShuntingPenalty < 0 {
		return fmt.Errorf("shuntingPenalty must be >= 0")
	}
	if p.NewerTrainMinRatio < 0 || p.NewerTrainMinRatio > 1 {
		return fmt.Errorf("newerTrainMinRatio must be in [0,1]")
	}
	if p.SolverTimeoutMs < 0 {
		return fmt.Errorf("solverTimeoutMs must be >= 0")
	}
	return nil
}
