package api

import (
	"fmt"
	"time"

	"metrosched/internal/model"
)

func validateGenerateRequest(req *model.GenerateRequest) error {
	if req.TargetDate == "" {
		return fmt.Errorf("targetDate is required")
	}
	if _, err := time.Parse("2006-01-02", req.TargetDate); err != nil {
		return fmt.Errorf("targetDate must be YYYY-MM-DD: %v", err)
	}
	if req.Constraints.RequiredTrainsets <= 0 {
		return fmt.Errorf("constraints.requiredTrainsets must be > 0")
	}
	if req.Constraints.MaxStandby < 0 {
		return fmt.Errorf("constraints.maxStandby must be >= 0")
	}
	if req.Constraints.MaxMaintenance < 0 {
		return fmt.Errorf("constraints.maxMaintenance must be >= 0")
	}
	if req.Strategy != "" && req.Strategy != "exact" && req.Strategy != "greedy" {
		return fmt.Errorf("invalid strategy: %s", req.Strategy)
	}
	if req.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	return nil
}

func validateScenario(sc *model.Scenario) error {
	if sc.TargetDate == "" {
		return fmt.Errorf("targetDate is required")
	}
	if _, err := time.Parse("2006-01-02", sc.TargetDate); err != nil {
		return fmt.Errorf("targetDate must be YYYY-MM-DD: %v", err)
	}
	m := sc.Modifications
	if m.ExpireCertificates < 0 || m.InjectEmergencyJobs < 0 || m.HoldForCleaning < 0 {
		return fmt.Errorf("modification counts must be >= 0")
	}
	if m.ExpireCertificates == 0 && m.InjectEmergencyJobs == 0 && m.HoldForCleaning == 0 && sc.Constraints == nil {
		return fmt.Errorf("scenario has no modifications and no constraint overrides")
	}
	if sc.Constraints != nil && sc.Constraints.RequiredTrainsets <= 0 {
		return fmt.Errorf("constraints.requiredTrainsets must be > 0")
	}
	return nil
}
