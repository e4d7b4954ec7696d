package store

import (
	"fmt"
	"time"

	"metrosched/internal/model"
)

// SeedFleet builds a deterministic demo fleet of n trainsets split across two
// depots. Used by the in-memory store at startup and by tests; the data is
// shaped so that a handful of trainsets are always ineligible (expired cert,
// emergency job card, active deep clean) and the rest spread across the score
// range.
func SeedFleet(n int, now time.Time) *model.Snapshot {
	snap := &model.Snapshot{
		TakenAt:      now,
		Certificates: map[int][]model.FitnessCertificate{},
		JobCards:     map[int][]model.JobCard{},
		Branding:     map[int][]model.BrandingCampaign{},
		Mileage:      map[int]model.MileageRecord{},
		Cleaning:     map[int][]model.CleaningSlot{},
	}
	depots := []string{"Muttom", "Kalamassery"}
	certID := 1
	for i := 1; i <= n; i++ {
		depot := depots[i%len(depots)]
		t := model.Trainset{
			ID:               i,
			RakeNumber:       fmt.Sprintf("KRISHNA-%03d", i),
			Manufacturer:     "Alstom",
			Model:            "Metropolis",
			CommissionedYear: 2017 + (i % 8),
			Depot:            depot,
			Status:           model.StatusStandby,
			MileageKM:        80000 + float64(i)*3750,
		}
		if i%9 != 0 {
			t.LastCleanedAt = now.AddDate(0, 0, -(i % 12))
		}
		snap.Trainsets = append(snap.Trainsets, t)

		for _, typ := range model.RequiredCertTypes {
			validTo := now.AddDate(0, 0, 60+(i*7)%120)
			if i%11 == 0 && typ == model.CertSignalling {
				validTo = now.AddDate(0, 0, -3) // expired, keeps the trainset out
			} else if i%7 == 0 && typ == model.CertTelecom {
				validTo = now.AddDate(0, 0, 10) // inside the warn window
			}
			snap.Certificates[i] = append(snap.Certificates[i], model.FitnessCertificate{
				ID: certID, TrainsetID: i, Type: typ,
				ValidFrom: now.AddDate(-1, 0, 0), ValidTo: validTo,
			})
			certID++
		}

		switch {
		case i%13 == 0:
			snap.JobCards[i] = append(snap.JobCards[i], model.JobCard{
				ID: 1000 + i, TrainsetID: i, Type: "brake_system",
				Priority: model.JobPriorityEmergency, Status: model.JobOpen, DueDate: now,
			})
		case i%5 == 0:
			snap.JobCards[i] = append(snap.JobCards[i], model.JobCard{
				ID: 1000 + i, TrainsetID: i, Type: "hvac",
				Priority: model.JobPriorityMedium, Status: model.JobOpen, DueDate: now.AddDate(0, 0, 5),
			})
		}

		if i%4 == 0 {
			prio := model.BrandingNormal
			if i%8 == 0 {
				prio = model.BrandingCritical
			}
			snap.Branding[i] = append(snap.Branding[i], model.BrandingCampaign{
				ID: 2000 + i, TrainsetID: i, Advertiser: "Lulu Group", Priority: prio,
				TargetHours: 300, AchievedHours: float64(200 + (i*17)%100),
				StartsAt: now.AddDate(0, -2, 0), EndsAt: now.AddDate(0, 1, 0),
			})
		}

		snap.Mileage[i] = model.MileageRecord{
			TrainsetID:   i,
			CumulativeKM: snap.Trainsets[len(snap.Trainsets)-1].MileageKM,
			BrakeWearPct: float64((i * 13) % 70),
			BogieWearPct: float64((i * 7) % 60),
			HVACHours:    float64(3000 + i*120),
		}

		if i%17 == 0 {
			snap.Cleaning[i] = append(snap.Cleaning[i], model.CleaningSlot{
				ID: 3000 + i, TrainsetID: i, Status: model.CleaningInProgress,
				StartsAt: now.Add(-4 * time.Hour), EndsAt: now.Add(20 * time.Hour),
			})
		}
	}

	for b := 1; b <= n+5; b++ {
		bay := model.StablingBay{
			ID:           b,
			Name:         fmt.Sprintf("SB-%02d", b),
			Depot:        depots[b%len(depots)],
			Position:     b,
			ShuntingCost: float64(1 + (b-1)%10),
		}
		if b <= n {
			bay.Occupied = true
			bay.TrainsetID = b
		}
		snap.Bays = append(snap.Bays, bay)
	}
	return snap
}
