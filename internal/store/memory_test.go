package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"metrosched/internal/model"
)

func TestMemorySaveScheduleOverwriteFlag(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sched := model.Schedule{ID: "sch_1", TenantID: "t1", TargetDate: "2026-09-01"}

	overwrote, err := m.SaveSchedule(ctx, sched)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if overwrote {
		t.Fatalf("first save should not be an overwrite")
	}

	sched.ID = "sch_2"
	overwrote, err = m.SaveSchedule(ctx, sched)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if !overwrote {
		t.Fatalf("second save for same date should overwrite")
	}

	got, err := m.GetSchedule(ctx, "t1", "2026-09-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "sch_2" {
		t.Fatalf("expected latest schedule, got %s", got.ID)
	}
}

func TestMemoryGetScheduleNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetSchedule(context.Background(), "t1", "2026-09-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListSchedulesOrderAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, d := range []string{"2026-09-03", "2026-09-01", "2026-09-02"} {
		if _, err := m.SaveSchedule(ctx, model.Schedule{TenantID: "t1", TargetDate: d}); err != nil {
			t.Fatalf("save %s: %v", d, err)
		}
	}

	all, err := m.ListSchedules(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 schedules, got %d", len(all))
	}
	for i, want := range []string{"2026-09-01", "2026-09-02", "2026-09-03"} {
		if all[i].TargetDate != want {
			t.Fatalf("position %d: expected %s got %s", i, want, all[i].TargetDate)
		}
	}

	// limit keeps the most recent dates
	last, err := m.ListSchedules(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(last) != 2 || last[0].TargetDate != "2026-09-02" || last[1].TargetDate != "2026-09-03" {
		t.Fatalf("unexpected limited list: %+v", last)
	}
}

func TestMemoryLoadSnapshotClones(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutSnapshot("t1", SeedFleet(5, time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)))

	first, err := m.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	id := first.Trainsets[0].ID
	first.Trainsets[0].MileageKM = -1
	first.JobCards[id] = append(first.JobCards[id], model.JobCard{TrainsetID: id, Priority: model.JobPriorityEmergency})

	second, err := m.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if second.Trainsets[0].MileageKM < 0 {
		t.Fatalf("stored snapshot mutated through returned copy")
	}
	if len(second.JobCards[id]) != len(first.JobCards[id])-1 {
		t.Fatalf("stored job cards mutated through returned copy")
	}
}

func TestMemoryLoadSnapshotNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.LoadSnapshot(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySubscriptionsEventMatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", URL: "https://example.com/hook",
		Events: []string{"schedule.generated"}, Secret: "s3cret",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" {
		t.Fatalf("expected generated subscription id")
	}

	hit, err := m.GetSubscriptionsForEvent(ctx, "t1", "schedule.generated")
	if err != nil || len(hit) != 1 {
		t.Fatalf("expected 1 match, got %d (err %v)", len(hit), err)
	}
	miss, err := m.GetSubscriptionsForEvent(ctx, "t1", "simulation.completed")
	if err != nil || len(miss) != 0 {
		t.Fatalf("expected no match for unsubscribed event, got %d", len(miss))
	}

	if err := m.DeleteSubscription(ctx, "t1", sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSeedFleetShape(t *testing.T) {
	now := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	snap := SeedFleet(25, now)

	if len(snap.Trainsets) != 25 {
		t.Fatalf("expected 25 trainsets, got %d", len(snap.Trainsets))
	}
	if len(snap.Bays) != 30 {
		t.Fatalf("expected 30 bays, got %d", len(snap.Bays))
	}

	expired, emergencies := 0, 0
	for _, ts := range snap.Trainsets {
		for _, c := range snap.Certificates[ts.ID] {
			if c.ValidTo.Before(now) {
				expired++
			}
		}
		for _, j := range snap.JobCards[ts.ID] {
			if j.Priority == model.JobPriorityEmergency {
				emergencies++
			}
		}
	}
	// the seed plants a few disqualifying records so demo schedules are not trivial
	if expired == 0 {
		t.Fatalf("expected some expired certificates in seed fleet")
	}
	if emergencies == 0 {
		t.Fatalf("expected some emergency job cards in seed fleet")
	}

	seen := map[string]bool{}
	for _, ts := range snap.Trainsets {
		if seen[ts.RakeNumber] {
			t.Fatalf("duplicate rake number %s", ts.RakeNumber)
		}
		seen[ts.RakeNumber] = true
	}
}
