package test

import (
	"sync"
	"testing"
	"time"

	"github.com/citycab/dispatch/core/dispatch"
	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/core/pool"
	"github.com/citycab/dispatch/core/ridelog"
	"github.com/citycab/dispatch/core/scheduler"
	"github.com/citycab/dispatch/infra/logger"
)

func newStack(t *testing.T, drivers []model.Driver, minDelay, maxDelay time.Duration) (*dispatch.Manager, *scheduler.Scheduler, *ridelog.Log) {
	t.Helper()
	p, err := pool.New(drivers)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	audit := ridelog.New()
	mgr, err := dispatch.NewManager(p, dispatch.NewRandomSelector(1), audit, nil, logger.NopLogger{}, 3, 1)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	sched, err := scheduler.New(minDelay, maxDelay, 1, mgr.CompleteRide)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	mgr.SetArmFunc(func(rideID, driverID string) { sched.Arm(rideID, driverID) })
	return mgr, sched, audit
}

func fiveDrivers() []model.Driver {
	return []model.Driver{
		{ID: "d1", Name: "Alice", Vehicle: "Toyota Camry"},
		{ID: "d2", Name: "Bob", Vehicle: "Honda Civic"},
		{ID: "d3", Name: "Charlie", Vehicle: "Tesla Model 3"},
		{ID: "d4", Name: "Diana", Vehicle: "Ford Escape"},
		{ID: "d5", Name: "Eve", Vehicle: "Nissan Altima"},
	}
}

func waitForCompletion(t *testing.T, entries <-chan ridelog.Entry, rideID string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-entries:
			if e.Kind == ridelog.RideCompleted && e.RideID == rideID {
				return
			}
		case <-deadline:
			t.Fatalf("ride %s did not complete within %s", rideID, timeout)
		}
	}
}

func TestSingleDriverCycle(t *testing.T) {
	mgr, sched, audit := newStack(t, fiveDrivers()[:1], 5*time.Millisecond, 15*time.Millisecond)
	defer sched.Close()

	entries := audit.Subscribe()
	defer audit.Unsubscribe(entries)

	first, err := mgr.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Ride.Status != model.RideAssigned {
		t.Fatalf("expected Assigned got %s", first.Ride.Status)
	}

	second, err := mgr.SubmitRequest("Pine Rd", "Elm St")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.Ride.Status != model.RideUnassignable {
		t.Fatalf("expected Unassignable while driver busy, got %s", second.Ride.Status)
	}

	waitForCompletion(t, entries, first.Ride.ID, time.Second)
	if got := len(mgr.AvailableDrivers()); got != 1 {
		t.Fatalf("expected driver back in pool, %d available", got)
	}
}

func TestConcurrentRequestsKeepInvariants(t *testing.T) {
	mgr, sched, audit := newStack(t, fiveDrivers(), 5*time.Millisecond, 20*time.Millisecond)
	defer sched.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.SubmitRequest("A", "B"); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	// Let every armed completion fire.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Outstanding() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sched.Outstanding() != 0 {
		t.Fatalf("%d completions still outstanding", sched.Outstanding())
	}

	completed := make(map[string]bool)
	for _, e := range audit.Snapshot() {
		if e.Kind == ridelog.RideCompleted {
			completed[e.RideID] = true
		}
	}

	if got := len(mgr.AvailableDrivers()); got != 5 {
		t.Fatalf("expected full pool back, %d available", got)
	}
	for _, r := range mgr.Rides() {
		switch r.Status {
		case model.RideCompleted:
			if !completed[r.ID] {
				t.Errorf("ride %s completed without log entry", r.ID)
			}
		case model.RideUnassignable:
			// fine: pool was exhausted at submission time
		default:
			t.Errorf("ride %s left in non-terminal state %s", r.ID, r.Status)
		}
	}
}

func TestShutdownCancelsCompletions(t *testing.T) {
	mgr, sched, _ := newStack(t, fiveDrivers(), 50*time.Millisecond, 100*time.Millisecond)

	out, err := mgr.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ride.Status != model.RideAssigned {
		t.Fatalf("expected Assigned got %s", out.Ride.Status)
	}

	sched.Close()
	time.Sleep(150 * time.Millisecond)

	r, ok := mgr.Ride(out.Ride.ID)
	if !ok {
		t.Fatalf("ride lost")
	}
	if r.Status != model.RideAssigned {
		t.Fatalf("cancelled completion still fired, ride is %s", r.Status)
	}
}
