package dispatch

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/core/pool"
	"github.com/citycab/dispatch/core/ridelog"
	"github.com/citycab/dispatch/infra/logger"
	"github.com/citycab/dispatch/metrics"
)

type recordSink struct {
	events []metrics.RideEvent
}

func (s *recordSink) RecordRide(ev metrics.RideEvent) error {
	s.events = append(s.events, ev)
	return nil
}

// firstSelector always picks the first candidate, for predictable tests.
type firstSelector struct{}

func (firstSelector) Pick(available []model.Driver) model.Driver { return available[0] }

func roster(n int) []model.Driver {
	all := []model.Driver{
		{ID: "d1", Name: "Alice", Vehicle: "Toyota Camry"},
		{ID: "d2", Name: "Bob", Vehicle: "Honda Civic"},
		{ID: "d3", Name: "Charlie", Vehicle: "Tesla Model 3"},
		{ID: "d4", Name: "Diana", Vehicle: "Ford Escape"},
		{ID: "d5", Name: "Eve", Vehicle: "Nissan Altima"},
	}
	return all[:n]
}

func newTestManager(t *testing.T, drivers int) (*Manager, *pool.Pool, *ridelog.Log, *recordSink) {
	t.Helper()
	p, err := pool.New(roster(drivers))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	audit := ridelog.New()
	sink := &recordSink{}
	m, err := NewManager(p, NewRandomSelector(42), audit, sink, logger.NopLogger{}, 3, 42)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, p, audit, sink
}

func TestSubmitRequestAssigns(t *testing.T) {
	m, _, audit, sink := newTestManager(t, 5)
	out, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ride.Status != model.RideAssigned {
		t.Fatalf("expected Assigned got %s", out.Ride.Status)
	}
	if out.Ride.DriverID == "" || out.DriverLabel == "" {
		t.Fatalf("missing driver reference: %+v", out)
	}
	if got := len(m.AvailableDrivers()); got != 4 {
		t.Fatalf("expected 4 available got %d", got)
	}
	kinds := auditKinds(audit)
	want := []ridelog.Kind{ridelog.RequestReceived, ridelog.DriverAssigned}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("expected log %v got %v", want, kinds)
	}
	if len(sink.events) != 1 || sink.events[0].Outcome != metrics.OutcomeAssigned {
		t.Fatalf("unexpected sink events %+v", sink.events)
	}
}

func TestSubmitRequestExhaustsPool(t *testing.T) {
	m, _, _, _ := newTestManager(t, 1)
	first, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Ride.Status != model.RideAssigned {
		t.Fatalf("expected first Assigned got %s", first.Ride.Status)
	}
	second, err := m.SubmitRequest("Pine Rd", "Elm St")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.Ride.Status != model.RideUnassignable {
		t.Fatalf("expected second Unassignable got %s", second.Ride.Status)
	}
	if second.Ride.DriverID != "" {
		t.Fatalf("unassignable ride holds driver reference %s", second.Ride.DriverID)
	}

	// Completion releases the only driver back to the pool.
	m.CompleteRide(first.Ride.ID, first.Ride.DriverID)
	if got := len(m.AvailableDrivers()); got != 1 {
		t.Fatalf("expected 1 available after completion got %d", got)
	}
	done, ok := m.Ride(first.Ride.ID)
	if !ok || done.Status != model.RideCompleted {
		t.Fatalf("expected Completed got %+v", done)
	}
}

func TestSubmitRequestInvalidInput(t *testing.T) {
	m, _, audit, sink := newTestManager(t, 3)
	before := m.Drivers()

	for _, tc := range []struct{ pickup, dropoff, field string }{
		{"", "Oak Ave", "pickup"},
		{"   ", "Oak Ave", "pickup"},
		{"Main St", "", "dropoff"},
		{"Main St", "\t ", "dropoff"},
	} {
		_, err := m.SubmitRequest(tc.pickup, tc.dropoff)
		var inv *InvalidRequestError
		if !errors.As(err, &inv) {
			t.Fatalf("expected InvalidRequestError got %v", err)
		}
		if inv.Field != tc.field {
			t.Fatalf("expected field %s got %s", tc.field, inv.Field)
		}
	}

	if !reflect.DeepEqual(before, m.Drivers()) {
		t.Fatalf("pool mutated by invalid request")
	}
	if len(m.Rides()) != 0 {
		t.Fatalf("registry mutated by invalid request")
	}
	if audit.Len() != 0 {
		t.Fatalf("audit log mutated by invalid request")
	}
	if len(sink.events) != 0 {
		t.Fatalf("metrics recorded for invalid request")
	}
}

func TestSelectionDeterministicUnderSeed(t *testing.T) {
	pick := func() string {
		m, _, _, _ := newTestManager(t, 3)
		out, err := m.SubmitRequest("Main St", "Oak Ave")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return out.Ride.DriverID
	}
	first := pick()
	for i := 0; i < 5; i++ {
		if got := pick(); got != first {
			t.Fatalf("seeded selection not reproducible: %s vs %s", first, got)
		}
	}
}

func TestTrimsLocations(t *testing.T) {
	m, _, _, _ := newTestManager(t, 3)
	out, err := m.SubmitRequest("  Main St  ", " Oak Ave ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ride.Pickup != "Main St" || out.Ride.Dropoff != "Oak Ave" {
		t.Fatalf("locations not trimmed: %+v", out.Ride)
	}
}

func TestInvariantsAfterMixedOperations(t *testing.T) {
	m, p, _, _ := newTestManager(t, 5)
	var assigned []Outcome
	for i := 0; i < 8; i++ {
		out, err := m.SubmitRequest("A", "B")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if out.Ride.Status == model.RideAssigned {
			assigned = append(assigned, out)
		}
	}
	checkInvariants(t, m, p)

	for _, out := range assigned[:2] {
		m.CompleteRide(out.Ride.ID, out.Ride.DriverID)
	}
	checkInvariants(t, m, p)

	for _, out := range assigned[2:] {
		m.CompleteRide(out.Ride.ID, out.Ride.DriverID)
	}
	checkInvariants(t, m, p)
	if got := len(m.AvailableDrivers()); got != 5 {
		t.Fatalf("expected full pool back got %d", got)
	}
}

// checkInvariants asserts that a driver is Busy iff exactly one
// non-terminal ride references it, and that a ride holds a driver
// reference iff it is Assigned or Completed.
func checkInvariants(t *testing.T, m *Manager, p *pool.Pool) {
	t.Helper()
	refs := make(map[string]int)
	for _, r := range m.Rides() {
		switch r.Status {
		case model.RideAssigned:
			if r.DriverID == "" {
				t.Fatalf("assigned ride %s has no driver reference", r.ID)
			}
			refs[r.DriverID]++
		case model.RideCompleted:
			if r.DriverID == "" {
				t.Fatalf("completed ride %s has no driver reference", r.ID)
			}
		case model.RidePending, model.RideUnassignable:
			if r.DriverID != "" {
				t.Fatalf("ride %s in %s holds driver reference", r.ID, r.Status)
			}
		}
	}
	for _, d := range m.Drivers() {
		if d.Status == model.DriverBusy && refs[d.ID] != 1 {
			t.Fatalf("busy driver %s referenced by %d non-terminal rides", d.ID, refs[d.ID])
		}
		if d.Status == model.DriverAvailable && refs[d.ID] != 0 {
			t.Fatalf("available driver %s referenced by %d non-terminal rides", d.ID, refs[d.ID])
		}
	}
}

func TestDoubleCompleteIsViolation(t *testing.T) {
	m, _, audit, _ := newTestManager(t, 2)
	out, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.CompleteRide(out.Ride.ID, out.Ride.DriverID)
	entries := audit.Len()
	avail := len(m.AvailableDrivers())

	// Second fire must change nothing.
	m.CompleteRide(out.Ride.ID, out.Ride.DriverID)
	if audit.Len() != entries {
		t.Fatalf("double completion appended to audit log")
	}
	if len(m.AvailableDrivers()) != avail {
		t.Fatalf("double completion touched the pool")
	}
	r, _ := m.Ride(out.Ride.ID)
	if r.Status != model.RideCompleted {
		t.Fatalf("ride left in %s", r.Status)
	}
}

func TestCompleteUnknownRide(t *testing.T) {
	m, _, audit, _ := newTestManager(t, 2)
	m.CompleteRide("nope", "d1")
	if audit.Len() != 0 {
		t.Fatalf("unknown completion appended to audit log")
	}
	if got := len(m.AvailableDrivers()); got != 2 {
		t.Fatalf("unknown completion touched the pool")
	}
}

func TestReserveRetriesBounded(t *testing.T) {
	p, err := pool.New(roster(3))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	m, err := NewManager(p, firstSelector{}, ridelog.New(), nil, logger.NopLogger{}, 2, 1)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	// Drain the pool behind the manager's back so every reservation that
	// targets a stale candidate set is refused.
	for _, d := range roster(3) {
		if err := p.Reserve(d.ID); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	out, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ride.Status != model.RideUnassignable {
		t.Fatalf("expected Unassignable got %s", out.Ride.Status)
	}
}

// stealingSelector reserves its first pick directly on the pool before
// returning it, simulating a reservation lost to another writer.
type stealingSelector struct {
	p      *pool.Pool
	stolen string
}

func (s *stealingSelector) Pick(available []model.Driver) model.Driver {
	d := available[0]
	if s.stolen == "" {
		s.stolen = d.ID
		_ = s.p.Reserve(d.ID)
	}
	return d
}

func TestLostReservationRetriesNextCandidate(t *testing.T) {
	p, err := pool.New(roster(3))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	sel := &stealingSelector{p: p}
	m, err := NewManager(p, sel, ridelog.New(), nil, logger.NopLogger{}, 3, 1)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	out, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ride.Status != model.RideAssigned {
		t.Fatalf("expected Assigned after retry got %s", out.Ride.Status)
	}
	if out.Ride.DriverID == sel.stolen {
		t.Fatalf("ride assigned to stolen driver %s", sel.stolen)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	m, _, _, _ := newTestManager(t, 2)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.SubmitRequest("Main St", "Oak Ave"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}
}

func TestArmHookReceivesAssignment(t *testing.T) {
	m, _, _, _ := newTestManager(t, 2)
	type armed struct{ ride, driver string }
	var calls []armed
	m.SetArmFunc(func(rideID, driverID string) {
		calls = append(calls, armed{rideID, driverID})
	})
	out, err := m.SubmitRequest("Main St", "Oak Ave")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(calls) != 1 || calls[0].ride != out.Ride.ID || calls[0].driver != out.Ride.DriverID {
		t.Fatalf("unexpected arm calls %+v", calls)
	}

	// Unassignable outcomes never arm a completion.
	if _, err := m.SubmitRequest("Pine Rd", "Elm St"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.SubmitRequest("Pine Rd", "Elm St"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 arm calls got %d", len(calls))
	}
}

func TestRidesInsertionOrder(t *testing.T) {
	m, _, _, _ := newTestManager(t, 5)
	var ids []string
	for i := 0; i < 4; i++ {
		out, err := m.SubmitRequest("A", "B")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, out.Ride.ID)
	}
	rides := m.Rides()
	if len(rides) != 4 {
		t.Fatalf("expected 4 rides got %d", len(rides))
	}
	for i, r := range rides {
		if r.ID != ids[i] {
			t.Fatalf("ride %d out of order", i)
		}
	}
	if rides[0].RequestedAt.After(time.Now()) {
		t.Fatalf("request time in the future")
	}
}

func auditKinds(l *ridelog.Log) []ridelog.Kind {
	var kinds []ridelog.Kind
	for _, e := range l.Snapshot() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
