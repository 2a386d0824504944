package dispatch

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citycab/dispatch/core/logger"
	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/core/pool"
	"github.com/citycab/dispatch/core/ridelog"
	"github.com/citycab/dispatch/metrics"
)

// Outcome is what the presentation layer gets back from SubmitRequest:
// the ride as registered, plus the assigned driver's display label when
// the ride is Assigned.
type Outcome struct {
	Ride        model.Ride
	DriverLabel string
}

// Manager is the single exclusion domain of the dispatch core. The
// synchronous request path and the asynchronous completion callbacks both
// mutate the driver pool and the ride registry, so both run behind the one
// mutex here; pool and registry never carry locks of their own.
type Manager struct {
	mu       sync.Mutex
	pool     *pool.Pool
	rides    map[string]*model.Ride
	order    []string
	selector Selector
	arm      func(rideID, driverID string)
	audit    *ridelog.Log
	sink     metrics.Sink
	log      logger.Logger
	rng      *rand.Rand

	maxRetries int
	closed     bool
}

// NewManager creates a Manager. maxRetries bounds reservation retries when
// a selection loses the race for a driver; if zero or negative, a default
// of three is used. seed fixes the passenger-label RNG; zero means
// time-based.
func NewManager(p *pool.Pool, sel Selector, audit *ridelog.Log, sink metrics.Sink, log logger.Logger, maxRetries int, seed int64) (*Manager, error) {
	if p == nil || sel == nil || audit == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Manager{
		pool:       p,
		rides:      make(map[string]*model.Ride),
		selector:   sel,
		audit:      audit,
		sink:       sink,
		log:        log,
		rng:        rand.New(rand.NewSource(seed)),
		maxRetries: maxRetries,
	}
	driversAvailable.Set(float64(len(p.ListAvailable())))
	return m, nil
}

// SetArmFunc configures the completion scheduler hook invoked for each
// assignment. It must be set before the first SubmitRequest.
func (m *Manager) SetArmFunc(arm func(rideID, driverID string)) {
	m.mu.Lock()
	m.arm = arm
	m.mu.Unlock()
}

// SubmitRequest validates and dispatches one ride request. It returns
// immediately: either the ride is Assigned to a driver or it is
// Unassignable because no driver could be reserved. Absence of a driver is
// a normal outcome, not an error; only invalid input errors.
func (m *Manager) SubmitRequest(pickup, dropoff string) (Outcome, error) {
	pickup = strings.TrimSpace(pickup)
	dropoff = strings.TrimSpace(dropoff)
	if pickup == "" {
		return Outcome{}, &InvalidRequestError{Field: "pickup"}
	}
	if dropoff == "" {
		return Outcome{}, &InvalidRequestError{Field: "dropoff"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Outcome{}, ErrClosed
	}

	ride := &model.Ride{
		ID:          uuid.NewString(),
		Passenger:   fmt.Sprintf("Passenger %d", m.rng.Intn(100)+1),
		Pickup:      pickup,
		Dropoff:     dropoff,
		RequestedAt: time.Now(),
	}
	m.rides[ride.ID] = ride
	m.order = append(m.order, ride.ID)
	m.audit.Append(ridelog.Entry{
		Kind:   ridelog.RequestReceived,
		RideID: ride.ID,
		Detail: fmt.Sprintf("%s -> %s", pickup, dropoff),
	})

	driverID, ok := m.reserveDriver()
	if !ok {
		if err := ride.MarkUnassignable(); err != nil {
			m.invariant("mark unassignable: %v", err)
			return Outcome{Ride: *ride}, err
		}
		m.log.Infof("ride %s: no driver available", ride.ID)
		m.audit.Append(ridelog.Entry{Kind: ridelog.NoDriverAvailable, RideID: ride.ID})
		ridesDispatched.WithLabelValues(metrics.OutcomeUnassignable).Inc()
		m.record(metrics.RideEvent{RideID: ride.ID, Outcome: metrics.OutcomeUnassignable})
		return Outcome{Ride: *ride}, nil
	}

	if err := ride.Assign(driverID); err != nil {
		// Fresh Pending ride; this cannot fail unless the registry is corrupt.
		m.invariant("assign: %v", err)
		if rerr := m.pool.Release(driverID); rerr != nil {
			m.invariant("rollback release: %v", rerr)
		}
		return Outcome{Ride: *ride}, err
	}
	driver, err := m.pool.Get(driverID)
	if err != nil {
		m.invariant("lookup reserved driver: %v", err)
		return Outcome{Ride: *ride}, err
	}

	m.log.Infof("ride %s assigned to driver %s", ride.ID, driverID)
	m.audit.Append(ridelog.Entry{
		Kind:     ridelog.DriverAssigned,
		RideID:   ride.ID,
		DriverID: driverID,
		Detail:   driver.Label(),
	})
	ridesDispatched.WithLabelValues(metrics.OutcomeAssigned).Inc()
	driversAvailable.Set(float64(len(m.pool.ListAvailable())))
	m.record(metrics.RideEvent{RideID: ride.ID, DriverID: driverID, Outcome: metrics.OutcomeAssigned})

	if m.arm != nil {
		m.arm(ride.ID, driverID)
	}
	return Outcome{Ride: *ride, DriverLabel: driver.Label()}, nil
}

// reserveDriver picks an available driver at random and reserves it,
// retrying among the remaining candidates when a reservation is refused.
// Retries are bounded so contention can never loop forever.
func (m *Manager) reserveDriver() (string, bool) {
	candidates := m.pool.ListAvailable()
	for attempt := 0; attempt < m.maxRetries && len(candidates) > 0; attempt++ {
		picked := m.selector.Pick(candidates)
		err := m.pool.Reserve(picked.ID)
		if err == nil {
			return picked.ID, true
		}
		var busy *pool.AlreadyBusyError
		if !errors.As(err, &busy) {
			m.invariant("reserve %s: %v", picked.ID, err)
			return "", false
		}
		m.log.Warnf("driver %s reservation lost, retrying", picked.ID)
		next := candidates[:0]
		for _, c := range candidates {
			if c.ID != picked.ID {
				next = append(next, c)
			}
		}
		candidates = next
	}
	return "", false
}

// CompleteRide is the completion path: it transitions the ride to
// Completed, releases the driver, and records the transition. It runs in
// the same exclusion domain as SubmitRequest, so a completion and a
// dispatch touching the same driver are strictly ordered.
//
// A ride that is not Assigned here means the scheduler double-fired: the
// violation is reported loudly and nothing else is touched.
func (m *Manager) CompleteRide(rideID, driverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ride, ok := m.rides[rideID]
	if !ok {
		m.invariant("completion fired for unknown ride %s", rideID)
		return
	}
	now := time.Now()
	if err := ride.Complete(now); err != nil {
		m.invariant("complete: %v", err)
		return
	}
	if err := m.pool.Release(driverID); err != nil {
		m.invariant("release %s: %v", driverID, err)
		return
	}

	duration := now.Sub(ride.RequestedAt)
	m.log.Infof("ride %s completed, driver %s released", rideID, driverID)
	m.audit.Append(ridelog.Entry{
		Kind:     ridelog.RideCompleted,
		RideID:   rideID,
		DriverID: driverID,
		Detail:   ride.String(),
	})
	ridesCompleted.Inc()
	driversAvailable.Set(float64(len(m.pool.ListAvailable())))
	m.record(metrics.RideEvent{
		RideID:   rideID,
		DriverID: driverID,
		Outcome:  metrics.OutcomeCompleted,
		Time:     now,
		Duration: duration,
	})
}

// Drivers returns a snapshot of the fleet.
func (m *Manager) Drivers() []model.Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Snapshot()
}

// AvailableDrivers returns the drivers currently available.
func (m *Manager) AvailableDrivers() []model.Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.ListAvailable()
}

// Rides returns all rides in submission order.
func (m *Manager) Rides() []model.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Ride, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.rides[id])
	}
	return out
}

// Ride returns the ride with the given id.
func (m *Manager) Ride(id string) (model.Ride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return model.Ride{}, false
	}
	return *r, true
}

// Close stops accepting requests. The owning service cancels outstanding
// completion handles before calling Close.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// invariant reports a lifecycle violation. These indicate bugs, never user
// error, so they are logged at error level and counted rather than masked.
func (m *Manager) invariant(format string, args ...any) {
	invariantViolations.Inc()
	m.log.Errorf("invariant violation: "+format, args...)
}

func (m *Manager) record(ev metrics.RideEvent) {
	if err := m.sink.RecordRide(ev); err != nil {
		m.log.Errorf("metrics error: %v", err)
	}
}
