package model

import (
	"fmt"
	"time"
)

// RideStatus defines the lifecycle state of a ride request.
type RideStatus int

const (
	RidePending RideStatus = iota
	RideAssigned
	RideCompleted
	RideUnassignable
)

// String returns a human-readable representation of the ride status.
func (s RideStatus) String() string {
	switch s {
	case RidePending:
		return "Pending"
	case RideAssigned:
		return "Assigned"
	case RideCompleted:
		return "Completed"
	case RideUnassignable:
		return "Unassignable"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideUnassignable
}

// Ride represents a single ride request and its lifecycle state. DriverID
// holds the identifier of the assigned driver for lookup in the pool; the
// pool remains the sole owner of driver state.
type Ride struct {
	ID          string
	Passenger   string
	Pickup      string
	Dropoff     string
	Status      RideStatus
	DriverID    string
	RequestedAt time.Time
	CompletedAt time.Time
}

// IllegalTransitionError signals an attempt to move a ride along an edge
// the lifecycle does not allow. It indicates a bug in the caller, not a
// recoverable condition.
type IllegalTransitionError struct {
	RideID string
	From   RideStatus
	To     RideStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("ride %s: illegal transition %s -> %s", e.RideID, e.From, e.To)
}

// Assign moves the ride from Pending to Assigned and records the driver.
func (r *Ride) Assign(driverID string) error {
	if r.Status != RidePending {
		return &IllegalTransitionError{RideID: r.ID, From: r.Status, To: RideAssigned}
	}
	r.Status = RideAssigned
	r.DriverID = driverID
	return nil
}

// MarkUnassignable moves the ride from Pending to the terminal
// Unassignable state. Running out of drivers is a normal outcome, not an
// error.
func (r *Ride) MarkUnassignable() error {
	if r.Status != RidePending {
		return &IllegalTransitionError{RideID: r.ID, From: r.Status, To: RideUnassignable}
	}
	r.Status = RideUnassignable
	return nil
}

// Complete moves the ride from Assigned to the terminal Completed state.
// Completing a ride in any other state is an invariant violation: it means
// a completion fired twice or for a ride that never held a driver.
func (r *Ride) Complete(at time.Time) error {
	if r.Status != RideAssigned {
		return &IllegalTransitionError{RideID: r.ID, From: r.Status, To: RideCompleted}
	}
	r.Status = RideCompleted
	r.CompletedAt = at
	return nil
}

// String renders the ride the way the booking log displays it.
func (r Ride) String() string {
	driver := "no driver assigned"
	if r.DriverID != "" {
		driver = "driver " + r.DriverID
	}
	return fmt.Sprintf("ride from %q to %q | %s | status: %s", r.Pickup, r.Dropoff, driver, r.Status)
}
