package model

import "fmt"

// DriverStatus defines the availability state of a driver.
type DriverStatus int

const (
	DriverAvailable DriverStatus = iota
	DriverBusy
)

// String returns a human-readable representation of the driver status.
func (s DriverStatus) String() string {
	switch s {
	case DriverAvailable:
		return "Available"
	case DriverBusy:
		return "Busy"
	default:
		return "unknown"
	}
}

// Driver represents a member of the fleet. Drivers are created once at
// startup from the configured roster and are never removed during a run;
// only their status changes.
type Driver struct {
	ID      string
	Name    string
	Vehicle string
	Status  DriverStatus
}

// Label renders the display form used by the presentation layer.
func (d Driver) Label() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Vehicle)
}

// Validate checks that the driver configuration is sound.
func (d Driver) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("driver id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("driver %s: name must not be empty", d.ID)
	}
	return nil
}
