package pool

import (
	"fmt"
	"sort"

	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/internal/eventbus"
)

// AlreadyBusyError is returned by Reserve when the driver is not currently
// available. Dispatch retries selection on it; it only surfaces when all
// candidates are exhausted.
type AlreadyBusyError struct {
	DriverID string
}

func (e *AlreadyBusyError) Error() string {
	return fmt.Sprintf("driver %s is already busy", e.DriverID)
}

// NotReservedError is returned by Release when the driver was not busy. It
// signals a lifecycle bug upstream, not user error.
type NotReservedError struct {
	DriverID string
}

func (e *NotReservedError) Error() string {
	return fmt.Sprintf("driver %s was not reserved", e.DriverID)
}

// UnknownDriverError is returned when the driver id is not in the roster.
type UnknownDriverError struct {
	DriverID string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown driver %s", e.DriverID)
}

// Event describes a driver status change, published for the driver list view.
type Event struct {
	DriverID string
	Label    string
	Status   model.DriverStatus
}

// Pool is the registry of fleet drivers and their availability. It is the
// sole owner of driver lifecycle; rides refer to drivers by id only.
//
// The pool carries no lock of its own: all mutations are serialized through
// the dispatch manager, which guards the pool and the ride registry behind
// a single mutex so availability and assignments never diverge.
type Pool struct {
	drivers map[string]*model.Driver
	order   []string
	bus     *eventbus.Bus[Event]
}

// New builds a pool from the seed roster. Driver ids must be unique.
func New(seed []model.Driver) (*Pool, error) {
	p := &Pool{drivers: make(map[string]*model.Driver, len(seed))}
	for _, d := range seed {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := p.drivers[d.ID]; ok {
			return nil, fmt.Errorf("duplicate driver id %s", d.ID)
		}
		d.Status = model.DriverAvailable
		cp := d
		p.drivers[d.ID] = &cp
		p.order = append(p.order, d.ID)
	}
	return p, nil
}

// SetBus configures the bus used to publish driver status changes.
func (p *Pool) SetBus(bus *eventbus.Bus[Event]) { p.bus = bus }

// ListAvailable returns the drivers currently available, in roster order.
// The returned slice holds copies; mutating it does not touch the pool.
func (p *Pool) ListAvailable() []model.Driver {
	var out []model.Driver
	for _, id := range p.order {
		if d := p.drivers[id]; d.Status == model.DriverAvailable {
			out = append(out, *d)
		}
	}
	return out
}

// Snapshot returns a copy of every driver sorted by id.
func (p *Pool) Snapshot() []model.Driver {
	out := make([]model.Driver, 0, len(p.drivers))
	for _, d := range p.drivers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of the driver with the given id.
func (p *Pool) Get(id string) (model.Driver, error) {
	d, ok := p.drivers[id]
	if !ok {
		return model.Driver{}, &UnknownDriverError{DriverID: id}
	}
	return *d, nil
}

// Reserve flips a driver from Available to Busy on behalf of one ride.
func (p *Pool) Reserve(id string) error {
	d, ok := p.drivers[id]
	if !ok {
		return &UnknownDriverError{DriverID: id}
	}
	if d.Status != model.DriverAvailable {
		return &AlreadyBusyError{DriverID: id}
	}
	d.Status = model.DriverBusy
	p.publish(d)
	return nil
}

// Release flips a driver from Busy back to Available.
func (p *Pool) Release(id string) error {
	d, ok := p.drivers[id]
	if !ok {
		return &UnknownDriverError{DriverID: id}
	}
	if d.Status != model.DriverBusy {
		return &NotReservedError{DriverID: id}
	}
	d.Status = model.DriverAvailable
	p.publish(d)
	return nil
}

func (p *Pool) publish(d *model.Driver) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(Event{DriverID: d.ID, Label: d.Label(), Status: d.Status})
}
