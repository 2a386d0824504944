// Package ridelog implements the append-only audit trail of dispatch
// transitions. Entries are never edited or removed during a run; the
// presentation layer reads them through Snapshot or a live subscription.
package ridelog

import (
	"sync"
	"time"

	"github.com/citycab/dispatch/core/logger"
	"github.com/citycab/dispatch/internal/eventbus"
)

// Kind identifies the transition an entry describes.
type Kind int

const (
	RequestReceived Kind = iota
	DriverAssigned
	NoDriverAvailable
	RideCompleted
)

// String returns a human-readable representation of the entry kind.
func (k Kind) String() string {
	switch k {
	case RequestReceived:
		return "request_received"
	case DriverAssigned:
		return "driver_assigned"
	case NoDriverAvailable:
		return "no_driver_available"
	case RideCompleted:
		return "ride_completed"
	default:
		return "unknown"
	}
}

// Entry is one immutable audit record.
type Entry struct {
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	RideID   string    `json:"ride_id"`
	DriverID string    `json:"driver_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Store persists entries outside the process, e.g. to a JSONL file.
type Store interface {
	Append(Entry) error
	Close() error
}

// Log is the in-memory audit trail. Append and Snapshot are safe for
// concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	bus     *eventbus.Bus[Entry]
	store   Store
	log     logger.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithStore mirrors every appended entry to the given store.
func WithStore(s Store) Option { return func(l *Log) { l.store = s } }

// WithLogger sets the logger used to report store failures.
func WithLogger(lg logger.Logger) Option { return func(l *Log) { l.log = lg } }

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{bus: eventbus.New[Entry]()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append records the entry, stamping the time if unset. A failing store
// never blocks the audit trail; the error is logged and the in-memory
// record kept.
func (l *Log) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	l.bus.Publish(e)
	if l.store != nil {
		if err := l.store.Append(e); err != nil && l.log != nil {
			l.log.Errorf("audit store append: %v", err)
		}
	}
}

// Snapshot returns the full ordered sequence of entries as a copy.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe returns a channel receiving every entry appended after the
// call. Delivery is non-blocking; slow consumers lose entries rather than
// stalling dispatch.
func (l *Log) Subscribe() <-chan Entry { return l.bus.Subscribe() }

// Unsubscribe removes a subscription created with Subscribe.
func (l *Log) Unsubscribe(ch <-chan Entry) { l.bus.Unsubscribe(ch) }

// Close closes subscriptions and the backing store.
func (l *Log) Close() error {
	l.bus.Close()
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}
