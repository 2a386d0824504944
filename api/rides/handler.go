// Package rides exposes the dispatch core to the presentation layer over
// HTTP. It is a thin boundary: validation and lifecycle live in the core.
package rides

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/citycab/dispatch/core/dispatch"
	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/core/ridelog"
)

// Core is the slice of the dispatch manager the handlers need.
type Core interface {
	SubmitRequest(pickup, dropoff string) (dispatch.Outcome, error)
	Drivers() []model.Driver
	Rides() []model.Ride
}

type requestBody struct {
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
}

type outcomeBody struct {
	RideID      string `json:"ride_id"`
	Status      string `json:"status"`
	Passenger   string `json:"passenger"`
	DriverID    string `json:"driver_id,omitempty"`
	DriverLabel string `json:"driver_label,omitempty"`
}

type driverBody struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

type rideBody struct {
	ID        string `json:"id"`
	Passenger string `json:"passenger"`
	Pickup    string `json:"pickup"`
	Dropoff   string `json:"dropoff"`
	Status    string `json:"status"`
	DriverID  string `json:"driver_id,omitempty"`
}

// NewSubmitHandler returns an HTTP handler accepting ride requests via
// POST /api/rides.
func NewSubmitHandler(core Core) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		out, err := core.SubmitRequest(body.Pickup, body.Dropoff)
		if err != nil {
			var inv *dispatch.InvalidRequestError
			if errors.As(err, &inv) {
				http.Error(w, inv.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, outcomeBody{
			RideID:      out.Ride.ID,
			Status:      out.Ride.Status.String(),
			Passenger:   out.Ride.Passenger,
			DriverID:    out.Ride.DriverID,
			DriverLabel: out.DriverLabel,
		})
	})
}

// NewDriversHandler returns an HTTP handler exposing the fleet via
// GET /api/drivers.
func NewDriversHandler(core Core) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		drivers := core.Drivers()
		out := make([]driverBody, 0, len(drivers))
		for _, d := range drivers {
			out = append(out, driverBody{ID: d.ID, Label: d.Label(), Status: d.Status.String()})
		}
		writeJSON(w, out)
	})
}

// NewRidesHandler returns an HTTP handler listing rides in submission
// order via GET /api/rides.
func NewRidesHandler(core Core) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rides := core.Rides()
		out := make([]rideBody, 0, len(rides))
		for _, rd := range rides {
			out = append(out, rideBody{
				ID:        rd.ID,
				Passenger: rd.Passenger,
				Pickup:    rd.Pickup,
				Dropoff:   rd.Dropoff,
				Status:    rd.Status.String(),
				DriverID:  rd.DriverID,
			})
		}
		writeJSON(w, out)
	})
}

// NewLogHandler returns an HTTP handler exposing the audit trail via
// GET /api/log.
func NewLogHandler(log *ridelog.Log) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		type entryBody struct {
			Time     string `json:"time"`
			Kind     string `json:"kind"`
			RideID   string `json:"ride_id"`
			DriverID string `json:"driver_id,omitempty"`
			Detail   string `json:"detail,omitempty"`
		}
		snap := log.Snapshot()
		out := make([]entryBody, 0, len(snap))
		for _, e := range snap {
			out = append(out, entryBody{
				Time:     e.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				Kind:     e.Kind.String(),
				RideID:   e.RideID,
				DriverID: e.DriverID,
				Detail:   e.Detail,
			})
		}
		writeJSON(w, out)
	})
}

// NewMux wires all ride handlers on a fresh ServeMux.
func NewMux(core Core, log *ridelog.Log) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/rides", NewSubmitHandler(core))
	mux.Handle("GET /api/rides", NewRidesHandler(core))
	mux.Handle("GET /api/drivers", NewDriversHandler(core))
	mux.Handle("GET /api/log", NewLogHandler(log))
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
