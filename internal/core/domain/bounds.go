package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Bounds is an inclusive latitude/longitude rectangle in degrees.
// A valid Bounds always satisfies South <= North and West <= East.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NewBounds validates the four edges and returns the rectangle.
func NewBounds(north, south, east, west float64) (Bounds, error) {
	edges := []struct {
		name string
		v    float64
	}{{"north", north}, {"south", south}, {"east", east}, {"west", west}}
	for _, e := range edges {
		if math.IsNaN(e.v) || math.IsInf(e.v, 0) {
			return Bounds{}, &InvalidAreaError{Reason: fmt.Sprintf("%s must be a finite number", e.name)}
		}
	}
	if north < -90 || north > 90 || south < -90 || south > 90 {
		return Bounds{}, &InvalidAreaError{Reason: "latitude bounds must be within [-90, 90]"}
	}
	if east < -180 || east > 180 || west < -180 || west > 180 {
		return Bounds{}, &InvalidAreaError{Reason: "longitude bounds must be within [-180, 180]"}
	}
	if south > north {
		return Bounds{}, &InvalidAreaError{Reason: fmt.Sprintf("south (%v) is greater than north (%v)", south, north)}
	}
	if west > east {
		return Bounds{}, &InvalidAreaError{Reason: fmt.Sprintf("west (%v) is greater than east (%v)", west, east)}
	}
	return Bounds{North: north, South: south, East: east, West: west}, nil
}

// Contains reports whether loc lies inside the rectangle, edges included.
func (b Bounds) Contains(loc Location) bool {
	return loc.Lat >= b.South && loc.Lat <= b.North &&
		loc.Lng >= b.West && loc.Lng <= b.East
}

// AreaRequest is the untrusted bounding box sent by a client. Every edge is a
// pointer so that a missing field can be told apart from a zero.
type AreaRequest struct {
	North *float64 `json:"north"`
	South *float64 `json:"south"`
	East  *float64 `json:"east"`
	West  *float64 `json:"west"`
}

// Bounds validates the request and converts it to a Bounds.
func (r AreaRequest) Bounds() (Bounds, error) {
	if r.North == nil || r.South == nil || r.East == nil || r.West == nil {
		return Bounds{}, &InvalidAreaError{Reason: "north, south, east and west are all required"}
	}
	return NewBounds(*r.North, *r.South, *r.East, *r.West)
}

// DecodeAreaRequest parses a raw JSON payload. Non-numeric edges and a
// non-object payload are reported as InvalidAreaError.
func DecodeAreaRequest(raw json.RawMessage) (AreaRequest, error) {
	var req AreaRequest
	if len(raw) == 0 || string(raw) == "null" {
		return req, &InvalidAreaError{Reason: "area payload is missing"}
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, &InvalidAreaError{Reason: "area payload must be an object of numeric north, south, east and west"}
	}
	return req, nil
}
