package models

import (
	"math"
	"strconv"
)

// UnknownStopName is used when the stops feed has no name column or the
// row is too short to carry one.
const UnknownStopName = "Unknown"

// Resource identifies one of the static feeds
type Resource string

const (
	ResourceStops Resource = "stops"
	ResourceLines Resource = "lines"
)

// Stop represents a physical transit stop location.
// IDs are not guaranteed unique by the feed; duplicates are kept.
type Stop struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	LineIDs   string  `json:"line_ids"` // opaque, usually comma-joined line numbers
}

// Line represents a transit route (line)
type Line struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartStop   string `json:"start_stop"`
	EndStop     string `json:"end_stop"`
}

// ApproachingBus is a live record of a vehicle en route to a stop.
// Latitude/Longitude are nil when the feed did not report a usable position.
type ApproachingBus struct {
	BusID          int      `json:"bus_id"`
	LineNo         int      `json:"line_no"`
	LineName       string   `json:"line_name"`
	RemainingStops int      `json:"remaining_stops"`
	Direction      int      `json:"direction"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// HasPosition reports whether both coordinates are known
func (b ApproachingBus) HasPosition() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// BoundingBox is the visible map viewport in decimal degrees.
// West > East means the box crosses the antimeridian.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies inside the box, edges inclusive
func (b BoundingBox) Contains(lat, lon float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lon >= b.West && lon <= b.East
	}
	return lon >= b.West || lon <= b.East
}

// Valid reports whether the box has finite, in-range edges
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South <= b.North &&
		b.South >= -90 && b.North <= 90 &&
		b.West >= -180 && b.West <= 180 &&
		b.East >= -180 && b.East <= 180
}

// CellKey identifies one grid cell at a given cell size
type CellKey struct {
	Row int64 `json:"row"` // floor(latitude / cellSize)
	Col int64 `json:"col"` // floor(longitude / cellSize)
}

// Cluster is one grid cell worth of visible stops.
// It is derived per viewport and never persisted.
type Cluster struct {
	Key       CellKey `json:"key"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Stops     []Stop  `json:"stops"`
}

// Count returns the number of member stops
func (c Cluster) Count() int {
	return len(c.Stops)
}

// Selectable reports whether the cluster resolves to a single stop
func (c Cluster) Selectable() bool {
	return len(c.Stops) == 1
}

// Label is the stop name for single-stop clusters and the member count otherwise
func (c Cluster) Label() string {
	if c.Selectable() {
		return c.Stops[0].Name
	}
	return strconv.Itoa(len(c.Stops))
}

// StopWithDistance pairs a stop with its distance from a query point
type StopWithDistance struct {
	Stop
	DistanceM int `json:"distance_meters"`
}
