package cluster

import (
	"math"

	"github.com/eshotmap/eshot_core/internal/models"
)

const (
	DefaultBaseSize      = 0.005
	DefaultReferenceZoom = 20.0

	// Zoom levels are clamped to this range before the cell size is computed
	MinZoom = 1.0
	MaxZoom = 30.0
)

// Clusterer buckets stops into a square grid whose cell size shrinks as the
// zoom grows: cellSize = BaseSize * ReferenceZoom / zoom.
type Clusterer struct {
	BaseSize      float64
	ReferenceZoom float64
}

// New creates a clusterer; non-positive parameters take the defaults
func New(baseSize, referenceZoom float64) *Clusterer {
	if !(baseSize > 0) || math.IsInf(baseSize, 0) {
		baseSize = DefaultBaseSize
	}
	if !(referenceZoom > 0) || math.IsInf(referenceZoom, 0) {
		referenceZoom = DefaultReferenceZoom
	}
	return &Clusterer{BaseSize: baseSize, ReferenceZoom: referenceZoom}
}

// ClampZoom maps non-finite or out-of-range zoom levels into [MinZoom, MaxZoom]
func ClampZoom(zoom float64) float64 {
	switch {
	case math.IsNaN(zoom), zoom < MinZoom:
		return MinZoom
	case zoom > MaxZoom:
		return MaxZoom
	default:
		return zoom
	}
}

// CellSize returns the grid cell edge in degrees at zoom
func (c *Clusterer) CellSize(zoom float64) float64 {
	return c.BaseSize * (c.ReferenceZoom / ClampZoom(zoom))
}

// Key returns the grid cell holding lat/lon at the given cell size
func Key(lat, lon, cellSize float64) models.CellKey {
	return models.CellKey{
		Row: int64(math.Floor(lat / cellSize)),
		Col: int64(math.Floor(lon / cellSize)),
	}
}

// Cluster groups the stops visible in bbox by grid cell.
// Clusters come back in the order their first member appears in stops and
// are positioned at that member's coordinates.
func (c *Clusterer) Cluster(stops []models.Stop, bbox models.BoundingBox, zoom float64) []models.Cluster {
	cellSize := c.CellSize(zoom)

	index := make(map[models.CellKey]int)
	clusters := make([]models.Cluster, 0)

	for _, stop := range stops {
		if !bbox.Contains(stop.Latitude, stop.Longitude) {
			continue
		}

		key := Key(stop.Latitude, stop.Longitude, cellSize)
		if i, ok := index[key]; ok {
			clusters[i].Stops = append(clusters[i].Stops, stop)
			continue
		}

		index[key] = len(clusters)
		clusters = append(clusters, models.Cluster{
			Key:       key,
			Latitude:  stop.Latitude,
			Longitude: stop.Longitude,
			Stops:     []models.Stop{stop},
		})
	}

	return clusters
}
