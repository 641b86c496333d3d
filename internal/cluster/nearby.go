package cluster

import (
	"math"
	"sort"

	"github.com/eshotmap/eshot_core/internal/models"
)

const earthRadius = 6371000 // meters

// HaversineDistance returns the great-circle distance in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

// Nearby returns stops within radiusM meters of lat/lon, nearest first.
// limit <= 0 means no limit. Equal distances keep feed order.
func Nearby(stops []models.Stop, lat, lon float64, radiusM float64, limit int) []models.StopWithDistance {
	result := make([]models.StopWithDistance, 0)
	dists := make([]float64, 0)

	for _, stop := range stops {
		d := HaversineDistance(lat, lon, stop.Latitude, stop.Longitude)
		if d > radiusM {
			continue
		}
		result = append(result, models.StopWithDistance{Stop: stop, DistanceM: int(math.Round(d))})
		dists = append(dists, d)
	}

	order := make([]int, len(result))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	sorted := make([]models.StopWithDistance, len(result))
	for i, idx := range order {
		sorted[i] = result[idx]
	}

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
