package cluster

import (
	"math"
	"testing"

	"github.com/eshotmap/eshot_core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var izmir = models.BoundingBox{South: 38.0, West: 26.5, North: 39.0, East: 27.5}

func stop(id, name string, lat, lon float64) models.Stop {
	return models.Stop{ID: id, Name: name, Latitude: lat, Longitude: lon}
}

func TestClusterMergesAndSplitsWithZoom(t *testing.T) {
	c := New(DefaultBaseSize, DefaultReferenceZoom)
	stops := []models.Stop{
		stop("1", "Konak", 38.4010, 27.1010),
		stop("2", "Cumhuriyet Meydani", 38.4060, 27.1060),
	}

	// zoom 10: cell 0.01 degrees, both stops in one cell
	coarse := c.Cluster(stops, izmir, 10)
	require.Len(t, coarse, 1)
	assert.Equal(t, 2, coarse[0].Count())
	assert.Equal(t, "2", coarse[0].Label())
	assert.False(t, coarse[0].Selectable())
	assert.Equal(t, 38.4010, coarse[0].Latitude)
	assert.Equal(t, 27.1010, coarse[0].Longitude)

	// zoom 20: cell 0.005 degrees, separate cells
	fine := c.Cluster(stops, izmir, 20)
	require.Len(t, fine, 2)
	for i, cl := range fine {
		assert.True(t, cl.Selectable())
		assert.Equal(t, stops[i].Name, cl.Label())
	}
}

func TestClusterFiltersByBoundingBoxInclusive(t *testing.T) {
	c := New(0, 0)
	bbox := models.BoundingBox{South: 38.40, West: 27.10, North: 38.45, East: 27.15}
	stops := []models.Stop{
		stop("edge-sw", "SW corner", 38.40, 27.10),
		stop("edge-ne", "NE corner", 38.45, 27.15),
		stop("out-n", "North", 38.46, 27.12),
		stop("out-w", "West", 38.42, 27.09),
	}

	clusters := c.Cluster(stops, bbox, 30)
	var ids []string
	for _, cl := range clusters {
		for _, s := range cl.Stops {
			ids = append(ids, s.ID)
		}
	}
	assert.ElementsMatch(t, []string{"edge-sw", "edge-ne"}, ids)
}

func TestClusterAcrossAntimeridian(t *testing.T) {
	c := New(0, 0)
	bbox := models.BoundingBox{South: -20, West: 170, North: -10, East: -170}
	stops := []models.Stop{
		stop("fiji", "Suva", -18.14, 178.44),
		stop("samoa", "Apia", -13.83, -171.76),
		stop("outside", "Cairns", -16.92, 145.77),
	}

	clusters := c.Cluster(stops, bbox, 20)
	require.Len(t, clusters, 2)
	assert.Equal(t, "fiji", clusters[0].Stops[0].ID)
	assert.Equal(t, "samoa", clusters[1].Stops[0].ID)
}

func TestClusterKeepsFirstAppearanceOrder(t *testing.T) {
	c := New(0, 0)
	stops := []models.Stop{
		stop("a", "A", 38.50, 27.20),
		stop("b", "B", 38.10, 26.60),
		stop("c", "C", 38.50, 27.20),
	}

	clusters := c.Cluster(stops, izmir, 20)
	require.Len(t, clusters, 2)
	assert.Equal(t, "a", clusters[0].Stops[0].ID)
	assert.Equal(t, "c", clusters[0].Stops[1].ID)
	assert.Equal(t, "b", clusters[1].Stops[0].ID)
}

func TestClusterKeepsDuplicateIDs(t *testing.T) {
	c := New(0, 0)
	stops := []models.Stop{
		stop("1", "Konak", 38.41, 27.12),
		stop("1", "Konak", 38.41, 27.12),
	}

	clusters := c.Cluster(stops, izmir, 20)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].Count())
}

func TestClusterEmptyInput(t *testing.T) {
	c := New(0, 0)
	clusters := c.Cluster(nil, izmir, 15)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestCellSizeDecreasesWithZoom(t *testing.T) {
	c := New(DefaultBaseSize, DefaultReferenceZoom)
	assert.InDelta(t, 0.005, c.CellSize(20), 1e-12)
	assert.InDelta(t, 0.01, c.CellSize(10), 1e-12)

	prev := math.Inf(1)
	for z := 1.0; z <= MaxZoom; z++ {
		size := c.CellSize(z)
		assert.Less(t, size, prev)
		prev = size
	}
}

func TestClampZoom(t *testing.T) {
	tests := []struct {
		name     string
		zoom     float64
		expected float64
	}{
		{name: "Zero", zoom: 0, expected: MinZoom},
		{name: "Negative", zoom: -3, expected: MinZoom},
		{name: "NaN", zoom: math.NaN(), expected: MinZoom},
		{name: "Too large", zoom: 1e9, expected: MaxZoom},
		{name: "Positive infinity", zoom: math.Inf(1), expected: MaxZoom},
		{name: "In range", zoom: 14.5, expected: 14.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampZoom(tt.zoom))
		})
	}
}

func TestKeyFloorsNegativeCoordinates(t *testing.T) {
	key := Key(-0.001, -0.001, 0.005)
	assert.Equal(t, models.CellKey{Row: -1, Col: -1}, key)

	key = Key(0.001, 0.001, 0.005)
	assert.Equal(t, models.CellKey{Row: 0, Col: 0}, key)
}

func TestNewDefaults(t *testing.T) {
	c := New(-1, math.NaN())
	assert.Equal(t, DefaultBaseSize, c.BaseSize)
	assert.Equal(t, DefaultReferenceZoom, c.ReferenceZoom)

	c = New(0.01, 18)
	assert.Equal(t, 0.01, c.BaseSize)
	assert.Equal(t, 18.0, c.ReferenceZoom)
}
