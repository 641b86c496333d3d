package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eshotmap/eshot_core/internal/cache"
	"github.com/eshotmap/eshot_core/internal/logging"
	"github.com/eshotmap/eshot_core/internal/models"
	"github.com/eshotmap/eshot_core/internal/repository"
)

// Service is the read surface the handlers need
type Service interface {
	LoadStops(ctx context.Context, force bool) (repository.Result[models.Stop], error)
	LoadLines(ctx context.Context, force bool) (repository.Result[models.Line], error)
	Cluster(ctx context.Context, bbox models.BoundingBox, zoom float64) ([]models.Cluster, error)
	NearbyStops(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.StopWithDistance, error)
	Stop(ctx context.Context, id string) (models.Stop, bool, error)
	Line(ctx context.Context, id string) (models.Line, bool, error)
	Status() []repository.Status

	SelectStop(ctx context.Context, stopID string) ([]models.ApproachingBus, bool)
	Selection() (string, []models.ApproachingBus)
	ClearSelection()
}

// BusSource fetches live approaching buses; it never fails.
// Invalidate drops any cached list for a stop.
type BusSource interface {
	FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus
	Invalidate(stopID string)
}

// Handler serves the HTTP API over an explicitly constructed service
type Handler struct {
	svc    Service
	buses  BusSource
	redis  *redis.Client // nil when Redis is disabled
	logger *slog.Logger
}

// NewHandler wires the handlers. rdb may be nil.
func NewHandler(svc Service, buses BusSource, rdb *redis.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, buses: buses, redis: rdb, logger: logger}
}

// Register mounts all routes on app
func (h *Handler) Register(app *fiber.App) {
	app.Use(h.requestLogger)
	app.Get("/health", h.Health)

	v1 := app.Group("/v1")
	v1.Get("/stops", h.Stops)
	v1.Get("/stops/nearby", h.StopsNearby)
	v1.Get("/stops/:id", h.StopByID)
	v1.Get("/stops/:id/buses", h.StopBuses)
	v1.Get("/lines", h.Lines)
	v1.Get("/lines/:id", h.LineByID)
	v1.Get("/clusters", h.Clusters)

	v1.Get("/selection", h.GetSelection)
	v1.Put("/selection/:id", h.SelectStop)
	v1.Delete("/selection", h.ClearSelection)
}

// requestLogger puts a logger tagged with the request method and path on
// the request context
func (h *Handler) requestLogger(c *fiber.Ctx) error {
	logger := h.logger.With(
		slog.String("method", c.Method()),
		slog.String("path", c.Path()))
	c.SetUserContext(logging.WithLogger(c.UserContext(), logger))
	return c.Next()
}

// Health reports Redis reachability and the cache state of each feed.
// Redis only backs rate limiting, which fails open, so an unreachable Redis
// degrades the service without making it unhealthy.
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	redisStatus := "disabled"
	status := "healthy"

	if h.redis != nil {
		redisStatus = "ok"
		if err := cache.HealthCheck(ctx, h.redis); err != nil {
			logging.FromContext(ctx).Warn("redis health check failed", slog.String("error", err.Error()))
			redisStatus = err.Error()
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status": status,
		"checks": fiber.Map{
			"redis": redisStatus,
		},
		"resources": h.svc.Status(),
	})
}

// Stops handles GET /v1/stops?refresh=true
func (h *Handler) Stops(c *fiber.Ctx) error {
	res, err := h.svc.LoadStops(c.UserContext(), c.QueryBool("refresh", false))
	if err != nil {
		return h.unavailable(c, models.ResourceStops, err)
	}

	return c.JSON(listResponse(res, "stops"))
}

// Lines handles GET /v1/lines?refresh=true
func (h *Handler) Lines(c *fiber.Ctx) error {
	res, err := h.svc.LoadLines(c.UserContext(), c.QueryBool("refresh", false))
	if err != nil {
		return h.unavailable(c, models.ResourceLines, err)
	}

	return c.JSON(listResponse(res, "lines"))
}

func listResponse[T any](res repository.Result[T], key string) fiber.Map {
	body := fiber.Map{
		key:       res.Items,
		"count":   len(res.Items),
		"outcome": res.Outcome.String(),
	}
	if res.RefreshErr != nil {
		body["refresh_error"] = res.RefreshErr.Error()
	}
	if res.ParseErr != nil {
		body["parse_error"] = res.ParseErr.Error()
	}
	return body
}

// StopByID handles GET /v1/stops/:id
func (h *Handler) StopByID(c *fiber.Ctx) error {
	stop, ok, err := h.svc.Stop(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.unavailable(c, models.ResourceStops, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "stop not found",
		})
	}
	return c.JSON(stop)
}

// LineByID handles GET /v1/lines/:id
func (h *Handler) LineByID(c *fiber.Ctx) error {
	line, ok, err := h.svc.Line(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.unavailable(c, models.ResourceLines, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "line not found",
		})
	}
	return c.JSON(line)
}

// StopBuses handles GET /v1/stops/:id/buses?refresh=true.
// The live feed is best effort, so this endpoint always answers 200.
func (h *Handler) StopBuses(c *fiber.Ctx) error {
	stopID := c.Params("id")
	if c.QueryBool("refresh", false) {
		h.buses.Invalidate(stopID)
	}
	buses := h.buses.FetchApproachingBuses(c.UserContext(), stopID)

	return c.JSON(fiber.Map{
		"stop_id": stopID,
		"buses":   buses,
		"count":   len(buses),
	})
}

// StopsNearby handles GET /v1/stops/nearby?lat=&lon=&radius=&limit=
func (h *Handler) StopsNearby(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing required parameters: lat and lon",
		})
	}

	lat, lon, err := parseCoordinates(latStr, lonStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	radius, err := strconv.Atoi(c.Query("radius", "500"))
	if err != nil || radius < 0 || radius > 5000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid radius (must be between 0 and 5000 meters)",
		})
	}

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid limit (must be between 1 and 100)",
		})
	}

	stops, err := h.svc.NearbyStops(c.UserContext(), lat, lon, float64(radius), limit)
	if err != nil {
		return h.unavailable(c, models.ResourceStops, err)
	}

	return c.JSON(fiber.Map{
		"stops": stops,
		"count": len(stops),
	})
}

// ClusterView is one map marker
type ClusterView struct {
	Key        models.CellKey `json:"key"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Label      string         `json:"label"`
	Count      int            `json:"count"`
	Selectable bool           `json:"selectable"`
	StopID     string         `json:"stop_id,omitempty"` // set for single-stop markers
}

// Clusters handles GET /v1/clusters?south=&west=&north=&east=&zoom=
func (h *Handler) Clusters(c *fiber.Ctx) error {
	bbox, err := parseBoundingBox(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	zoom, err := parseFloatParam(c, "zoom")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	clusters, err := h.svc.Cluster(c.UserContext(), bbox, zoom)
	if err != nil {
		return h.unavailable(c, models.ResourceStops, err)
	}

	views := make([]ClusterView, 0, len(clusters))
	for _, cl := range clusters {
		view := ClusterView{
			Key:        cl.Key,
			Latitude:   cl.Latitude,
			Longitude:  cl.Longitude,
			Label:      cl.Label(),
			Count:      cl.Count(),
			Selectable: cl.Selectable(),
		}
		if cl.Selectable() {
			view.StopID = cl.Stops[0].ID
		}
		views = append(views, view)
	}

	return c.JSON(fiber.Map{
		"clusters": views,
		"count":    len(views),
	})
}

// GetSelection handles GET /v1/selection
func (h *Handler) GetSelection(c *fiber.Ctx) error {
	stopID, buses := h.svc.Selection()
	if stopID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no stop selected",
		})
	}
	return c.JSON(selectionResponse(stopID, buses))
}

// SelectStop handles PUT /v1/selection/:id. A selection replaced by a newer
// one while its buses were loading answers 409 and leaves the newer one intact.
func (h *Handler) SelectStop(c *fiber.Ctx) error {
	stopID := c.Params("id")
	buses, committed := h.svc.SelectStop(c.UserContext(), stopID)
	if !committed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "selection superseded",
			"stop_id": stopID,
		})
	}
	return c.JSON(selectionResponse(stopID, buses))
}

// ClearSelection handles DELETE /v1/selection
func (h *Handler) ClearSelection(c *fiber.Ctx) error {
	h.svc.ClearSelection()
	return c.SendStatus(fiber.StatusNoContent)
}

func selectionResponse(stopID string, buses []models.ApproachingBus) fiber.Map {
	if buses == nil {
		buses = []models.ApproachingBus{}
	}
	return fiber.Map{
		"stop_id": stopID,
		"buses":   buses,
		"count":   len(buses),
	}
}

func (h *Handler) unavailable(c *fiber.Ctx, res models.Resource, err error) error {
	logging.LogError(logging.FromContext(c.UserContext()), "resource unavailable", err, slog.String("resource", string(res)))
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":  fmt.Sprintf("%s unavailable", res),
		"detail": err.Error(),
	})
}

// parseCoordinates parses and range-checks a lat/lon pair
func parseCoordinates(latStr, lonStr string) (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || math.IsNaN(lat) {
		return 0, 0, fmt.Errorf("invalid latitude")
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || math.IsNaN(lon) {
		return 0, 0, fmt.Errorf("invalid longitude")
	}

	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude must be between -180 and 180")
	}

	return lat, lon, nil
}

func parseFloatParam(c *fiber.Ctx, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parseBoundingBox(c *fiber.Ctx) (models.BoundingBox, error) {
	var bbox models.BoundingBox
	fields := []struct {
		name string
		dst  *float64
	}{
		{"south", &bbox.South},
		{"west", &bbox.West},
		{"north", &bbox.North},
		{"east", &bbox.East},
	}

	for _, f := range fields {
		v, err := parseFloatParam(c, f.name)
		if err != nil {
			return bbox, err
		}
		*f.dst = v
	}

	if !bbox.Valid() {
		return bbox, fmt.Errorf("invalid bounding box")
	}
	return bbox, nil
}
