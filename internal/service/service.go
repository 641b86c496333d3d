package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eshotmap/eshot_core/internal/cluster"
	"github.com/eshotmap/eshot_core/internal/models"
	"github.com/eshotmap/eshot_core/internal/repository"
	"github.com/eshotmap/eshot_core/internal/tracker"
)

// BusSource fetches live approaching-bus records for one stop.
// Implementations never fail; an unavailable feed yields an empty list.
type BusSource interface {
	FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus
}

// Repository is the cached stops/lines store the service reads through
type Repository interface {
	LoadStops(ctx context.Context, force bool) (repository.Result[models.Stop], error)
	LoadLines(ctx context.Context, force bool) (repository.Result[models.Line], error)
	Status() []repository.Status
}

// Service is the collaborator-facing surface: load, get, cluster and select.
// It holds no global state; construct one per process (or per test).
type Service struct {
	repo      Repository
	buses     BusSource
	clusterer *cluster.Clusterer
	selection *tracker.Selection
	inflight  singleflight.Group
	logger    *slog.Logger
}

// New wires a service. A nil clusterer uses the default grid constants.
func New(repo Repository, buses BusSource, clusterer *cluster.Clusterer, logger *slog.Logger) *Service {
	if clusterer == nil {
		clusterer = cluster.New(cluster.DefaultBaseSize, cluster.DefaultReferenceZoom)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		buses:     buses,
		clusterer: clusterer,
		selection: tracker.NewSelection(),
		logger:    logger,
	}
}

// LoadStops returns all stops, refreshing from upstream when force is set
func (s *Service) LoadStops(ctx context.Context, force bool) (repository.Result[models.Stop], error) {
	return s.repo.LoadStops(ctx, force)
}

// LoadLines returns all lines, refreshing from upstream when force is set
func (s *Service) LoadLines(ctx context.Context, force bool) (repository.Result[models.Line], error) {
	return s.repo.LoadLines(ctx, force)
}

// Status reports the cache state of both resources
func (s *Service) Status() []repository.Status {
	return s.repo.Status()
}

// Warm loads stops and lines concurrently. Either failing fails the warm-up,
// but the other resource still finishes loading.
func (s *Service) Warm(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		res, err := s.repo.LoadStops(ctx, false)
		if err != nil {
			return fmt.Errorf("warm stops: %w", err)
		}
		s.logger.Info("stops ready", slog.Int("count", len(res.Items)), slog.String("outcome", res.Outcome.String()))
		return nil
	})
	g.Go(func() error {
		res, err := s.repo.LoadLines(ctx, false)
		if err != nil {
			return fmt.Errorf("warm lines: %w", err)
		}
		s.logger.Info("lines ready", slog.Int("count", len(res.Items)), slog.String("outcome", res.Outcome.String()))
		return nil
	})

	return g.Wait()
}

// GetApproachingBuses fetches live buses for stopID. Concurrent calls for
// the same stop share one upstream request.
func (s *Service) GetApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus {
	// The shared fetch outlives any single caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(stopID, func() (any, error) {
		return s.buses.FetchApproachingBuses(fetchCtx, stopID), nil
	})

	select {
	case res := <-ch:
		buses, _ := res.Val.([]models.ApproachingBus)
		if buses == nil {
			buses = []models.ApproachingBus{}
		}
		return buses
	case <-ctx.Done():
		return []models.ApproachingBus{}
	}
}

// FetchApproachingBuses lets the service stand in as a bus source for
// caching layers, so they share the per-stop in-flight request
func (s *Service) FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus {
	return s.GetApproachingBuses(ctx, stopID)
}

// SelectStop makes stopID the selected stop and fetches its buses.
// A fetch that finishes after another stop was selected is discarded and
// committed reports false.
func (s *Service) SelectStop(ctx context.Context, stopID string) (buses []models.ApproachingBus, committed bool) {
	fetchCtx, ticket := s.selection.Begin(ctx, stopID)

	buses = s.buses.FetchApproachingBuses(fetchCtx, stopID)
	if !s.selection.Commit(ticket, buses) {
		s.logger.Debug("discarded stale bus result", slog.String("stop_id", stopID))
		return nil, false
	}
	return buses, true
}

// Selection returns the selected stop and its last committed buses
func (s *Service) Selection() (string, []models.ApproachingBus) {
	return s.selection.Get()
}

// ClearSelection drops the selected stop
func (s *Service) ClearSelection() {
	s.selection.Clear()
}

// ClusterStops groups stops for the viewport. It performs no I/O.
func (s *Service) ClusterStops(stops []models.Stop, bbox models.BoundingBox, zoom float64) []models.Cluster {
	return s.clusterer.Cluster(stops, bbox, zoom)
}

// Cluster groups the cached stop set for the viewport, loading it if needed
func (s *Service) Cluster(ctx context.Context, bbox models.BoundingBox, zoom float64) ([]models.Cluster, error) {
	res, err := s.repo.LoadStops(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.ClusterStops(res.Items, bbox, zoom), nil
}

// NearbyStops returns stops within radiusM meters, nearest first
func (s *Service) NearbyStops(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.StopWithDistance, error) {
	res, err := s.repo.LoadStops(ctx, false)
	if err != nil {
		return nil, err
	}
	return cluster.Nearby(res.Items, lat, lon, radiusM, limit), nil
}

// Stop returns the first stop with id. IDs are not unique in the feed.
func (s *Service) Stop(ctx context.Context, id string) (models.Stop, bool, error) {
	res, err := s.repo.LoadStops(ctx, false)
	if err != nil {
		return models.Stop{}, false, err
	}
	for _, stop := range res.Items {
		if stop.ID == id {
			return stop, true, nil
		}
	}
	return models.Stop{}, false, nil
}

// Line returns the first line with id
func (s *Service) Line(ctx context.Context, id string) (models.Line, bool, error) {
	res, err := s.repo.LoadLines(ctx, false)
	if err != nil {
		return models.Line{}, false, err
	}
	for _, line := range res.Items {
		if line.ID == id {
			return line, true, nil
		}
	}
	return models.Line{}, false, nil
}
