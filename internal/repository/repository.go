package repository

import (
	"context"
	"log/slog"

	"github.com/eshotmap/eshot_core/internal/csvfeed"
	"github.com/eshotmap/eshot_core/internal/models"
)

// Repository owns the stops and lines resources. The two are independent
// and may load concurrently with each other.
type Repository struct {
	stops *Resource[models.Stop]
	lines *Resource[models.Line]
}

// New wires both resources to one fetcher, store and parser
func New(fetcher Fetcher, store Store, parser *csvfeed.Parser, logger *slog.Logger) *Repository {
	if parser == nil {
		parser = csvfeed.NewParser(logger)
	}

	parseStops := func(data []byte) ([]models.Stop, error) {
		stops, _, err := parser.ParseStops(data)
		return stops, err
	}
	parseLines := func(data []byte) ([]models.Line, error) {
		lines, _, err := parser.ParseLines(data)
		return lines, err
	}

	return &Repository{
		stops: NewResource(models.ResourceStops, fetcher, store, parseStops, logger),
		lines: NewResource(models.ResourceLines, fetcher, store, parseLines, logger),
	}
}

// LoadStops returns the stop set, downloading as needed
func (r *Repository) LoadStops(ctx context.Context, force bool) (Result[models.Stop], error) {
	return r.stops.Load(ctx, force)
}

// LoadLines returns the line set, downloading as needed
func (r *Repository) LoadLines(ctx context.Context, force bool) (Result[models.Line], error) {
	return r.lines.Load(ctx, force)
}

// Status reports both resources, stops first
func (r *Repository) Status() []Status {
	return []Status{r.stops.Status(), r.lines.Status()}
}
