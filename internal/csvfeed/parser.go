package csvfeed

import (
	"fmt"
	"log/slog"

	"github.com/eshotmap/eshot_core/internal/models"
)

// Stats summarizes one parse run
type Stats struct {
	Encoding  Encoding
	Delimiter rune
	Rows      int // non-blank data rows seen
	Accepted  int
	Dropped   int
}

// Parser turns raw feed bytes into typed records.
// Malformed rows are dropped and counted, never fatal.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that reports through logger (nil means slog.Default)
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseStops parses the stops feed.
// A missing ID, latitude or longitude column yields no stops and ErrSchemaMissing.
func (p *Parser) ParseStops(data []byte) ([]models.Stop, Stats, error) {
	table, stats, err := p.readTable(data)
	if err != nil {
		return nil, stats, err
	}

	schema, err := MapStopSchema(table.Header)
	if err != nil {
		p.logger.Error("stops feed schema missing",
			slog.String("error", err.Error()),
			slog.Any("headers", table.Header))
		return nil, stats, err
	}

	required := schema.Required()
	stops := make([]models.Stop, 0, len(table.Rows))

	for _, row := range table.Rows {
		if !Covers(row, required...) {
			stats.Dropped++
			continue
		}

		stopID := row[schema.ID]
		if stopID == "" {
			stats.Dropped++
			continue
		}

		lat, okLat := ParseDecimal(row[schema.Latitude])
		lon, okLon := ParseDecimal(row[schema.Longitude])
		if !okLat || !okLon || !ValidateCoordinates(lat, lon) {
			stats.Dropped++
			continue
		}

		name, ok := Field(row, schema.Name)
		if !ok || name == "" {
			name = models.UnknownStopName
		}
		lineIDs, _ := Field(row, schema.Lines)

		stops = append(stops, models.Stop{
			ID:        stopID,
			Name:      name,
			Latitude:  lat,
			Longitude: lon,
			LineIDs:   lineIDs,
		})
	}

	stats.Accepted = len(stops)
	p.logSummary("stops", stats)
	return stops, stats, nil
}

// ParseLines parses the lines feed. Only the ID column is required; every
// other field defaults to "" when its column is absent or out of range.
func (p *Parser) ParseLines(data []byte) ([]models.Line, Stats, error) {
	table, stats, err := p.readTable(data)
	if err != nil {
		return nil, stats, err
	}

	schema, err := MapLineSchema(table.Header)
	if err != nil {
		p.logger.Error("lines feed schema missing",
			slog.String("error", err.Error()),
			slog.Any("headers", table.Header))
		return nil, stats, err
	}

	required := schema.Required()
	lines := make([]models.Line, 0, len(table.Rows))

	for _, row := range table.Rows {
		if !Covers(row, required...) || row[schema.ID] == "" {
			stats.Dropped++
			continue
		}

		name, _ := Field(row, schema.Name)
		desc, _ := Field(row, schema.Description)
		start, _ := Field(row, schema.StartStop)
		end, _ := Field(row, schema.EndStop)

		lines = append(lines, models.Line{
			ID:          row[schema.ID],
			Name:        name,
			Description: desc,
			StartStop:   start,
			EndStop:     end,
		})
	}

	stats.Accepted = len(lines)
	p.logSummary("lines", stats)
	return lines, stats, nil
}

func (p *Parser) readTable(data []byte) (*Table, Stats, error) {
	var stats Stats

	text, enc, delim, err := Decode(data)
	if err != nil {
		return nil, stats, err
	}
	stats.Encoding = enc
	stats.Delimiter = delim

	table, err := ReadTable(text, delim)
	if err != nil {
		return nil, stats, err
	}
	stats.Rows = len(table.Rows) + table.Skipped
	stats.Dropped = table.Skipped
	if table.Skipped > 0 {
		p.logger.Warn("skipped oversized rows", slog.Int("count", table.Skipped))
	}
	return table, stats, nil
}

func (p *Parser) logSummary(feed string, stats Stats) {
	p.logger.Info("parsed feed",
		slog.String("feed", feed),
		slog.String("encoding", stats.Encoding.String()),
		slog.String("delimiter", fmt.Sprintf("%q", stats.Delimiter)),
		slog.Int("rows", stats.Rows),
		slog.Int("accepted", stats.Accepted),
		slog.Int("dropped", stats.Dropped))
}
